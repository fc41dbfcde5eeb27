package participant

import "strconv"

//nolint:gochecknoglobals // fixed roster
var names = []string{
	"Alice", "Bob", "Charlie", "David", "Emily", "Frank", "Grace", "Helen",
	"Ivy", "Jack", "Karen", "Leo", "Mandy", "Nina", "Oscar", "Paul", "Quincy",
	"Rita", "Steve", "Tina", "Ursula", "Vera", "Will", "Xena", "Yara", "Zack",
	"Anna", "Bill", "Cathy", "Derek", "Elise", "Finn", "Gloria", "Harry",
	"Isabel", "Jake", "Katie", "Liam", "Mona", "Nick", "Olivia", "Peter",
	"Queen", "Rachel", "Sam", "Tracy", "Ulysses", "Vicky", "Walter", "Xander",
	"Yvonne", "Zeus", "Amy", "Brian", "Clara", "Dean", "Eva", "Fred", "Gina",
	"Henry", "Iris", "John", "Kelly", "Luke", "Maria", "Nate", "Owen", "Pam",
	"Quinn", "Rose", "Sara", "Tom", "Una", "Victor", "Wendy", "Xavier",
	"Yasmine", "Zara", "Alan", "Beth", "Chris", "Diana", "Erik", "Faye",
	"George", "Holly", "Ian", "Julia", "Ken", "Laura", "Mike", "Nora", "Otis",
	"Penny", "Quinton", "Rebecca", "Sid", "Tara", "Uma", "Vince", "Wanda",
	"Xerxes", "Yoshi", "Zoe",
}

// Name returns the display name of agent i. Past the end of the roster names
// repeat with a numeric suffix: Alice, ..., Zoe, Alice2, Bob2, ...
func Name(i int) string {
	if i < 0 {
		i = 0
	}
	base := names[i%len(names)]
	if lap := i / len(names); lap > 0 {
		return base + strconv.Itoa(lap+1)
	}
	return base
}
