package credentials

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"consensus/pkg/config"
)

// Pool is an ordered list of API keys plus the endpoint they belong to.
type Pool struct {
	APIBase string
	Keys    []string
}

// keysFile mirrors keys.yml. api_keys is decoded as a node so the order of
// the mapping survives.
type keysFile struct {
	APIBase string    `yaml:"api_base"`
	APIKeys yaml.Node `yaml:"api_keys"`
}

// Parse decodes a keys file.
func Parse(data []byte) (*Pool, error) {
	var f keysFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse keys file: %w", err)
	}

	pool := &Pool{APIBase: f.APIBase}
	switch f.APIKeys.Kind {
	case 0:
		// api_keys missing
	case yaml.MappingNode:
		nodes := f.APIKeys.Content
		for i := 0; i+1 < len(nodes); i += 2 {
			pool.Keys = append(pool.Keys, nodes[i+1].Value)
		}
	case yaml.SequenceNode:
		for _, n := range f.APIKeys.Content {
			pool.Keys = append(pool.Keys, n.Value)
		}
	default:
		return nil, fmt.Errorf("parse keys file: api_keys must be a mapping, line %d", f.APIKeys.Line)
	}
	return pool, nil
}

// Load reads a plain keys file.
func Load(path string) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keys file: %w", err)
	}
	return Parse(data)
}

// LoadEncrypted reads a keys file written by EncryptFile.
func LoadEncrypted(path, password string) (*Pool, error) {
	data, err := DecryptFile(path, password)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Anonymous returns a pool of n empty keys for providers that need none.
func Anonymous(n int) *Pool {
	return &Pool{Keys: make([]string, n)}
}

// Len returns the number of keys.
func (p *Pool) Len() int { return len(p.Keys) }

// Slice returns the share of user userID out of count users. Every user
// gets ceil(len/count) consecutive keys; the last share may be shorter.
func (p *Pool) Slice(userID, count int) (*Pool, error) {
	if count < 1 {
		return nil, config.Errorf("credentials.user_count", "must be at least 1")
	}
	if userID < 0 || userID >= count {
		return nil, config.Errorf("credentials.user_id", "must be in [0, %d), got %d", count, userID)
	}
	per := (len(p.Keys) + count - 1) / count
	start := min(per*userID, len(p.Keys))
	end := min(per*(userID+1), len(p.Keys))
	return &Pool{APIBase: p.APIBase, Keys: append([]string(nil), p.Keys[start:end]...)}, nil
}

// Require fails when the pool has fewer than agents*instances keys.
func (p *Pool) Require(agents, instances int) error {
	if need := agents * instances; len(p.Keys) < need {
		return config.Errorf("credentials", "api keys are not enough for %d agents in %d instances: have %d, need %d",
			agents, instances, len(p.Keys), need)
	}
	return nil
}

// Key returns the key of agent in instance, agents being the agent count
// of one instance.
func (p *Pool) Key(instance, agent, agents int) (string, error) {
	idx := instance*agents + agent
	if idx < 0 || idx >= len(p.Keys) {
		return "", fmt.Errorf("no api key for agent %d of instance %d (pool has %d)", agent, instance, len(p.Keys))
	}
	return p.Keys[idx], nil
}
