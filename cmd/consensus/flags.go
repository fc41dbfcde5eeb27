package main

import (
	"flag"
	"io"
	"strconv"
	"strings"

	"consensus/pkg/config"
	"consensus/pkg/logx"
)

type options struct {
	configPath  string
	showVersion bool
	encryptKeys bool
	debug       bool
	debugFile   bool
	debugDomain string

	fs *flag.FlagSet

	agents, rounds, instances int
	stubborn, suggestible     int
	userID, userCount         int
	seed                      int64
	out, variant, topology    string
	keys, model, provider, db string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{fs: flag.NewFlagSet("consensus", flag.ContinueOnError)}
	fs := o.fs
	fs.SetOutput(stderr)

	fs.StringVar(&o.configPath, "config", "", "Path to the experiment YAML file (optional)")
	fs.BoolVar(&o.showVersion, "version", false, "Show version information")
	fs.BoolVar(&o.encryptKeys, "encrypt-keys", false, "Encrypt the keys file to <keys>.enc and exit")

	fs.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&o.debugFile, "debug-file", false, "Also append debug lines to logs/debug.log")
	fs.StringVar(&o.debugDomain, "debug-domains", "", "Comma separated debug domains (engine,participant,llm,persistence)")

	fs.IntVar(&o.agents, "agents", 0, "Number of agents per instance")
	fs.IntVar(&o.rounds, "rounds", 0, "Number of negotiation rounds")
	fs.IntVar(&o.instances, "instances", 0, "Number of independent instances")
	fs.IntVar(&o.stubborn, "stubborn", 0, "Number of stubborn agents")
	fs.IntVar(&o.suggestible, "suggestible", 0, "Number of suggestible agents")
	fs.StringVar(&o.out, "out", "", "Output directory")
	fs.StringVar(&o.variant, "variant", "", "Experiment variant: scalar or 2d")
	fs.StringVar(&o.topology, "topology", "", "Topology: full, star[:center], or a YAML matrix file")
	fs.StringVar(&o.keys, "keys", "", "Path to the keys file")
	fs.IntVar(&o.userID, "user-id", 0, "Index of this user among -user-count key sharers")
	fs.IntVar(&o.userCount, "user-count", 0, "Number of users sharing the keys file")
	fs.StringVar(&o.model, "model", "", "Model name")
	fs.StringVar(&o.provider, "provider", "", "LLM provider: openai, anthropic, ollama or google")
	fs.StringVar(&o.db, "db", "", "Optional sqlite database path")
	fs.Int64Var(&o.seed, "seed", 0, "Placement seed (0 = time based)")

	if err := fs.Parse(args); err != nil {
		return nil, err //nolint:wrapcheck // flag already printed usage
	}
	return o, nil
}

// applyDebug turns on domain debug logging when asked; DEBUG and friends
// in the environment keep working without the flags.
func (o *options) applyDebug() {
	if !o.debug {
		return
	}
	logx.SetDebugConfig(true, o.debugFile, "")
	if o.debugDomain != "" {
		logx.SetDebugDomains(strings.Split(o.debugDomain, ","))
	}
}

// loadConfig reads the optional file, lays explicitly set flags on top and
// validates the result.
func (o *options) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		fromFile, err := config.ReadConfig(o.configPath)
		if err != nil {
			return nil, err //nolint:wrapcheck // already descriptive
		}
		cfg = *fromFile
	}
	if err := o.apply(&cfg); err != nil {
		return nil, err
	}
	return config.Finalize(&cfg) //nolint:wrapcheck // ConfigurationError is reported as is
}

func (o *options) apply(cfg *config.Config) error {
	var err error
	o.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "agents":
			cfg.Agents = o.agents
		case "rounds":
			cfg.Rounds = o.rounds
		case "instances":
			cfg.Instances = o.instances
		case "stubborn":
			cfg.Stubborn = o.stubborn
		case "suggestible":
			cfg.Suggestible = o.suggestible
		case "out":
			cfg.OutputDir = o.out
		case "variant":
			cfg.Variant = o.variant
		case "topology":
			cfg.Topology, err = parseTopology(o.topology)
		case "keys":
			cfg.Credentials.KeysFile = o.keys
			cfg.Credentials.Encrypted = strings.HasSuffix(o.keys, ".enc")
		case "user-id":
			cfg.Credentials.UserID = o.userID
		case "user-count":
			cfg.Credentials.UserCount = o.userCount
		case "model":
			cfg.LLM.Model = o.model
			if !o.isSet("provider") {
				if provider, perr := config.GetModelProvider(o.model); perr == nil {
					cfg.LLM.Provider = provider
				}
			}
		case "provider":
			cfg.LLM.Provider = o.provider
		case "db":
			cfg.Persistence.SQLitePath = o.db
		case "seed":
			cfg.Seed = o.seed
		}
	})
	return err
}

func (o *options) isSet(name string) bool {
	set := false
	o.fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// parseTopology maps the -topology value onto a TopologyConfig.
func parseTopology(value string) (config.TopologyConfig, error) {
	kind, arg, hasArg := strings.Cut(value, ":")
	switch kind {
	case config.TopologyFull:
		return config.TopologyConfig{Kind: config.TopologyFull}, nil
	case config.TopologyStar:
		center := 0
		if hasArg {
			c, err := strconv.Atoi(arg)
			if err != nil {
				return config.TopologyConfig{}, config.Errorf("topology.center", "invalid center %q", arg)
			}
			center = c
		}
		return config.TopologyConfig{Kind: config.TopologyStar, Center: center}, nil
	default:
		return config.TopologyConfig{Kind: config.TopologyFile, File: value}, nil
	}
}
