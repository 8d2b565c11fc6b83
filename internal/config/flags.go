package config

import (
	"flag"
)

// registerFlags defines a flag for every setting on fs. Values are applied
// to cfg while fs parses, so flags override every earlier source.
func registerFlags(cfg *Config, fs *flag.FlagSet, sources map[string]Source) {
	for _, s := range settings {
		apply := func(v string) error {
			if err := s.set(cfg, v); err != nil {
				return err
			}
			sources[s.key] = SourceFlag
			return nil
		}
		if s.boolean {
			fs.BoolFunc(s.flag, s.usage, apply)
		} else {
			fs.Func(s.flag, s.usage, apply)
		}
	}
}

// parseFlags defines and parses CLI flags.
func parseFlags(cfg *Config, fs *flag.FlagSet, args []string, sources map[string]Source) error {
	if fs == nil {
		fs = flag.NewFlagSet("ralphban", flag.ContinueOnError)
	}
	registerFlags(cfg, fs, sources)
	return fs.Parse(args)
}
