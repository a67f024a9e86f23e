package capture

import (
	"fmt"

	"github.com/alecthomas/kingpin"
	kitlog "github.com/go-kit/kit/log"
)

// flagger is satisfied by both kingpin.Application and kingpin.CmdClause, allowing options
// to be bound globally or to a single command.
type flagger interface {
	Flag(name, help string) *kingpin.FlagClause
}

type Options struct {
	Root        string
	PinnacleDir string
	Bet365Dir   string
	RulesFile   string
}

func (opt *Options) Bind(cmd flagger, prefix string) *Options {
	cmd.Flag(fmt.Sprintf("%sroot", prefix), "Root directory for bucket files").Envar("ODDSCAP_ROOT").Default(".").StringVar(&opt.Root)
	cmd.Flag(fmt.Sprintf("%spinnacle-dir", prefix), "Directory under root for Pinnacle buckets").Default(DefaultPinnacleDir).StringVar(&opt.PinnacleDir)
	cmd.Flag(fmt.Sprintf("%sbet365-dir", prefix), "Directory under root for Bet365 buckets, empty for the root itself").Default(DefaultBet365Dir).StringVar(&opt.Bet365Dir)
	cmd.Flag(fmt.Sprintf("%srules-file", prefix), "YAML rule file replacing the built-in provider rules").StringVar(&opt.RulesFile)

	return opt
}

// RuleGroups returns the rule table selected by the options: the rule file if one was
// given, otherwise the built-in provider rules.
func (opt Options) RuleGroups() ([]RuleGroup, error) {
	if opt.RulesFile != "" {
		return LoadRuleFile(opt.RulesFile)
	}

	return DefaultRuleGroups(opt.PinnacleDir, opt.Bet365Dir), nil
}

// Build constructs a sink from the options.
func (opt Options) Build(logger kitlog.Logger, reporter FailureReporter) (*Sink, error) {
	groups, err := opt.RuleGroups()
	if err != nil {
		return nil, err
	}

	return New(logger, opt.Root, groups, reporter)
}
