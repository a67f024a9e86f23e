package capture

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// RuleFile is the YAML form of a rule table, for deployments that need to track provider
// URL changes without a rebuild:
//
//	groups:
//	  - name: related
//	    rules:
//	      - tag: related
//	        dir: raw_pinnacle
//	        ext: .json
//	        mode: overwrite
//	        match:
//	          contains: [guest.api.arcadia.pinnacle.com, /related]
//	          excludes: [/markets/]
//	        extract:
//	          between: {after: /matchups/, until: /}
type RuleFile struct {
	Groups []RuleGroupSpec `yaml:"groups"`
}

type RuleGroupSpec struct {
	Name  string     `yaml:"name"`
	Rules []RuleSpec `yaml:"rules"`
}

type RuleSpec struct {
	Tag     string      `yaml:"tag"`
	Dir     string      `yaml:"dir"`
	Ext     string      `yaml:"ext"`
	Mode    string      `yaml:"mode"`
	Match   MatchSpec   `yaml:"match"`
	Extract ExtractSpec `yaml:"extract"`
}

// MatchSpec compiles to the conjunction of every populated field.
type MatchSpec struct {
	Contains    []string   `yaml:"contains"`
	AnyContains []string   `yaml:"any_contains"`
	Excludes    []string   `yaml:"excludes"`
	Query       *QuerySpec `yaml:"query"`
}

type QuerySpec struct {
	Param    string `yaml:"param"`
	Contains string `yaml:"contains"`
}

// ExtractSpec must set exactly one extractor.
type ExtractSpec struct {
	Between *struct {
		After string `yaml:"after"`
		Until string `yaml:"until"`
	} `yaml:"between"`
	QueryMarker *struct {
		Param  string `yaml:"param"`
		Filter string `yaml:"filter"`
		Marker string `yaml:"marker"`
		Until  string `yaml:"until"`
	} `yaml:"query_marker"`
}

// LoadRuleFile reads and compiles a YAML rule file.
func LoadRuleFile(path string) ([]RuleGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read rule file")
	}

	var file RuleFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, errors.Wrapf(err, "failed to parse rule file %s", path)
	}

	groups, err := file.Compile()
	if err != nil {
		return nil, errors.Wrapf(err, "invalid rule file %s", path)
	}

	return groups, nil
}

// Compile turns the declarative rule table into rule groups, validating the result.
func (f RuleFile) Compile() ([]RuleGroup, error) {
	if len(f.Groups) == 0 {
		return nil, errors.New("no rule groups defined")
	}

	groups := make([]RuleGroup, 0, len(f.Groups))
	for _, groupSpec := range f.Groups {
		group := RuleGroup{Name: groupSpec.Name}
		for idx, ruleSpec := range groupSpec.Rules {
			rule, err := ruleSpec.compile()
			if err != nil {
				return nil, errors.Wrapf(err, "group %q rule %d", groupSpec.Name, idx)
			}

			group.Rules = append(group.Rules, rule)
		}

		groups = append(groups, group)
	}

	if err := ValidateGroups(groups); err != nil {
		return nil, err
	}

	return groups, nil
}

func (s RuleSpec) compile() (MatchRule, error) {
	mode := Overwrite
	if s.Mode != "" {
		var err error
		if mode, err = ParseWriteMode(s.Mode); err != nil {
			return MatchRule{}, err
		}
	}

	predicate, err := s.Match.compile()
	if err != nil {
		return MatchRule{}, err
	}

	extract, err := s.Extract.compile()
	if err != nil {
		return MatchRule{}, err
	}

	return MatchRule{
		SourceTag: s.Tag,
		Predicate: predicate,
		Extract:   extract,
		Mode:      mode,
		Dir:       s.Dir,
		Ext:       s.Ext,
	}, nil
}

func (s MatchSpec) compile() (Predicate, error) {
	var predicates []Predicate
	if len(s.Contains) > 0 {
		predicates = append(predicates, Contains(s.Contains...))
	}
	if len(s.AnyContains) > 0 {
		predicates = append(predicates, ContainsAny(s.AnyContains...))
	}
	if len(s.Excludes) > 0 {
		predicates = append(predicates, Excludes(s.Excludes...))
	}
	if s.Query != nil {
		if s.Query.Param == "" {
			return nil, errors.New("query match requires a param")
		}
		predicates = append(predicates, QueryContains(s.Query.Param, s.Query.Contains))
	}

	// A rule matching every URL is almost certainly a mistake
	if len(predicates) == 0 {
		return nil, errors.New("match must set at least one condition")
	}

	return AllOf(predicates...), nil
}

func (s ExtractSpec) compile() (Extractor, error) {
	switch {
	case s.Between != nil && s.QueryMarker != nil:
		return nil, errors.New("extract must set exactly one of between, query_marker")
	case s.Between != nil:
		if s.Between.After == "" {
			return nil, errors.New("between requires after")
		}
		return Between(s.Between.After, s.Between.Until), nil
	case s.QueryMarker != nil:
		if s.QueryMarker.Param == "" || s.QueryMarker.Marker == "" {
			return nil, errors.New("query_marker requires param and marker")
		}
		return QueryMarker(s.QueryMarker.Param, s.QueryMarker.Filter, s.QueryMarker.Marker, s.QueryMarker.Until), nil
	}

	return nil, errors.New("extract must set one of between, query_marker")
}
