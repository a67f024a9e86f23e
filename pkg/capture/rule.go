package capture

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// WriteMode determines how a matched body is persisted into its bucket file.
type WriteMode int

const (
	// Overwrite replaces the bucket with the body. Used when each observation is a complete
	// snapshot for its id.
	Overwrite WriteMode = iota
	// AppendWithSeparator appends the body, preceded by a newline if the bucket already has
	// content. Used when an id accumulates partial payloads over a session.
	AppendWithSeparator
)

func (m WriteMode) String() string {
	switch m {
	case Overwrite:
		return "overwrite"
	case AppendWithSeparator:
		return "append"
	}

	return fmt.Sprintf("WriteMode(%d)", int(m))
}

// ParseWriteMode is the inverse of WriteMode.String.
func ParseWriteMode(s string) (WriteMode, error) {
	switch strings.ToLower(s) {
	case "overwrite":
		return Overwrite, nil
	case "append", "append_with_separator":
		return AppendWithSeparator, nil
	}

	return 0, fmt.Errorf("unknown write mode: %q", s)
}

// MatchRule pairs a URL predicate with an id extractor, and describes where matching bodies
// go: <root>/<Dir>/<SourceTag>_<id><Ext>.
type MatchRule struct {
	SourceTag string
	Predicate Predicate
	Extract   Extractor
	Mode      WriteMode
	Dir       string // relative to the sink root, may be empty
	Ext       string // including the leading dot
}

// Filename is the bucket file name for an id, unique per (SourceTag, id).
func (r MatchRule) Filename(id string) string {
	return fmt.Sprintf("%s_%s%s", r.SourceTag, id, r.Ext)
}

// Path resolves the bucket path for an id under root.
func (r MatchRule) Path(root, id string) string {
	return filepath.Join(root, r.Dir, r.Filename(id))
}

func (r MatchRule) validate() error {
	if r.SourceTag == "" {
		return errors.New("source tag is required")
	}
	if validateID(r.SourceTag) != nil || strings.ContainsAny(r.Ext, "/\\") {
		return errors.Errorf("source tag %q and extension %q must be plain file name components", r.SourceTag, r.Ext)
	}
	if r.Predicate == nil || r.Extract == nil {
		return errors.Errorf("rule %q needs both a predicate and an extractor", r.SourceTag)
	}
	dir := filepath.Clean(r.Dir)
	if filepath.IsAbs(dir) || dir == ".." || strings.HasPrefix(dir, ".."+string(filepath.Separator)) {
		return errors.Errorf("rule %q directory %q must be relative to the root", r.SourceTag, r.Dir)
	}

	return nil
}

// RuleGroup is an ordered list of rules evaluated independently of every other group. The
// first rule whose predicate matches wins, so a group writes at most once per observation.
type RuleGroup struct {
	Name  string
	Rules []MatchRule
}

// Match returns the first rule whose predicate matches the URL.
func (g RuleGroup) Match(rawURL string) (MatchRule, bool) {
	for _, rule := range g.Rules {
		if rule.Predicate(rawURL) {
			return rule, true
		}
	}

	return MatchRule{}, false
}

// ValidateGroups checks a rule table before it is used by a sink.
func ValidateGroups(groups []RuleGroup) error {
	seen := map[string]bool{}
	for _, group := range groups {
		if group.Name == "" {
			return errors.New("rule group name is required")
		}
		if seen[group.Name] {
			return errors.Errorf("duplicate rule group %q", group.Name)
		}
		seen[group.Name] = true

		if len(group.Rules) == 0 {
			return errors.Errorf("rule group %q has no rules", group.Name)
		}

		for _, rule := range group.Rules {
			if err := rule.validate(); err != nil {
				return errors.Wrapf(err, "rule group %q", group.Name)
			}
		}
	}

	return nil
}
