package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lawrencejones/oddscap/internal/telem"

	kitlog "github.com/go-kit/kit/log"
	level "github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/trace"
)

// Sink classifies observations against a rule table and writes matches into bucket files
// under a root directory. It is safe for concurrent use: writes to the same bucket are
// serialised, writes to different buckets are not.
type Sink struct {
	logger   kitlog.Logger
	root     string
	groups   []RuleGroup
	locks    *pathLocks
	reporter FailureReporter
}

// New validates the rule table and prepares the bucket directories of every rule, so a
// misconfigured root is caught at startup rather than on the first matching flow. The
// reporter is optional.
func New(logger kitlog.Logger, root string, groups []RuleGroup, reporter FailureReporter) (*Sink, error) {
	if err := ValidateGroups(groups); err != nil {
		return nil, errors.Wrap(err, "invalid rule table")
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve root directory")
	}

	for _, group := range groups {
		for _, rule := range group.Rules {
			if err := os.MkdirAll(filepath.Join(root, rule.Dir), bucketDirMode); err != nil {
				return nil, errors.Wrapf(err, "failed to create directory for rule %q", rule.SourceTag)
			}
		}
	}

	return &Sink{
		logger:   logger,
		root:     root,
		groups:   copyGroups(groups),
		locks:    newPathLocks(),
		reporter: reporter,
	}, nil
}

// Root is the absolute directory all buckets live under.
func (s *Sink) Root() string {
	return s.root
}

// Groups returns a copy of the rule table the sink was built with.
func (s *Sink) Groups() []RuleGroup {
	return copyGroups(s.groups)
}

func copyGroups(groups []RuleGroup) []RuleGroup {
	copied := make([]RuleGroup, len(groups))
	for idx, group := range groups {
		copied[idx] = RuleGroup{Name: group.Name, Rules: append([]MatchRule(nil), group.Rules...)}
	}

	return copied
}

// Classification is the result of matching one rule-group against a URL, without writing.
type Classification struct {
	Group string
	Rule  *MatchRule // nil when no rule in the group matched
	ID    string
	Path  string
	Err   error // extraction failure, if the rule matched
}

// Classify evaluates every rule-group against the URL and resolves bucket paths, but
// touches nothing on disk.
func (s *Sink) Classify(rawURL string) []Classification {
	classifications := make([]Classification, 0, len(s.groups))
	for _, group := range s.groups {
		classifications = append(classifications, s.classify(group, rawURL))
	}

	return classifications
}

// classify isolates each group: a panicking predicate or extractor is reported as an
// extraction failure of its own group and never reaches the caller.
func (s *Sink) classify(group RuleGroup, rawURL string) (result Classification) {
	result.Group = group.Name

	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("rule panicked: %v", r)
			if result.Rule == nil {
				result.Rule = &MatchRule{}
			}
		}
	}()

	rule, ok := group.Match(rawURL)
	if !ok {
		return result
	}

	result.Rule = &rule

	id, err := rule.Extract(rawURL)
	if err == nil {
		err = validateID(id)
	}
	if err != nil {
		result.Err = err
		return result
	}

	result.ID = id
	result.Path = rule.Path(s.root, id)

	return result
}

// Handle evaluates every rule-group against the observation and writes the body into the
// bucket of each group that matched. Failures are logged and returned in the report, but
// never stop other groups from being processed.
func (s *Sink) Handle(ctx context.Context, obs Observation) Report {
	ctx, span, logger := telem.StartSpan(telem.WithLogger(ctx, s.logger), "pkg/capture.Sink.Handle")
	defer span.End()

	span.AddAttributes(
		trace.StringAttribute("url", obs.URL),
		trace.Int64Attribute("body_size", int64(len(obs.Body))),
	)

	if obs.ID != "" {
		logger = kitlog.With(logger, "flow_id", obs.ID)
	}

	report := make(Report, 0, len(s.groups))
	for _, classification := range s.Classify(obs.URL) {
		outcome := s.handleClassification(ctx, logger, classification, obs)
		captureOutcomesTotal.WithLabelValues(outcome.Group, outcome.label()).Inc()
		report = append(report, outcome)
	}

	return report
}

func (s *Sink) handleClassification(ctx context.Context, logger kitlog.Logger, classification Classification, obs Observation) Outcome {
	outcome := Outcome{Group: classification.Group, Kind: NoMatch}
	if classification.Rule == nil {
		return outcome
	}

	rule := *classification.Rule
	outcome.SourceTag = rule.SourceTag
	logger = kitlog.With(logger, "group", classification.Group, "source_tag", rule.SourceTag)

	if classification.Err != nil {
		outcome.Kind, outcome.Reason, outcome.Err = Failed, ExtractionError, classification.Err
		s.fail(ctx, logger, outcome, obs)
		return outcome
	}

	outcome.ID, outcome.Path = classification.ID, classification.Path
	if err := s.write(ctx, rule, classification.Path, obs.Body); err != nil {
		outcome.Kind, outcome.Reason, outcome.Err = Failed, IOError, err
		s.fail(ctx, logger, outcome, obs)
		return outcome
	}

	outcome.Kind = Written
	logger.Log("event", "bucket.written", "id", outcome.ID, "path", outcome.Path,
		"mode", rule.Mode, "bytes", len(obs.Body))

	return outcome
}

func (s *Sink) fail(ctx context.Context, logger kitlog.Logger, outcome Outcome, obs Observation) {
	level.Error(logger).Log("event", "bucket.failed", "reason", outcome.Reason,
		"id", outcome.ID, "path", outcome.Path, "url", obs.URL, "error", outcome.Err)

	if s.reporter != nil {
		s.reporter.Report(ctx, outcome)
	}
}

// write persists body into the bucket at path, holding that path's lock for the duration
// of the write.
func (s *Sink) write(ctx context.Context, rule MatchRule, path string, body []byte) error {
	_, span := trace.StartSpan(ctx, "pkg/capture.Sink.write")
	defer span.End()

	span.AddAttributes(
		trace.StringAttribute("path", path),
		trace.StringAttribute("mode", rule.Mode.String()),
	)

	unlock := s.locks.Lock(path)
	defer unlock()

	defer prometheus.NewTimer(
		captureWriteDurationSeconds.WithLabelValues(rule.SourceTag, rule.Mode.String()),
	).ObserveDuration()

	var err error
	switch rule.Mode {
	case Overwrite:
		err = overwriteFile(path, body)
	case AppendWithSeparator:
		err = appendFile(path, body)
	default:
		err = errors.Errorf("unsupported write mode: %v", rule.Mode)
	}

	if err != nil {
		span.SetStatus(trace.Status{Code: trace.StatusCodeUnknown, Message: err.Error()})
		return err
	}

	captureWrittenBytesTotal.WithLabelValues(rule.SourceTag).Add(float64(len(body)))
	return nil
}
