package capture

// OutcomeKind is the result of evaluating one rule-group against an observation.
type OutcomeKind int

const (
	NoMatch OutcomeKind = iota
	Written
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Written:
		return "written"
	case Failed:
		return "failed"
	}

	return "no_match"
}

// FailureReason classifies why a matched rule-group failed to write.
type FailureReason string

const (
	// ExtractionError means the URL matched but lacked the structure the id extractor
	// expected.
	ExtractionError FailureReason = "extraction_error"
	// IOError means the filesystem rejected the write.
	IOError FailureReason = "io_error"
)

// Outcome records what happened to an observation within one rule-group.
type Outcome struct {
	Group     string
	Kind      OutcomeKind
	SourceTag string // tag of the matching rule, empty for NoMatch
	ID        string
	Path      string
	Reason    FailureReason // set when Kind is Failed
	Err       error
}

// label is used for the outcome metric label.
func (o Outcome) label() string {
	if o.Kind == Failed {
		return string(o.Reason)
	}

	return o.Kind.String()
}

// Report holds one outcome per rule-group, in rule table order.
type Report []Outcome

// Matched is true if any rule-group matched, whether or not its write succeeded.
func (r Report) Matched() bool {
	for _, outcome := range r {
		if outcome.Kind != NoMatch {
			return true
		}
	}

	return false
}

// Written returns the paths of every bucket written.
func (r Report) Written() []string {
	var paths []string
	for _, outcome := range r {
		if outcome.Kind == Written {
			paths = append(paths, outcome.Path)
		}
	}

	return paths
}

// Failures returns every failed outcome.
func (r Report) Failures() []Outcome {
	var failures []Outcome
	for _, outcome := range r {
		if outcome.Kind == Failed {
			failures = append(failures, outcome)
		}
	}

	return failures
}
