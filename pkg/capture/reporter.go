package capture

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// FailureReporter is told about every failed outcome, after it has been logged. Reporters
// must not block for long, as they run on the caller's flow.
type FailureReporter interface {
	Report(ctx context.Context, outcome Outcome)
}

// SentryReporter forwards failures to sentry, tagged with the group and reason so repeated
// failures of one provider group are grouped together.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter reports to the given hub, or the current hub if nil.
func NewSentryReporter(hub *sentry.Hub) *SentryReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	return &SentryReporter{hub: hub}
}

func (r *SentryReporter) Report(ctx context.Context, outcome Outcome) {
	if outcome.Err == nil {
		return
	}

	hub := r.hub
	if ctxHub := sentry.GetHubFromContext(ctx); ctxHub != nil {
		hub = ctxHub
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("group", outcome.Group)
		scope.SetTag("reason", string(outcome.Reason))
		scope.SetTag("source_tag", outcome.SourceTag)
		scope.SetExtra("id", outcome.ID)
		scope.SetExtra("path", outcome.Path)

		hub.CaptureException(outcome.Err)
	})
}
