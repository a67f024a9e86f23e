package middleware

import (
	"net/http"
	"time"

	"github.com/lawrencejones/oddscap/internal/telem"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	kitlog "github.com/go-kit/kit/log"
	level "github.com/go-kit/kit/log/level"
	"github.com/google/uuid"
	"go.opencensus.io/plugin/ochttp"
)

// ObserveHTTP configures the o11y stack for proxied requests. The handler wrappers are run
// in reverse order that they are applied, which means we have to 'wrap' our custom
// behaviour before any of the vendor middleware that it depends on.
func ObserveHTTP(logger kitlog.Logger) func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		h = observeHTTP(logger)(h)

		// Gives each request its own Sentry hub, so capture failures can be tagged with the
		// request they came from.
		h = sentryhttp.New(sentryhttp.Options{
			Repanic: true,
		}).Handle(h)

		// Clients of the proxy are browsers, not our services, so never join their traces.
		h = &ochttp.Handler{
			Handler:          h,
			IsPublicEndpoint: true,
		}

		return h
	}
}

// observeHTTP should only be called from ObserveHTTP, as that configures the Sentry hub
// this handler tags.
func observeHTTP(logger kitlog.Logger) func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.New().String()
			logger := kitlog.With(logger, "request_id", requestID)

			if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
				hub.Scope().SetTag("request_id", requestID)
				hub.Scope().SetTag("http_host", r.Host)
			}

			// A CONNECT returns once the connection is hijacked, so the duration of an
			// intercepted tunnel is only the handshake.
			started := time.Now()
			h.ServeHTTP(w, r.WithContext(telem.WithLogger(r.Context(), logger)))

			level.Debug(logger).Log(
				"event", "http_request",
				"http_method", r.Method,
				"http_host", r.Host,
				"http_duration", time.Since(started).Seconds(),
			)
		})
	}
}
