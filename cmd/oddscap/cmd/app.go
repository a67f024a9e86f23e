package cmd

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lawrencejones/oddscap/internal/middleware"
	"github.com/lawrencejones/oddscap/pkg/capture"
	"github.com/lawrencejones/oddscap/pkg/proxyhost"

	"contrib.go.opencensus.io/exporter/jaeger"
	"github.com/alecthomas/kingpin"
	"github.com/getsentry/sentry-go"
	kitlog "github.com/go-kit/kit/log"
	level "github.com/go-kit/kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opencensus.io/trace"
)

var logger kitlog.Logger

var (
	app = kingpin.New("oddscap", "Capture odds provider traffic from an intercepting proxy into bucket files").Version(versionStanza())

	// Global flags
	debug               = app.Flag("debug", "Enable debug logging").Default("false").Bool()
	jaegerAgentEndpoint = app.Flag("jaeger-agent-endpoint", "Endpoint for Jaeger agent, empty to disable tracing").Default("localhost:6831").String()
	sentryDSN           = app.Flag("sentry-dsn", "Sentry DSN for reporting capture failures").Envar("SENTRY_DSN").String()

	// Where buckets go, and which rules put them there
	captureOptions = new(capture.Options).Bind(app, "capture.")

	proxy               = app.Command("proxy", "Run an intercepting proxy that captures matching responses")
	proxyListenAddress  = proxy.Flag("listen-address", "Address for the proxy to listen on").Default("127.0.0.1:8080").String()
	proxyMetricsAddress = proxy.Flag("metrics-address", "Address to bind HTTP metrics listener").Default("127.0.0.1:9525").String()
	proxyOptions        = new(proxyhost.Options).Bind(proxy, "proxy.")

	replay         = app.Command("capture", "Capture a single response read from disk, as if it had been proxied")
	replayURL      = replay.Flag("url", "Request URL of the response").Required().String()
	replayBodyFile = replay.Flag("body-file", "File holding the response body, - for stdin").Default("-").String()

	classify    = app.Command("classify", "Print how each rule-group classifies a URL, without writing")
	classifyURL = classify.Arg("url", "URL to classify").Required().String()

	catalogCmd          = app.Command("catalog", "List captured buckets by id")
	catalogRequire      = catalogCmd.Flag("require", "Source tags that must each have a bucket for the capture to be ready").Default("pinnacle", "related", "bet365_asian").Strings()
	catalogWait         = catalogCmd.Flag("wait", "Block until every required tag has a bucket").Default("false").Bool()
	catalogPollInterval = catalogCmd.Flag("poll-interval", "Interval to rescan buckets while waiting").Default("2s").Duration()
)

// SilentError should be returned when the command wants to skip all logging of the error
// it has encountered. It wraps no error content as we should never inspect it.
var SilentError = errors.New("silent error")

type UsageError struct {
	error
}

func Run() (err error) {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, level.AllowInfo())
	if *debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	}
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)
	stdlog.SetOutput(kitlog.NewStdlibAdapter(logger))

	// Setup an error handler to log and print usage
	defer func() {
		var usageErr UsageError
		switch {
		// Do nothing if no error
		case err == nil:
			return
		// Suppress silent errors, the command has already explained itself
		case errors.Is(err, SilentError):
			return
		// If we're a usage error, unwrap it and print out usage before returning
		case errors.As(err, &usageErr):
			context, _ := app.ParseContext(os.Args[1:])
			app.UsageForContext(context)
			fmt.Fprintf(os.Stderr, "error: %s\n", usageErr.Error())

			err = usageErr.error
			return
		// Otherwise we probably want to log our error
		default:
			logger.Log("event", "error", "error", err, "msg", "exiting with error")
		}
	}()

	// This is the root context for the application. Once terminated, everything we have
	// started should also finish.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stage our shutdown to first request termination, then cancel contexts if the proxy
	// hasn't drained in-flight flows.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	shutdown := make(chan struct{})

	go func() {
		<-sigc
		close(shutdown)
		select {
		case <-time.After(30 * time.Second):
		case <-sigc:
		}
		cancel()
	}()

	if *jaegerAgentEndpoint != "" {
		jexporter, err := jaeger.NewExporter(jaeger.Options{
			AgentEndpoint: *jaegerAgentEndpoint,
			Process: jaeger.Process{
				ServiceName: "oddscap",
			},
		})

		if err != nil {
			return UsageError{err}
		}

		defer jexporter.Flush()
		trace.RegisterExporter(jexporter)
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
	}

	var reporter capture.FailureReporter
	if *sentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: *sentryDSN, Release: Version}); err != nil {
			return UsageError{fmt.Errorf("invalid sentry configuration: %w", err)}
		}

		defer sentry.Flush(5 * time.Second)
		reporter = capture.NewSentryReporter(nil)
	}

	sink, err := captureOptions.Build(kitlog.With(logger, "component", "sink"), reporter)
	if err != nil {
		return UsageError{err}
	}

	logger.Log("event", "capture_config", "root", sink.Root(), "rules_file", captureOptions.RulesFile,
		"groups", len(sink.Groups()))

	switch command {
	case proxy.FullCommand():
		return runProxy(ctx, shutdown, sink)
	case replay.FullCommand():
		return runCapture(ctx, sink)
	case classify.FullCommand():
		return runClassify(sink)
	case catalogCmd.FullCommand():
		return runCatalog(ctx, sink)
	}

	return UsageError{fmt.Errorf("unsupported command")}
}

func runProxy(ctx context.Context, shutdown <-chan struct{}, sink *capture.Sink) error {
	var g run.Group

	{
		logger := kitlog.With(logger, "component", "shutdown_handler")

		ctx, cancel := context.WithCancel(ctx)

		// If we're asked to shutdown, we use the rungroup to trigger interrupts for every
		// component
		g.Add(
			func() error {
				select {
				case <-shutdown:
					logger.Log("event", "requesting_shutdown", "msg", "received signal, requesting shutdown")
				case <-ctx.Done():
				}

				return nil
			},
			func(error) {
				cancel() // end the shutdown select
			},
		)
	}

	{
		logger := kitlog.With(logger, "component", "metrics")

		// Metrics and debug endpoints
		mux := http.NewServeMux()

		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		srv := &http.Server{Addr: *proxyMetricsAddress, Handler: mux}

		g.Add(
			func() error {
				logger.Log("event", "listen", "address", *proxyMetricsAddress)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}

				return nil
			},
			func(error) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			},
		)
	}

	{
		logger := kitlog.With(logger, "component", "proxy")

		handler, err := proxyhost.New(logger, sink, *proxyOptions)
		if err != nil {
			return UsageError{err}
		}

		srv := &http.Server{
			Addr:    *proxyListenAddress,
			Handler: middleware.ObserveHTTP(logger)(handler),
		}

		g.Add(
			func() error {
				logger.Log("event", "listen", "address", *proxyListenAddress)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}

				return nil
			},
			func(error) {
				ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			},
		)
	}

	return g.Run()
}
