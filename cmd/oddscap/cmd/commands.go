package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lawrencejones/oddscap/pkg/capture"
	"github.com/lawrencejones/oddscap/pkg/catalog"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// runCapture feeds a single body through the sink, for replaying saved responses.
func runCapture(ctx context.Context, sink *capture.Sink) error {
	body, err := readBodyFile(*replayBodyFile)
	if err != nil {
		return UsageError{err}
	}

	report := sink.Handle(ctx, capture.Observation{
		ID:   uuid.New().String(),
		URL:  *replayURL,
		Body: body,
	})

	for _, outcome := range report {
		switch outcome.Kind {
		case capture.NoMatch:
			fmt.Printf("%s\t%s\n", outcome.Group, outcome.Kind)
		case capture.Written:
			fmt.Printf("%s\t%s\t%s\n", outcome.Group, outcome.Kind, outcome.Path)
		case capture.Failed:
			fmt.Printf("%s\t%s\t%s\t%v\n", outcome.Group, outcome.Reason, outcome.SourceTag, outcome.Err)
		}
	}

	if len(report.Failures()) > 0 {
		return SilentError
	}

	return nil
}

func readBodyFile(path string) ([]byte, error) {
	if path == "-" {
		body, err := io.ReadAll(os.Stdin)
		return body, errors.Wrap(err, "failed to read body from stdin")
	}

	body, err := os.ReadFile(path)
	return body, errors.Wrapf(err, "failed to read body file %s", path)
}

func runClassify(sink *capture.Sink) error {
	spew.Dump(sink.Classify(*classifyURL))
	return nil
}

// runCatalog prints every captured id with its buckets. With --wait, it first blocks
// until each required tag has been captured at least once.
func runCatalog(ctx context.Context, sink *capture.Sink) error {
	cat, err := catalog.Scan(sink.Root(), sink.Groups())
	if err != nil {
		return err
	}

	if *catalogWait {
		ticker := time.NewTicker(*catalogPollInterval)
		defer ticker.Stop()

		for !cat.Ready(*catalogRequire...) {
			logger.Log("event", "catalog.waiting", "require", fmt.Sprintf("%v", *catalogRequire))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			if cat, err = catalog.Scan(sink.Root(), sink.Groups()); err != nil {
				return err
			}
		}
	}

	for _, id := range cat.IDs() {
		for _, entry := range cat.Entries(id) {
			fmt.Printf("%s\t%s\t%d\t%s\t%s\n", id, entry.Tag, entry.Size,
				entry.ModTime.UTC().Format(time.RFC3339), entry.Path)
		}
	}

	if !cat.Ready(*catalogRequire...) {
		logger.Log("event", "catalog.incomplete", "msg", "not every required tag has been captured")
		return SilentError
	}

	return nil
}
