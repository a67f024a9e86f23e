package telem_test

import (
	"bytes"
	"context"

	"github.com/lawrencejones/oddscap/internal/telem"

	kitlog "github.com/go-kit/kit/log"
	"go.opencensus.io/trace"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("StartSpan", func() {
	var (
		buf bytes.Buffer
		ctx context.Context
	)

	BeforeEach(func() {
		buf.Reset()
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
		ctx = telem.WithLogger(context.Background(), kitlog.NewLogfmtLogger(&buf))
	})

	It("tags logs with the trace id", func() {
		ctx, span, logger := telem.StartSpan(ctx, "outer")
		defer span.End()

		logger.Log("event", "outer")
		Expect(buf.String()).To(ContainSubstring("trace_id=" + span.SpanContext().TraceID.String()))
		Expect(telem.LoggerFrom(ctx)).To(BeIdenticalTo(logger))
	})

	It("tags nested spans only once", func() {
		ctx, span, _ := telem.StartSpan(ctx, "outer")
		defer span.End()

		_, inner, logger := telem.StartSpan(ctx, "inner")
		defer inner.End()

		logger.Log("event", "inner")
		Expect(bytes.Count(buf.Bytes(), []byte("trace_id="))).To(Equal(1))
	})

	It("falls back to a nop logger", func() {
		Expect(telem.LoggerFrom(context.Background())).NotTo(BeNil())
	})
})
