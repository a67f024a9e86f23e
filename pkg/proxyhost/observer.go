package proxyhost

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/lawrencejones/oddscap/pkg/capture"

	"github.com/andybalholm/brotli"
	kitlog "github.com/go-kit/kit/log"
	level "github.com/go-kit/kit/log/level"
	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	proxyResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddscap_proxy_responses_total",
			Help: "Count of proxied responses seen by the capture hook, by outcome",
		},
		[]string{"outcome"},
	)
)

// Handler is what the observer hands observations to, satisfied by *capture.Sink.
type Handler interface {
	Handle(context.Context, capture.Observation) capture.Report
}

// Observer buffers proxied responses into observations. The client always receives the
// response exactly as the upstream sent it, whatever happens to the observation.
type Observer struct {
	logger      kitlog.Logger
	handler     Handler
	maxBodySize int64
}

func NewObserver(logger kitlog.Logger, handler Handler, maxBodySize int64) *Observer {
	return &Observer{logger: logger, handler: handler, maxBodySize: maxBodySize}
}

// ObserveResponse reads the response body, passes a decoded copy to the handler and
// restores the original bytes onto the response.
func (o *Observer) ObserveResponse(resp *http.Response) *http.Response {
	if resp == nil || resp.Request == nil || resp.Body == nil {
		return resp
	}

	flowID := uuid.New().String()
	rawURL := resp.Request.URL.String()
	logger := kitlog.With(o.logger, "flow_id", flowID, "url", rawURL)

	raw, complete, err := readBody(resp.Body, o.maxBodySize)
	if err != nil {
		proxyResponsesTotal.WithLabelValues("read_error").Inc()
		level.Error(logger).Log("event", "response.read_failed", "error", err)
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		return resp
	}

	if !complete {
		// Hand the client the bytes we consumed followed by the rest of the stream
		proxyResponsesTotal.WithLabelValues("skipped_size").Inc()
		level.Warn(logger).Log("event", "response.too_large", "limit", o.maxBodySize)
		resp.Body = readCloser{io.MultiReader(bytes.NewReader(raw), resp.Body), resp.Body}
		return resp
	}

	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))

	body, err := decodeBody(resp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		proxyResponsesTotal.WithLabelValues("decode_error").Inc()
		level.Error(logger).Log("event", "response.decode_failed", "error", err)
		return resp
	}

	proxyResponsesTotal.WithLabelValues("observed").Inc()
	report := o.handler.Handle(resp.Request.Context(), capture.Observation{
		ID:   flowID,
		URL:  rawURL,
		Body: body,
	})

	if report.Matched() {
		level.Debug(logger).Log("event", "response.captured",
			"written", len(report.Written()), "failed", len(report.Failures()))
	}

	return resp
}

type readCloser struct {
	io.Reader
	io.Closer
}

// readBody reads up to limit bytes of body. If the body is longer, complete is false and
// the caller still owns the unread remainder. A limit of zero or less reads everything.
func readBody(body io.ReadCloser, limit int64) (raw []byte, complete bool, err error) {
	if limit <= 0 {
		raw, err = io.ReadAll(body)
		return raw, err == nil, err
	}

	raw, err = io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return raw, false, err
	}

	if int64(len(raw)) > limit {
		return raw, false, nil
	}

	return raw, true, nil
}

// decodeBody reverses the content encodings the proxy is likely to see, so captured buckets
// hold the payload rather than its compressed transfer form.
func decodeBody(encoding string, raw []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, errors.Wrap(err, "invalid gzip body")
		}
		defer reader.Close()

		body, err := io.ReadAll(reader)
		return body, errors.Wrap(err, "failed to decompress gzip body")
	case "deflate":
		// Servers disagree on whether deflate means zlib framing or raw deflate
		reader, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			reader = flate.NewReader(bytes.NewReader(raw))
		}
		defer reader.Close()

		body, err := io.ReadAll(reader)
		return body, errors.Wrap(err, "failed to decompress deflate body")
	case "br":
		body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
		return body, errors.Wrap(err, "failed to decompress brotli body")
	case "zstd":
		decoder, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, errors.Wrap(err, "invalid zstd body")
		}
		defer decoder.Close()

		body, err := io.ReadAll(decoder)
		return body, errors.Wrap(err, "failed to decompress zstd body")
	}

	return nil, errors.Errorf("unsupported content encoding: %q", encoding)
}
