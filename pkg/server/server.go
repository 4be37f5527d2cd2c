// Package server maps HTTP requests onto the sampler and the exposition
// formatter.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ericogr/ina219-exporter/pkg/errors"
	"github.com/ericogr/ina219-exporter/pkg/exposition"
	"github.com/ericogr/ina219-exporter/pkg/sampler"
	"github.com/rs/zerolog"
)

const (
	contentType     = "text/plain; charset=utf-8"
	notFoundBody    = "Not found."
	shutdownTimeout = 5 * time.Second
)

const helpTemplate = "INA219 Prometheus Exporter.\n" +
	"\n" +
	"Project: https://github.com/ericogr/ina219-exporter\n" +
	"\n" +
	"Usage: %s\n"

type Refresher interface {
	Refresh(ctx context.Context) (sampler.SampleSet, error)
}

type Renderer interface {
	Render(set sampler.SampleSet, err error, id exposition.Identity) exposition.Document
}

type Options struct {
	MetricsPath   string
	TelemetryPath string // empty disables self-telemetry
	Identity      exposition.Identity
}

type Server struct {
	sampler   Refresher
	formatter Renderer
	metrics   *Metrics
	opts      Options
	help      []byte
	log       zerolog.Logger
}

// New builds a dispatcher. metrics may be nil.
func New(s Refresher, f Renderer, metrics *Metrics, opts Options, log zerolog.Logger) *Server {
	return &Server{
		sampler:   s,
		formatter: f,
		metrics:   metrics,
		opts:      opts,
		help:      []byte(fmt.Sprintf(helpTemplate, opts.MetricsPath)),
		log:       log,
	}
}

// Handler returns the request dispatcher with request logging in front.
func (s *Server) Handler() http.Handler {
	return s.logRequests(http.HandlerFunc(s.dispatch))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.notFound(w)
		return
	}

	switch {
	case r.URL.Path == "/":
		s.write(w, http.StatusOK, s.help)
	case r.URL.Path == s.opts.MetricsPath:
		s.serveMetrics(w, r)
	case s.metrics != nil && s.opts.TelemetryPath != "" && r.URL.Path == s.opts.TelemetryPath:
		s.metrics.Handler().ServeHTTP(w, r)
	default:
		s.notFound(w)
	}
}

func (s *Server) serveMetrics(w http.ResponseWriter, r *http.Request) {
	set, err := s.sampler.Refresh(r.Context())
	if err != nil {
		s.logSampleError(err)
	}

	doc := s.formatter.Render(set, err, s.opts.Identity)
	if s.metrics != nil {
		s.metrics.observeScrape(doc)
	}

	switch doc.Status {
	case exposition.Success:
		if doc.Truncated {
			s.log.Warn().Int("bytes", len(doc.Body)).Msg("Metrics document truncated")
		}
		s.write(w, http.StatusOK, doc.Body)
	default:
		s.write(w, http.StatusInternalServerError, doc.Body)
	}
}

func (s *Server) logSampleError(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn().Err(err).Msg("Scrape aborted before all channels were read")
		return
	}
	var sampleErr *sampler.SampleError
	if !errors.As(err, &sampleErr) {
		s.log.Error().Err(err).Str("error_code", string(errors.CodeOf(err))).Msg("Failed to read sensor.")
		return
	}
	for _, o := range sampleErr.Failed() {
		s.log.Error().
			Str("error_code", string(errors.CodeOf(o.Err))).
			Str("channel", o.Channel).
			Int("attempts", o.Attempts).
			Err(o.Err).
			Msgf("Failed to read %s sensor.", o.Channel)
	}
}

func (s *Server) notFound(w http.ResponseWriter) {
	s.write(w, http.StatusNotFound, []byte(notFoundBody))
}

func (s *Server) write(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.log.Debug().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, port := splitRemoteAddr(r.RemoteAddr)
		s.log.Info().
			Str("client", host).
			Int("port", port).
			Str("method", methodName(r.Method)).
			Str("path", r.URL.Path).
			Msg("Request")
		next.ServeHTTP(w, r)
	})
}

func splitRemoteAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func methodName(m string) string {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return m
	}
	return "UNKNOWN"
}

// Serve answers requests on ln until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("address", ln.Addr().String()).Msg("HTTP server started")
	return s.Serve(ctx, ln)
}
