package api

import (
	"bufio"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetroute/internal/metrics"
)

// statusWriter captures the final HTTP status code and number of bytes written.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Record implicit 200 responses when handlers write without calling WriteHeader.
func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets websocket upgrades pass through the middleware chain.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func wrap(w http.ResponseWriter) *statusWriter {
	if sw, ok := w.(*statusWriter); ok {
		return sw
	}
	return &statusWriter{ResponseWriter: w}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := wrap(w)
		next.ServeHTTP(sw, r)
		log.Printf(
			"method=%s path=%s status=%d bytes=%d dur=%dms",
			r.Method, r.URL.RequestURI(), sw.status, sw.bytes, time.Since(start).Milliseconds(),
		)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := wrap(w)
		next.ServeHTTP(sw, r)
		status := strconv.Itoa(sw.status)
		path := pathLabel(r.URL.Path)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

var knownPaths = map[string]bool{
	"/v1/routes": true, "/v1/optimize-all": true, "/v1/optimize-all/events/ws": true,
	"/v1/admin/optimizer/config": true, "/v1/admin/optimization-stats": true,
	"/healthz": true, "/readyz": true, "/version": true, "/metrics": true,
}

var routeSubresources = map[string]bool{
	"": true, "optimize": true, "optimize/apply": true, "optimizations": true,
	"traffic-estimate": true, "events/stream": true, "events/ws": true,
}

// pathLabel maps a request path onto a bounded label set: route IDs become {id}
// and anything unregistered becomes "other".
func pathLabel(p string) string {
	if knownPaths[p] {
		return p
	}
	rest, ok := strings.CutPrefix(p, "/v1/routes/")
	if !ok || rest == "" {
		return "other"
	}
	_, tail, _ := strings.Cut(strings.TrimSuffix(rest, "/"), "/")
	if !routeSubresources[tail] {
		return "other"
	}
	if tail == "" {
		return "/v1/routes/{id}"
	}
	return "/v1/routes/{id}/" + tail
}

func metricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
}
