// Package scheduler runs fleet-wide optimization periodically and reports each batch.
package scheduler

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "log"
    "net/http"
    "time"

    "fleetroute/internal/config"
    "fleetroute/internal/metrics"
    "fleetroute/internal/model"
)

// BatchOptimizer is the part of the fleet service the worker drives.
type BatchOptimizer interface {
    OptimizeAll(ctx context.Context, tenantID, planDate string, params model.OptimizeParams) (model.BatchResponse, error)
}

type Worker struct {
    Fleet       BatchOptimizer
    Tenants     []string
    Interval    time.Duration
    AutoApply   bool
    NotifyURL   string
    Secret      string
    HTTP        *http.Client
    MaxAttempts int
    Stop        chan struct{}
    // Now returns the current time; plan dates are derived from it.
    Now func() time.Time
    // Backoff overrides nextBackoff, mainly for tests.
    Backoff func(attempt int) time.Duration
}

func NewWorker(f BatchOptimizer, cfg config.SchedulerConfig) *Worker {
    max := cfg.MaxAttempts
    if max <= 0 { max = 5 }
    return &Worker{
        Fleet: f, Tenants: cfg.Tenants, Interval: cfg.Interval, AutoApply: cfg.AutoApply,
        NotifyURL: cfg.NotifyURL, Secret: cfg.NotifySecret,
        HTTP: &http.Client{Timeout: 5 * time.Second}, Stop: make(chan struct{}), MaxAttempts: max,
        Now: time.Now, Backoff: nextBackoff,
    }
}

func (w *Worker) Start() {
    go func() {
        ticker := time.NewTicker(w.Interval)
        defer ticker.Stop()
        for {
            select {
            case <-w.Stop:
                return
            case <-ticker.C:
                w.processOnce()
            }
        }
    }()
}

// processOnce optimizes today's routes for every configured tenant. One tenant failing does not skip the others.
func (w *Worker) processOnce() {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    go func() {
        select {
        case <-w.Stop:
            cancel()
        case <-ctx.Done():
        }
    }()
    planDate := w.Now().UTC().Format("2006-01-02")
    for _, tenant := range w.Tenants {
        sum, err := w.Fleet.OptimizeAll(ctx, tenant, planDate, model.OptimizeParams{AutoApply: &w.AutoApply})
        if err != nil {
            log.Printf("scheduler: tenant=%s plan_date=%s optimize-all failed: %v", tenant, planDate, err)
            continue
        }
        if w.NotifyURL == "" { continue }
        if err := w.notify(ctx, sum); err != nil {
            log.Printf("scheduler: tenant=%s batch=%s notify failed: %v", tenant, sum.BatchID, err)
        }
    }
}

// notify POSTs the summary, retrying non-2xx responses and transport errors with exponential backoff.
func (w *Worker) notify(ctx context.Context, sum model.BatchResponse) error {
    body, err := json.Marshal(map[string]any{"type": "batch.completed", "data": sum})
    if err != nil { return err }
    var lastErr error
    for attempt := 0; attempt < w.MaxAttempts; attempt++ {
        if attempt > 0 {
            select {
            case <-ctx.Done():
                return ctx.Err()
            case <-time.After(w.Backoff(attempt - 1)):
            }
        }
        start := time.Now()
        code, err := w.post(ctx, body)
        latency := time.Since(start).Milliseconds()
        if err == nil && code >= 200 && code < 300 {
            metrics.NotifyDeliveries.WithLabelValues("delivered").Inc()
            log.Printf("scheduler: batch=%s notified code=%d attempt=%d latency=%dms", sum.BatchID, code, attempt+1, latency)
            return nil
        }
        if err == nil { err = fmt.Errorf("unexpected status %d", code) }
        lastErr = err
        metrics.NotifyDeliveries.WithLabelValues("retry").Inc()
    }
    metrics.NotifyDeliveries.WithLabelValues("failed").Inc()
    return fmt.Errorf("gave up after %d attempts: %w", w.MaxAttempts, lastErr)
}

func (w *Worker) post(ctx context.Context, body []byte) (int, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.NotifyURL, bytes.NewReader(body))
    if err != nil { return 0, err }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Event-Type", "batch.completed")
    if w.Secret != "" { req.Header.Set(SignatureHeader, Sign(w.Secret, w.Now(), body)) }
    resp, err := w.HTTP.Do(req)
    if err != nil { return 0, err }
    _ = resp.Body.Close()
    return resp.StatusCode, nil
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
