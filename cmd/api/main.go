package main

import (
    "context"
    "errors"
    "io"
    "log"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/joho/godotenv"

    "fleetroute/internal/api"
    "fleetroute/internal/buildinfo"
    "fleetroute/internal/config"
    "fleetroute/internal/events"
    "fleetroute/internal/fleet"
    "fleetroute/internal/metrics"
    "fleetroute/internal/scheduler"
    "fleetroute/internal/store"
)

func main() {
    if err := godotenv.Load(); err != nil {
        log.Println("No .env file found (using environment variables)")
    }
    cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
    if err != nil {
        log.Fatalf("failed to load config: %v", err)
    }

    st, closeStore, err := openStore(cfg.Database)
    if err != nil {
        log.Fatalf("failed to init store: %v", err)
    }
    defer closeStore()

    broker := openBroker(cfg.Redis)
    if c, ok := broker.(io.Closer); ok { defer c.Close() }

    metrics.RegisterDefault()
    svc := fleet.New(st, broker, cfg.Optimizer, cfg.Batch.Workers)
    srvDeps := api.NewServer(st, svc, broker, cfg.RateLimit)

    if cfg.Scheduler.Enabled {
        worker := scheduler.NewWorker(svc, cfg.Scheduler)
        worker.Start()
        defer close(worker.Stop)
        log.Printf("scheduler: enabled interval=%s tenants=%s", cfg.Scheduler.Interval, strings.Join(cfg.Scheduler.Tenants, ","))
    }

    srv := &http.Server{
        Addr:              cfg.Server.Addr,
        Handler:           srvDeps.Routes(),
        ReadHeaderTimeout: 5 * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()
    go func() {
        <-ctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        defer cancel()
        if err := srv.Shutdown(shutdownCtx); err != nil {
            log.Printf("shutdown: %v", err)
        }
    }()

    log.Printf("API listening on %s version=%s", cfg.Server.Addr, buildinfo.Version)
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
        log.Fatalf("server error: %v", err)
    }
    log.Printf("API stopped")
}

// openStore uses Postgres when a database URL is configured, in-memory otherwise.
func openStore(db config.DatabaseConfig) (store.Store, func(), error) {
    if strings.TrimSpace(db.URL) == "" {
        log.Printf("store: using in-memory store")
        return store.NewMemory(), func() {}, nil
    }
    pg, err := store.NewPostgres(db.URL)
    if err != nil { return nil, nil, err }
    if db.Migrate {
        if err := pg.Migrate(); err != nil {
            _ = pg.Close()
            return nil, nil, err
        }
    }
    log.Printf("store: using postgres migrate=%t", db.Migrate)
    return pg, func() { _ = pg.Close() }, nil
}

// openBroker prefers Redis pub/sub and falls back to the in-process broker.
func openBroker(rc config.RedisConfig) events.EventBroker {
    if rc.URL == "" { return events.NewBroker() }
    rb, err := events.NewRedisBroker(rc.URL)
    if err != nil {
        log.Printf("events: redis unavailable, using in-process broker: %v", err)
        return events.NewBroker()
    }
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := rb.Ping(ctx); err != nil {
        log.Printf("events: redis ping failed, using in-process broker: %v", err)
        _ = rb.Close()
        return events.NewBroker()
    }
    return rb
}
