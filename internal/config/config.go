// Package config loads service configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
    "errors"
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"

    yaml "gopkg.in/yaml.v3"

    "fleetroute/internal/model"
    "fleetroute/internal/opt"
)

type Config struct {
    Server    ServerConfig          `yaml:"server"`
    Database  DatabaseConfig        `yaml:"database"`
    Redis     RedisConfig           `yaml:"redis"`
    Optimizer model.OptimizerConfig `yaml:"optimizer"`
    Batch     BatchConfig           `yaml:"batch"`
    Scheduler SchedulerConfig       `yaml:"scheduler"`
    RateLimit RateLimitConfig       `yaml:"rateLimit"`
}

type ServerConfig struct {
    Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
    URL     string `yaml:"url"`
    Migrate bool   `yaml:"migrate"`
}

type RedisConfig struct {
    URL string `yaml:"url"`
}

type BatchConfig struct {
    // Workers <= 0 uses GOMAXPROCS.
    Workers int `yaml:"workers"`
}

type SchedulerConfig struct {
    Enabled      bool          `yaml:"enabled"`
    Interval     time.Duration `yaml:"interval"`
    Tenants      []string      `yaml:"tenants"`
    AutoApply    bool          `yaml:"autoApply"`
    NotifyURL    string        `yaml:"notifyUrl"`
    NotifySecret string        `yaml:"notifySecret"`
    MaxAttempts  int           `yaml:"maxAttempts"`
}

// RateLimitConfig bounds the optimize endpoints. RPS 0 disables limiting.
type RateLimitConfig struct {
    RPS   float64 `yaml:"rps"`
    Burst int     `yaml:"burst"`
}

func Default() Config {
    return Config{
        Server:    ServerConfig{Addr: ":8080"},
        Database:  DatabaseConfig{Migrate: true},
        Optimizer: model.OptimizerConfig{Algorithm: string(opt.NearestNeighbor2Opt)},
        Scheduler: SchedulerConfig{Interval: time.Hour, Tenants: []string{"t_demo"}, MaxAttempts: 5},
        RateLimit: RateLimitConfig{RPS: 5, Burst: 10},
    }
}

// Load reads path (skipped when empty), applies environment overrides and validates the result.
func Load(path string) (Config, error) {
    cfg := Default()
    if path != "" {
        data, err := os.ReadFile(path)
        if err != nil {
            return cfg, fmt.Errorf("read config %s: %w", path, err)
        }
        if err := yaml.Unmarshal(data, &cfg); err != nil {
            return cfg, fmt.Errorf("parse config %s: %w", path, err)
        }
    }
    if err := applyEnv(&cfg); err != nil {
        return cfg, err
    }
    if err := cfg.Validate(); err != nil {
        return cfg, err
    }
    return cfg, nil
}

func applyEnv(cfg *Config) error {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Addr = ":" + v }
    if v := os.Getenv("DATABASE_URL"); v != "" { cfg.Database.URL = v }
    if v := os.Getenv("DB_MIGRATE"); v != "" { cfg.Database.Migrate = v != "false" }
    if v := os.Getenv("REDIS_URL"); v != "" { cfg.Redis.URL = v }
    if v := os.Getenv("NOTIFY_URL"); v != "" { cfg.Scheduler.NotifyURL = v }
    if v := os.Getenv("NOTIFY_SECRET"); v != "" { cfg.Scheduler.NotifySecret = v }
    if v := os.Getenv("SCHEDULER_TENANTS"); v != "" {
        cfg.Scheduler.Tenants = nil
        for _, t := range strings.Split(v, ",") {
            if t = strings.TrimSpace(t); t != "" { cfg.Scheduler.Tenants = append(cfg.Scheduler.Tenants, t) }
        }
    }
    var errs []error
    if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
        b, err := strconv.ParseBool(v)
        if err != nil { errs = append(errs, fmt.Errorf("SCHEDULER_ENABLED: %w", err)) }
        cfg.Scheduler.Enabled = b
    }
    if v := os.Getenv("SCHEDULER_INTERVAL"); v != "" {
        d, err := time.ParseDuration(v)
        if err != nil { errs = append(errs, fmt.Errorf("SCHEDULER_INTERVAL: %w", err)) }
        cfg.Scheduler.Interval = d
    }
    if v := os.Getenv("BATCH_WORKERS"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil { errs = append(errs, fmt.Errorf("BATCH_WORKERS: %w", err)) }
        cfg.Batch.Workers = n
    }
    if v := os.Getenv("RATE_RPS"); v != "" {
        f, err := strconv.ParseFloat(v, 64)
        if err != nil { errs = append(errs, fmt.Errorf("RATE_RPS: %w", err)) }
        cfg.RateLimit.RPS = f
    }
    if v := os.Getenv("RATE_BURST"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil { errs = append(errs, fmt.Errorf("RATE_BURST: %w", err)) }
        cfg.RateLimit.Burst = n
    }
    return errors.Join(errs...)
}

func (c Config) Validate() error {
    if c.Server.Addr == "" {
        return errors.New("server.addr is required")
    }
    if err := OptionsFrom(c.Optimizer).Validate(); err != nil {
        return fmt.Errorf("optimizer: %w", err)
    }
    if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
        return fmt.Errorf("scheduler.interval must be > 0, got %s", c.Scheduler.Interval)
    }
    if c.RateLimit.RPS < 0 {
        return fmt.Errorf("rateLimit.rps must be >= 0, got %g", c.RateLimit.RPS)
    }
    if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
        return fmt.Errorf("rateLimit.burst must be >= 1 when rps is set, got %d", c.RateLimit.Burst)
    }
    return nil
}

// OptionsFrom converts stored optimizer defaults into engine options.
func OptionsFrom(oc model.OptimizerConfig) opt.Options {
    return opt.Options{
        Algorithm:          opt.Algorithm(oc.Algorithm),
        AutoApply:          oc.AutoApply,
        PopulationSize:     oc.PopulationSize,
        Generations:        oc.Generations,
        MutationRate:       oc.MutationRate,
        InitialTemperature: oc.InitialTemperature,
        CoolingRate:        oc.CoolingRate,
    }
}
