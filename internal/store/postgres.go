package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "fleetroute/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, fmt.Errorf("open postgres: %w", err)
    }
    db.SetMaxOpenConns(10)
    db.SetMaxIdleConns(10)
    db.SetConnMaxLifetime(30 * time.Minute)
    if err := db.Ping(); err != nil {
        _ = db.Close()
        return nil, fmt.Errorf("ping postgres: %w", err)
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// CreateRoute inserts the route and its stops in one transaction. Stop order follows the input.
func (p *Postgres) CreateRoute(ctx context.Context, tenantID string, in model.RouteIn) (model.Route, error) {
    id := in.ID
    if id == "" { id = uuid.New().String() }
    var depot model.GeoPoint
    if in.Depot != nil { depot = *in.Depot }

    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return model.Route{}, err }
    defer func(){ _ = tx.Rollback() }()

    res, err := tx.ExecContext(ctx, `INSERT INTO routes (id, tenant_id, plan_date, status, vehicle_id, driver_id, depot_lat, depot_lng)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (tenant_id, id) DO NOTHING`,
        id, tenantID, in.PlanDate, model.RouteStatusPlanned, nullIfEmpty(in.VehicleID), nullIfEmpty(in.DriverID), depot.Lat, depot.Lng)
    if err != nil { return model.Route{}, fmt.Errorf("insert route: %w", err) }
    if n, _ := res.RowsAffected(); n == 0 {
        return model.Route{}, fmt.Errorf("route %s: %w", id, ErrConflict)
    }
    for i, s := range in.Stops {
        sid := s.ID
        if sid == "" { sid = uuid.New().String() }
        var lat, lng float64
        if s.Location != nil { lat, lng = s.Location.Lat, s.Location.Lng }
        var twStart, twEnd any
        if s.TimeWindow != nil { twStart, twEnd = nullIfEmpty(s.TimeWindow.Start), nullIfEmpty(s.TimeWindow.End) }
        _, err = tx.ExecContext(ctx, `INSERT INTO route_stops (tenant_id, route_id, id, seq, address, lat, lng, priority, tw_start, tw_end)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
            tenantID, id, sid, i+1, nullIfEmpty(s.Address), lat, lng, normPriority(s.Priority), twStart, twEnd)
        if err != nil { return model.Route{}, fmt.Errorf("insert stop %s: %w", sid, err) }
    }
    if err := tx.Commit(); err != nil { return model.Route{}, err }
    return p.GetRoute(ctx, tenantID, id)
}

func (p *Postgres) GetRoute(ctx context.Context, tenantID, routeID string) (model.Route, error) {
    var r model.Route
    var vehicleID, driverID sql.NullString
    var optimizedAt sql.NullTime
    row := p.db.QueryRowContext(ctx, `SELECT id, tenant_id, version, plan_date, status, vehicle_id, driver_id, depot_lat, depot_lng, optimized_at
        FROM routes WHERE tenant_id=$1 AND id=$2`, tenantID, routeID)
    if err := row.Scan(&r.ID, &r.TenantID, &r.Version, &r.PlanDate, &r.Status, &vehicleID, &driverID, &r.Depot.Lat, &r.Depot.Lng, &optimizedAt); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return r, ErrNotFound }
        return r, err
    }
    r.VehicleID = vehicleID.String
    r.DriverID = driverID.String
    if optimizedAt.Valid { r.OptimizedAt = optimizedAt.Time.UTC().Format(time.RFC3339) }

    rows, err := p.db.QueryContext(ctx, `SELECT id, seq, address, lat, lng, priority, tw_start, tw_end
        FROM route_stops WHERE tenant_id=$1 AND route_id=$2 ORDER BY seq`, tenantID, routeID)
    if err != nil { return r, err }
    defer rows.Close()
    for rows.Next() {
        var s model.Stop
        var addr, twStart, twEnd sql.NullString
        if err := rows.Scan(&s.ID, &s.Seq, &addr, &s.Location.Lat, &s.Location.Lng, &s.Priority, &twStart, &twEnd); err != nil { return r, err }
        s.Address = addr.String
        if twStart.Valid || twEnd.Valid { s.TimeWindow = &model.TimeWindow{Start: twStart.String, End: twEnd.String} }
        r.Stops = append(r.Stops, s)
    }
    return r, rows.Err()
}

func (p *Postgres) ListRouteIDs(ctx context.Context, tenantID, planDate string) ([]string, error) {
    q := `SELECT id FROM routes WHERE tenant_id=$1`
    args := []any{tenantID}
    if planDate != "" { q += ` AND plan_date=$2`; args = append(args, planDate) }
    rows, err := p.db.QueryContext(ctx, q+` ORDER BY created_at, id`, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    ids := []string{}
    for rows.Next() { var id string; if err := rows.Scan(&id); err != nil { return nil, err }; ids = append(ids, id) }
    return ids, rows.Err()
}

// ApplyStopOrder locks the route row so concurrent applies serialize on the version bump.
func (p *Postgres) ApplyStopOrder(ctx context.Context, tenantID, routeID string, stopIDs []string) (model.Route, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return model.Route{}, err }
    defer func(){ _ = tx.Rollback() }()

    var one int
    if err := tx.QueryRowContext(ctx, `SELECT 1 FROM routes WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, routeID).Scan(&one); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return model.Route{}, ErrNotFound }
        return model.Route{}, err
    }
    rows, err := tx.QueryContext(ctx, `SELECT id FROM route_stops WHERE tenant_id=$1 AND route_id=$2`, tenantID, routeID)
    if err != nil { return model.Route{}, err }
    have := []string{}
    for rows.Next() {
        var id string
        if err := rows.Scan(&id); err != nil { rows.Close(); return model.Route{}, err }
        have = append(have, id)
    }
    rows.Close()
    if err := rows.Err(); err != nil { return model.Route{}, err }
    if !checkPermutation(have, stopIDs) { return model.Route{}, ErrStopMismatch }

    for i, id := range stopIDs {
        if _, err := tx.ExecContext(ctx, `UPDATE route_stops SET seq=$4 WHERE tenant_id=$1 AND route_id=$2 AND id=$3`, tenantID, routeID, id, i+1); err != nil {
            return model.Route{}, fmt.Errorf("update stop %s: %w", id, err)
        }
    }
    if _, err := tx.ExecContext(ctx, `UPDATE routes SET version=version+1, status=$3, optimized_at=now() WHERE tenant_id=$1 AND id=$2`,
        tenantID, routeID, model.RouteStatusOptimized); err != nil {
        return model.Route{}, err
    }
    if err := tx.Commit(); err != nil { return model.Route{}, err }
    return p.GetRoute(ctx, tenantID, routeID)
}

func (p *Postgres) SaveOptimizationRun(ctx context.Context, run model.OptimizationRun) (model.OptimizationRun, error) {
    if run.ID == "" { run.ID = uuid.New().String() }
    order, err := json.Marshal(run.OptimizedOrder)
    if err != nil { return run, err }
    var created time.Time
    err = p.db.QueryRowContext(ctx, `INSERT INTO optimization_runs (id, tenant_id, route_id, algorithm, original_km, optimized_km, saved_km, time_saved_min, fuel_saved_l, improvement_pct, applied, optimized_order, message, duration_ms)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING created_at`,
        run.ID, run.TenantID, run.RouteID, run.Algorithm, run.OriginalDistanceKm, run.OptimizedDistanceKm, run.DistanceSavedKm,
        run.TimeSavedMinutes, run.FuelSavedLiters, run.ImprovementPercent, run.Applied, order, nullIfEmpty(run.Message), run.DurationMs,
    ).Scan(&created)
    if err != nil { return run, fmt.Errorf("insert optimization run: %w", err) }
    run.CreatedAt = created.UTC().Format(time.RFC3339Nano)
    return run, nil
}

func (p *Postgres) ListOptimizationRuns(ctx context.Context, tenantID, routeID string, limit int) ([]model.OptimizationRun, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id, algorithm, original_km, optimized_km, saved_km, time_saved_min, fuel_saved_l, improvement_pct, applied, optimized_order, message, duration_ms, created_at
        FROM optimization_runs WHERE tenant_id=$1 AND route_id=$2 ORDER BY created_at DESC LIMIT $3`, tenantID, routeID, defaultLimit(limit))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.OptimizationRun{}
    for rows.Next() {
        run := model.OptimizationRun{TenantID: tenantID, RouteID: routeID}
        var order []byte
        var msg sql.NullString
        var created time.Time
        if err := rows.Scan(&run.ID, &run.Algorithm, &run.OriginalDistanceKm, &run.OptimizedDistanceKm, &run.DistanceSavedKm,
            &run.TimeSavedMinutes, &run.FuelSavedLiters, &run.ImprovementPercent, &run.Applied, &order, &msg, &run.DurationMs, &created); err != nil {
            return nil, err
        }
        if err := json.Unmarshal(order, &run.OptimizedOrder); err != nil { return nil, fmt.Errorf("decode optimized_order: %w", err) }
        run.Message = msg.String
        run.CreatedAt = created.UTC().Format(time.RFC3339Nano)
        out = append(out, run)
    }
    return out, rows.Err()
}

func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error) {
    row := p.db.QueryRowContext(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=$1`, tenantID)
    var js []byte
    if err := row.Scan(&js); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, nil }
        return nil, err
    }
    var cfg model.OptimizerConfig
    if err := json.Unmarshal(js, &cfg); err != nil { return nil, err }
    return &cfg, nil
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
    js, err := json.Marshal(cfg)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_config (tenant_id, config) VALUES ($1,$2)
        ON CONFLICT (tenant_id) DO UPDATE SET config=EXCLUDED.config, updated_at=now()`, tenantID, js)
    return err
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
