package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cellprobehq/agent/pkg/types"
)

const (
	defaultTable          = "probe_results"
	defaultConnectTimeout = 5 * time.Second
)

// PostgresSink inserts results into a table, keeping the location trail as
// jsonb.
type PostgresSink struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSink connects, verifies the connection and creates the table if
// it is missing.
func NewPostgresSink(ctx context.Context, dsn, table string) (*PostgresSink, error) {
	cfg, err := poolConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if table == "" {
		table = defaultTable
	}
	s := &PostgresSink{pool: pool, table: table}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// poolConfig parses dsn and bounds each connection attempt unless the DSN
// sets connect_timeout itself.
func poolConfig(dsn string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.ConnConfig.ConnectTimeout <= 0 {
		cfg.ConnConfig.ConnectTimeout = defaultConnectTimeout
	}
	return cfg, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL(s.table)); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresSink) Save(ctx context.Context, result types.ProbeResult) error {
	args, err := insertArgs(result)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertSQL(s.table), args...); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id              BIGSERIAL PRIMARY KEY,
    guid            TEXT NOT NULL,
    data_id         TEXT NOT NULL,
    data_version    INTEGER NOT NULL,
    node_id         TEXT NOT NULL,
    sequence_number BIGINT NOT NULL,
    ts              DOUBLE PRECISION NOT NULL,
    iccid           TEXT,
    interface_name  TEXT NOT NULL,
    operator        TEXT NOT NULL,
    host            TEXT,
    port            TEXT,
    speed           DOUBLE PRECISION NOT NULL,
    bytes           BIGINT NOT NULL,
    total_time      DOUBLE PRECISION NOT NULL,
    setup_time      DOUBLE PRECISION NOT NULL,
    download_time   DOUBLE PRECISION NOT NULL,
    gps_positions   JSONB NOT NULL DEFAULT '[]'::jsonb,
    inserted_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);`, pgx.Identifier{table}.Sanitize())
}

func insertSQL(table string) string {
	return fmt.Sprintf(`
INSERT INTO %s (
    guid, data_id, data_version, node_id, sequence_number, ts, iccid,
    interface_name, operator, host, port, speed, bytes, total_time,
    setup_time, download_time, gps_positions
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);`, pgx.Identifier{table}.Sanitize())
}

func insertArgs(r types.ProbeResult) ([]any, error) {
	positions := r.GPSPositions
	if positions == nil {
		positions = []types.LocationFix{}
	}
	trail, err := json.Marshal(positions)
	if err != nil {
		return nil, fmt.Errorf("encode gps positions: %w", err)
	}
	return []any{
		r.GUID,
		r.DataID,
		r.DataVersion,
		r.NodeID,
		r.SequenceNumber,
		r.Timestamp,
		nullString(r.ICCID),
		r.InterfaceName,
		r.Operator,
		nullString(r.Host),
		nullString(r.Port),
		r.Speed,
		r.Bytes,
		r.TotalTime,
		r.SetupTime,
		r.DownloadTime,
		trail,
	}, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
