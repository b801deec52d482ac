// Package partition implements the daily heartbeat partition lifecycle:
// forward creation, row/byte-count refresh, CSV+gzip archival with a SHA-256
// sidecar, and drop of archived partitions.
package partition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicecontrol/internal/models"
	"github.com/fleetops/devicecontrol/internal/repository"
)

// forwardDays is how far ahead of today partitions must exist.
const forwardDays = 14

// archiveAfter is the age at which a partition is eligible for archival.
const archiveAfter = 90 * 24 * time.Hour

// Archiver is the storage collaborator partitions are exported to; kept as
// an interface so the core never depends on a concrete object-storage SDK.
type Archiver interface {
	// Store uploads the gzip-compressed CSV and its SHA-256 sidecar, and
	// returns the URL the partition's archive_url column should record.
	Store(ctx context.Context, partitionName string, gzippedCSV []byte, sha256Hex string) (url string, err error)
}

// Manager owns the partition catalog's lifecycle transitions.
type Manager struct {
	pool      *pgxpool.Pool
	catalog   repository.PartitionRepository
	archiver  Archiver
	logger    *slog.Logger
}

// NewManager constructs a partition Manager.
func NewManager(pool *pgxpool.Pool, catalog repository.PartitionRepository, archiver Archiver, logger *slog.Logger) *Manager {
	return &Manager{pool: pool, catalog: catalog, archiver: archiver, logger: logger}
}

// partitionName returns the deterministic partition-table name for a day.
func partitionName(day time.Time) string {
	return "heartbeats_" + day.UTC().Format("20060102")
}

// EnsureForwardPartitions creates any missing partition covering
// [today-1, today+forwardDays], each with its dedupe index, idempotently.
func (m *Manager) EnsureForwardPartitions(ctx context.Context) error {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -1)

	for d := 0; d <= forwardDays+1; d++ {
		day := start.AddDate(0, 0, d)
		if err := m.ensurePartition(ctx, day); err != nil {
			return fmt.Errorf("partition: ensure %s: %w", partitionName(day), err)
		}
	}
	return nil
}

func (m *Manager) ensurePartition(ctx context.Context, day time.Time) error {
	name := partitionName(day)
	rangeStart := day
	rangeEnd := day.AddDate(0, 0, 1)

	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s PARTITION OF heartbeats
		FOR VALUES FROM ('%s') TO ('%s')`,
		name, rangeStart.Format(time.RFC3339), rangeEnd.Format(time.RFC3339))
	if _, err := m.pool.Exec(ctx, createSQL); err != nil {
		return err
	}

	indexSQL := fmt.Sprintf(`
		CREATE UNIQUE INDEX IF NOT EXISTS %s_dedupe_idx ON %s
		(device_id, date_trunc('minute', ts AT TIME ZONE 'UTC'), (extract(second from ts AT TIME ZONE 'UTC')::int / 10))`,
		name, name)
	if _, err := m.pool.Exec(ctx, indexSQL); err != nil {
		return err
	}

	return m.catalog.Upsert(ctx, &models.PartitionCatalog{
		Name: name, RangeStart: rangeStart, RangeEnd: rangeEnd, State: models.PartitionActive,
	})
}

// RefreshCounts updates the row/byte counts on every active partition, the
// nightly maintenance job's "refreshes row/byte counts" step.
func (m *Manager) RefreshCounts(ctx context.Context) error {
	active, err := m.catalog.ListOlderThan(ctx, time.Now().Add(100*365*24*time.Hour), models.PartitionActive)
	if err != nil {
		return err
	}

	for _, p := range active {
		var rowCount, byteSize int64
		countSQL := fmt.Sprintf(`SELECT count(*) FROM %s`, p.Name)
		if err := m.pool.QueryRow(ctx, countSQL).Scan(&rowCount); err != nil {
			m.logger.Warn("partition: count refresh failed", slog.String("partition", p.Name), slog.Any("error", err))
			continue
		}
		sizeSQL := `SELECT pg_total_relation_size($1)`
		if err := m.pool.QueryRow(ctx, sizeSQL, p.Name).Scan(&byteSize); err != nil {
			m.logger.Warn("partition: size refresh failed", slog.String("partition", p.Name), slog.Any("error", err))
			continue
		}
		if err := m.catalog.UpdateCounts(ctx, p.Name, rowCount, byteSize); err != nil {
			return err
		}
	}
	return nil
}
