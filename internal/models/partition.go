package models

import "time"

// PartitionState is the lifecycle state of a daily heartbeat partition.
// Transitions are monotonic except archive_failed -> active (retry).
type PartitionState string

const (
	PartitionActive        PartitionState = "active"
	PartitionArchived      PartitionState = "archived"
	PartitionArchiveFailed PartitionState = "archive_failed"
	PartitionDropped       PartitionState = "dropped"
)

// PartitionCatalog is one row per daily partition.
type PartitionCatalog struct {
	Name          string         `db:"name"`
	RangeStart    time.Time      `db:"range_start"`
	RangeEnd      time.Time      `db:"range_end"`
	State         PartitionState `db:"state"`
	RowCount      int64          `db:"row_count"`
	ByteSize      int64          `db:"byte_size"`
	SHA256        string         `db:"sha256"`
	ArchiveURL    string         `db:"archive_url"`
	ArchiveError  string         `db:"archive_error"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}
