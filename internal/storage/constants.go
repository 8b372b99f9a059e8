package db

import "time"

const (
	// ConnectionRetrySleep is the first pause between connection attempts.
	ConnectionRetrySleep = 2 * time.Second
	maxConnectionBackoff = 30 * time.Second
	maxConnectionRetries = 10
)

const (
	defaultMaxConns          int32         = 10
	defaultMinConns          int32         = 2
	defaultMaxConnIdleTime   time.Duration = 30 * time.Minute
	defaultMaxConnLifetime   time.Duration = time.Hour
	defaultHealthCheckPeriod time.Duration = time.Minute
)

// Advisory lock IDs. Keep them distinct across the schema.
const (
	migrationLockID int64 = 1000
	// KeywordScanLockID serializes keyword scans across replicas.
	KeywordScanLockID int64 = 2001

	lockCloseTimeout = 5 * time.Second
)

const (
	pgUniqueViolation      = "23505"
	defaultDeadLetterLimit = 50
)
