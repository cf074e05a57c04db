package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"docsync/internal/database"
	"docsync/internal/logger"
)

type migrationStep struct {
	Name string
	SQL  string
}

// The schema only uses types both dialects accept.
var steps = []migrationStep{
	{
		Name: "create_table_pending_documents",
		SQL: `CREATE TABLE IF NOT EXISTS pending_documents (
  id         TEXT   PRIMARY KEY,
  file_name  TEXT   NOT NULL,
  entry      TEXT   NOT NULL,
  data_uri   TEXT   NOT NULL,
  timestamp  BIGINT NOT NULL
);`,
	},
	{
		Name: "create_index_pending_documents_file_name",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_pending_documents_file_name ON pending_documents (file_name);`,
	},
	{
		Name: "create_index_pending_documents_timestamp",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_pending_documents_timestamp ON pending_documents (timestamp);`,
	},
}

func sentinelQuery(d database.Dialect) string {
	if d == database.DialectPostgres {
		return "SELECT to_regclass('public.pending_documents') IS NOT NULL"
	}
	return "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'pending_documents')"
}

// EnsureMigrated checks if the 'pending_documents' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, dialect database.Dialect, log *logger.Logger) error {
	start := time.Now()
	log = log.With("database")

	log.Log(map[string]any{
		"event":   "db_migration_check",
		"status":  "starting",
		"dialect": string(dialect),
	})

	var exists bool
	err := db.QueryRowContext(ctx, sentinelQuery(dialect)).Scan(&exists)
	if err != nil {
		log.Log(map[string]any{
			"event":         "db_migration_failed",
			"status":        "error",
			"error_message": fmt.Sprintf("failed to check sentinel table: %v", err),
			"dialect":       string(dialect),
			"duration_ms":   time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Log(map[string]any{
			"event":       "db_migration_skip",
			"status":      "success",
			"msg":         "schema already exists, skipping migration",
			"dialect":     string(dialect),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Log(map[string]any{
				"event":            "db_migration_failed",
				"status":           "error",
				"migration_step":   step.Name,
				"error_message":    err.Error(),
				"dialect":          string(dialect),
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			})
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Log(map[string]any{
			"event":            "db_migration_step",
			"status":           "success",
			"migration_step":   step.Name,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	log.Log(map[string]any{
		"event":       "db_migration_success",
		"status":      "success",
		"dialect":     string(dialect),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return nil
}
