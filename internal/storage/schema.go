package storage

import (
	"context"
	"fmt"

	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/database"
	dbsql "github.com/jsimoes215/AI-Content-Automation-sub005/pkg/database/sql"
)

// EnsureSchema applies the embedded scheduling schema. Statements are
// idempotent (CREATE TABLE IF NOT EXISTS), so running at every startup is
// safe.
func EnsureSchema(ctx context.Context, db database.PostgresConn) error {
	content, err := dbsql.Content.ReadFile("schema/scheduling.sql")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// EnsureArchiveSchema applies the embedded ClickHouse archive schema
func EnsureArchiveSchema(ctx context.Context, conn database.ClickHouseNativeConn) error {
	content, err := dbsql.Content.ReadFile("clickhouse/performance_events.sql")
	if err != nil {
		return fmt.Errorf("read embedded archive schema: %w", err)
	}
	if err := conn.Exec(ctx, string(content)); err != nil {
		return fmt.Errorf("apply archive schema: %w", err)
	}
	return nil
}
