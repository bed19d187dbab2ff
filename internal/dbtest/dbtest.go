// Package dbtest opens isolated in-memory databases carrying the billing schema.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// Schema mirrors the postgres migrations with sqlite-friendly types.
// Money columns are TEXT so decimals round-trip exactly.
var Schema = []string{
	`CREATE TABLE resources (
		id INTEGER PRIMARY KEY,
		resource_key TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		unit_price TEXT NOT NULL,
		currency TEXT NOT NULL,
		min_quantity INTEGER NOT NULL DEFAULT 0,
		max_quantity INTEGER,
		default_quantity INTEGER NOT NULL DEFAULT 0,
		step INTEGER NOT NULL DEFAULT 1,
		visible BOOLEAN NOT NULL DEFAULT 1,
		metered BOOLEAN NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (resource_key, currency)
	)`,
	`CREATE TABLE scaling_rules (
		id INTEGER PRIMARY KEY,
		resource_id INTEGER NOT NULL,
		threshold INTEGER NOT NULL,
		mode TEXT NOT NULL,
		factor TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (resource_id, threshold)
	)`,
	`CREATE TABLE terms (
		id INTEGER PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		duration_days INTEGER NOT NULL,
		multiplier TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		is_default BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX terms_single_default ON terms (is_default) WHERE is_default`,
	`CREATE TABLE coupons (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		value TEXT,
		percentage TEXT,
		resource_key TEXT,
		resource_quantity INTEGER,
		duration_days INTEGER,
		max_usages INTEGER,
		usage_count INTEGER NOT NULL DEFAULT 0,
		per_user_limit INTEGER,
		term_id INTEGER,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		starts_at DATETIME,
		expires_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE coupon_redemptions (
		id INTEGER PRIMARY KEY,
		coupon_id INTEGER NOT NULL,
		user_id INTEGER,
		order_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (coupon_id, order_id)
	)`,
	`CREATE TABLE nodes (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		deployable BOOLEAN NOT NULL DEFAULT 1,
		deployable_free BOOLEAN NOT NULL DEFAULT 0,
		free_allocations INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		payment_reference TEXT UNIQUE,
		user_id INTEGER NOT NULL,
		product_id INTEGER,
		server_id TEXT,
		server_identifier TEXT,
		provisioned_at DATETIME,
		status TEXT NOT NULL,
		type TEXT NOT NULL,
		storefront TEXT NOT NULL DEFAULT '',
		term_id INTEGER,
		node_id INTEGER NOT NULL,
		currency TEXT NOT NULL,
		total TEXT NOT NULL,
		deployment_type TEXT NOT NULL,
		metadata TEXT,
		failure_reason TEXT,
		processed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
}

// Open returns a fresh shared-cache memory database with the schema applied.
// The pool is pinned to one connection so concurrent transactions serialize.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// SQLite support hack: remove FOR UPDATE clauses
	stripLocking := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	if err := db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", stripLocking); err != nil {
		t.Fatalf("register query callback: %v", err)
	}
	if err := db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", stripLocking); err != nil {
		t.Fatalf("register row callback: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}
