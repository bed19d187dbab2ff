package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	defaultTermSlug = "monthly"
	defaultTermName = "Monthly"
	defaultTermDays = 30
)

type resourceSeed struct {
	Key       string
	Name      string
	Min       int64
	Default   int64
	Step      int64
	SortOrder int
}

// Standard panel limits. They are seeded hidden at zero price until an
// operator prices them.
var defaultResources = []resourceSeed{
	{"memory", "Memory (MB)", 512, 1024, 256, 10},
	{"cpu", "CPU (%)", 50, 100, 25, 20},
	{"disk", "Disk (MB)", 1024, 5120, 1024, 30},
	{"databases", "Databases", 0, 0, 1, 40},
	{"backups", "Backups", 0, 0, 1, 50},
	{"allocations", "Extra ports", 0, 0, 1, 60},
}

// EnsureCatalog seeds the default term and the standard resource keys for
// currency. It is idempotent and never touches rows that already exist.
func EnsureCatalog(ctx context.Context, db *gorm.DB, node *snowflake.Node, currency string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return errors.New("seed currency must be a three letter code")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureDefaultTermTx(ctx, tx, node); err != nil {
			return err
		}
		return ensureResourcesTx(ctx, tx, node, currency)
	})
}

func ensureDefaultTermTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var defaults int64
	if err := tx.WithContext(ctx).Raw(`SELECT COUNT(1) FROM terms WHERE is_default`).Scan(&defaults).Error; err != nil {
		return err
	}

	now := time.Now().UTC()
	return tx.WithContext(ctx).Exec(`
		INSERT INTO terms (id, slug, name, duration_days, multiplier, active, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, TRUE, ?, ?, ?)
		ON CONFLICT (slug) DO NOTHING
	`,
		node.Generate(),
		defaultTermSlug,
		defaultTermName,
		defaultTermDays,
		defaults == 0,
		now,
		now,
	).Error
}

func ensureResourcesTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, currency string) error {
	now := time.Now().UTC()
	for _, r := range defaultResources {
		err := tx.WithContext(ctx).Exec(`
			INSERT INTO resources (id, resource_key, name, description, unit_price, currency,
				min_quantity, default_quantity, step, visible, metered, sort_order, created_at, updated_at)
			VALUES (?, ?, ?, '', 0, ?, ?, ?, ?, FALSE, FALSE, ?, ?, ?)
			ON CONFLICT (resource_key, currency) DO NOTHING
		`,
			node.Generate(),
			r.Key,
			r.Name,
			currency,
			r.Min,
			r.Default,
			r.Step,
			r.SortOrder,
			now,
			now,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}
