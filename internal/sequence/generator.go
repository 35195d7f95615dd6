package sequence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
)

// Generator hands out order numbers from a daily counter bucket. Numbers are
// unique and monotonic within one day; the sequence resets when the bucket
// key rolls over at midnight UTC.
type Generator interface {
	NextOrderNo(ctx context.Context, tx *gorm.DB) (string, error)
}

type generator struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGenerator returns a sequence generator bound to the provided database.
func NewGenerator(db *gorm.DB) (Generator, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "sequence database required")
	}
	return &generator{db: db, now: time.Now}, nil
}

// NextOrderNo atomically increments today's bucket and formats the result as
// ORD-YYYYMMDD-NNNNN. When tx is non-nil the increment joins that
// transaction, so an aborted order creation rolls the sequence back with it.
func (g *generator) NextOrderNo(ctx context.Context, tx *gorm.DB) (string, error) {
	db := g.db
	if tx != nil {
		db = tx
	}

	today := g.now().UTC()
	key := fmt.Sprintf("order:%s", today.Format("2006-01-02"))

	var seq int64
	err := db.WithContext(ctx).Raw(`
		INSERT INTO order_counters (key, seq) VALUES (?, 1)
		ON CONFLICT (key) DO UPDATE SET seq = order_counters.seq + 1
		RETURNING seq`, key).Scan(&seq).Error
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "incrementing order counter")
	}
	if seq <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("order counter %q returned no sequence", key))
	}

	return formatOrderNo(today, seq), nil
}

func formatOrderNo(day time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%s-%05d", day.Format("20060102"), seq)
}
