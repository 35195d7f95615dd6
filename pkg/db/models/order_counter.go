package models

// OrderCounter holds one monotonic sequence per daily bucket, keyed by a
// date-derived string such as "order:2026-08-31".
type OrderCounter struct {
	Key string `gorm:"column:key;type:text;primaryKey"`
	Seq int64  `gorm:"column:seq;not null;default:0"`
}

// TableName keeps the historical collection name.
func (OrderCounter) TableName() string {
	return "order_counters"
}
