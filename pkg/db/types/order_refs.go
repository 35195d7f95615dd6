package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// OrderRefs is a uuid[] column holding the order ids settled by one payout.
type OrderRefs []uuid.UUID

func (a *OrderRefs) Scan(src any) error {
	if src == nil {
		*a = OrderRefs{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return a.parseFromString(v)
	case []byte:
		return a.parseFromString(string(v))
	default:
		return fmt.Errorf("OrderRefs: unsupported Scan type %T", src)
	}
}

func (a OrderRefs) Value() (driver.Value, error) {
	// Postgres array literal: {uuid,uuid}
	if len(a) == 0 {
		return "{}", nil
	}
	parts := make([]string, 0, len(a))
	for _, id := range a {
		parts = append(parts, id.String())
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

// Contains reports whether the given order id is already referenced.
func (a OrderRefs) Contains(id uuid.UUID) bool {
	for _, ref := range a {
		if ref == id {
			return true
		}
	}
	return false
}

func (a *OrderRefs) parseFromString(s string) error {
	s = strings.TrimSpace(s)
	if s == "{}" || s == "" {
		*a = OrderRefs{}
		return nil
	}
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if strings.TrimSpace(s) == "" {
		*a = OrderRefs{}
		return nil
	}

	raw := strings.Split(s, ",")
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(strings.Trim(r, `"`))
		id, err := uuid.Parse(r)
		if err != nil {
			return fmt.Errorf("OrderRefs: parse %q: %w", r, err)
		}
		out = append(out, id)
	}
	*a = OrderRefs(out)
	return nil
}
