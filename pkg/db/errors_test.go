package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation_PgError(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		Message:        `duplicate key value violates unique constraint "orders_order_no_key"`,
		ConstraintName: "orders_order_no_key",
	}
	wrapped := fmt.Errorf("insert order: %w", pgErr)

	if !IsUniqueViolation(wrapped, "") {
		t.Fatal("expected unique violation without constraint filter")
	}
	if !IsUniqueViolation(wrapped, "orders_order_no_key") {
		t.Fatal("expected unique violation for matching constraint")
	}
	if IsUniqueViolation(wrapped, "orders_u2a_payment_id_key") {
		t.Fatal("unexpected match for different constraint")
	}
}

func TestIsUniqueViolation_NonUniqueCode(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23503", Message: "foreign key violation"}
	if IsUniqueViolation(pgErr, "") {
		t.Fatal("foreign key violation should not match")
	}
}

func TestIsUniqueViolation_MessageFallback(t *testing.T) {
	err := errors.New("UNIQUE constraint failed: orders.order_no")
	if !IsUniqueViolation(err, "") {
		t.Fatal("sqlite-style message should match")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error should not match")
	}
}
