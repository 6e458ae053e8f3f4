package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestLogFieldsForPlainError(t *testing.T) {
	fields := LogFields(stdErrors.New("boom"))
	if fields["error"] != "boom" {
		t.Fatalf("unexpected error field %v", fields["error"])
	}
	for _, key := range []string{"error_code", "error_chain", "pg_code"} {
		if _, ok := fields[key]; ok {
			t.Fatalf("did not expect %s in %v", key, fields)
		}
	}
	if LogFields(nil) != nil {
		t.Fatalf("expected nil fields for nil error")
	}
}

func TestLogFieldsCarriesPostgresDetails(t *testing.T) {
	drivers := map[string]error{
		"pgx": &pgconn.PgError{Code: "23505", ConstraintName: "ux_reviews_user_product", TableName: "reviews", Message: "duplicate key value"},
		"pq":  &pq.Error{Code: "23505", Constraint: "ux_reviews_user_product", Table: "reviews", Message: "duplicate key value"},
	}
	for name, driverErr := range drivers {
		t.Run(name, func(t *testing.T) {
			err := Wrap(CodeConflict, fmt.Errorf("insert review: %w", driverErr), "review already exists")
			fields := LogFields(err)
			if fields["error_code"] != CodeConflict {
				t.Fatalf("unexpected code %v", fields["error_code"])
			}
			if fields["pg_code"] != "23505" || fields["pg_constraint"] != "ux_reviews_user_product" || fields["pg_table"] != "reviews" {
				t.Fatalf("missing postgres fields in %v", fields)
			}
			if _, ok := fields["pg_column"]; ok {
				t.Fatalf("empty postgres fields should be omitted")
			}
			chain, ok := fields["error_chain"].([]string)
			if !ok || len(chain) != 3 {
				t.Fatalf("expected three-layer chain, got %v", fields["error_chain"])
			}
		})
	}
}
