package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMapInsertError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"pgx unique", &pgconn.PgError{Code: "23505"}, ErrDuplicate},
		{"wrapped pgx unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), ErrDuplicate},
		{"lib/pq unique", &pq.Error{Code: "23505"}, ErrDuplicate},
		{"foreign key", &pgconn.PgError{Code: "23503"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapInsertError(tt.err)
			if tt.want != nil {
				if !errors.Is(got, tt.want) {
					t.Errorf("got %v, want %v", got, tt.want)
				}
				return
			}
			if errors.Is(got, ErrDuplicate) {
				t.Errorf("unexpected duplicate mapping for %v", tt.err)
			}
		})
	}
}
