package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/eventpass/eventpass/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func pgError(code string) *pgconn.PgError {
	return &pgconn.PgError{Code: code, Message: "sqlstate " + code}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "unique violation",
			err:  pgError("23505"),
			want: true,
		},
		{
			name: "wrapped unique violation",
			err:  fmt.Errorf("failed to insert registration: %w", pgError("23505")),
			want: true,
		},
		{
			name: "serialization failure",
			err:  pgError("40001"),
			want: false,
		},
		{
			name: "no rows",
			err:  pgx.ErrNoRows,
			want: false,
		},
		{
			name: "domain error",
			err:  domain.ErrDuplicateReference,
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryableTxError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "serialization failure",
			err:  pgError("40001"),
			want: true,
		},
		{
			name: "deadlock detected",
			err:  pgError("40P01"),
			want: true,
		},
		{
			name: "wrapped deadlock",
			err:  fmt.Errorf("reserve tx: %w", pgError("40P01")),
			want: true,
		},
		{
			name: "unique violation is not retryable",
			err:  pgError("23505"),
			want: false,
		},
		{
			name: "capacity error is not retryable",
			err:  &domain.CapacityError{Remaining: 3},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("connection refused"),
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableTxError(tt.err); got != tt.want {
				t.Errorf("IsRetryableTxError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
