package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureInitialized_BadURLLeavesNoPool(t *testing.T) {
	Shutdown()
	t.Cleanup(Shutdown)

	_, err := EnsureInitialized(context.Background(), "postgres://worker@localhost:notaport/darb", DefaultPoolSettings())
	require.Error(t, err)
	assert.False(t, IsTransient(err))

	_, err = Shared()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "refused", err: fmt.Errorf("postgres: failed to ping database: %w", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}), want: true},
		{name: "starting up", err: &pgconn.PgError{Code: "57P03", Message: "the database system is starting up"}, want: true},
		{name: "no slots", err: fmt.Errorf("ping: %w", &pgconn.PgError{Code: "53300"}), want: true},
		{name: "bad password", err: &pgconn.PgError{Code: "28P01"}, want: false},
		{name: "unknown database", err: &pgconn.PgError{Code: "3D000"}, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "plain", err: errors.New("postgres: already initialized with a different database URL"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
