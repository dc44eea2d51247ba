package postgres

import (
	"context"
	"testing"

	"github.com/leapstack-labs/latchgrid/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  source.Config
		want string
	}{
		{
			name: "defaults",
			cfg:  source.Config{},
			want: "host=localhost port=5432 sslmode=disable",
		},
		{
			name: "explicit settings",
			cfg: source.Config{
				Host: "db", Port: 6543, Database: "tasks", User: "app", Password: "s3cret",
				Options: map[string]string{"sslmode": "require"},
			},
			want: "host=db port=6543 sslmode=require dbname=tasks user=app password=s3cret",
		},
		{
			name: "dsn wins",
			cfg:  source.Config{DSN: "postgres://u@h/db", Host: "ignored"},
			want: "postgres://u@h/db",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildDSN(tt.cfg))
		})
	}
}

func TestOpen_InvalidDSN(t *testing.T) {
	err := New(nil).Open(context.Background(), source.Config{DSN: "postgres://%zz"})
	require.ErrorContains(t, err, "invalid postgres connection settings")
}

func TestNotConnected(t *testing.T) {
	src := New(nil)
	_, err := src.Tables(context.Background())
	require.ErrorContains(t, err, "database connection not established")
	assert.True(t, source.IsRegistered("postgres"))
}
