package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "postgres://u:p@localhost:5432/crickbid?sslmode=disable", want: "pgx5://u:p@localhost:5432/crickbid?sslmode=disable"},
		{in: " postgresql://localhost/crickbid ", want: "pgx5://localhost/crickbid"},
		{in: "pgx5://localhost/crickbid", want: "pgx5://localhost/crickbid"},
	}
	for _, tc := range tests {
		got, err := MigrateURL(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := MigrateURL("mysql://localhost/crickbid")
	assert.Error(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "0001_auction.up.sql")
	assert.Contains(t, names, "0001_auction.down.sql")
}
