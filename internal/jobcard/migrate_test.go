package jobcard

import (
	"errors"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockMigrator struct {
	upErr      error
	versionVal uint
	dirty      bool
	versionErr error
	closed     bool
}

func (m *mockMigrator) Up() error { return m.upErr }
func (m *mockMigrator) Version() (uint, bool, error) {
	return m.versionVal, m.dirty, m.versionErr
}
func (m *mockMigrator) Close() (error, error) {
	m.closed = true
	return nil, nil
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"000001_settings.up.sql",
		"000001_settings.down.sql",
		"000002_job_cards.up.sql",
		"000002_job_cards.down.sql",
	}, names)

	for _, name := range names {
		body, err := migrations.ReadFile("migrations/" + name)
		require.NoError(t, err)
		assert.NotEmpty(t, strings.TrimSpace(string(body)), name)
	}
}

func TestRunMigrations(t *testing.T) {
	tests := []struct {
		name    string
		m       *mockMigrator
		wantErr bool
	}{
		{name: "applied", m: &mockMigrator{versionVal: 2}},
		{name: "no change", m: &mockMigrator{upErr: migrate.ErrNoChange, versionVal: 2}},
		{name: "nil version", m: &mockMigrator{upErr: migrate.ErrNoChange, versionErr: migrate.ErrNilVersion}},
		{name: "up fails", m: &mockMigrator{upErr: errors.New("syntax error")}, wantErr: true},
		{name: "version fails", m: &mockMigrator{versionErr: errors.New("conn closed")}, wantErr: true},
		{name: "dirty", m: &mockMigrator{versionVal: 1, dirty: true}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runMigrations(tt.m, zaptest.NewLogger(t))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
