package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/student-service/internal/config"
)

func TestNewPostgresRequiresDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrPostgresDSNMissing)
}

func TestPoolConfigAppliesLimits(t *testing.T) {
	cfg, err := poolConfig(config.PostgresConfig{
		DSN:            "postgres://svc:pw@db.internal:5432/students?sslmode=disable",
		MaxConns:       8,
		MinConns:       2,
		ConnMaxIdleSec: 60,
		ConnMaxLifeSec: 600,
	})
	require.NoError(t, err)

	assert.EqualValues(t, 8, cfg.MaxConns)
	assert.EqualValues(t, 2, cfg.MinConns)
	assert.Equal(t, time.Minute, cfg.MaxConnIdleTime)
	assert.Equal(t, 10*time.Minute, cfg.MaxConnLifetime)
	assert.Equal(t, "students", cfg.ConnConfig.Database)
}

func TestPoolConfigIgnoresMinAboveMax(t *testing.T) {
	cfg, err := poolConfig(config.PostgresConfig{
		DSN:      "postgres://svc@localhost/students",
		MaxConns: 4,
		MinConns: 9,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, cfg.MinConns)
}

func TestPoolConfigRejectsMalformedDSN(t *testing.T) {
	_, err := poolConfig(config.PostgresConfig{DSN: "postgres://%zz"})
	assert.Error(t, err)
}
