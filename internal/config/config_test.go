package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SECRET_KEY", "")
	t.Setenv("ACCESS_EXPIRE", "")
	t.Setenv("REFRESH_EXPIRE", "")
	t.Setenv("ALGORITHM", "")
	t.Setenv("BCRYPT_COST", "")
	t.Setenv("STORAGE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "HS256", cfg.Auth.Algorithm)
	assert.Equal(t, 10*time.Minute, cfg.Auth.AccessTTL())
	assert.Equal(t, 72*time.Hour, cfg.Auth.RefreshTTL())
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "/api/v1", cfg.App.APIPrefix)
	assert.True(t, cfg.Auth.InsecureSecret)
	assert.NotEmpty(t, cfg.Auth.SecretKey)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("ALGORITHM", "HS512")
	t.Setenv("ACCESS_EXPIRE", "15")
	t.Setenv("REFRESH_EXPIRE", "7")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("STORAGE_DRIVER", "MONGO")
	t.Setenv("LOGIN_LIMIT_WINDOW_MINUTES", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Auth.InsecureSecret)
	assert.Equal(t, DriverMongo, cfg.Storage.Driver)
	assert.Equal(t, 5*time.Minute, cfg.LoginLimit.Window())

	tc := cfg.Auth.TokenConfig()
	assert.Equal(t, "s3cret", tc.Secret)
	assert.Equal(t, "HS512", tc.Algorithm)
	assert.Equal(t, 15*time.Minute, tc.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, tc.RefreshTTL)
}

func TestLoadRejectsEmptySecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SECRET_KEY", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvHelpersFallBack(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "abc")
	t.Setenv("CFG_TEST_BOOL", "maybe")

	assert.Equal(t, 7, getEnvAsInt("CFG_TEST_INT", 7))
	assert.True(t, getEnvAsBool("CFG_TEST_BOOL", true))
	assert.Equal(t, "x", getEnv("CFG_TEST_MISSING", "x"))
}
