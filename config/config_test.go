package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, 5, cfg.AllocatorMaxAttempts)
	assert.Equal(t, 1, cfg.TableCapacityMin)
	assert.Equal(t, 20, cfg.TableCapacityMax)
	assert.Equal(t, 5*time.Second, cfg.QRProvisionTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "table.events", cfg.AMQPExchange)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("ALLOCATOR_MAX_ATTEMPTS", "9")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://host.example, https://floor.example ,")
	t.Setenv("QR_PROVISION_TIMEOUT", "750ms")
	t.Setenv("RATE_LIMIT_RPS", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 9, cfg.AllocatorMaxAttempts)
	assert.Equal(t, []string{"https://host.example", "https://floor.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 750*time.Millisecond, cfg.QRProvisionTimeout)
	assert.Zero(t, cfg.RateLimitRPS)
}

func TestInitDB_UnknownDriver(t *testing.T) {
	_, err := InitDB(&Config{DBDriver: "oracle"})
	assert.Error(t, err)
}

func TestInitDB_SQLite(t *testing.T) {
	db, err := InitDB(&Config{DBDriver: "sqlite", DBDSN: "file:config_test?mode=memory&cache=shared"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()
	assert.NoError(t, sqlDB.Ping())
}
