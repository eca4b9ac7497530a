package database

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("database.name", "fond_test")
	viper.Set("redis.port", "6380")

	cfg := LoadConfig()
	assert.Equal(t, "fond_test", cfg.Postgres.Name)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 25, cfg.Postgres.MaxOpenConns)
	assert.Contains(t, cfg.Postgres.dsn(), "dbname=fond_test")

	assert.Equal(t, "6380", cfg.Redis.Port)
	assert.Equal(t, 0, cfg.Redis.DB)
}
