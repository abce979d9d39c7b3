package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LISTEN_ADDR", "DATABASE_DRIVER", "DATABASE_DSN", "DATABASE_PATH", "HOME_BOOTSTRAP", "IMAGE_STORE", "MAX_UPLOAD_BYTES"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "pagesmith.db", cfg.DatabaseDSN)
	assert.Equal(t, "homepage", cfg.HomeSiteSlug)
	assert.False(t, cfg.HomeBootstrap)
	assert.Equal(t, "disk", cfg.ImageStore)
	assert.EqualValues(t, 10<<20, cfg.MaxUploadBytes)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_DSN", "postgres://u:p@db/pagesmith")
	t.Setenv("HOME_BOOTSTRAP", "true")
	t.Setenv("HOME_SITE_SLUG", " Home ")
	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")
	t.Setenv("LISTEN_ADDR", "")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "postgres://u:p@db/pagesmith", cfg.DatabaseDSN)
	assert.True(t, cfg.HomeBootstrap)
	assert.Equal(t, "home", cfg.HomeSiteSlug)
	assert.EqualValues(t, 10<<20, cfg.MaxUploadBytes)
}

func TestLoadSQLitePathFallback(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("DATABASE_PATH", "/var/lib/pagesmith/site.db")

	cfg := Load()
	assert.Equal(t, "/var/lib/pagesmith/site.db", cfg.DatabaseDSN)
}
