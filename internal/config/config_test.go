package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"DOCSESSION_API_URL", "DOCSESSION_STORE", "DOCSESSION_WARNING_LEAD",
		"DOCSESSION_REQUEST_TIMEOUT", "DOCSESSION_LISTEN", "DOCSESSION_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("DOCSESSION_DATA_DIR", "/tmp/ds")

	cfg := Load()
	assert.Equal(t, "http://127.0.0.1:8000", cfg.APIURL)
	assert.Equal(t, StoreBBolt, cfg.Store)
	assert.Equal(t, 60*time.Second, cfg.WarningLead)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "127.0.0.1:8787", cfg.Listen)
	assert.Equal(t, filepath.Join("/tmp/ds", "session.db"), cfg.SessionDBPath())
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DOCSESSION_API_URL", "https://dms.example.com")
	t.Setenv("DOCSESSION_STORE", "memory")
	t.Setenv("DOCSESSION_WARNING_LEAD", "90s")
	t.Setenv("DOCSESSION_REQUEST_TIMEOUT", "not-a-duration")

	cfg := Load()
	assert.Equal(t, "https://dms.example.com", cfg.APIURL)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 90*time.Second, cfg.WarningLead)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout, "invalid duration falls back to default")
}

func TestValidate(t *testing.T) {
	base := Config{APIURL: "http://x", DataDir: "/d", Store: StoreBBolt, WarningLead: time.Minute, RequestTimeout: time.Second}
	require.NoError(t, base.Validate())

	bad := base
	bad.Store = "redis"
	assert.ErrorContains(t, bad.Validate(), "unknown store")

	bad = base
	bad.Store = StorePostgres
	assert.ErrorContains(t, bad.Validate(), "DOCSESSION_POSTGRES_DSN")

	bad = base
	bad.WarningLead = 0
	assert.ErrorContains(t, bad.Validate(), "warning lead")

	bad = base
	bad.APIURL = ""
	assert.Error(t, bad.Validate())
}
