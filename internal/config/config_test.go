package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/fieldcall/internal/constants"
	"github.com/julianstephens/fieldcall/internal/models"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultQuotaTarget, cfg.Quota.Target)
	assert.True(t, cfg.SundayOff())
	assert.Equal(t, DefaultSteps(), cfg.Quota.Steps)
	assert.Equal(t, constants.DefaultScanInterval, cfg.Scan.Interval)
	assert.True(t, cfg.NotificationsEnabled())
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
timezone: UTC
quota:
  target: 20
  sunday_off: false
  steps:
    - {tier: Top50, count: 12}
    - {tier: CSR, count: 8}
scan:
  interval: 2m
  jitter: 0.1
survey:
  endpoint: https://surveys.example.com/send
  timeout: 3s
notify:
  enabled: false
metrics:
  addr: ":9100"
log:
  format: json
  max_backups: 7
`))
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 20, cfg.Quota.Target)
	assert.False(t, cfg.SundayOff())
	assert.Equal(t, []Step{{models.TierTop50, 12}, {models.TierCSR, 8}}, cfg.Quota.Steps)
	assert.Equal(t, 2*time.Minute, cfg.Scan.Interval)
	assert.Equal(t, 3*time.Second, cfg.Survey.Timeout)
	assert.Equal(t, constants.SurveyMaxRetries, cfg.Survey.MaxRetries)
	assert.False(t, cfg.NotificationsEnabled())
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, LogConfig{Format: "json", MaxSizeMB: constants.DefaultLogMaxSizeMB, MaxBackups: 7, MaxAgeDays: constants.DefaultLogMaxAgeDays}, cfg.Log)
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":      "quota:\n  targt: 3\n",
		"unknown tier":     "quota:\n  steps:\n    - {tier: Gold, count: 1}\n",
		"duplicate tier":   "quota:\n  steps:\n    - {tier: TSA, count: 1}\n    - {tier: TSA, count: 2}\n",
		"interval too low": "scan:\n  interval: 1s\n",
		"jitter too high":  "scan:\n  jitter: 1.5\n",
		"bad timezone":     "timezone: Mars/Olympus\n",
		"bad log format":   "log:\n  format: xml\n",
		"negative log age": "log:\n  max_age_days: -1\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Quota.Target = 12
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.Quota.Target)
}

func TestWatchPublishesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quota:\n  target: 10\n"), 0600))

	m := NewManager(path)
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Quota.Target)

	updates := m.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("quota:\n  target: 25\n"), 0600))

	select {
	case got := <-updates:
		assert.Equal(t, 25, got.Quota.Target)
		assert.Equal(t, 25, m.Get().Quota.Target)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}

	cancel()
	assert.NoError(t, <-done)
}
