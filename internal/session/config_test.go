// Package session implements the driver's session orchestrator.
// This file contains tests for configuration defaults, validation, flag
// registration, and YAML loading.
package session

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfigApplyDefaults verifies that zero-valued fields are filled and
// explicit values are left alone.
func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultNumWorkers, cfg.NumWorkers)
	assert.Equal(t, DefaultQueueSize, cfg.QueueSize)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, DefaultReconnectBaseDelay, cfg.ReconnectBaseDelay)
	assert.Equal(t, DefaultReconnectMaxDelay, cfg.ReconnectMaxDelay)
	assert.Equal(t, DefaultProbeInterval, cfg.ProbeInterval)
	assert.Equal(t, DefaultProbeFailureThreshold, cfg.ProbeFailureThreshold)

	// Explicit values survive.
	cfg = Config{NumWorkers: 8, Port: 19042}
	cfg.ApplyDefaults()
	assert.Equal(t, 8, cfg.NumWorkers)
	assert.Equal(t, 19042, cfg.Port)
}

// TestConfigValidate verifies the rejection cases.
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid",
			cfg:     Config{ContactPoints: "a:9042", Port: 9042},
			wantErr: false,
		},
		{
			name:    "no contact points",
			cfg:     Config{Port: 9042},
			wantErr: true,
		},
		{
			name:    "blank contact points",
			cfg:     Config{ContactPoints: "   ", Port: 9042},
			wantErr: true,
		},
		{
			name:    "negative workers",
			cfg:     Config{ContactPoints: "a:9042", Port: 9042, NumWorkers: -1},
			wantErr: true,
		},
		{
			name:    "port out of range",
			cfg:     Config{ContactPoints: "a:9042", Port: 70000},
			wantErr: true,
		},
		{
			name:    "zero port",
			cfg:     Config{ContactPoints: "a:9042"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	// Zero workers and queue size pass validation; ApplyDefaults fills them.
	// Only negative values are rejected, and the message says so.
	t.Run("zero workers and queue size are valid", func(t *testing.T) {
		cfg := Config{ContactPoints: "a:9042", Port: 9042}
		assert.NoError(t, cfg.Validate())
	})
	t.Run("negative values name the actual bound", func(t *testing.T) {
		cfg := Config{ContactPoints: "a:9042", Port: 9042, QueueSize: -1}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must not be negative")
	})
}

// TestConfigRegisterFlags verifies flag parsing into the config.
func TestConfigRegisterFlags(t *testing.T) {
	var cfg Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"-session.contact-points=a:9042,b:9042",
		"-session.num-workers=4",
		"-session.connect-timeout=250ms",
		"-session.probe-failure-threshold=5",
	}))

	assert.Equal(t, "a:9042,b:9042", cfg.ContactPoints)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectTimeout)
	assert.Equal(t, 5, cfg.ProbeFailureThreshold)
	// Unset flags carry their defaults.
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultQueueSize, cfg.QueueSize)
}

// TestContactPointList verifies splitting and whitespace handling.
func TestContactPointList(t *testing.T) {
	cfg := Config{ContactPoints: "a:9042, b , ,c:19042"}
	assert.Equal(t, []string{"a:9042", "b", "c:19042"}, cfg.contactPointList())

	cfg = Config{}
	assert.Empty(t, cfg.contactPointList())
}

// TestLoadFile verifies YAML loading with human-readable durations,
// defaulting of omitted fields, and validation of the result.
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
contact_points: a:9042,b:9042
num_workers: 4
connect_timeout: 250ms
reconnect_max_delay: 1m
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "a:9042,b:9042", cfg.ContactPoints)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectTimeout)
	assert.Equal(t, time.Minute, cfg.ReconnectMaxDelay)
	// Omitted fields are defaulted.
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
}

// TestLoadFileRejectsUnknownFields verifies strict decoding.
func TestLoadFileRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
contact_points: a:9042
no_such_option: true
`), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

// TestLoadFileInvalid verifies the error paths for missing and unreadable
// configurations.
func TestLoadFileInvalid(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("fails validation", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.yaml")
		require.NoError(t, os.WriteFile(path, []byte("num_workers: 2\n"), 0o644))
		_, err := LoadFile(path)
		assert.Error(t, err, "config without contact points must not validate")
	})
}
