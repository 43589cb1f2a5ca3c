// Package session implements the driver's session orchestrator.
// This file implements session configuration: defaults, validation, flag
// registration, and YAML loading.
package session

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults for zero-valued fields.
const (
	DefaultPort                  = 9042
	DefaultNumWorkers            = 1
	DefaultQueueSize             = 4096
	DefaultConnectTimeout        = 5 * time.Second
	DefaultShutdownTimeout       = 5 * time.Second
	DefaultReconnectBaseDelay    = 500 * time.Millisecond
	DefaultReconnectMaxDelay     = 30 * time.Second
	DefaultProbeInterval         = 5 * time.Second
	DefaultProbeFailureThreshold = 3
)

// Config holds the session's tunables.
type Config struct {
	// ContactPoints is a comma-separated list of host or host:port entries
	// used to bootstrap cluster discovery. Entries without a port get Port.
	ContactPoints string

	// Port is the default port for contact points given without one.
	Port int

	// NumWorkers is the number of I/O worker goroutines.
	NumWorkers int

	// QueueSize bounds the shared request dispatch queue.
	QueueSize int

	// ConnectTimeout bounds each connection-establishment attempt.
	ConnectTimeout time.Duration

	// ShutdownTimeout bounds the in-flight drain during Close; stragglers
	// are force-failed once it elapses.
	ShutdownTimeout time.Duration

	// ReconnectBaseDelay and ReconnectMaxDelay bound the per-host
	// exponential reconnection backoff.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// ProbeInterval and ProbeFailureThreshold configure the default
	// control connection's liveness probing.
	ProbeInterval         time.Duration
	ProbeFailureThreshold int

	// Registerer receives the session's metrics. Left nil, metrics go to a
	// private registry (keeps repeated sessions in one process from
	// colliding on the default registry).
	Registerer prometheus.Registerer
}

// RegisterFlags adds the flags required to configure a session to the
// given FlagSet.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.ContactPoints, "session.contact-points", "", "Comma-separated hostnames or ips of cluster nodes.")
	f.IntVar(&c.Port, "session.port", DefaultPort, "Default port for contact points given without one.")
	f.IntVar(&c.NumWorkers, "session.num-workers", DefaultNumWorkers, "Number of I/O worker goroutines.")
	f.IntVar(&c.QueueSize, "session.queue-size", DefaultQueueSize, "Capacity of the request dispatch queue.")
	f.DurationVar(&c.ConnectTimeout, "session.connect-timeout", DefaultConnectTimeout, "Timeout for establishing a host connection.")
	f.DurationVar(&c.ShutdownTimeout, "session.shutdown-timeout", DefaultShutdownTimeout, "In-flight request drain bound during close.")
	f.DurationVar(&c.ReconnectBaseDelay, "session.reconnect-base-delay", DefaultReconnectBaseDelay, "Base delay of the per-host reconnection backoff.")
	f.DurationVar(&c.ReconnectMaxDelay, "session.reconnect-max-delay", DefaultReconnectMaxDelay, "Cap of the per-host reconnection backoff.")
	f.DurationVar(&c.ProbeInterval, "session.probe-interval", DefaultProbeInterval, "Interval of the control connection's liveness probes.")
	f.IntVar(&c.ProbeFailureThreshold, "session.probe-failure-threshold", DefaultProbeFailureThreshold, "Consecutive failed probes before a host is reported down.")
}

// ApplyDefaults fills zero-valued fields with the package defaults.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = DefaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.ProbeFailureThreshold == 0 {
		c.ProbeFailureThreshold = DefaultProbeFailureThreshold
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ContactPoints) == "" {
		return errors.New("session: no contact points configured")
	}
	if c.NumWorkers < 0 || c.QueueSize < 0 {
		return errors.New("session: worker count and queue size must not be negative")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("session: invalid port %d", c.Port)
	}
	return nil
}

// contactPointList splits ContactPoints and appends the default port to
// entries given without one.
func (c *Config) contactPointList() []string {
	var out []string
	for _, p := range strings.Split(c.ContactPoints, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// configFile mirrors Config for YAML decoding. Durations are
// model.Duration so files may say "500ms" or "30s".
type configFile struct {
	ContactPoints         string         `yaml:"contact_points"`
	Port                  int            `yaml:"port"`
	NumWorkers            int            `yaml:"num_workers"`
	QueueSize             int            `yaml:"queue_size"`
	ConnectTimeout        model.Duration `yaml:"connect_timeout"`
	ShutdownTimeout       model.Duration `yaml:"shutdown_timeout"`
	ReconnectBaseDelay    model.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay     model.Duration `yaml:"reconnect_max_delay"`
	ProbeInterval         model.Duration `yaml:"probe_interval"`
	ProbeFailureThreshold int            `yaml:"probe_failure_threshold"`
}

// LoadFile reads a YAML config file, applies defaults, and validates.
// Unknown fields are rejected.
func LoadFile(path string) (Config, error) {
	var cfg Config

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "session: reading config file")
	}

	var fc configFile
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return cfg, errors.Wrapf(err, "session: parsing config file %s", path)
	}

	cfg = Config{
		ContactPoints:         fc.ContactPoints,
		Port:                  fc.Port,
		NumWorkers:            fc.NumWorkers,
		QueueSize:             fc.QueueSize,
		ConnectTimeout:        time.Duration(fc.ConnectTimeout),
		ShutdownTimeout:       time.Duration(fc.ShutdownTimeout),
		ReconnectBaseDelay:    time.Duration(fc.ReconnectBaseDelay),
		ReconnectMaxDelay:     time.Duration(fc.ReconnectMaxDelay),
		ProbeInterval:         time.Duration(fc.ProbeInterval),
		ProbeFailureThreshold: fc.ProbeFailureThreshold,
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
