// Command cassioping connects a session to a cluster and reports host
// liveness: it watches topology through the session's control connection
// and measures TCP round-trip times with periodic ping requests.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dreamware/cassio/internal/dispatch"
	"github.com/dreamware/cassio/internal/session"
	"github.com/dreamware/cassio/internal/worker"
)

func main() {
	var (
		cfg        session.Config
		configFile string
		interval   time.Duration
	)
	fs := flag.NewFlagSet("cassioping", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	fs.StringVar(&configFile, "config.file", "", "Optional YAML config file; flags override it.")
	fs.DurationVar(&interval, "ping.interval", 2*time.Second, "Delay between ping rounds.")
	_ = fs.Parse(os.Args[1:])

	logger := level.NewFilter(log.NewLogfmtLogger(os.Stderr), level.AllowInfo())

	if configFile != "" {
		fileCfg, err := session.LoadFile(configFile)
		if err != nil {
			level.Error(logger).Log("msg", "loading config", "err", err)
			os.Exit(1)
		}
		if cfg.ContactPoints == "" {
			cfg = fileCfg
		}
	}
	if cfg.ContactPoints == "" {
		cfg.ContactPoints = getenv("CASSIO_CONTACT_POINTS", "127.0.0.1")
	}

	sess, err := session.New(cfg, logger)
	if err != nil {
		level.Error(logger).Log("msg", "creating session", "err", err)
		os.Exit(1)
	}
	sess.SetConnFactory(tcpFactory{timeout: cfg.ConnectTimeout})
	if err := sess.Init(); err != nil {
		level.Error(logger).Log("msg", "starting session", "err", err)
		os.Exit(1)
	}

	connect := sess.Connect("")
	s, err := connect.Session()
	if err != nil {
		level.Error(logger).Log("msg", "connect failed", "err", err)
		connect.Shutdown()
		os.Exit(1)
	}
	level.Info(logger).Log("msg", "connected")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-ticker.C:
			fut := s.Execute("ping")
			if !fut.WaitFor(cfg.ConnectTimeout) {
				level.Warn(logger).Log("msg", "ping timed out")
				continue
			}
			if err := fut.Err(); err != nil {
				level.Warn(logger).Log("msg", "ping failed", "err", err)
				continue
			}
			level.Info(logger).Log("msg", "ping", "result", fut.Value())
		}
	}

	level.Info(logger).Log("msg", "shutting down")
	s.Close().Wait()
	level.Info(logger).Log("msg", "stopped")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// tcpFactory dials plain TCP connections. A ping request re-dials the host
// and reports the round-trip time; there is no application protocol.
type tcpFactory struct {
	timeout time.Duration
}

func (f tcpFactory) Dial(addr string) (worker.Conn, error) {
	c, err := net.DialTimeout("tcp", addr, f.timeout)
	if err != nil {
		return nil, err
	}
	return &tcpConn{addr: addr, conn: c, timeout: f.timeout}, nil
}

type tcpConn struct {
	addr    string
	conn    net.Conn
	timeout time.Duration
}

func (c *tcpConn) Execute(req dispatch.Request) (any, error) {
	start := time.Now()
	probe, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return nil, err
	}
	_ = probe.Close()
	return fmt.Sprintf("%s rtt=%s", c.addr, time.Since(start).Round(time.Microsecond)), nil
}

func (c *tcpConn) SetKeyspace(keyspace string) error { return nil }

func (c *tcpConn) Close() error { return c.conn.Close() }
