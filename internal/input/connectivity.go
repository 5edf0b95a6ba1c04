package input

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/state"
)

// Connectivity defaults.
const (
	DefaultProbeInterval = 5 * time.Second
	DefaultProbeTimeout  = time.Second
)

// LinkProbe reports whether the bulb's network is reachable.
type LinkProbe interface {
	Probe(ctx context.Context) bool
}

// TCPProbe considers the link up when a TCP connection to Address succeeds.
type TCPProbe struct {
	Address string
	Timeout time.Duration
}

// NewTCPProbe creates a probe for host, defaulting to port 80 when none is given.
func NewTCPProbe(host string, timeout time.Duration) *TCPProbe {
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "80")
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &TCPProbe{Address: host, Timeout: timeout}
}

// Probe dials the address once.
func (p *TCPProbe) Probe(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		log.Trace().Err(err).Str("address", p.Address).Msg("Link probe failed")
		return false
	}
	conn.Close()
	return true
}

// ConnectivityMonitor submits SetConnected on the first observation and on every change.
type ConnectivityMonitor struct {
	probe    LinkProbe
	core     Submitter
	interval time.Duration

	known bool
	last  bool
}

// NewConnectivityMonitor creates a monitor.
func NewConnectivityMonitor(probe LinkProbe, core Submitter, interval time.Duration) *ConnectivityMonitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &ConnectivityMonitor{probe: probe, core: core, interval: interval}
}

// Run probes immediately and then every interval until ctx is cancelled.
func (m *ConnectivityMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", m.interval).Msg("Connectivity monitor started")

	for {
		if !m.check(ctx) {
			log.Info().Msg("Connectivity monitor stopped")
			return
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Connectivity monitor stopped")
			return
		case <-ticker.C:
		}
	}
}

func (m *ConnectivityMonitor) check(ctx context.Context) bool {
	up := m.probe.Probe(ctx)
	if ctx.Err() != nil {
		return false
	}
	if m.known && up == m.last {
		return true
	}
	m.known = true
	m.last = up

	if up {
		log.Info().Msg("Link up")
	} else {
		log.Warn().Msg("Link down")
	}
	return submit(ctx, m.core, "connectivity", state.SetConnected{Connected: up})
}
