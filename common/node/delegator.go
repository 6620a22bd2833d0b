// Package node finds a healthy peer node to hand a request to.
package node

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lyzr/jukebox/common/clients"
	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/telemetry"
)

const (
	// HealthPath is probed on every candidate
	HealthPath = "/api/node/healthy"

	// RoutePrefix is prepended to the relative path of a delegated request
	RoutePrefix = "/api/node/"

	DefaultProbeTimeout = 5 * time.Second
)

// Delegator picks a healthy peer from a static list.
// The list never changes after construction.
type Delegator struct {
	hosts        []string
	client       *clients.HTTPClient
	probeTimeout time.Duration
	log          *logger.Logger
	tel          *telemetry.Telemetry

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Delegator
type Option func(*Delegator)

// WithRand fixes the source of start indices
func WithRand(r *rand.Rand) Option {
	return func(d *Delegator) { d.rng = r }
}

// WithProbeTimeout overrides the per-probe bound
func WithProbeTimeout(timeout time.Duration) Option {
	return func(d *Delegator) {
		if timeout > 0 {
			d.probeTimeout = timeout
		}
	}
}

// WithTelemetry records probe durations
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(d *Delegator) { d.tel = t }
}

// NewDelegator validates the host list. An empty list is a configuration error.
func NewDelegator(hosts []string, client *clients.HTTPClient, log *logger.Logger, opts ...Option) (*Delegator, error) {
	cleaned := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.TrimRight(strings.TrimSpace(h), "/"); h != "" {
			cleaned = append(cleaned, h)
		}
	}
	if len(cleaned) == 0 {
		return nil, errors.New("no peer nodes configured")
	}

	d := &Delegator{
		hosts:        cleaned,
		client:       client,
		probeTimeout: DefaultProbeTimeout,
		log:          log.WithComponent("node-delegator"),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Hosts returns a copy of the configured peers
func (d *Delegator) Hosts() []string {
	return append([]string(nil), d.hosts...)
}

// Locate probes peers once each, starting at a random index and wrapping around.
// It returns {host}/api/node/{relativePath} for the first healthy peer.
func (d *Delegator) Locate(ctx context.Context, relativePath string) (string, bool) {
	return d.LocateFrom(ctx, d.startIndex(), relativePath)
}

// LocateFrom is Locate with an explicit start index
func (d *Delegator) LocateFrom(ctx context.Context, start int, relativePath string) (string, bool) {
	n := len(d.hosts)
	start = ((start % n) + n) % n

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return "", false
		}
		host := d.hosts[(start+i)%n]
		if d.healthy(ctx, host) {
			d.tel.RecordEvent("node.delegated", map[string]any{"host": host, "attempt": i + 1})
			return host + RoutePrefix + strings.TrimLeft(relativePath, "/"), true
		}
	}

	d.log.Warn("no healthy peer node", "candidates", n)
	return "", false
}

func (d *Delegator) startIndex() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Intn(len(d.hosts))
}

// healthy issues GET {host}/api/node/healthy with its own deadline
func (d *Delegator) healthy(ctx context.Context, host string) bool {
	start := time.Now()
	defer d.tel.RecordDuration("node.probe", start, "host", host)

	ctx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	resp, err := d.client.DoRequest(ctx, http.MethodGet, host+HealthPath, nil)
	if err != nil {
		d.log.Debug("peer probe failed", "host", host, "error", err)
		return false
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.log.Debug("peer unhealthy", "host", host, "status", resp.StatusCode)
		return false
	}
	return true
}
