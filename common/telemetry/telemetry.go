package telemetry

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/server"
)

// Telemetry holds observability components.
// A nil *Telemetry is valid and records nothing.
type Telemetry struct {
	log       *logger.Logger
	pprofAddr string
}

// New creates telemetry components; pprofPort 0 disables the profiling listener
func New(pprofPort int, log *logger.Logger) *Telemetry {
	t := &Telemetry{log: log}
	if pprofPort > 0 {
		t.pprofAddr = fmt.Sprintf("localhost:%d", pprofPort)
	}
	return t
}

// ProfilingEnabled reports whether Run serves anything
func (t *Telemetry) ProfilingEnabled() bool {
	return t != nil && t.pprofAddr != ""
}

// Handler serves the pprof endpoints under /debug/pprof/
func (t *Telemetry) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Run serves pprof until ctx is cancelled. It returns nil at once when
// profiling is disabled, and nil after a warning when the port is taken.
func (t *Telemetry) Run(ctx context.Context) error {
	if !t.ProfilingEnabled() {
		return nil
	}

	ln, err := net.Listen("tcp", t.pprofAddr)
	if err != nil {
		t.log.Warn("pprof listener unavailable", "addr", t.pprofAddr, "error", err)
		return nil
	}
	return server.New("pprof", 0, t.Handler(), t.log).Serve(ctx, ln)
}

// RecordDuration records operation duration
func (t *Telemetry) RecordDuration(operation string, start time.Time, attrs ...any) {
	if t == nil {
		return
	}
	args := append([]any{"operation", operation, "duration_ms", time.Since(start).Milliseconds()}, attrs...)
	t.log.Debug("operation completed", args...)
}

// RecordEvent records a telemetry event
func (t *Telemetry) RecordEvent(event string, attrs map[string]any) {
	if t == nil {
		return
	}
	t.log.Info("telemetry_event", "event", event, "attrs", attrs)
}
