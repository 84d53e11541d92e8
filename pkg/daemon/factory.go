package daemon

import (
	"net"
	"time"

	"github.com/grovetools/cellkernel/config"
	"github.com/grovetools/cellkernel/errors"
	"github.com/grovetools/cellkernel/internal/daemon/engine"
	"github.com/grovetools/cellkernel/internal/daemon/pidfile"
	"github.com/grovetools/cellkernel/internal/daemon/store"
	"github.com/grovetools/cellkernel/logging"
	"github.com/grovetools/cellkernel/pkg/paths"
)

// dialTimeout bounds the reachability probe.
const dialTimeout = 100 * time.Millisecond

// KernelAddress returns where the kernel should be reached: the address
// recorded by a running kernel's PID file, else the configured one.
func KernelAddress(cfg *config.Config) string {
	if running, rec, err := pidfile.IsRunning(paths.PidFilePath()); err == nil && running && rec.Address != "" {
		return rec.Address
	}
	return cfg.Server.Address
}

// reachable reports whether something accepts TCP connections at addr.
func reachable(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// New returns a Client that will use the kernel if available, otherwise
// falls back to a LocalClient built from cfg.
//
// Callers don't need to know whether the kernel is running; the same API
// works in both modes.
func New(cfg *config.Config) (Client, error) {
	if addr := KernelAddress(cfg); reachable(addr) {
		client := NewRemoteClient(addr)
		if client.IsRunning() {
			return client, nil
		}
		client.Close()
	}

	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	eng := engine.New(store.New(), opts, logging.NewLogger("engine"))
	return NewLocalClient(eng), nil
}

// Connect returns a RemoteClient or a DAEMON_NOT_RUNNING error. Use this
// where a running kernel is required (stop, watch).
func Connect(cfg *config.Config) (*RemoteClient, error) {
	addr := KernelAddress(cfg)
	client := NewRemoteClient(addr)
	if !client.IsRunning() {
		client.Close()
		return nil, errors.DaemonNotRunning(addr)
	}
	return client, nil
}
