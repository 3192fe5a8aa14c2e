package silencer

import (
	"context"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/oshokin/alarm-silencer/internal/logger"
)

// notifyFunc matches daemon.SdNotify.
type notifyFunc func(unsetEnvironment bool, state string) (bool, error)

// notifier reports readiness, shutdown and liveness to systemd. Outside a
// systemd unit every call is a no-op.
type notifier struct {
	notify notifyFunc
	clock  func() time.Time

	mu sync.Mutex
	// interval is the minimum gap between watchdog pings; zero disables them.
	interval time.Duration
	lastPing time.Time
}

// newNotifier reads the watchdog settings of the unit. Pings are sent at
// half the watchdog timeout.
func newNotifier(ctx context.Context) *notifier {
	n := &notifier{
		notify: daemon.SdNotify,
		clock:  time.Now,
	}

	timeout, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.WarnKV(ctx, "Invalid systemd watchdog settings", "error", err)
	}

	if timeout > 0 {
		n.interval = timeout / 2
		logger.InfoKV(ctx, "Systemd watchdog enabled", "timeout", timeout)
	}

	return n
}

// ready sends READY=1.
func (n *notifier) ready(ctx context.Context) {
	n.send(ctx, daemon.SdNotifyReady)
}

// stopping sends STOPPING=1.
func (n *notifier) stopping(ctx context.Context) {
	n.send(ctx, daemon.SdNotifyStopping)
}

// heartbeat sends WATCHDOG=1 at most once per interval.
func (n *notifier) heartbeat() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.interval <= 0 {
		return
	}

	now := n.clock()
	if !n.lastPing.IsZero() && now.Sub(n.lastPing) < n.interval {
		return
	}

	n.lastPing = now

	_, _ = n.notify(false, daemon.SdNotifyWatchdog)
}

// send delivers state and logs delivery failures.
func (n *notifier) send(ctx context.Context, state string) {
	sent, err := n.notify(false, state)
	if err != nil {
		logger.WarnKV(ctx, "Failed to notify systemd", "state", state, "error", err)
		return
	}

	if sent {
		logger.DebugKV(ctx, "Notified systemd", "state", state)
	}
}
