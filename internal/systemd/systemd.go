// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package systemd signals service readiness and watchdog keep-alives to
// systemd. Outside of systemd (NOTIFY_SOCKET is not set) it does nothing.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"go.astrophena.name/weblatebot/internal/logger"
)

// State is a sd_notify state.
// See https://www.freedesktop.org/software/systemd/man/sd_notify.html.
type State string

const (
	// Ready tells systemd that service startup is finished.
	Ready State = daemon.SdNotifyReady
	// Stopping tells systemd that the service is beginning its shutdown.
	Stopping State = daemon.SdNotifyStopping
	// Watchdog updates the watchdog timestamp.
	Watchdog State = daemon.SdNotifyWatchdog
)

// Notify sends state to systemd. Failures are logged, not returned.
func Notify(ctx context.Context, state State) {
	if _, err := daemon.SdNotify(false, string(state)); err != nil {
		logger.Get(ctx).Warn("systemd: notify failed", "state", state, "error", err)
	}
}

// WatchdogLoop pings the systemd watchdog at half of its interval until ctx is
// canceled. It returns immediately if the watchdog is not enabled for this
// process.
func WatchdogLoop(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Get(ctx).Warn("systemd: watchdog disabled", "error", err)
		return
	}
	if interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			Notify(ctx, Watchdog)
		case <-ctx.Done():
			return
		}
	}
}
