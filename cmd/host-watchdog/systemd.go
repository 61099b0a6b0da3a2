package main

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"
)

// supervisor reports lifecycle and liveness to systemd. Outside a
// notify-type unit every call is a silent no-op.
type supervisor struct {
	notify func(state string) (bool, error)
	log    *zap.Logger
}

func newSupervisor(log *zap.Logger) *supervisor {
	return &supervisor{
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		log: log,
	}
}

func (s *supervisor) ready() {
	s.send(daemon.SdNotifyReady)
}

func (s *supervisor) stopping() {
	s.send(daemon.SdNotifyStopping)
}

func (s *supervisor) ping() {
	s.send(daemon.SdNotifyWatchdog)
}

func (s *supervisor) send(state string) {
	sent, err := s.notify(state)
	if err != nil {
		s.log.Error("failed to notify systemd", zap.String("state", state), zap.Error(err))
		return
	}
	if sent {
		s.log.Debug("notified systemd", zap.String("state", state))
	}
}

// watchdogInterval is how often to ping systemd: half of WatchdogSec, or
// zero when the unit has no watchdog.
func watchdogInterval(log *zap.Logger) time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("invalid systemd watchdog environment", zap.Error(err))
		return 0
	}
	return d / 2
}
