package dbus

import (
	"context"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	PostcodePath      = "/xyz/openbmc_project/state/boot/raw0"
	PostcodeInterface = "xyz.openbmc_project.State.Boot.Raw"
)

// Resetter is called for every postcode.
type Resetter interface {
	ResetTimeRemaining(ctx context.Context, enable bool) error
}

// WatchPostcodes resets the watchdog's time remaining, without enabling
// it, each time the host posts a boot code. It returns once the match is
// installed; the watch runs until ctx is done.
func WatchPostcodes(ctx context.Context, conn Conn, r Resetter, log *zap.Logger) error {
	err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(PostcodePath),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, PostcodeInterface),
	)
	if err != nil {
		return err
	}

	ch := make(chan *dbus.Signal, 16)
	conn.Signal(ch)
	go func() {
		defer conn.RemoveSignal(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-ch:
				if !ok {
					return
				}
				if !isPostcode(sig) {
					continue
				}
				rctx, cancel := context.WithTimeout(ctx, callTimeout)
				if err := r.ResetTimeRemaining(rctx, false); err != nil {
					log.Warn("postcode reset failed", zap.Error(err))
				} else {
					log.Debug("postcode reset time remaining")
				}
				cancel()
			}
		}
	}()
	return nil
}

func isPostcode(sig *dbus.Signal) bool {
	if sig == nil || sig.Path != PostcodePath || sig.Name != propertiesInterface+".PropertiesChanged" {
		return false
	}
	if len(sig.Body) == 0 {
		return false
	}
	iface, ok := sig.Body[0].(string)
	return ok && iface == PostcodeInterface
}
