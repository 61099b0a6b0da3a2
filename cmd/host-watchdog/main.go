// Command host-watchdog runs the BMC host watchdog: a countdown the host
// keeps resetting, which starts a recovery unit when it runs out.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sweeney/host-watchdog/internal/action"
	"github.com/sweeney/host-watchdog/internal/bridge"
	"github.com/sweeney/host-watchdog/internal/config"
	"github.com/sweeney/host-watchdog/internal/dbus"
	"github.com/sweeney/host-watchdog/internal/eventloop"
	"github.com/sweeney/host-watchdog/internal/mqtt"
	"github.com/sweeney/host-watchdog/internal/status"
	"github.com/sweeney/host-watchdog/internal/watchdog"
	"github.com/sweeney/host-watchdog/internal/web"
)

const (
	shutdownTimeout = 5 * time.Second
	pingTimeout     = 2 * time.Second
)

func main() {
	settings, err := config.Parse(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "host-watchdog: %v\n", err)
		os.Exit(1)
	}

	logger, err := settings.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "host-watchdog: %v\n", err)
		os.Exit(1)
	}

	if err := run(settings, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(s *config.Settings, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	loop := eventloop.New(0, log.Named("loop"))

	systemd := action.NewSystemdStarter()
	defer systemd.Close()
	registry := action.NewRegistry(s.Targets, &action.Mux{
		GPIO:    action.NewGPIOStarter(clock),
		Default: systemd,
	}, log.Named("registry"))
	defer registry.Wait()

	s.Describe(os.Stderr, registry.Targets())

	tracker := status.NewTracker(clock, trackerConfig(s, registry.Targets()))

	// The loop is not running yet, so everything up to loop.Run may touch
	// the engine directly.
	var br *bridge.Bridge
	engine, err := watchdog.New(watchdog.Config{
		Path:            s.Path,
		MinInterval:     s.MinInterval,
		DefaultInterval: s.DefaultInterval,
		Fallback:        s.Fallback,
	}, watchdog.Deps{
		Clock:      clock,
		Loop:       loop,
		Dispatcher: registry,
		Logger:     log.Named("engine"),
		OnTimeout: afterTimeout(s.Continue, func() {
			if err := br.Publish(ctx); err != nil && !errors.Is(err, eventloop.ErrStopped) {
				log.Warn("publish state after timeout", zap.Error(err))
			}
		}, loop.Stop, log),
	})
	if err != nil {
		return fmt.Errorf("create watchdog: %w", err)
	}

	br = bridge.New(engine, loop, log.Named("bridge"))
	br.OnChange(tracker.Update)
	engine.AddNotifier(tracker)

	if s.Service != "" {
		conn, err := godbus.ConnectSystemBus()
		if err != nil {
			return fmt.Errorf("connect system bus: %w", err)
		}
		defer conn.Close()

		srv, err := dbus.New(conn, s.Path, br, log.Named("dbus"))
		if err != nil {
			return err
		}
		if err := srv.Export(s.Service); err != nil {
			return err
		}
		engine.AddNotifier(srv)
		br.OnChange(srv.PropertiesChanged)

		if s.WatchPostcodes {
			if err := dbus.WatchPostcodes(ctx, conn, br, log.Named("postcode")); err != nil {
				return fmt.Errorf("watch postcodes: %w", err)
			}
		}
	}

	rt := &runtime{
		loop:    loop,
		bridge:  br,
		tracker: tracker,
		super:   newSupervisor(log.Named("systemd")),
		log:     log,
		now:     clock.Now,
	}

	if s.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:    s.MQTT.Broker,
			Topics:    mqtt.Topics{Prefix: s.MQTT.Prefix},
			Commander: br,
			Logger:    log.Named("mqtt"),
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer pub.Close()

		rt.publisher, rt.mqttStatus = pub, pub
		engine.AddNotifier(&mqtt.Notifier{Publisher: pub, Now: clock.Now})
		br.OnChange(func(p bridge.Properties) {
			if err := pub.PublishState(p); err != nil {
				log.Warn("publish state", zap.Error(err))
			}
		})
	}

	if s.HTTPAddr != "" {
		srv := web.New(s.HTTPAddr, tracker, log.Named("web"))
		srv.SetRefresh(func(ctx context.Context) error {
			p, err := br.Properties(ctx)
			if err != nil {
				return err
			}
			tracker.Update(p)
			return nil
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", zap.Error(err))
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			srv.Shutdown(sctx)
		}()
		log.Info("http status server listening", zap.String("addr", s.HTTPAddr))
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	if err := br.Publish(ctx); err != nil {
		log.Warn("publish initial state", zap.Error(err))
	}
	rt.publishSystem("STARTUP", "")
	rt.super.ready()

	log.Info("started",
		zap.String("path", s.Path),
		zap.String("service", s.Service),
		zap.String("broker", s.MQTT.Broker),
		zap.Duration("heartbeat", s.MQTT.Heartbeat))

	var heartbeat <-chan time.Time
	if s.MQTT.Heartbeat > 0 {
		t := clock.NewTicker(s.MQTT.Heartbeat)
		defer t.Stop()
		heartbeat = t.Chan()
	}
	var ping <-chan time.Time
	if interval := watchdogInterval(log); interval > 0 {
		t := clock.NewTicker(interval)
		defer t.Stop()
		ping = t.Chan()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reason := rt.runLoop(ctx, heartbeat, ping, sigCh)

	rt.super.stopping()
	rt.publishSystem("SHUTDOWN", reason)

	cancel()
	loop.Stop()
	<-loopDone
	engine.Close()
	return nil
}

// runtime is what the main loop needs once everything is wired.
// A nil publisher disables lifecycle events.
type runtime struct {
	loop       *eventloop.Loop
	bridge     *bridge.Bridge
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	super      *supervisor
	log        *zap.Logger
	now        func() time.Time
}

// runLoop blocks until a signal arrives or the event loop stops, and
// returns the shutdown reason.
func (r *runtime) runLoop(ctx context.Context, heartbeat, ping <-chan time.Time, sig <-chan os.Signal) string {
	for {
		select {
		case s := <-sig:
			name := signalName(s)
			r.log.Info("received signal, shutting down", zap.String("signal", name))
			return name

		case <-r.loop.Done():
			r.log.Info("watchdog timed out, exiting")
			return "TIMEOUT"

		case <-heartbeat:
			r.refreshConnection()
			if err := r.bridge.Publish(ctx); err != nil {
				r.log.Warn("heartbeat publish", zap.Error(err))
			}

		case <-ping:
			// Only vouch for liveness if the loop is actually turning.
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := r.loop.Do(pctx, func() {})
			cancel()
			if err != nil {
				r.log.Warn("event loop unresponsive, skipping systemd ping", zap.Error(err))
				continue
			}
			r.super.ping()
		}
	}
}

func (r *runtime) refreshConnection() {
	if r.mqttStatus != nil {
		r.tracker.SetMQTTConnected(r.mqttStatus.IsConnected())
	}
}

// publishSystem sends a retained lifecycle event carrying a full status
// snapshot.
func (r *runtime) publishSystem(event, reason string) {
	if r.publisher == nil {
		return
	}
	r.refreshConnection()
	snap := r.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  r.now(),
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := r.publisher.PublishSystem(ev); err != nil {
		r.log.Warn("failed to publish system event", zap.String("event", event), zap.Error(err))
		return
	}
	r.log.Info("published system event", zap.String("event", event))
}

// afterTimeout returns the engine's OnTimeout hook. It republishes state
// off the loop and, unless cont is set, stops the daemon once an expiry
// leaves nothing armed.
func afterTimeout(cont bool, publish func(), stop func(), log *zap.Logger) func(watchdog.Action, bool) {
	return func(a watchdog.Action, armed bool) {
		go publish()
		if cont || armed {
			return
		}
		log.Info("timeout with nothing armed, stopping", zap.String("action", string(a)))
		stop()
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func trackerConfig(s *config.Settings, entries []action.Entry) status.Config {
	cfg := status.Config{
		Path:          s.Path,
		Service:       s.Service,
		Broker:        s.MQTT.Broker,
		MQTTPrefix:    s.MQTT.Prefix,
		HTTPAddr:      s.HTTPAddr,
		HeartbeatMs:   s.MQTT.Heartbeat.Milliseconds(),
		MinIntervalMs: s.MinInterval.Milliseconds(),
		Continue:      s.Continue,
	}
	for _, e := range entries {
		cfg.Targets = append(cfg.Targets, status.Target{Action: string(e.Action), Target: e.Target})
	}
	if fb := s.Fallback; fb != nil {
		cfg.Fallback = &status.Fallback{
			Action:     string(fb.Action),
			IntervalMs: fb.Interval.Milliseconds(),
			Always:     fb.Always,
		}
	}
	return cfg
}
