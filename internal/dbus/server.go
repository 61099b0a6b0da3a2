// Package dbus projects the watchdog bridge onto the system bus as
// xyz.openbmc_project.State.Watchdog, emits the Timeout signal and,
// optionally, resets the watchdog on boot postcodes.
package dbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"go.uber.org/zap"

	"github.com/sweeney/host-watchdog/internal/bridge"
	"github.com/sweeney/host-watchdog/internal/watchdog"
)

const (
	// TimeoutInterface carries the Timeout signal.
	TimeoutInterface = "xyz.openbmc_project.Watchdog"

	propertiesInterface = "org.freedesktop.DBus.Properties"
	errInvalidArgs      = "org.freedesktop.DBus.Error.InvalidArgs"
	errFailed           = "org.freedesktop.DBus.Error.Failed"

	callTimeout = 5 * time.Second
)

// Conn is the subset of *dbus.Conn the server uses.
type Conn interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	AddMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

// Bridge is the property surface the server exposes.
type Bridge interface {
	Properties(ctx context.Context) (bridge.Properties, error)
	Set(ctx context.Context, name string, value any) (any, error)
	ResetTimeRemaining(ctx context.Context, enable bool) error
}

// Server exports one watchdog object.
type Server struct {
	conn   Conn
	path   dbus.ObjectPath
	bridge Bridge
	log    *zap.Logger

	mu   sync.Mutex
	last *bridge.Properties
}

// New validates path; nothing is exported until Export.
func New(conn Conn, path string, b Bridge, log *zap.Logger) (*Server, error) {
	p := dbus.ObjectPath(path)
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid object path %q", path)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{conn: conn, path: p, bridge: b, log: log}, nil
}

// Export publishes the object and claims service, if non-empty.
// Failing to own the name is an error.
func (s *Server) Export(service string) error {
	if err := s.conn.Export(&watchdogObject{s}, s.path, watchdog.Interface); err != nil {
		return fmt.Errorf("export %s: %w", watchdog.Interface, err)
	}
	if err := s.conn.Export(&propertiesObject{s}, s.path, propertiesInterface); err != nil {
		return fmt.Errorf("export properties: %w", err)
	}
	node := introspectNode()
	if err := s.conn.Export(introspect.NewIntrospectable(node), s.path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	if service == "" {
		return nil
	}
	reply, err := s.conn.RequestName(service, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name %s: %w", service, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("request name %s: already owned (reply %d)", service, reply)
	}
	s.log.Info("claimed bus name", zap.String("service", service), zap.String("path", string(s.path)))
	return nil
}

// Timeout emits the Timeout signal. It implements watchdog.Notifier.
func (s *Server) Timeout(a watchdog.Action) error {
	return s.conn.Emit(s.path, TimeoutInterface+".Timeout", a.Namespaced())
}

// PropertiesChanged emits the properties that differ from the last
// snapshot seen. It is registered with bridge.OnChange.
func (s *Server) PropertiesChanged(p bridge.Properties) {
	s.mu.Lock()
	changed := changedProperties(s.last, p)
	s.last = &p
	s.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	variants := make(map[string]dbus.Variant, len(changed))
	for name, v := range changed {
		variants[name] = dbus.MakeVariant(v)
	}
	if err := s.conn.Emit(s.path, propertiesInterface+".PropertiesChanged", watchdog.Interface, variants, []string{}); err != nil {
		s.log.Warn("failed to emit PropertiesChanged", zap.Error(err))
	}
}

func (s *Server) get(name string) (any, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	p, err := s.bridge.Properties(ctx)
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	v, err := p.Value(name)
	if err != nil {
		return nil, prop.ErrPropNotFound
	}
	return toWire(name, v), nil
}

func (s *Server) getAll() (map[string]dbus.Variant, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	p, err := s.bridge.Properties(ctx)
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	all := make(map[string]dbus.Variant, len(bridge.Names))
	for _, name := range bridge.Names {
		v, _ := p.Value(name)
		all[name] = dbus.MakeVariant(toWire(name, v))
	}
	return all, nil
}

func (s *Server) set(name string, value dbus.Variant) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	_, err := s.bridge.Set(ctx, name, value.Value())
	return toDBusError(err)
}

func toDBusError(err error) *dbus.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bridge.ErrUnknownProperty):
		return prop.ErrPropNotFound
	case errors.Is(err, bridge.ErrInvalidValue):
		return dbus.NewError(errInvalidArgs, []interface{}{err.Error()})
	}
	return dbus.NewError(errFailed, []interface{}{err.Error()})
}

// toWire converts a bridge value to its bus form. Enumerations travel
// fully namespaced.
func toWire(name string, v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch name {
	case bridge.ExpireAction:
		return watchdog.Action(s).Namespaced()
	case bridge.CurrentTimerUse, bridge.ExpiredTimerUse:
		return watchdog.TimerUse(s).Namespaced()
	}
	return v
}

func changedProperties(prev *bridge.Properties, next bridge.Properties) map[string]any {
	changed := make(map[string]any)
	for _, name := range bridge.Names {
		nv, _ := next.Value(name)
		if prev != nil {
			pv, _ := prev.Value(name)
			if pv == nv {
				continue
			}
			// A running countdown is not a change.
			if name == bridge.TimeRemaining && prev.TimerArmed && next.TimerArmed &&
				next.TimeRemaining < prev.TimeRemaining {
				continue
			}
		}
		changed[name] = toWire(name, nv)
	}
	return changed
}

// watchdogObject holds the methods of the watchdog interface.
type watchdogObject struct{ s *Server }

func (w *watchdogObject) ResetTimeRemaining(enable bool) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return toDBusError(w.s.bridge.ResetTimeRemaining(ctx, enable))
}

// propertiesObject implements org.freedesktop.DBus.Properties for the
// watchdog interface. Values are read live so TimeRemaining is current.
type propertiesObject struct{ s *Server }

func (p *propertiesObject) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	if iface != watchdog.Interface {
		return dbus.Variant{}, prop.ErrIfaceNotFound
	}
	v, err := p.s.get(name)
	if err != nil {
		return dbus.Variant{}, err
	}
	return dbus.MakeVariant(v), nil
}

func (p *propertiesObject) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != watchdog.Interface {
		return nil, prop.ErrIfaceNotFound
	}
	return p.s.getAll()
}

func (p *propertiesObject) Set(iface, name string, value dbus.Variant) *dbus.Error {
	if iface != watchdog.Interface {
		return prop.ErrIfaceNotFound
	}
	return p.s.set(name, value)
}

func introspectNode() *introspect.Node {
	rw := func(name, sig string) introspect.Property {
		return introspect.Property{Name: name, Type: sig, Access: "readwrite"}
	}
	return &introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: watchdog.Interface,
				Methods: []introspect.Method{{
					Name: "ResetTimeRemaining",
					Args: []introspect.Arg{{Name: "EnableWatchdog", Type: "b", Direction: "in"}},
				}},
				Properties: []introspect.Property{
					rw(bridge.Initialized, "b"),
					rw(bridge.Enabled, "b"),
					rw(bridge.ExpireAction, "s"),
					rw(bridge.CurrentTimerUse, "s"),
					rw(bridge.ExpiredTimerUse, "s"),
					rw(bridge.Interval, "t"),
					rw(bridge.TimeRemaining, "t"),
				},
			},
			{
				Name: TimeoutInterface,
				Signals: []introspect.Signal{{
					Name: "Timeout",
					Args: []introspect.Arg{{Name: "Action", Type: "s"}},
				}},
			},
		},
	}
}
