package action

import (
	"context"
	"fmt"
	"sync"

	sddbus "github.com/coreos/go-systemd/v22/dbus"
)

// SystemdStarter starts units through the systemd manager on the system bus.
// The connection is opened on first use and reopened after a failure.
type SystemdStarter struct {
	mu   sync.Mutex
	conn *sddbus.Conn
}

// NewSystemdStarter returns a starter that connects lazily.
func NewSystemdStarter() *SystemdStarter {
	return &SystemdStarter{}
}

// StartUnit queues a start job in "replace" mode and does not wait for it.
func (s *SystemdStarter) StartUnit(ctx context.Context, unit string) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.StartUnitContext(ctx, unit, "replace", nil); err != nil {
		s.drop(conn)
		return fmt.Errorf("start unit %s: %w", unit, err)
	}
	return nil
}

func (s *SystemdStarter) connect(ctx context.Context) (*sddbus.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil && s.conn.Connected() {
		return s.conn, nil
	}
	conn, err := sddbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	s.conn = conn
	return conn, nil
}

func (s *SystemdStarter) drop(conn *sddbus.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn && !conn.Connected() {
		conn.Close()
		s.conn = nil
	}
}

// Close releases the systemd connection, if any.
func (s *SystemdStarter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
