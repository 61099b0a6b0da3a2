package dbus

import (
	"context"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap/zaptest"
)

func postcodeSignal(iface string) *dbus.Signal {
	return &dbus.Signal{
		Path: PostcodePath,
		Name: propertiesInterface + ".PropertiesChanged",
		Body: []interface{}{iface, map[string]dbus.Variant{}, []string{}},
	}
}

func TestIsPostcode(t *testing.T) {
	other := postcodeSignal(PostcodeInterface)
	other.Path = "/xyz/openbmc_project/state/boot/raw1"

	tests := []struct {
		name string
		sig  *dbus.Signal
		want bool
	}{
		{"postcode", postcodeSignal(PostcodeInterface), true},
		{"other interface", postcodeSignal("xyz.openbmc_project.State.Host"), false},
		{"other path", other, false},
		{"nil", nil, false},
		{"empty body", &dbus.Signal{Path: PostcodePath, Name: propertiesInterface + ".PropertiesChanged"}, false},
	}
	for _, tt := range tests {
		if got := isPostcode(tt.sig); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWatchPostcodes(t *testing.T) {
	conn := newFakeConn()
	b := &fakeBridge{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := WatchPostcodes(ctx, conn, b, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("WatchPostcodes: %v", err)
	}
	if conn.matches != 1 {
		t.Errorf("matches: got %d, want 1", conn.matches)
	}

	conn.mu.Lock()
	ch := conn.signalCh
	conn.mu.Unlock()

	ch <- postcodeSignal("xyz.openbmc_project.State.Host")
	ch <- postcodeSignal(PostcodeInterface)
	ch <- postcodeSignal(PostcodeInterface)

	deadline := time.Now().Add(time.Second)
	for b.resetCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("resets: got %d, want 2", b.resetCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.mu.Lock()
	for _, enable := range b.resets {
		if enable {
			t.Error("postcode reset must not enable the watchdog")
		}
	}
	b.mu.Unlock()
}
