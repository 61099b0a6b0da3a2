package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadCommand is returned for messages on unknown topics or with
// unparseable reset payloads.
var ErrBadCommand = errors.New("bad mqtt command")

// Commander is the write surface reachable from the broker.
// *bridge.Bridge implements it.
type Commander interface {
	SetString(ctx context.Context, name, raw string) (any, error)
	ResetTimeRemaining(ctx context.Context, enable bool) error
}

// HandleCommand applies one inbound message. Set payloads are the raw
// value ("true", "5000", "PowerOff"); a reset payload is a boolean, and
// an empty one means false.
func HandleCommand(ctx context.Context, c Commander, topics Topics, topic string, payload []byte) error {
	raw := strings.TrimSpace(string(payload))

	if topic == topics.Reset() {
		enable := false
		if raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("%w: reset payload %q", ErrBadCommand, raw)
			}
			enable = v
		}
		return c.ResetTimeRemaining(ctx, enable)
	}

	name, ok := topics.property(topic)
	if !ok {
		return fmt.Errorf("%w: topic %q", ErrBadCommand, topic)
	}
	_, err := c.SetString(ctx, name, raw)
	return err
}
