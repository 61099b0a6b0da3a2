package mqtt

import "go.uber.org/zap"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while disconnected.
// Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any message was dropped since last drain
	log      *zap.Logger
}

func newRingBuffer(capacity int, log *zap.Logger) *ringBuffer {
	if log == nil {
		log = zap.NewNop()
	}
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
		log:      log,
	}
}

// push appends msg. A retained message replaces any buffered retained
// message on the same topic, since the broker would only keep the last.
func (r *ringBuffer) push(msg bufferedMsg) {
	if msg.retained && r.replaceRetained(msg) {
		return
	}
	if r.count == r.capacity {
		if !r.overflow {
			r.log.Warn("mqtt: buffer full, dropping oldest", zap.Int("capacity", r.capacity))
			r.overflow = true
		}
		// Overwrite oldest: head is already pointing at it
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

func (r *ringBuffer) replaceRetained(msg bufferedMsg) bool {
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		j := (start + i) % r.capacity
		if r.buf[j].retained && r.buf[j].topic == msg.topic {
			// Drop the stale copy and append the fresh one so order
			// relative to other messages stays by recency.
			for k := i; k < r.count-1; k++ {
				r.buf[(start+k)%r.capacity] = r.buf[(start+k+1)%r.capacity]
			}
			r.buf[(start+r.count-1)%r.capacity] = msg
			return true
		}
	}
	return false
}

func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	result := make([]bufferedMsg, r.count)
	// Oldest item is at (head - count) mod capacity
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	r.overflow = false
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
