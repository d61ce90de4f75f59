package voice

import (
	"sync/atomic"
	"time"
)

// Stats is a snapshot of session counters for one session lifetime.
// Counters reset on Start.
type Stats struct {
	// ConnectedAt is when the transport link came up; zero if it never did.
	ConnectedAt time.Time

	// FramesSent is the number of capture blocks sent to the endpoint.
	FramesSent int64

	// BytesSent is the total PCM bytes sent (before base64 expansion).
	BytesSent int64

	// FramesPlayed is the number of inbound frames played to completion.
	FramesPlayed int64

	// BytesReceived is the total PCM bytes received.
	BytesReceived int64

	// MalformedDropped is the number of inbound frames dropped because they
	// could not be decoded.
	MalformedDropped int64

	// QueueDiscarded is the number of pending frames discarded by the
	// depth cap. Always zero when MaxQueueDepth is 0.
	QueueDiscarded int64

	// QueueHighWater is the deepest the playback queue got, counting the
	// scheduled frame.
	QueueHighWater int
}

// counters holds the session's atomically updated counters. The queue
// high-water mark and discard count live on playbackQueue under the session
// mutex; Stats() merges the two.
type counters struct {
	connectedAt      atomic.Int64 // unix nanos, 0 = never
	framesSent       atomic.Int64
	bytesSent        atomic.Int64
	framesPlayed     atomic.Int64
	bytesReceived    atomic.Int64
	malformedDropped atomic.Int64
}

func (c *counters) reset() {
	c.connectedAt.Store(0)
	c.framesSent.Store(0)
	c.bytesSent.Store(0)
	c.framesPlayed.Store(0)
	c.bytesReceived.Store(0)
	c.malformedDropped.Store(0)
}

func (c *counters) markConnected() {
	c.connectedAt.Store(time.Now().UnixNano())
}

func (c *counters) snapshot() Stats {
	s := Stats{
		FramesSent:       c.framesSent.Load(),
		BytesSent:        c.bytesSent.Load(),
		FramesPlayed:     c.framesPlayed.Load(),
		BytesReceived:    c.bytesReceived.Load(),
		MalformedDropped: c.malformedDropped.Load(),
	}
	if ns := c.connectedAt.Load(); ns != 0 {
		s.ConnectedAt = time.Unix(0, ns)
	}
	return s
}
