package voice

import "github.com/middlemgr/voicelink/pkg/audioio"

// playbackQueue is the ordered set of frames awaiting playback. First
// received is first played; there is no reordering. At most one frame is
// scheduled on the sink at any instant, tracked by the scheduled flag: a new
// frame is dequeued and scheduled only after the previous one's completion
// callback fired.
//
// Not self-synchronized: every access happens under the session mutex, the
// single serialization point shared with the state machine. The receive path
// pushes, the completion callback pops.
type playbackQueue struct {
	pending   []audioio.Frame
	scheduled bool

	highWater int
	discarded int64
}

// push appends a frame, enforcing the optional depth cap by discarding the
// oldest pending frame (never the scheduled one). Returns the number of
// frames discarded.
func (q *playbackQueue) push(frame audioio.Frame, maxDepth int) int {
	q.pending = append(q.pending, frame)

	dropped := 0
	if maxDepth > 0 {
		for len(q.pending) > maxDepth {
			q.pending = q.pending[1:]
			dropped++
		}
	}
	q.discarded += int64(dropped)

	if depth := q.depth(); depth > q.highWater {
		q.highWater = depth
	}
	return dropped
}

// pop removes and returns the head frame.
func (q *playbackQueue) pop() (audioio.Frame, bool) {
	if len(q.pending) == 0 {
		return audioio.Frame{}, false
	}
	frame := q.pending[0]
	q.pending = q.pending[1:]
	return frame, true
}

// depth is the number of frames not yet played: pending plus the scheduled
// one.
func (q *playbackQueue) depth() int {
	n := len(q.pending)
	if q.scheduled {
		n++
	}
	return n
}

// clear discards everything.
func (q *playbackQueue) clear() {
	q.pending = nil
	q.scheduled = false
}
