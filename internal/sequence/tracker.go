// Package sequence tracks per-channel frame sequence numbers and
// classifies each observation as first-seen, in-order, replay or gap.
package sequence

import "fmt"

// Classification of one observed channel sequence.
type Classification int

const (
	FirstSeen Classification = iota
	InOrder
	Replay
	Gap
)

func (c Classification) String() string {
	switch c {
	case FirstSeen:
		return "first_seen"
	case InOrder:
		return "in_order"
	case Replay:
		return "replay"
	case Gap:
		return "gap"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// Result describes one observation. For Gap, Expected is the first
// missing sequence, Got the sequence actually observed and Count the
// number of missing messages in between.
type Result struct {
	Class    Classification
	Expected uint64
	Got      uint64
	Count    uint64
}

type channelState struct {
	last   uint64
	synced bool
}

// Tracker keeps the last observed sequence per channel. It is pure
// bookkeeping: callers route the Gap results to recovery themselves.
// Not safe for concurrent use; the pipeline thread owns it.
type Tracker struct {
	channels map[uint16]*channelState
}

func NewTracker() *Tracker {
	return &Tracker{channels: make(map[uint16]*channelState)}
}

// Observe classifies sequence seq on the given channel and advances the
// recorded state for first-seen, in-order and gap observations. Replays
// leave the state untouched.
func (t *Tracker) Observe(channel uint16, seq uint64) Result {
	st, ok := t.channels[channel]
	if !ok {
		st = &channelState{}
		t.channels[channel] = st
	}
	if !st.synced {
		st.last = seq
		st.synced = true
		return Result{Class: FirstSeen, Got: seq}
	}

	switch {
	case seq == st.last+1:
		st.last = seq
		return Result{Class: InOrder, Got: seq}
	case seq <= st.last:
		return Result{Class: Replay, Expected: st.last + 1, Got: seq}
	default:
		missingFrom := st.last + 1
		count := seq - st.last - 1
		st.last = seq
		return Result{Class: Gap, Expected: missingFrom, Got: seq, Count: count}
	}
}

// Reset forces the channel back to sequence 0. The next observation on
// the channel re-establishes the expected sequence without a gap report.
func (t *Tracker) Reset(channel uint16) {
	t.channels[channel] = &channelState{}
}

// Last returns the last recorded sequence for a channel, and whether the
// channel has been observed since creation or the last reset.
func (t *Tracker) Last(channel uint16) (uint64, bool) {
	st, ok := t.channels[channel]
	if !ok || !st.synced {
		return 0, false
	}
	return st.last, true
}
