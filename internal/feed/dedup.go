// Package feed delivers market-data frames from the live dual multicast
// feeds into the pipeline, dropping A/B duplicates on the way.
package feed

type dedupKey struct {
	tc      byte
	channel uint16
	seq     uint64
}

// Deduper is a two-generation seen-set over (transmission code, channel,
// sequence). Memory stays bounded: when the current generation fills up
// it becomes the previous one and lookups consult both.
type Deduper struct {
	limit int
	cur   map[dedupKey]struct{}
	prev  map[dedupKey]struct{}
}

const defaultDedupLimit = 1 << 16

func NewDeduper(limit int) *Deduper {
	if limit <= 0 {
		limit = defaultDedupLimit
	}
	return &Deduper{
		limit: limit,
		cur:   make(map[dedupKey]struct{}),
		prev:  make(map[dedupKey]struct{}),
	}
}

// Seen records the observation and reports whether it was already known.
func (d *Deduper) Seen(tc byte, channel uint16, seq uint64) bool {
	k := dedupKey{tc: tc, channel: channel, seq: seq}
	if _, ok := d.cur[k]; ok {
		return true
	}
	if _, ok := d.prev[k]; ok {
		return true
	}
	if len(d.cur) >= d.limit {
		d.prev = d.cur
		d.cur = make(map[dedupKey]struct{}, d.limit)
	}
	d.cur[k] = struct{}{}
	return false
}
