// Package sdk owns the market-data pipeline: frame validation, header
// decoding, sequence tracking, body dispatch and book maintenance. One
// goroutine feeds ProcessFrame; all state here is single-threaded by
// construction.
package sdk

import (
	"errors"
	"fmt"
	"strings"

	"taifexflow/internal/book"
	"taifexflow/internal/frame"
	"taifexflow/internal/message"
	"taifexflow/internal/sequence"
	"taifexflow/logger"
)

// ErrMissingProductInfo marks a snapshot or update that arrived before
// the product basic record carrying its decimal locator.
var ErrMissingProductInfo = errors.New("missing product info")

// Recoverer receives the missing ranges found by the sequence tracker.
// The retransmission client implements it.
type Recoverer interface {
	Request(channel uint16, beginSeq uint64, count uint16) bool
}

// BookUpdateFunc observes a book right after a snapshot or update was
// applied. The book reference is only valid until ProcessFrame returns.
type BookUpdateFunc func(b *book.Book)

// Stats are cumulative pipeline counters, read by the metrics publisher
// and the dashboard.
type Stats struct {
	FramesProcessed uint64
	FramesDropped   uint64
	Replays         uint64
	Gaps            uint64
	GapMessages     uint64
	Resets          uint64
	BookUpdates     uint64
	BooksCreated    uint64
}

// SDK is the facade over the processing pipeline and all book state.
type SDK struct {
	log     *logger.Entry
	tracker *sequence.Tracker

	products map[string]message.ProductBasic
	books    map[string]*book.Book
	// channelBooks remembers which books each channel touched so a
	// sequence reset can clear exactly those.
	channelBooks map[uint16]map[string]struct{}

	recoverer    Recoverer
	onBookUpdate BookUpdateFunc

	stats Stats
}

func New(log *logger.Log) *SDK {
	return &SDK{
		log:          log.WithComponent("sdk"),
		tracker:      sequence.NewTracker(),
		products:     make(map[string]message.ProductBasic),
		books:        make(map[string]*book.Book),
		channelBooks: make(map[uint16]map[string]struct{}),
	}
}

// SetRecoverer wires the retransmission client. Without one, gaps are
// logged and skipped.
func (s *SDK) SetRecoverer(r Recoverer) { s.recoverer = r }

// OnBookUpdate registers the post-mutation callback.
func (s *SDK) OnBookUpdate(fn BookUpdateFunc) { s.onBookUpdate = fn }

// Stats returns a copy of the cumulative counters.
func (s *SDK) Stats() Stats { return s.stats }

// GetProductInfo looks up the product basic record for a short id.
func (s *SDK) GetProductInfo(shortID string) (message.ProductBasic, bool) {
	p, ok := s.products[strings.TrimRight(shortID, " ")]
	return p, ok
}

// GetOrderBook returns a read-only view of one product's book. The
// returned reference is valid until the next ProcessFrame call.
func (s *SDK) GetOrderBook(productID string) (*book.Book, bool) {
	b, ok := s.books[strings.TrimRight(productID, " ")]
	return b, ok
}

// Books iterates all live books. Dashboard/capture use; pipeline thread
// only.
func (s *SDK) Books(fn func(*book.Book)) {
	for _, b := range s.books {
		fn(b)
	}
}

// ProcessFrame runs one frame through the full pipeline. Errors are
// logged and returned; the frame is dropped and no partial state is
// applied.
func (s *SDK) ProcessFrame(buf []byte) error {
	f, err := frame.Validate(buf)
	if err != nil {
		s.stats.FramesDropped++
		s.log.WithError(err).Warn("frame rejected")
		return err
	}

	channel, err := f.Header.ChannelID()
	if err != nil {
		s.stats.FramesDropped++
		s.log.WithError(err).Warn("frame rejected")
		return err
	}
	seq, err := f.Header.ChannelSeq()
	if err != nil {
		s.stats.FramesDropped++
		s.log.WithError(err).Warn("frame rejected")
		return err
	}

	msgID := f.Header.MessageID()

	// A sequence reset bypasses gap accounting: it rebases the channel.
	if msgID == frame.MessageSequenceReset {
		if err := message.ParseHeartbeat(f.Body); err != nil {
			s.stats.FramesDropped++
			s.log.WithError(err).Warn("sequence reset rejected")
			return err
		}
		s.handleSequenceReset(channel)
		s.stats.FramesProcessed++
		return nil
	}

	switch r := s.tracker.Observe(channel, seq); r.Class {
	case sequence.Replay:
		s.stats.Replays++
		s.stats.FramesDropped++
		s.log.WithFields(logger.Fields{
			"channel": channel,
			"seq":     seq,
		}).Debug("replayed frame dropped")
		return nil
	case sequence.Gap:
		s.stats.Gaps++
		s.stats.GapMessages += r.Count
		s.log.WithFields(logger.Fields{
			"channel":  channel,
			"expected": r.Expected,
			"got":      r.Got,
			"missing":  r.Count,
		}).Warn("sequence gap detected")
		if s.recoverer != nil {
			s.recoverer.Request(channel, r.Expected, uint16(r.Count))
		}
	}

	if err := s.dispatch(msgID, channel, f.Body); err != nil {
		s.stats.FramesDropped++
		s.log.WithError(err).WithFields(logger.Fields{
			"channel": channel,
			"seq":     seq,
			"message": msgID.String(),
		}).Warn("frame dropped")
		return err
	}
	s.stats.FramesProcessed++
	return nil
}

func (s *SDK) dispatch(msgID frame.MessageID, channel uint16, body []byte) error {
	switch msgID {
	case frame.MessageHeartbeat:
		return message.ParseHeartbeat(body)
	case frame.MessageProductBasic:
		return s.handleProductBasic(body)
	case frame.MessageOrderBookSnapshot:
		return s.handleSnapshot(channel, body)
	case frame.MessageOrderBookUpdate:
		return s.handleUpdate(channel, body)
	default:
		// Identified but unhandled families and unknown pairs alike are
		// sequence-tracked and then ignored.
		s.log.WithField("message", msgID.String()).Debug("unhandled message family")
		return nil
	}
}

func (s *SDK) handleSequenceReset(channel uint16) {
	s.stats.Resets++
	s.tracker.Reset(channel)
	for id := range s.channelBooks[channel] {
		if b, ok := s.books[id]; ok {
			b.Reset()
		}
	}
	s.log.WithField("channel", channel).Info("sequence reset applied")
}

func (s *SDK) handleProductBasic(body []byte) error {
	p, err := message.ParseProductBasic(body)
	if err != nil {
		return err
	}
	key := strings.TrimRight(p.ProdIDShort, " ")
	s.products[key] = p
	s.log.WithFields(logger.Fields{
		"product":         key,
		"decimal_locator": p.DecimalLocator,
	}).Debug("product basic record stored")
	return nil
}

func (s *SDK) handleSnapshot(channel uint16, body []byte) error {
	m, err := message.ParseOrderBookSnapshot(body)
	if err != nil {
		return err
	}
	b, err := s.getOrCreateBook(channel, m.ProdID)
	if err != nil {
		return err
	}
	b.ApplySnapshot(m)
	s.stats.BookUpdates++
	if s.onBookUpdate != nil {
		s.onBookUpdate(b)
	}
	return nil
}

func (s *SDK) handleUpdate(channel uint16, body []byte) error {
	m, err := message.ParseOrderBookUpdate(body)
	if err != nil {
		return err
	}
	b, err := s.getOrCreateBook(channel, m.ProdID)
	if err != nil {
		return err
	}
	if !b.ApplyUpdate(m) {
		s.log.WithFields(logger.Fields{
			"product": b.ProductID(),
			"seq":     m.Seq,
			"applied": b.LastSeq(),
		}).Debug("stale book update dropped")
		return nil
	}
	s.stats.BookUpdates++
	if s.onBookUpdate != nil {
		s.onBookUpdate(b)
	}
	return nil
}

// getOrCreateBook resolves the book for a 20-char product id, creating
// it lazily when a product basic record exists for the derived short id.
func (s *SDK) getOrCreateBook(channel uint16, prodID string) (*book.Book, error) {
	key := strings.TrimRight(prodID, " ")
	if b, ok := s.books[key]; ok {
		s.trackChannelBook(channel, key)
		return b, nil
	}

	short := ShortID(prodID)
	info, ok := s.products[short]
	if !ok {
		return nil, fmt.Errorf("%w: product %q (short id %q)", ErrMissingProductInfo, key, short)
	}
	b := book.New(key, info.DecimalLocator)
	s.books[key] = b
	s.stats.BooksCreated++
	s.trackChannelBook(channel, key)
	s.log.WithFields(logger.Fields{
		"product":         key,
		"decimal_locator": info.DecimalLocator,
	}).Info("order book created")
	return b, nil
}

func (s *SDK) trackChannelBook(channel uint16, key string) {
	m, ok := s.channelBooks[channel]
	if !ok {
		m = make(map[string]struct{})
		s.channelBooks[channel] = m
	}
	m[key] = struct{}{}
}

// ShortID derives the product-basic lookup key from a 20-char product
// id: the part before the first '/' for composite ids, otherwise the
// first 10 characters, trailing spaces trimmed.
func ShortID(prodID string) string {
	if i := strings.IndexByte(prodID, '/'); i >= 0 {
		return strings.TrimRight(prodID[:i], " ")
	}
	if len(prodID) > 10 {
		prodID = prodID[:10]
	}
	return strings.TrimRight(prodID, " ")
}
