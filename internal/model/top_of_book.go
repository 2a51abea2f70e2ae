// Package model holds the read-side records shared by the capture
// writer and the dashboard.
package model

import (
	"time"

	"taifexflow/internal/book"
)

// PriceLevel is one disclosed price level.
type PriceLevel struct {
	Price int64  `json:"price"`
	Size  uint64 `json:"size"`
}

// TopOfBook is a point-in-time view of one product's disclosed depth.
// Built on the pipeline thread right after a book mutation; safe to
// hand to other goroutines.
type TopOfBook struct {
	Product        string       `json:"product"`
	DecimalLocator uint8        `json:"decimal_locator"`
	Seq            uint64       `json:"seq"`
	Bids           []PriceLevel `json:"bids"`
	Asks           []PriceLevel `json:"asks"`
	DerivedBid     *PriceLevel  `json:"derived_bid,omitempty"`
	DerivedAsk     *PriceLevel  `json:"derived_ask,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// Snapshot captures the top depth levels of a book.
func Snapshot(b *book.Book, depth int, now time.Time) TopOfBook {
	tob := TopOfBook{
		Product:        b.ProductID(),
		DecimalLocator: b.DecimalLocator(),
		Seq:            b.LastSeq(),
		Timestamp:      now,
	}
	for _, l := range b.TopBids(depth) {
		tob.Bids = append(tob.Bids, PriceLevel{Price: l.Price, Size: l.Size})
	}
	for _, l := range b.TopAsks(depth) {
		tob.Asks = append(tob.Asks, PriceLevel{Price: l.Price, Size: l.Size})
	}
	if l, ok := b.DerivedBid(); ok {
		tob.DerivedBid = &PriceLevel{Price: l.Price, Size: l.Size}
	}
	if l, ok := b.DerivedAsk(); ok {
		tob.DerivedAsk = &PriceLevel{Price: l.Price, Size: l.Size}
	}
	return tob
}
