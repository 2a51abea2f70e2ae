package model

import (
	"testing"
	"time"

	"taifexflow/internal/book"
	"taifexflow/internal/message"
)

func TestSnapshotFromBook(t *testing.T) {
	b := book.New("TXFF6", 2)
	b.ApplySnapshot(message.OrderBookSnapshot{
		ProdID: "TXFF6", Seq: 42, CalculatedFlag: message.CalculatedNo,
		Entries: []message.BookEntry{
			{EntryType: message.EntryBuy, Sign: message.SignPositive, PriceMagnitude: 10025, Size: 10},
			{EntryType: message.EntryBuy, Sign: message.SignPositive, PriceMagnitude: 10000, Size: 5},
			{EntryType: message.EntrySell, Sign: message.SignPositive, PriceMagnitude: 10050, Size: 12},
			{EntryType: message.EntryDerivedBuy, Sign: message.SignPositive, PriceMagnitude: 10010, Size: 1},
		},
	})

	now := time.Unix(1700000000, 0)
	tob := Snapshot(b, 1, now)
	if tob.Product != "TXFF6" || tob.Seq != 42 || tob.DecimalLocator != 2 {
		t.Fatalf("identity = %+v", tob)
	}
	if len(tob.Bids) != 1 || tob.Bids[0] != (PriceLevel{Price: 10025, Size: 10}) {
		t.Fatalf("bids = %+v", tob.Bids)
	}
	if len(tob.Asks) != 1 || tob.Asks[0] != (PriceLevel{Price: 10050, Size: 12}) {
		t.Fatalf("asks = %+v", tob.Asks)
	}
	if tob.DerivedBid == nil || tob.DerivedBid.Price != 10010 {
		t.Fatalf("derived bid = %+v", tob.DerivedBid)
	}
	if tob.DerivedAsk != nil {
		t.Fatalf("derived ask = %+v", tob.DerivedAsk)
	}
	if !tob.Timestamp.Equal(now) {
		t.Fatalf("timestamp = %v", tob.Timestamp)
	}
}
