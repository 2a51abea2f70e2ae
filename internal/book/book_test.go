package book

import (
	"testing"

	"taifexflow/internal/message"
)

func snapEntry(typ, sign byte, px int64, size uint64) message.BookEntry {
	return message.BookEntry{EntryType: typ, Sign: sign, PriceMagnitude: px, Size: size, Level: 1}
}

func updEntry(action, typ, sign byte, px int64, size uint64) message.BookEntry {
	e := snapEntry(typ, sign, px, size)
	e.Action = action
	return e
}

func referenceSnapshot() message.OrderBookSnapshot {
	return message.OrderBookSnapshot{
		ProdID:         "TXFF6",
		Seq:            100,
		CalculatedFlag: message.CalculatedNo,
		Entries: []message.BookEntry{
			snapEntry(message.EntryBuy, message.SignPositive, 10025, 10),
			snapEntry(message.EntryBuy, message.SignPositive, 10000, 5),
			snapEntry(message.EntrySell, message.SignPositive, 10050, 12),
			snapEntry(message.EntrySell, message.SignPositive, 10075, 8),
		},
	}
}

func TestApplySnapshotThenUpdate(t *testing.T) {
	b := New("TXFF6", 2)
	b.ApplySnapshot(referenceSnapshot())

	if b.LastSeq() != 100 {
		t.Fatalf("LastSeq = %d, want 100", b.LastSeq())
	}
	bids := b.TopBids(1)
	if len(bids) != 1 || bids[0] != (Level{Price: 10025, Size: 10}) {
		t.Fatalf("best bid = %+v", bids)
	}
	asks := b.TopAsks(1)
	if len(asks) != 1 || asks[0] != (Level{Price: 10050, Size: 12}) {
		t.Fatalf("best ask = %+v", asks)
	}

	applied := b.ApplyUpdate(message.OrderBookUpdate{
		ProdID: "TXFF6",
		Seq:    101,
		Entries: []message.BookEntry{
			updEntry(message.ActionNew, message.EntryBuy, message.SignPositive, 10050, 3),
			updEntry(message.ActionChange, message.EntrySell, message.SignPositive, 10050, 0),
		},
	})
	if !applied {
		t.Fatal("update not applied")
	}
	if b.LastSeq() != 101 {
		t.Fatalf("LastSeq = %d, want 101", b.LastSeq())
	}
	bids = b.TopBids(1)
	if len(bids) != 1 || bids[0] != (Level{Price: 10050, Size: 3}) {
		t.Fatalf("best bid after update = %+v", bids)
	}
	asks = b.TopAsks(1)
	if len(asks) != 1 || asks[0] != (Level{Price: 10075, Size: 8}) {
		t.Fatalf("best ask after update = %+v", asks)
	}
}

func TestSnapshotContainsExactlyNonZeroEntries(t *testing.T) {
	snap := referenceSnapshot()
	snap.Entries = append(snap.Entries, snapEntry(message.EntryBuy, message.SignPositive, 9990, 0))
	b := New("TXFF6", 2)
	b.ApplySnapshot(snap)
	if nb, na := b.Depth(); nb != 2 || na != 2 {
		t.Fatalf("depth = %d/%d, want 2/2", nb, na)
	}
}

func TestSnapshotClearsPriorState(t *testing.T) {
	b := New("TXFF6", 2)
	b.ApplySnapshot(referenceSnapshot())
	b.ApplySnapshot(message.OrderBookSnapshot{
		ProdID: "TXFF6", Seq: 200, CalculatedFlag: message.CalculatedNo,
		Entries: []message.BookEntry{
			snapEntry(message.EntryBuy, message.SignPositive, 5000, 1),
		},
	})
	if nb, na := b.Depth(); nb != 1 || na != 0 {
		t.Fatalf("depth = %d/%d, want 1/0", nb, na)
	}
	if b.LastSeq() != 200 {
		t.Fatalf("LastSeq = %d", b.LastSeq())
	}
}

func TestBidAskOrdering(t *testing.T) {
	b := New("TXFF6", 2)
	b.ApplySnapshot(message.OrderBookSnapshot{
		ProdID: "TXFF6", Seq: 1, CalculatedFlag: message.CalculatedNo,
		Entries: []message.BookEntry{
			snapEntry(message.EntryBuy, message.SignPositive, 100, 1),
			snapEntry(message.EntryBuy, message.SignPositive, 300, 1),
			snapEntry(message.EntryBuy, message.SignPositive, 200, 1),
			snapEntry(message.EntrySell, message.SignPositive, 600, 1),
			snapEntry(message.EntrySell, message.SignPositive, 400, 1),
			snapEntry(message.EntrySell, message.SignPositive, 500, 1),
		},
	})
	bids := b.TopBids(10)
	for i := 1; i < len(bids); i++ {
		if bids[i].Price >= bids[i-1].Price {
			t.Fatalf("bids not strictly decreasing: %+v", bids)
		}
	}
	asks := b.TopAsks(10)
	for i := 1; i < len(asks); i++ {
		if asks[i].Price <= asks[i-1].Price {
			t.Fatalf("asks not strictly increasing: %+v", asks)
		}
	}
}

func TestStaleUpdateLeavesBookUnchanged(t *testing.T) {
	b := New("TXFF6", 2)
	b.ApplySnapshot(referenceSnapshot())

	for _, seq := range []uint64{99, 100} {
		if b.ApplyUpdate(message.OrderBookUpdate{
			ProdID: "TXFF6", Seq: seq,
			Entries: []message.BookEntry{
				updEntry(message.ActionDelete, message.EntryBuy, message.SignPositive, 10025, 0),
			},
		}) {
			t.Fatalf("update with seq %d applied", seq)
		}
		if bids := b.TopBids(1); bids[0].Price != 10025 {
			t.Fatalf("book mutated by stale update seq %d", seq)
		}
		if b.LastSeq() != 100 {
			t.Fatalf("LastSeq moved to %d", b.LastSeq())
		}
	}
}

func TestUpdateEntriesSequentialSamePrice(t *testing.T) {
	b := New("TXFF6", 2)
	b.ApplySnapshot(message.OrderBookSnapshot{
		ProdID: "TXFF6", Seq: 1, CalculatedFlag: message.CalculatedNo,
	})
	b.ApplyUpdate(message.OrderBookUpdate{
		ProdID: "TXFF6", Seq: 2,
		Entries: []message.BookEntry{
			updEntry(message.ActionNew, message.EntryBuy, message.SignPositive, 777, 4),
			updEntry(message.ActionChange, message.EntryBuy, message.SignPositive, 777, 9),
		},
	})
	bids := b.TopBids(1)
	if len(bids) != 1 || bids[0].Size != 9 {
		t.Fatalf("second entry did not see the first: %+v", bids)
	}
}

func TestChangeOnMissingLevelInserts(t *testing.T) {
	b := New("TXFF6", 2)
	b.ApplySnapshot(message.OrderBookSnapshot{ProdID: "TXFF6", Seq: 1, CalculatedFlag: message.CalculatedNo})
	b.ApplyUpdate(message.OrderBookUpdate{
		ProdID: "TXFF6", Seq: 2,
		Entries: []message.BookEntry{
			updEntry(message.ActionChange, message.EntrySell, message.SignPositive, 4242, 6),
		},
	})
	asks := b.TopAsks(1)
	if len(asks) != 1 || asks[0] != (Level{Price: 4242, Size: 6}) {
		t.Fatalf("recovery-tolerant change missing: %+v", asks)
	}
}

func TestNegativeAndMarketPrices(t *testing.T) {
	b := New("TXFF6", 2)
	b.ApplySnapshot(message.OrderBookSnapshot{
		ProdID: "TXFF6", Seq: 1, CalculatedFlag: message.CalculatedYes,
		Entries: []message.BookEntry{
			snapEntry(message.EntryBuy, message.SignPositive, MarketBuyPrice, 2),
			snapEntry(message.EntrySell, message.SignNegative, 999999999, 3),
			snapEntry(message.EntryBuy, message.SignNegative, 150, 1),
			snapEntry(message.EntryBuy, message.SignNegative, 0, 4),
		},
	})
	bids := b.TopBids(10)
	if bids[0].Price != MarketBuyPrice {
		t.Fatalf("market buy price mangled: %+v", bids[0])
	}
	if bids[len(bids)-1].Price != -150 {
		t.Fatalf("negative price missing: %+v", bids)
	}
	found := false
	for _, l := range bids {
		if l.Price == 0 && l.Size == 4 {
			found = true
		}
	}
	if !found {
		t.Fatalf("price 0 with negative sign should stay 0: %+v", bids)
	}
	asks := b.TopAsks(1)
	if asks[0].Price != MarketSellPrice {
		t.Fatalf("market sell price mangled: %+v", asks[0])
	}
}

func TestDerivedSlots(t *testing.T) {
	b := New("TXFF6", 2)
	b.ApplySnapshot(message.OrderBookSnapshot{
		ProdID: "TXFF6", Seq: 1, CalculatedFlag: message.CalculatedNo,
		Entries: []message.BookEntry{
			snapEntry(message.EntryDerivedBuy, message.SignPositive, 10010, 7),
		},
	})
	if l, ok := b.DerivedBid(); !ok || l != (Level{Price: 10010, Size: 7}) {
		t.Fatalf("derived bid = %+v, %v", l, ok)
	}

	// Overlay replaces, zero/zero clears.
	b.ApplyUpdate(message.OrderBookUpdate{
		ProdID: "TXFF6", Seq: 2,
		Entries: []message.BookEntry{
			updEntry(message.ActionOverlay, message.EntryDerivedBuy, message.SignPositive, 10020, 9),
			updEntry(message.ActionOverlay, message.EntryDerivedSell, message.SignPositive, 10030, 1),
		},
	})
	if l, _ := b.DerivedBid(); l != (Level{Price: 10020, Size: 9}) {
		t.Fatalf("derived bid after overlay = %+v", l)
	}
	b.ApplyUpdate(message.OrderBookUpdate{
		ProdID: "TXFF6", Seq: 3,
		Entries: []message.BookEntry{
			updEntry(message.ActionOverlay, message.EntryDerivedSell, message.SignPositive, 0, 0),
		},
	})
	if _, ok := b.DerivedAsk(); ok {
		t.Fatal("derived ask not cleared by zero overlay")
	}

	// Non-overlay actions on derived entries are ignored.
	b.ApplyUpdate(message.OrderBookUpdate{
		ProdID: "TXFF6", Seq: 4,
		Entries: []message.BookEntry{
			updEntry(message.ActionDelete, message.EntryDerivedBuy, message.SignPositive, 10020, 0),
		},
	})
	if _, ok := b.DerivedBid(); !ok {
		t.Fatal("delete action should not touch derived slot")
	}
}

func TestCalculatedSnapshotIgnoresDerived(t *testing.T) {
	b := New("TXFF6", 2)
	b.ApplySnapshot(message.OrderBookSnapshot{
		ProdID: "TXFF6", Seq: 1, CalculatedFlag: message.CalculatedYes,
		Entries: []message.BookEntry{
			snapEntry(message.EntryDerivedBuy, message.SignPositive, 10010, 7),
		},
	})
	if _, ok := b.DerivedBid(); ok {
		t.Fatal("derived entry honored on calculated snapshot")
	}
}

func TestOverlayIgnoredOnRegularSide(t *testing.T) {
	b := New("TXFF6", 2)
	b.ApplySnapshot(message.OrderBookSnapshot{ProdID: "TXFF6", Seq: 1, CalculatedFlag: message.CalculatedNo})
	b.ApplyUpdate(message.OrderBookUpdate{
		ProdID: "TXFF6", Seq: 2,
		Entries: []message.BookEntry{
			updEntry(message.ActionOverlay, message.EntryBuy, message.SignPositive, 123, 5),
		},
	})
	if nb, _ := b.Depth(); nb != 0 {
		t.Fatal("overlay applied to regular bid side")
	}
}

func TestResetKeepsIdentity(t *testing.T) {
	b := New("TXFF6", 3)
	b.ApplySnapshot(referenceSnapshot())
	b.Reset()
	if nb, na := b.Depth(); nb != 0 || na != 0 {
		t.Fatalf("depth after reset = %d/%d", nb, na)
	}
	if b.LastSeq() != 0 {
		t.Fatalf("LastSeq after reset = %d", b.LastSeq())
	}
	if b.ProductID() != "TXFF6" || b.DecimalLocator() != 3 {
		t.Fatal("identity lost on reset")
	}
}
