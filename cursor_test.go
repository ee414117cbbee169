package traildb

import (
	"errors"
	"fmt"
	"testing"
)

func TestCursorLenMatchesIteration(t *testing.T) {
	db := buildTestDB(t, ConsOptions{}, []string{"f"}, func(c *Cons) {
		for n := 0; n < 5; n++ {
			for i := 0; i <= n; i++ {
				ensure(c.Add(testUUID(n), uint64(i), vals(fmt.Sprintf("v%d", i))))
			}
		}
	})

	cur := db.NewCursor()
	for tid := uint64(0); tid < db.NumTrails(); tid++ {
		ensure(cur.GetTrail(tid))
		want := cur.Len()
		var got uint64
		for _, ok := cur.Next(); ok; _, ok = cur.Next() {
			got++
		}
		ensure(cur.Err())
		if got != want {
			t.Errorf("trail %d: Len() = %d but iteration yielded %d", tid, want, got)
		}
	}
}

func TestCursorRebindRestarts(t *testing.T) {
	db := buildTestDB(t, ConsOptions{}, []string{"f"}, func(c *Cons) {
		for i := uint64(0); i < 7; i++ {
			ensure(c.Add(testUUID(1), i*100, vals("v")))
		}
	})

	cur := db.NewCursor()
	ensure(cur.GetTrail(0))
	// Consume a few events, then rebind; position must reset.
	for i := 0; i < 3; i++ {
		if _, ok := cur.Next(); !ok {
			t.Fatalf("unexpected end of trail")
		}
	}
	ensure(cur.GetTrail(0))
	ev, ok := cur.Next()
	if !ok || ev.Timestamp != 0 {
		t.Errorf("rebinding did not reset to the first event")
	}
}

func TestCursorInvalidTrailId(t *testing.T) {
	db := buildTestDB(t, ConsOptions{}, []string{"f"}, func(c *Cons) {
		ensure(c.Add(testUUID(1), 42, vals("v")))
	})

	cur := db.NewCursor()
	if err := cur.GetTrail(db.NumTrails()); !errors.Is(err, ErrInvalidTrailId) {
		t.Fatalf("got %v, wanted ErrInvalidTrailId", err)
	}
	// The cursor stays usable for a subsequent valid bind.
	ensure(cur.GetTrail(0))
	ev, ok := cur.Next()
	if !ok || ev.Timestamp != 42 {
		t.Errorf("cursor unusable after a failed bind")
	}
}

func TestCursorSignedTimestampDeltas(t *testing.T) {
	// Within-trail ordering is caller-supplied; out-of-order timestamps
	// must round-trip exactly.
	stamps := []uint64{100, 50, 200, 199, 0, 1 << 40}
	db := buildTestDB(t, ConsOptions{}, []string{"f"}, func(c *Cons) {
		for _, ts := range stamps {
			ensure(c.Add(testUUID(1), ts, vals("v")))
		}
	})
	deepEq(t, db.MinTimestamp(), 0)
	deepEq(t, db.MaxTimestamp(), 1<<40)

	cur := db.NewCursor()
	ensure(cur.GetTrail(0))
	for i, want := range stamps {
		ev, ok := cur.Next()
		if !ok {
			t.Fatalf("trail ended early at %d", i)
		}
		if ev.Timestamp != want {
			t.Errorf("event %d: timestamp %d, wanted %d", i, ev.Timestamp, want)
		}
	}
}

func TestManyCursorsDoNotInterfere(t *testing.T) {
	db := buildTestDB(t, ConsOptions{}, []string{"f"}, func(c *Cons) {
		for i := uint64(0); i < 10; i++ {
			ensure(c.Add(testUUID(1), i, vals("v")))
		}
	})

	c1, c2 := db.NewCursor(), db.NewCursor()
	ensure(c1.GetTrail(0))
	ensure(c2.GetTrail(0))
	for i := 0; i < 5; i++ {
		c1.Next()
	}
	ev, ok := c2.Next()
	if !ok || ev.Timestamp != 0 {
		t.Errorf("cursors share position state")
	}
}

func TestTrailIterStopsAtEnd(t *testing.T) {
	db := buildTestDB(t, ConsOptions{}, []string{"f"}, func(c *Cons) {
		for n := 0; n < 4; n++ {
			ensure(c.Add(testUUID(n), 0, vals("v")))
		}
	})

	it := db.Trails()
	var ids []uint64
	for tr, ok := it.Next(); ok; tr, ok = it.Next() {
		ids = append(ids, tr.ID())
	}
	deepEq(t, ids, []uint64{0, 1, 2, 3})

	it.Reset()
	tr, ok := it.Next()
	if !ok || tr.ID() != 0 {
		t.Errorf("Reset did not restart iteration")
	}
}

func TestTrailRestart(t *testing.T) {
	db := buildTestDB(t, ConsOptions{}, []string{"f"}, func(c *Cons) {
		ensure(c.Add(testUUID(1), 1, vals("a")))
		ensure(c.Add(testUUID(1), 2, vals("b")))
	})

	tr := must(db.NewTrail(0))
	deepEq(t, tr.Len(), 2)
	for _, ok := tr.Next(); ok; _, ok = tr.Next() {
	}
	ensure(tr.Restart())
	ev, ok := tr.Next()
	if !ok || ev.Timestamp != 1 {
		t.Errorf("Restart did not rewind the trail")
	}
}

func TestOnlyDiffFilter(t *testing.T) {
	db := buildTestDB(t, ConsOptions{}, []string{"user", "action"}, func(c *Cons) {
		ensure(c.Add(testUUID(1), 0, vals("alice", "login")))
		ensure(c.Add(testUUID(1), 1, vals("alice", "click")))
		ensure(c.Add(testUUID(1), 2, vals("bob", "click")))
	})
	ensure(db.SetOpt("filter", FilterDiff))

	cur := db.NewCursor()
	ensure(cur.GetTrail(0))

	// First event carries everything.
	ev, _ := cur.Next()
	deepEq(t, must(db.GetItemValue(ev.Items[1])), "alice")
	deepEq(t, must(db.GetItemValue(ev.Items[2])), "login")

	// Second event repeats user; only action shows.
	ev, _ = cur.Next()
	deepEq(t, ev.Items[1].Val(), 0)
	deepEq(t, must(db.GetItemValue(ev.Items[2])), "click")

	// Third event repeats action; only user shows.
	ev, _ = cur.Next()
	deepEq(t, must(db.GetItemValue(ev.Items[1])), "bob")
	deepEq(t, ev.Items[2].Val(), 0)
}
