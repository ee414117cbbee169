package traildb

import (
	"encoding/binary"

	"github.com/KenanSulayman/traildb/bits"
)

// Event is one decoded event: a timestamp and one item per field in
// declaration order. Items[0] is the reserved time field slot. The
// event is a view owned by its cursor and is overwritten by the next
// Next call.
type Event struct {
	Timestamp uint64
	Items     []Item
}

// NumItems reports the number of item slots, equal to the database's
// NumFields.
func (ev *Event) NumItems() int {
	return len(ev.Items)
}

// Cursor decodes one trail's event stream at a time. A fresh cursor is
// unbound; GetTrail binds it to a trail and positions it at the first
// event, and binding again rebinds and rewinds it. A cursor holds
// private position state and must not be shared between goroutines;
// independent cursors over the same DB do not interfere.
type Cursor struct {
	db       *DB
	onlyDiff bool

	trailID uint64
	bound   bool
	count   uint64
	read    uint64

	lastTS uint64
	ts     byteDecoder
	items  bits.Reader
	ev     Event
	prev   []Val // previous event's values, for the diff filter
	err    error
}

// NewCursor allocates an independent cursor bound to this database. Many
// cursors may coexist over one DB.
func (db *DB) NewCursor() *Cursor {
	k := len(db.fields)
	c := &Cursor{
		db:       db,
		onlyDiff: db.onlyDiff,
		ev:       Event{Items: make([]Item, k+1)},
		prev:     make([]Val, k+1),
	}
	c.ev.Items[0] = MakeItem(0, 0)
	return c
}

// GetTrail binds the cursor to a trail and positions it at the trail's
// first event. Binding to a trail id outside 0..NumTrails-1 fails with
// ErrInvalidTrailId and leaves the cursor's previous binding intact.
func (c *Cursor) GetTrail(trailID uint64) error {
	db := c.db
	if trailID >= db.numTrails {
		return ErrInvalidTrailId
	}
	start := binary.LittleEndian.Uint64(db.trailOffs[8*trailID:])
	end := binary.LittleEndian.Uint64(db.trailOffs[8*trailID+8:])
	d := makeByteDecoder(db.blocks[start:end])

	count, err := d.Uvarint()
	if err != nil {
		return fileErrf(db.path, "trails", ErrInvalidTrailsFile, "trail %d: %v", trailID, err)
	}
	tsLen, err := d.Uvarinti()
	if err != nil {
		return fileErrf(db.path, "trails", ErrInvalidTrailsFile, "trail %d: %v", trailID, err)
	}
	tsBytes, err := d.Raw(tsLen)
	if err != nil {
		return fileErrf(db.path, "trails", ErrInvalidTrailsFile, "trail %d: %v", trailID, err)
	}

	c.trailID = trailID
	c.bound = true
	c.count = count
	c.read = 0
	c.lastTS = 0
	c.ts = makeByteDecoder(tsBytes)
	c.items.Reset(d.Buf)
	clear(c.prev)
	c.err = nil
	return nil
}

// TrailID reports the currently bound trail.
func (c *Cursor) TrailID() (uint64, bool) {
	return c.trailID, c.bound
}

// Len reports the bound trail's total event count, decoded from the
// block header without consuming the sequence.
func (c *Cursor) Len() uint64 {
	return c.count
}

// Next decodes the next event. It returns false once the trail's event
// count is exhausted, or after a decoding failure (see Err). The
// returned event is valid until the next call.
func (c *Cursor) Next() (*Event, bool) {
	if !c.bound || c.err != nil || c.read == c.count {
		return nil, false
	}

	if c.read == 0 {
		abs, err := c.ts.Uvarint()
		if err != nil {
			return nil, c.fail(err)
		}
		c.lastTS = abs
	} else {
		delta, err := c.ts.Zigzag()
		if err != nil {
			return nil, c.fail(err)
		}
		c.lastTS = uint64(int64(c.lastTS) + delta)
	}
	c.ev.Timestamp = c.lastTS

	for f := 1; f < len(c.ev.Items); f++ {
		v, err := c.items.ReadBits(c.db.widths[f])
		if err != nil {
			return nil, c.fail(err)
		}
		emit := Val(v)
		if c.onlyDiff {
			if c.read > 0 && emit == c.prev[f] {
				emit = 0
			}
			c.prev[f] = Val(v)
		}
		c.ev.Items[f] = MakeItem(Field(f), emit)
	}

	c.read++
	return &c.ev, true
}

func (c *Cursor) fail(err error) bool {
	c.err = fileErrf(c.db.path, "trails", ErrInvalidTrailsFile, "trail %d event %d: %v", c.trailID, c.read, err)
	return false
}

// Err reports the decoding failure that terminated iteration early, if
// any. A fully consumed trail leaves Err nil.
func (c *Cursor) Err() error {
	return c.err
}

// Trail pairs a trail id with a cursor already bound to it. It exposes
// the same sequence contract as the cursor.
type Trail struct {
	id uint64
	c  *Cursor
}

// NewTrail opens a trail on a private cursor positioned at its first
// event.
func (db *DB) NewTrail(trailID uint64) (*Trail, error) {
	c := db.NewCursor()
	if err := c.GetTrail(trailID); err != nil {
		return nil, err
	}
	return &Trail{id: trailID, c: c}, nil
}

// ID reports the trail's id.
func (t *Trail) ID() uint64 { return t.id }

// Len reports the trail's total event count.
func (t *Trail) Len() uint64 { return t.c.Len() }

// Next decodes the trail's next event; see Cursor.Next.
func (t *Trail) Next() (*Event, bool) { return t.c.Next() }

// Err reports a decoding failure, if any; see Cursor.Err.
func (t *Trail) Err() error { return t.c.Err() }

// Restart rewinds the trail to its first event.
func (t *Trail) Restart() error {
	return t.c.GetTrail(t.id)
}

// TrailIter is a lazy, finite, restartable sequence of trails in trail
// id order, each opened on a private cursor.
type TrailIter struct {
	db   *DB
	next uint64
}

// Trails returns an iterator over all trails, 0..NumTrails-1.
func (db *DB) Trails() *TrailIter {
	return &TrailIter{db: db}
}

// Next opens the next trail. It returns false the first time a trail id
// fails to resolve, which only happens at the end of the valid range.
func (it *TrailIter) Next() (*Trail, bool) {
	tr, err := it.db.NewTrail(it.next)
	if err != nil {
		return nil, false
	}
	it.next++
	return tr, true
}

// Reset restarts iteration from trail 0.
func (it *TrailIter) Reset() {
	it.next = 0
}
