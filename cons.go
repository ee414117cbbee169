package traildb

import (
	"log/slog"
	"strings"
)

type consState int

const (
	consOpen consState = iota
	consFinalized
	consClosed
)

// Cons is the mutable builder phase of a database. It accumulates
// (uuid, timestamp, values) tuples, interning every value, and is
// consumed by exactly one terminal operation: Finalize (writes the
// immutable database) or Close (discards).
//
// A Cons is single-writer: it must not be mutated concurrently.
type Cons struct {
	path   string
	fields []string // user field names, declaration order
	opt    ConsOptions
	logger *slog.Logger

	lex        *lexiconBuilder
	trailIndex map[[16]byte]uint64 // uuid -> provisional trail ordinal
	uuids      [][16]byte          // ordinal -> uuid, insertion order
	trails     []consTrail

	buffered  int // in-memory events since the last spill
	spill     *spillStore
	numEvents uint64
	minTS     uint64
	maxTS     uint64

	state consState
}

type consTrail struct {
	events  []consEvent // in-memory tail, after any spilled batches
	total   uint64
	spilled uint64
}

type consEvent struct {
	ts   uint64
	vals []Val // provisional value ids, one per user field
}

// suffix room reserved on top of the output path for ".spill" and the
// temporary directory used while finalizing
const pathSuffixRoom = 16

// NewCons creates a builder that will finalize into a database at path.
// Field names must be distinct, non-empty, free of NUL bytes and must
// not shadow the reserved "time" field. A database declared with k user
// fields reports k+1 fields after finalize.
func NewCons(path string, fields []string, opt ConsOptions) (*Cons, error) {
	opt.fillDefaults()
	if len(path) == 0 || len(path)+pathSuffixRoom > opt.PathMax {
		return nil, ErrPathTooLong
	}
	if len(fields) > maxUserFields {
		return nil, ErrTooManyFields
	}
	seen := make(map[string]bool, len(fields))
	for _, name := range fields {
		if !validFieldName(name) {
			return nil, ErrInvalidFieldname
		}
		if seen[name] {
			return nil, ErrDuplicateFields
		}
		seen[name] = true
	}

	return &Cons{
		path:       path,
		fields:     append([]string(nil), fields...),
		opt:        opt,
		logger:     opt.Logger,
		lex:        newLexiconBuilder(len(fields)),
		trailIndex: make(map[[16]byte]uint64),
	}, nil
}

func validFieldName(name string) bool {
	return name != "" && name != timeFieldName && !strings.ContainsRune(name, 0)
}

// NumUserFields reports the number of declared user fields.
func (c *Cons) NumUserFields() int {
	return len(c.fields)
}

// Add appends one event to the uuid's trail, creating the trail if the
// uuid is new. values must hold exactly one entry per declared user
// field, in declaration order; an empty entry marks the field absent for
// this event. Passing the wrong number of values is a programming error
// and panics. A rejected Add leaves the builder exactly as it was.
func (c *Cons) Add(uuid [16]byte, timestamp uint64, values [][]byte) error {
	if c.state != consOpen {
		return ErrHandleClosed
	}
	if len(values) != len(c.fields) {
		panic("traildb: Add requires exactly one value per declared field")
	}
	if timestamp > c.opt.TimestampMax {
		return ErrTimestampTooLarge
	}

	// Validate everything before mutating anything.
	for i, v := range values {
		if err := c.lex.check(Field(i+1), v, c.opt.ValueMax, c.opt.LexiconMax); err != nil {
			return err
		}
	}
	ord, known := c.trailIndex[uuid]
	if known {
		if c.trails[ord].total >= c.opt.TrailMax {
			return ErrTrailTooLong
		}
	} else if uint64(len(c.uuids)) >= c.opt.TrailCountMax {
		return ErrTooManyTrails
	}

	if !known {
		ord = uint64(len(c.uuids))
		c.trailIndex[uuid] = ord
		c.uuids = append(c.uuids, uuid)
		c.trails = append(c.trails, consTrail{})
	}

	vals := make([]Val, len(values))
	for i, v := range values {
		vals[i] = c.lex.intern(Field(i+1), v)
	}

	tr := &c.trails[ord]
	tr.events = append(tr.events, consEvent{ts: timestamp, vals: vals})
	tr.total++

	if c.numEvents == 0 || timestamp < c.minTS {
		c.minTS = timestamp
	}
	if c.numEvents == 0 || timestamp > c.maxTS {
		c.maxTS = timestamp
	}
	c.numEvents++
	c.buffered++

	if c.buffered >= c.opt.SpillThreshold {
		return c.spillBuffers()
	}
	return nil
}

// spillBuffers flushes every trail's in-memory events to the spill store
// next to the output path.
func (c *Cons) spillBuffers() error {
	if c.spill == nil {
		s, err := openSpillStore(c.path + ".spill")
		if err != nil {
			return err
		}
		c.spill = s
	}
	var spilled int
	for ord := range c.trails {
		tr := &c.trails[ord]
		if len(tr.events) == 0 {
			continue
		}
		if err := c.spill.putBatch(uint64(ord), tr.events); err != nil {
			return err
		}
		spilled += len(tr.events)
		tr.spilled += uint64(len(tr.events))
		tr.events = nil
	}
	c.buffered = 0
	c.logger.Debug("traildb: spilled event buffers", "path", c.path, "events", spilled)
	return nil
}

// forEachTrailEvent replays a trail's events in insertion order: spilled
// batches first, then the in-memory tail.
func (c *Cons) forEachTrailEvent(ord uint64, fn func(ts uint64, vals []Val) error) error {
	tr := &c.trails[ord]
	if tr.spilled > 0 {
		err := c.spill.readTrail(ord, func(ev consEvent) error {
			return fn(ev.ts, ev.vals)
		})
		if err != nil {
			return err
		}
	}
	for i := range tr.events {
		if err := fn(tr.events[i].ts, tr.events[i].vals); err != nil {
			return err
		}
	}
	return nil
}

// Close discards all accumulated state without writing. Safe to call
// after Finalize and safe to call repeatedly.
func (c *Cons) Close() {
	if c.state == consOpen {
		c.state = consClosed
	}
	c.discardSpill()
}

func (c *Cons) discardSpill() {
	if c.spill != nil {
		c.spill.close()
		c.spill = nil
	}
}
