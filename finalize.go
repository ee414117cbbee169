package traildb

import (
	"bytes"
	mathbits "math/bits"
	"os"
	"sort"

	"github.com/KenanSulayman/traildb/bits"
)

// Finalize freezes the accumulated state and writes the immutable
// database to the target path. Value ids are assigned in lexicographic
// byte order and trail ids in first-seen uuid order, so two
// finalizations of identical input produce byte-identical databases.
//
// All sections are written into a temporary directory which is renamed
// over the target path; on any failure the temporary directory is
// removed and the target is left untouched. After a successful Finalize
// the builder is spent: further Add calls fail with ErrHandleClosed.
func (c *Cons) Finalize() error {
	if c.state != consOpen {
		return ErrHandleClosed
	}

	remaps, lexBody := c.lex.freeze()

	// Bit width per user field, derived from the frozen id ranges.
	widths := make([]uint, len(c.fields)+1)
	for f := 1; f <= len(c.fields); f++ {
		widths[f] = uint(mathbits.Len64(c.lex.numValues(Field(f))))
	}

	tmpDir := c.path + ".tmp"
	if err := os.Mkdir(tmpDir, 0o777); err != nil {
		return ioErr("open", tmpDir, err)
	}
	var ok bool
	defer func() {
		if !ok {
			os.RemoveAll(tmpDir)
		}
	}()

	err := c.writeSections(tmpDir, remaps, widths, lexBody)
	if err != nil {
		c.logger.Error("traildb: finalize failed", "path", c.path, "err", err)
		return err
	}

	if err := os.Rename(tmpDir, c.path); err != nil {
		c.logger.Error("traildb: finalize failed", "path", c.path, "err", err)
		return ioErr("package", c.path, err)
	}
	ok = true

	c.state = consFinalized
	c.discardSpill()
	c.logger.Debug("traildb: finalized",
		"path", c.path, "trails", len(c.uuids), "events", c.numEvents)
	return nil
}

func (c *Cons) writeSections(dir string, remaps [][]Val, widths []uint, lexBody []byte) error {
	if err := writeSectionFile(dir, secVersion, appendFixedUint64(nil, formatVersion)); err != nil {
		return err
	}

	info := appendFixedUint64(nil, uint64(len(c.uuids)))
	info = appendFixedUint64(info, c.numEvents)
	info = appendFixedUint64(info, c.minTS)
	info = appendFixedUint64(info, c.maxTS)
	info = appendFixedUint64(info, uint64(len(c.fields)))
	if err := writeSectionFile(dir, secInfo, info); err != nil {
		return err
	}

	fb := appendUvarint(nil, uint64(len(c.fields)))
	for _, name := range c.fields {
		fb = appendVarbytes(fb, []byte(name))
	}
	if err := writeSectionFile(dir, secFields, fb); err != nil {
		return err
	}

	if err := writeSectionFile(dir, secUuids, c.encodeUuids()); err != nil {
		return err
	}

	if err := writeSectionFile(dir, secLexicon, lexBody); err != nil {
		return err
	}

	cb := appendFixedUint64(nil, uint64(len(c.fields)))
	for f := 1; f <= len(c.fields); f++ {
		cb = appendFixedUint64(cb, c.lex.numValues(Field(f)))
		cb = appendFixedUint64(cb, uint64(widths[f]))
	}
	if err := writeSectionFile(dir, secCodebook, cb); err != nil {
		return err
	}

	tb, err := c.encodeTrails(remaps, widths)
	if err != nil {
		return err
	}
	return writeSectionFile(dir, secTrails, tb)
}

// encodeUuids lays out the trail-id-ordered uuid array followed by the
// reverse-lookup index: trail ids sorted by uuid bytes.
func (c *Cons) encodeUuids() []byte {
	body := make([]byte, 0, 24*len(c.uuids))
	for i := range c.uuids {
		body = append(body, c.uuids[i][:]...)
	}
	order := make([]uint64, len(c.uuids))
	for i := range order {
		order[i] = uint64(i)
	}
	sort.Slice(order, func(a, b int) bool {
		return bytes.Compare(c.uuids[order[a]][:], c.uuids[order[b]][:]) < 0
	})
	for _, tid := range order {
		body = appendFixedUint64(body, tid)
	}
	return body
}

// encodeTrails produces the trails section: trail count, block
// end-offsets, then the self-delimiting blocks in trail id order.
func (c *Cons) encodeTrails(remaps [][]Val, widths []uint) ([]byte, error) {
	var blocks []byte
	ends := make([]uint64, 0, len(c.trails)+1)
	ends = append(ends, 0)

	var evTS []uint64
	var evVals [][]Val
	for ord := range c.trails {
		evTS, evVals = evTS[:0], evVals[:0]
		err := c.forEachTrailEvent(uint64(ord), func(ts uint64, vals []Val) error {
			evTS = append(evTS, ts)
			evVals = append(evVals, vals)
			return nil
		})
		if err != nil {
			return nil, err
		}
		blocks = encodeTrailBlock(blocks, evTS, evVals, remaps, widths)
		ends = append(ends, uint64(len(blocks)))
	}

	body := appendFixedUint64(nil, uint64(len(c.trails)))
	for _, end := range ends {
		body = appendFixedUint64(body, end)
	}
	return append(body, blocks...), nil
}

// encodeTrailBlock appends one trail's block: event count, the delta
// timestamp stream (first timestamp absolute, then signed zigzag deltas;
// within-trail ordering is caller-supplied and not enforced, so deltas
// may be negative), then the bit-packed item stream.
func encodeTrailBlock(dst []byte, evTS []uint64, evVals [][]Val, remaps [][]Val, widths []uint) []byte {
	dst = appendUvarint(dst, uint64(len(evTS)))

	var tsBuf []byte
	for i, ts := range evTS {
		if i == 0 {
			tsBuf = appendUvarint(tsBuf, ts)
		} else {
			tsBuf = appendZigzag(tsBuf, int64(ts)-int64(evTS[i-1]))
		}
	}
	dst = appendUvarint(dst, uint64(len(tsBuf)))
	dst = append(dst, tsBuf...)

	bw := bits.NewWriter()
	for _, vals := range evVals {
		for i, v := range vals {
			bw.WriteBits(uint64(remaps[i][v]), widths[i+1])
		}
	}
	return append(dst, bw.Bytes()...)
}
