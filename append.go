package traildb

// Append merges an already-finalized database into the builder's pending
// state. Trails are matched by uuid: events of a known uuid are
// concatenated after the events already accumulated for it, and new
// uuids become new trails in the source's trail id order. The source
// database must have the same field schema (names and order); a
// mismatch fails with ErrAppendFieldsMismatch before anything is merged.
func (c *Cons) Append(db *DB) error {
	if c.state != consOpen {
		return ErrHandleClosed
	}
	if len(db.fields) != len(c.fields) {
		return ErrAppendFieldsMismatch
	}
	for i := range c.fields {
		if db.fields[i] != c.fields[i] {
			return ErrAppendFieldsMismatch
		}
	}

	cur := db.NewCursor()
	cur.onlyDiff = false // merge raw events even if the source has the diff filter set

	values := make([][]byte, len(c.fields))
	for tid := uint64(0); tid < db.NumTrails(); tid++ {
		uuid, _ := db.GetUUID(tid)
		if err := cur.GetTrail(tid); err != nil {
			return err
		}
		for ev, ok := cur.Next(); ok; ev, ok = cur.Next() {
			for i := range values {
				b, err := db.lex.Resolve(Field(i+1), ev.Items[i+1].Val())
				if err != nil {
					return err
				}
				values[i] = b
			}
			if err := c.Add(uuid, ev.Timestamp, values); err != nil {
				return err
			}
		}
		if err := cur.Err(); err != nil {
			return err
		}
	}
	return nil
}
