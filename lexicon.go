package traildb

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// lexiconBuilder interns values during construction. Ids handed out here
// are provisional insertion-order ids; freeze assigns the final ids in
// lexicographic byte order and returns the remap tables.
type lexiconBuilder struct {
	fields []fieldLexicon // index f-1 holds user field f
}

type fieldLexicon struct {
	index  map[string]Val
	values []string // provisional id i lives at values[i-1]
}

func newLexiconBuilder(numUserFields int) *lexiconBuilder {
	lb := &lexiconBuilder{fields: make([]fieldLexicon, numUserFields)}
	for i := range lb.fields {
		lb.fields[i].index = make(map[string]Val)
	}
	return lb
}

// check validates a value against the configured limits without mutating
// the builder, so a rejected Add leaves the lexicon untouched.
func (lb *lexiconBuilder) check(field Field, value []byte, valueMax int, lexiconMax uint64) error {
	if len(value) > valueMax {
		return ErrValueTooLong
	}
	if len(value) == 0 {
		return nil
	}
	fl := &lb.fields[field-1]
	if _, ok := fl.index[string(value)]; ok {
		return nil
	}
	n := uint64(len(fl.values))
	if n >= lexiconMax || n >= maxVal {
		return ErrLexiconTooLarge
	}
	return nil
}

// intern returns the provisional id for value, allocating one if the
// value is new. Empty values map to id 0 (absent). Call check first.
func (lb *lexiconBuilder) intern(field Field, value []byte) Val {
	if len(value) == 0 {
		return 0
	}
	fl := &lb.fields[field-1]
	if id, ok := fl.index[string(value)]; ok {
		return id
	}
	fl.values = append(fl.values, string(value))
	id := Val(len(fl.values))
	fl.index[string(value)] = id
	return id
}

func (lb *lexiconBuilder) numValues(field Field) uint64 {
	return uint64(len(lb.fields[field-1].values))
}

// freeze assigns final ids in lexicographic byte order and encodes the
// lexicon section body. remaps[f-1][provisionalId] is the final id for
// user field f; index 0 maps absent to absent.
func (lb *lexiconBuilder) freeze() (remaps [][]Val, body []byte) {
	remaps = make([][]Val, len(lb.fields))

	tables := make([][]byte, len(lb.fields))
	for i := range lb.fields {
		fl := &lb.fields[i]
		n := len(fl.values)

		order := make([]int, n)
		for j := range order {
			order[j] = j
		}
		sort.Slice(order, func(a, b int) bool {
			return fl.values[order[a]] < fl.values[order[b]]
		})

		remap := make([]Val, n+1)
		for j, prov := range order {
			remap[prov+1] = Val(j + 1)
		}
		remaps[i] = remap

		// count, count+1 cumulative end offsets, blob
		tbl := appendFixedUint64(nil, uint64(n))
		tbl = appendFixedUint64(tbl, 0)
		var end uint64
		for _, prov := range order {
			end += uint64(len(fl.values[prov]))
			tbl = appendFixedUint64(tbl, end)
		}
		for _, prov := range order {
			tbl = append(tbl, fl.values[prov]...)
		}
		tables[i] = tbl
	}

	body = appendFixedUint64(nil, uint64(len(lb.fields)))
	off := uint64(len(body) + 8*len(tables))
	for _, tbl := range tables {
		body = appendFixedUint64(body, off)
		off += uint64(len(tbl))
	}
	for _, tbl := range tables {
		body = append(body, tbl...)
	}
	return remaps, body
}

// Lexicon is the frozen dictionary of a finalized database, a view over
// the memory-mapped lexicon section. Value resolution is an O(1) slice
// of the mapping and copies nothing.
type Lexicon struct {
	tables []lexTable // index f-1 holds user field f
}

type lexTable struct {
	count uint64
	offs  []byte // (count+1) little-endian u64 cumulative end offsets
	blob  []byte
}

func parseLexicon(body []byte, numUserFields int) (*Lexicon, error) {
	d := makeByteDecoder(body)
	nf, err := d.FixedUint64()
	if err != nil {
		return nil, err
	}
	if nf != uint64(numUserFields) {
		return nil, dataErrf(body, 0, nil, "lexicon field count %d does not match schema %d", nf, numUserFields)
	}

	tableOffs := make([]uint64, numUserFields+1)
	for i := 0; i < numUserFields; i++ {
		tableOffs[i], err = d.FixedUint64()
		if err != nil {
			return nil, err
		}
	}
	tableOffs[numUserFields] = uint64(len(body))

	lx := &Lexicon{tables: make([]lexTable, numUserFields)}
	for i := 0; i < numUserFields; i++ {
		start, end := tableOffs[i], tableOffs[i+1]
		if start > end || end > uint64(len(body)) {
			return nil, dataErrf(body, int(start), nil, "lexicon table %d out of bounds", i+1)
		}
		tbl := body[start:end]
		td := makeByteDecoder(tbl)
		count, err := td.FixedUint64()
		if err != nil {
			return nil, err
		}
		// The offset table needs 8*(count+1) bytes; bound count before the
		// multiplication so a crafted value cannot overflow it.
		if count >= uint64(td.Remaining()/8) {
			return nil, dataErrf(tbl, td.Off(), nil, "lexicon table %d value count %d exceeds table size", i+1, count)
		}
		offs, err := td.Raw(8 * (int(count) + 1))
		if err != nil {
			return nil, err
		}
		blob := td.Buf
		var prev uint64
		for j := uint64(0); j <= count; j++ {
			o := binary.LittleEndian.Uint64(offs[8*j:])
			if o < prev || o > uint64(len(blob)) {
				return nil, dataErrf(tbl, td.Off(), nil, "lexicon table %d has non-monotonic offsets", i+1)
			}
			prev = o
		}
		lx.tables[i] = lexTable{count: count, offs: offs, blob: blob}
	}
	return lx, nil
}

// NumFields reports the number of user fields in the lexicon.
func (lx *Lexicon) NumFields() int {
	return len(lx.tables)
}

// NumValues reports the number of distinct values interned for field.
func (lx *Lexicon) NumValues(field Field) uint64 {
	if field == 0 || int(field) > len(lx.tables) {
		return 0
	}
	return lx.tables[field-1].count
}

// Resolve returns the byte string for a value id as a view into the
// mapped section. Id 0 resolves to nil (absent).
func (lx *Lexicon) Resolve(field Field, val Val) ([]byte, error) {
	if field == 0 || int(field) > len(lx.tables) {
		return nil, ErrUnknownField
	}
	if val == 0 {
		return nil, nil
	}
	tbl := &lx.tables[field-1]
	if uint64(val) > tbl.count {
		return nil, ErrUnknownField
	}
	start := binary.LittleEndian.Uint64(tbl.offs[8*(val-1):])
	end := binary.LittleEndian.Uint64(tbl.offs[8*val:])
	return tbl.blob[start:end], nil
}

// Lookup finds the value id for a byte string. Final ids are in
// lexicographic order, so this is a binary search over the table.
// Missing values report ok=false; an empty value is id 0.
func (lx *Lexicon) Lookup(field Field, value []byte) (Val, bool) {
	if field == 0 || int(field) > len(lx.tables) {
		return 0, false
	}
	if len(value) == 0 {
		return 0, true
	}
	tbl := &lx.tables[field-1]
	lo, hi := uint64(1), tbl.count
	for lo <= hi {
		mid := lo + (hi-lo)/2
		start := binary.LittleEndian.Uint64(tbl.offs[8*(mid-1):])
		end := binary.LittleEndian.Uint64(tbl.offs[8*mid:])
		switch bytes.Compare(tbl.blob[start:end], value) {
		case 0:
			return Val(mid), true
		case -1:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return 0, false
}
