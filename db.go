package traildb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	mathbits "math/bits"
	"os"
	"path/filepath"

	"github.com/KenanSulayman/traildb/mmap"
)

// DB is a finalized database opened read-only. The uuid, lexicon and
// trails sections are memory-mapped; everything resolved from a DB is a
// view into those mappings and must not be used after Close. A DB is
// safe for concurrent readers.
type DB struct {
	path    string
	version uint64

	numTrails  uint64
	numEvents  uint64
	minTS      uint64
	maxTS      uint64
	fields     []string // user field names
	fieldIndex map[string]Field

	lex       *Lexicon
	widths    []uint   // per-field item bit widths; index 0 unused
	counts    []uint64 // per-field value counts from the codebook
	uuids     []byte   // numTrails * 16 bytes, trail id order
	uuidIndex []byte   // numTrails * u64 trail ids sorted by uuid
	trailOffs []byte   // (numTrails+1) * u64 block end offsets
	blocks    []byte

	maps     [][]byte // mapped regions to release on Close
	onlyDiff bool
	closed   bool
}

// Open opens a finalized database directory read-only. Every section is
// validity-checked before the database is usable; a malformed section
// fails the open with that section's Invalid*File error and a database
// written by a newer format fails with ErrIncompatibleVersion.
func Open(path string) (*DB, error) {
	if len(path) == 0 || len(path) > defaultPathMax {
		return nil, ErrPathTooLong
	}

	db := &DB{path: path}
	var ok bool
	defer func() {
		if !ok {
			db.release()
		}
	}()

	vb, err := readSectionFile(path, secVersion)
	if err != nil {
		return nil, err
	}
	if len(vb) != 8 {
		return nil, fileErrf(path, "version", ErrInvalidVersionFile, "body size %d", len(vb))
	}
	db.version = binary.LittleEndian.Uint64(vb)
	if db.version != formatVersion {
		return nil, fileErrf(path, "version", ErrIncompatibleVersion, "format version %d, supported %d", db.version, formatVersion)
	}

	if err := db.readInfo(path); err != nil {
		return nil, err
	}
	if err := db.readFields(path); err != nil {
		return nil, err
	}
	if err := db.mapUuids(path); err != nil {
		return nil, err
	}
	if err := db.mapLexicon(path); err != nil {
		return nil, err
	}
	if err := db.readCodebook(path); err != nil {
		return nil, err
	}
	if err := db.mapTrails(path); err != nil {
		return nil, err
	}

	ok = true
	return db, nil
}

func (db *DB) readInfo(path string) error {
	body, err := readSectionFile(path, secInfo)
	if err != nil {
		return err
	}
	if len(body) != 5*8 {
		return fileErrf(path, "info", ErrInvalidInfoFile, "body size %d", len(body))
	}
	d := makeByteDecoder(body)
	db.numTrails, _ = d.FixedUint64()
	db.numEvents, _ = d.FixedUint64()
	db.minTS, _ = d.FixedUint64()
	db.maxTS, _ = d.FixedUint64()
	nf, _ := d.FixedUint64()
	// Counts drive size arithmetic in later sections; bound them here so
	// that arithmetic cannot overflow.
	if db.numTrails > maxTrailCount {
		return fileErrf(path, "info", ErrInvalidInfoFile, "%d trails", db.numTrails)
	}
	if nf > maxUserFields {
		return fileErrf(path, "info", ErrInvalidInfoFile, "%d user fields", nf)
	}
	db.fields = make([]string, nf)
	return nil
}

func (db *DB) readFields(path string) error {
	body, err := readSectionFile(path, secFields)
	if err != nil {
		return err
	}
	d := makeByteDecoder(body)
	count, err := d.Uvarint()
	if err != nil || count != uint64(len(db.fields)) {
		return fileErrf(path, "fields", ErrInvalidFieldsFile, "field count does not match info")
	}
	db.fieldIndex = make(map[string]Field, count+1)
	db.fieldIndex[timeFieldName] = 0
	for i := range db.fields {
		name, err := d.VarBytes()
		if err != nil {
			return fileErrf(path, "fields", ErrInvalidFieldsFile, "%v", err)
		}
		if !validFieldName(string(name)) {
			return fileErrf(path, "fields", ErrInvalidFieldsFile, "invalid field name %q", name)
		}
		if _, dup := db.fieldIndex[string(name)]; dup {
			return fileErrf(path, "fields", ErrInvalidFieldsFile, "duplicate field name %q", name)
		}
		db.fields[i] = string(name)
		db.fieldIndex[string(name)] = Field(i + 1)
	}
	if d.Remaining() != 0 {
		return fileErrf(path, "fields", ErrInvalidFieldsFile, "%d trailing bytes", d.Remaining())
	}
	return nil
}

func (db *DB) mapUuids(path string) error {
	body, err := db.mapSectionFile(path, secUuids)
	if err != nil {
		return err
	}
	if uint64(len(body)) != db.numTrails*24 {
		return fileErrf(path, "uuids", ErrInvalidUuidsFile, "body size %d for %d trails", len(body), db.numTrails)
	}
	db.uuids = body[:db.numTrails*16]
	db.uuidIndex = body[db.numTrails*16:]
	for i := uint64(0); i < db.numTrails; i++ {
		if binary.LittleEndian.Uint64(db.uuidIndex[8*i:]) >= db.numTrails {
			return fileErrf(path, "uuids", ErrInvalidUuidsFile, "index entry %d out of range", i)
		}
	}
	return nil
}

func (db *DB) mapLexicon(path string) error {
	body, err := db.mapSectionFile(path, secLexicon)
	if err != nil {
		return err
	}
	lex, err := parseLexicon(body, len(db.fields))
	if err != nil {
		return fileErrf(path, "lexicon", ErrInvalidLexiconFile, "%v", err)
	}
	db.lex = lex
	return nil
}

func (db *DB) readCodebook(path string) error {
	body, err := readSectionFile(path, secCodebook)
	if err != nil {
		return err
	}
	if len(body) != 8+16*len(db.fields) {
		return fileErrf(path, "codebook", ErrInvalidCodebookFile, "body size %d", len(body))
	}
	d := makeByteDecoder(body)
	nf, _ := d.FixedUint64()
	if nf != uint64(len(db.fields)) {
		return fileErrf(path, "codebook", ErrInvalidCodebookFile, "field count does not match schema")
	}
	db.counts = make([]uint64, len(db.fields)+1)
	db.widths = make([]uint, len(db.fields)+1)
	for f := 1; f <= len(db.fields); f++ {
		count, _ := d.FixedUint64()
		width, _ := d.FixedUint64()
		if count != db.lex.NumValues(Field(f)) {
			return fileErrf(path, "codebook", ErrInvalidCodebookFile, "field %d value count does not match lexicon", f)
		}
		if width != uint64(mathbits.Len64(count)) {
			return fileErrf(path, "codebook", ErrInvalidCodebookFile, "field %d bit width %d for %d values", f, width, count)
		}
		db.counts[f] = count
		db.widths[f] = uint(width)
	}
	return nil
}

func (db *DB) mapTrails(path string) error {
	body, err := db.mapSectionFile(path, secTrails)
	if err != nil {
		return err
	}
	d := makeByteDecoder(body)
	nt, err := d.FixedUint64()
	if err != nil || nt != db.numTrails {
		return fileErrf(path, "trails", ErrInvalidTrailsFile, "trail count does not match info")
	}
	offTableSize := 8 * (db.numTrails + 1)
	if offTableSize > uint64(d.Remaining()) {
		return fileErrf(path, "trails", ErrInvalidTrailsFile, "truncated offset table")
	}
	offs, err := d.Raw(int(offTableSize))
	if err != nil {
		return fileErrf(path, "trails", ErrInvalidTrailsFile, "truncated offset table")
	}
	db.trailOffs = offs
	db.blocks = d.Buf
	var prev uint64
	for i := uint64(0); i <= db.numTrails; i++ {
		o := binary.LittleEndian.Uint64(offs[8*i:])
		if o < prev || o > uint64(len(db.blocks)) {
			return fileErrf(path, "trails", ErrInvalidTrailsFile, "non-monotonic block offsets")
		}
		prev = o
	}
	if prev != uint64(len(db.blocks)) {
		return fileErrf(path, "trails", ErrInvalidTrailsFile, "%d bytes past the last block", uint64(len(db.blocks))-prev)
	}
	return nil
}

func readSectionFile(dir string, sec uint32) ([]byte, error) {
	path := filepath.Join(dir, sectionFileNames[sec])
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioErr("open", path, err)
	}
	return validateSection(path, data, sec)
}

// mapSectionFile memory-maps a section file, validates its header and
// registers the mapping for release on Close.
func (db *DB) mapSectionFile(dir string, sec uint32) ([]byte, error) {
	path := filepath.Join(dir, sectionFileNames[sec])
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErr("open", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, ioErr("open", path, err)
	}
	if st.Size() == 0 {
		return nil, fileErrf(path, sectionFileNames[sec], sectionErrs[sec], "empty file")
	}

	m, err := mmap.Mmap(f, int(st.Size()), 0)
	if err != nil {
		return nil, ioErr("read", path, err)
	}
	db.maps = append(db.maps, m)

	return validateSection(path, m, sec)
}

// NumTrails reports the number of distinct uuids in the database.
func (db *DB) NumTrails() uint64 { return db.numTrails }

// NumEvents reports the total number of events across all trails,
// computed at finalize time and stored in the info section.
func (db *DB) NumEvents() uint64 { return db.numEvents }

// NumFields reports the number of fields including the reserved time
// field, so a database declared with k user fields reports k+1.
func (db *DB) NumFields() int { return len(db.fields) + 1 }

// MinTimestamp reports the smallest timestamp of any event, 0 if empty.
func (db *DB) MinTimestamp() uint64 { return db.minTS }

// MaxTimestamp reports the largest timestamp of any event, 0 if empty.
func (db *DB) MaxTimestamp() uint64 { return db.maxTS }

// Version reports the on-disk format version.
func (db *DB) Version() uint64 { return db.version }

// Lexicon exposes the frozen dictionary for zero-copy value resolution.
func (db *DB) Lexicon() *Lexicon { return db.lex }

// GetTrailID finds the trail id for a uuid via the sorted reverse index.
// An unknown uuid is a normal outcome, not an error.
func (db *DB) GetTrailID(uuid [16]byte) (uint64, bool) {
	lo, hi := uint64(0), db.numTrails
	for lo < hi {
		mid := lo + (hi-lo)/2
		tid := binary.LittleEndian.Uint64(db.uuidIndex[8*mid:])
		switch bytes.Compare(db.uuids[tid*16:tid*16+16], uuid[:]) {
		case 0:
			return tid, true
		case -1:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false
}

// GetUUID returns the uuid assigned trail id tid; ok is false when tid
// is out of range.
func (db *DB) GetUUID(tid uint64) ([16]byte, bool) {
	if tid >= db.numTrails {
		return [16]byte{}, false
	}
	var u [16]byte
	copy(u[:], db.uuids[tid*16:])
	return u, true
}

// GetFieldName returns a field's name; field 0 is "time".
func (db *DB) GetFieldName(field Field) (string, bool) {
	if field == 0 {
		return timeFieldName, true
	}
	if int(field) > len(db.fields) {
		return "", false
	}
	return db.fields[field-1], true
}

// GetFieldID returns the field ordinal for a name ("time" is field 0).
func (db *DB) GetFieldID(name string) (Field, bool) {
	f, ok := db.fieldIndex[name]
	return f, ok
}

// GetItemValue resolves an item to the byte string originally supplied
// for its field. Items of the reserved time field and absent items
// resolve to the empty string.
func (db *DB) GetItemValue(item Item) (string, error) {
	if item.Field() == 0 {
		return "", nil
	}
	b, err := db.lex.Resolve(item.Field(), item.Val())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetItem finds the item encoding a field/value pair, the inverse of
// GetItemValue. ok is false when the value was never interned for that
// field.
func (db *DB) GetItem(field Field, value []byte) (Item, bool) {
	v, ok := db.lex.Lookup(field, value)
	if !ok {
		return 0, false
	}
	return MakeItem(field, v), true
}

// WillNeed asks the OS to prefetch the mapped sections. Advisory only.
func (db *DB) WillNeed() {
	for _, m := range db.maps {
		mmap.Advise(m, mmap.WillNeed)
	}
}

// DontNeed tells the OS the mapped sections will not be needed soon.
// Advisory only.
func (db *DB) DontNeed() {
	for _, m := range db.maps {
		mmap.Advise(m, mmap.DontNeed)
	}
}

// Close releases the mapped sections. Cursors, trails and events
// obtained from the database must not be used afterwards.
func (db *DB) Close() {
	if db.closed {
		return
	}
	db.closed = true
	db.release()
}

func (db *DB) release() {
	for _, m := range db.maps {
		if err := mmap.Munmap(m); err != nil {
			panic(fmt.Errorf("traildb: closing %s: %w", db.path, err))
		}
	}
	db.maps = nil
}
