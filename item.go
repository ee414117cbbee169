package traildb

// Field identifies a schema column. Field 0 is the reserved time field;
// user fields are numbered from 1 in declaration order.
type Field uint32

// Val is a value id within one field's lexicon. Val 0 means the field has
// no value for that event.
type Val uint64

// Item packs a field id and a value id into a single 64-bit reference.
// The field occupies the low 8 bits, the value id the high 56. An Item
// always carries the field it belongs to, so a value reference cannot be
// resolved against the wrong field's lexicon.
type Item uint64

const (
	maxUserFields = 255           // field id must fit 8 bits, field 0 reserved
	maxVal        = 1<<56 - 1     // value id must fit the remaining 56 bits
	maxTrailCount = 1 << 48       // trail id space accepted by the reader
	timeFieldName = "time"        // reserved name of field 0
)

// MakeItem combines a field and a value id. It panics if either component
// exceeds the space reserved by the encoding; both are bounded long
// before this point by the schema and lexicon limits.
func MakeItem(field Field, val Val) Item {
	if field > maxUserFields {
		panic("traildb: field id out of range")
	}
	if val > maxVal {
		panic("traildb: value id out of range")
	}
	return Item(uint64(field) | uint64(val)<<8)
}

// Field returns the field component of the item.
func (i Item) Field() Field { return Field(i & 0xff) }

// Val returns the value id component of the item.
func (i Item) Val() Val { return Val(i >> 8) }
