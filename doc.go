/*
Package traildb implements an immutable, append-then-freeze event-log
database keyed by opaque 16-byte identifiers (“trails”).

A database is built in two phases. During construction, a Cons accumulates
(uuid, timestamp, values) tuples and interns every value into a per-field
dictionary (the lexicon). Finalize then freezes the lexicon, assigns a
dense trail id to every distinct uuid, encodes each trail's events into a
compact block (delta timestamps plus bit-packed value references), and
writes the immutable on-disk layout. After that the database is opened
read-only with Open; large sections are memory-mapped and value
resolution is zero-copy.

# On-disk layout

A finalized database at path P is a directory with one file per section:

	version  info  fields  uuids  lexicon  codebook  trails

Every file starts with a fixed 32-byte header:

	magic:64 version:32 section:32 bodySize:64 checksum:64

where checksum is the xxhash64 of the body. Files are written into a
temporary directory which is renamed over P, so a finalized database is
either complete or absent.

**version**: format version (u64).

**info**: numTrails, numEvents, minTimestamp, maxTimestamp, numUserFields
(all u64).

**fields**: count (uvarint), then each user field name as varbytes.
Field 0 is the reserved time field and is never stored.

**uuids**: trail-id-ordered array of 16-byte identifiers, followed by an
auxiliary index of trail ids (u64 each) sorted by uuid bytes, used for
reverse lookup by binary search.

**lexicon**: per-field value tables. Value ids are 1-based within a field;
id 0 means the field is absent for an event. Final ids are assigned in
lexicographic byte order, so value lookup is a binary search and
independent finalizations of the same input produce identical files.

**codebook**: per-field value counts and the bit width used to pack that
field's value ids inside trail blocks.

**trails**: trail-id-ordered blocks, each self-delimiting. A block holds
its event count, a timestamp stream (first timestamp absolute, then
signed zigzag deltas) and a bit-packed item stream with one value
reference per user field per event.

# Concurrency

A Cons is single-writer. A DB and everything resolved from it is
immutable and safe for concurrent readers. A Cursor carries private
position state and must not be shared between goroutines without
synchronization; independent cursors over one DB do not interfere.
Cursors, trails and events must not be used after the DB is closed.
*/
package traildb
