package traildb

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

// spillStore is the constructor's overflow storage: a temporary bolt file
// holding event batches that no longer fit the in-memory buffers. Batches
// are keyed by (trail ordinal, sequence), so a prefix scan replays one
// trail's batches in the order they were written.
type spillStore struct {
	path string
	db   *bbolt.DB
	seq  uint64
}

var spillBucket = []byte("batches")

// spillEvent mirrors consEvent for msgpack; batches are msgpack-encoded
// and snappy-compressed before they hit the bolt file.
type spillEvent struct {
	TS   uint64 `msgpack:"t"`
	Vals []Val  `msgpack:"v"`
}

func openSpillStore(path string) (*spillStore, error) {
	// The file is scratch space: if the process dies it is recreated on
	// the next construction, so syncing buys nothing.
	bdb, err := bbolt.Open(path, 0o666, &bbolt.Options{
		NoSync:         true,
		NoFreelistSync: true,
	})
	if err != nil {
		return nil, ioErr("open", path, err)
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(spillBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		os.Remove(path)
		return nil, ioErr("write", path, err)
	}
	return &spillStore{path: path, db: bdb}, nil
}

func (s *spillStore) putBatch(trail uint64, events []consEvent) error {
	batch := make([]spillEvent, len(events))
	for i, ev := range events {
		batch[i] = spillEvent{TS: ev.ts, Vals: ev.vals}
	}
	raw, err := msgpack.Marshal(batch)
	if err != nil {
		return ioErr("write", s.path, err)
	}
	compressed := snappy.Encode(nil, raw)

	s.seq++
	var key [16]byte
	binary.BigEndian.PutUint64(key[:8], trail)
	binary.BigEndian.PutUint64(key[8:], s.seq)

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(spillBucket).Put(key[:], compressed)
	})
	if err != nil {
		return ioErr("write", s.path, err)
	}
	return nil
}

// readTrail replays every spilled event of one trail in write order.
func (s *spillStore) readTrail(trail uint64, fn func(ev consEvent) error) error {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], trail)

	err := s.db.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket(spillBucket).Cursor()
		for k, v := cur.Seek(prefix[:]); k != nil && bytes.HasPrefix(k, prefix[:]); k, v = cur.Next() {
			raw, err := snappy.Decode(nil, v)
			if err != nil {
				return err
			}
			var batch []spillEvent
			if err := msgpack.Unmarshal(raw, &batch); err != nil {
				return err
			}
			for _, ev := range batch {
				if err := fn(consEvent{ts: ev.TS, vals: ev.Vals}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return ioErr("read", s.path, err)
	}
	return nil
}

func (s *spillStore) close() {
	s.db.Close()
	os.Remove(s.path)
}
