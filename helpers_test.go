package traildb

import (
	"path/filepath"
	"reflect"
	"testing"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

func deepEq[T any](t testing.TB, a, e T) bool {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
		return false
	}
	return true
}

// testUUID returns a deterministic uuid for test trail n.
func testUUID(n int) [16]byte {
	var u [16]byte
	u[0] = byte(n)
	u[1] = byte(n >> 8)
	u[15] = 0xAB
	return u
}

func vals(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

// buildTestDB finalizes a database populated by add and reopens it.
func buildTestDB(t testing.TB, opt ConsOptions, fields []string, add func(c *Cons)) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db")
	c := must(NewCons(path, fields, opt))
	defer c.Close()
	add(c)
	ensure(c.Finalize())
	db := must(Open(path))
	t.Cleanup(db.Close)
	return db
}
