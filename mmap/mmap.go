// Package mmap memory-maps files read-only and forwards page-cache
// advice to the operating system.
package mmap

import (
	"os"
)

type Options uint

const (
	// SequentialAccess is a hint requesting aggressive read-ahead.
	// Incompatible with RandomAccess. Maps to MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << 0

	// RandomAccess is a hint that read ahead is less useful than normally.
	// Incompatible with SequentialAccess. Maps to MADV_RANDOM on Unix.
	RandomAccess Options = 1 << 1

	// Prefault is a hint requesting the entire file to be loaded in memory
	// for fastest access. Maps to MAP_POPULATE on Linux.
	Prefault Options = 1 << 2
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Advice is a page-cache hint for an already-mapped region.
type Advice int

const (
	// WillNeed asks the OS to prefetch the region. Maps to MADV_WILLNEED.
	WillNeed Advice = iota

	// DontNeed tells the OS the region will not be needed soon and its
	// pages may be released. Maps to MADV_DONTNEED.
	DontNeed
)

// Mmap maps size bytes of f read-only.
func Mmap(f *os.File, size int, opt Options) ([]byte, error) {
	return mmap(f, size, opt)
}

// Munmap unmaps the given slice from memory. The slice must have been
// returned by Mmap.
func Munmap(b []byte) error {
	return munmap(b)
}

// Advise forwards a page-cache hint for a mapped region. It is advisory
// only: it has no observable data effect and no ordering guarantees
// relative to concurrent reads. A no-op on platforms without madvise.
func Advise(b []byte, adv Advice) error {
	if len(b) == 0 {
		return nil
	}
	return madvise(b, adv)
}
