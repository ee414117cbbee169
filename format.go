package traildb

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

const (
	formatMagic   = 0x3142444C49415254 // "TRAILDB1" as little-endian uint64
	formatVersion = 1
)

const sectionHeaderSize = 32

// Section files of a finalized database, in the order they are written
// and validated.
const (
	secVersion uint32 = iota + 1
	secInfo
	secFields
	secUuids
	secLexicon
	secCodebook
	secTrails
)

var sectionFileNames = [...]string{
	secVersion:  "version",
	secInfo:     "info",
	secFields:   "fields",
	secUuids:    "uuids",
	secLexicon:  "lexicon",
	secCodebook: "codebook",
	secTrails:   "trails",
}

// sectionErrs maps a section to the sentinel reported when its file is
// structurally malformed.
var sectionErrs = [...]error{
	secVersion:  ErrInvalidVersionFile,
	secInfo:     ErrInvalidInfoFile,
	secFields:   ErrInvalidFieldsFile,
	secUuids:    ErrInvalidUuidsFile,
	secLexicon:  ErrInvalidLexiconFile,
	secCodebook: ErrInvalidCodebookFile,
	secTrails:   ErrInvalidTrailsFile,
}

// Every section file starts with this fixed header; Checksum is the
// xxhash64 of the body that follows.
type sectionHeader struct {
	Magic    uint64
	Version  uint32
	Section  uint32
	BodySize uint64
	Checksum uint64
}

func writeSectionFile(dir string, sec uint32, body []byte) error {
	path := filepath.Join(dir, sectionFileNames[sec])
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return ioErr("open", path, err)
	}
	var ok bool
	defer func() {
		if !ok {
			f.Close()
			os.Remove(path)
		}
	}()

	h := sectionHeader{
		Magic:    formatMagic,
		Version:  formatVersion,
		Section:  sec,
		BodySize: uint64(len(body)),
		Checksum: xxhash.Sum64(body),
	}
	var hbuf [sectionHeaderSize]byte
	n, err := binary.Encode(hbuf[:], binary.LittleEndian, h)
	if err != nil || n != len(hbuf) {
		panic("traildb: internal section header size mismatch")
	}

	if _, err := f.Write(hbuf[:]); err != nil {
		return ioErr("write", path, err)
	}
	if _, err := f.Write(body); err != nil {
		return ioErr("write", path, err)
	}
	if err := f.Sync(); err != nil {
		return ioErr("write", path, err)
	}
	if err := f.Close(); err != nil {
		return ioErr("close", path, err)
	}
	ok = true
	return nil
}

// validateSection checks a section file's header against its tag and
// checksum and returns the body. Malformed files yield the section's
// Invalid*File sentinel; a version from the future yields
// ErrIncompatibleVersion.
func validateSection(path string, data []byte, sec uint32) ([]byte, error) {
	name := sectionFileNames[sec]
	sentinel := sectionErrs[sec]
	if len(data) < sectionHeaderSize {
		return nil, fileErrf(path, name, sentinel, "truncated header: %d bytes", len(data))
	}
	var h sectionHeader
	if _, err := binary.Decode(data[:sectionHeaderSize], binary.LittleEndian, &h); err != nil {
		panic(err)
	}
	if h.Magic != formatMagic {
		return nil, fileErrf(path, name, sentinel, "bad magic %016x", h.Magic)
	}
	if h.Version != formatVersion {
		return nil, fileErrf(path, name, ErrIncompatibleVersion, "format version %d, supported %d", h.Version, formatVersion)
	}
	if h.Section != sec {
		return nil, fileErrf(path, name, sentinel, "section tag %d, wanted %d", h.Section, sec)
	}
	body := data[sectionHeaderSize:]
	if h.BodySize != uint64(len(body)) {
		return nil, fileErrf(path, name, sentinel, "body size %d, header says %d", len(body), h.BodySize)
	}
	if xxhash.Sum64(body) != h.Checksum {
		return nil, fileErrf(path, name, sentinel, "checksum mismatch")
	}
	return body, nil
}
