package traildb

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every fallible operation returns one of these kinds,
// possibly wrapped in FileError, OptionError or IOError; match with
// errors.Is.
var (
	// Resource errors.
	ErrPathTooLong = errors.New("traildb: path too long")

	// Schema errors, detected at Cons creation or Append time.
	ErrTooManyFields        = errors.New("traildb: too many fields")
	ErrDuplicateFields      = errors.New("traildb: duplicate field names")
	ErrInvalidFieldname     = errors.New("traildb: invalid field name")
	ErrAppendFieldsMismatch = errors.New("traildb: appended database has a different field schema")

	// Capacity errors, detected at the operation that would exceed the
	// limit; the rejected operation leaves prior state intact.
	ErrTooManyTrails     = errors.New("traildb: too many trails")
	ErrValueTooLong      = errors.New("traildb: value too long")
	ErrLexiconTooLarge   = errors.New("traildb: lexicon too large")
	ErrTimestampTooLarge = errors.New("traildb: timestamp too large")
	ErrTrailTooLong      = errors.New("traildb: trail too long")

	// Format errors, detected at Open; fatal to that open attempt.
	ErrIncompatibleVersion = errors.New("traildb: incompatible format version")
	ErrInvalidVersionFile  = errors.New("traildb: invalid version file")
	ErrInvalidInfoFile     = errors.New("traildb: invalid info file")
	ErrInvalidFieldsFile   = errors.New("traildb: invalid fields file")
	ErrInvalidUuidsFile    = errors.New("traildb: invalid uuids file")
	ErrInvalidLexiconFile  = errors.New("traildb: invalid lexicon file")
	ErrInvalidCodebookFile = errors.New("traildb: invalid codebook file")
	ErrInvalidTrailsFile   = errors.New("traildb: invalid trails file")
	ErrInvalidPackage      = errors.New("traildb: invalid package")

	// Lookup errors.
	ErrUnknownField   = errors.New("traildb: unknown field")
	ErrInvalidTrailId = errors.New("traildb: invalid trail id")
	ErrInvalidUuid    = errors.New("traildb: invalid uuid")

	// Handle/state errors.
	ErrHandleClosed = errors.New("traildb: handle is closed or already finalized")

	// Option errors.
	ErrUnknownOption      = errors.New("traildb: unknown option")
	ErrInvalidOptionValue = errors.New("traildb: invalid option value")
	ErrOnlyDiffFilter     = errors.New("traildb: only the diff filter is supported")
)

// FileError reports a malformed or unreadable section file. Err is the
// section's sentinel (ErrInvalidLexiconFile etc.) or ErrIncompatibleVersion.
type FileError struct {
	Path    string
	Section string
	Err     error
	Msg     string
}

func fileErrf(path, section string, err error, format string, args ...any) error {
	return &FileError{path, section, err, fmt.Sprintf(format, args...)}
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func (e *FileError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%v: %s: %s", e.Err, e.Path, e.Msg)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Path)
}

// OptionError reports a rejected configuration option.
type OptionError struct {
	Name string
	Err  error
}

func (e *OptionError) Unwrap() error {
	return e.Err
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Name)
}

// IOError wraps a storage failure with the operation that hit it
// (open, read, write, close, truncate, rename, package). I/O failures
// are surfaced to the caller and never retried internally.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func ioErr(op, path string, err error) error {
	return &IOError{op, path, err}
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Error() string {
	return fmt.Sprintf("traildb: %s %s: %v", e.Op, e.Path, e.Err)
}

// DataError carries offset and hex context for malformed binary data
// inside a section body.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}
