package traildb

import (
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ConsOptions configures a Cons. The zero value selects all defaults.
// Limits guard the capacity reserved by the on-disk encoding; exceeding
// one rejects the offending operation and leaves prior state intact.
type ConsOptions struct {
	// PathMax is the longest accepted output path, including the
	// temporary suffixes used while finalizing. Default 2048.
	PathMax int `yaml:"path_max"`

	// ValueMax is the longest accepted value in bytes. Default 1 MiB.
	ValueMax int `yaml:"value_max"`

	// TrailMax caps the number of events in a single trail.
	TrailMax uint64 `yaml:"trail_max"`

	// TrailCountMax caps the number of distinct uuids. The hard ceiling
	// is 2^48, the trail id space the reader accepts.
	TrailCountMax uint64 `yaml:"trail_count_max"`

	// LexiconMax caps the number of distinct values per field. The hard
	// ceiling is 2^56-1, the id space reserved by the item encoding.
	LexiconMax uint64 `yaml:"lexicon_max"`

	// TimestampMax is the largest accepted timestamp. Cannot exceed 2^63-1
	// so that signed timestamp deltas always fit an int64.
	TimestampMax uint64 `yaml:"timestamp_max"`

	// SpillThreshold is the number of buffered events after which trail
	// buffers are flushed to the on-disk spill store. Default 1<<20.
	SpillThreshold int `yaml:"spill_threshold"`

	// Logger receives debug progress and failure reports.
	// Defaults to slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

const (
	defaultPathMax        = 2048
	defaultValueMax       = 1 << 20
	defaultTrailMax       = 1 << 50
	defaultTrailCountMax  = 1 << 48
	defaultLexiconMax     = 1 << 48
	defaultTimestampMax   = 1 << 62
	defaultSpillThreshold = 1 << 20
)

func (o *ConsOptions) fillDefaults() {
	if o.PathMax == 0 {
		o.PathMax = defaultPathMax
	}
	if o.ValueMax == 0 {
		o.ValueMax = defaultValueMax
	}
	if o.TrailMax == 0 {
		o.TrailMax = defaultTrailMax
	}
	if o.TrailCountMax == 0 || o.TrailCountMax > maxTrailCount {
		o.TrailCountMax = defaultTrailCountMax
	}
	if o.LexiconMax == 0 || o.LexiconMax > maxVal {
		o.LexiconMax = defaultLexiconMax
	}
	if o.TimestampMax == 0 || o.TimestampMax > math.MaxInt64 {
		o.TimestampMax = defaultTimestampMax
	}
	if o.SpillThreshold == 0 {
		o.SpillThreshold = defaultSpillThreshold
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// LoadConsOptions reads a YAML options file. Unset keys keep their
// defaults; unknown keys fail with ErrUnknownOption.
func LoadConsOptions(path string) (ConsOptions, error) {
	var o ConsOptions
	data, err := os.ReadFile(path)
	if err != nil {
		return o, ioErr("open", path, err)
	}
	var raw map[string]int64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return o, &OptionError{Name: path, Err: ErrInvalidOptionValue}
	}
	for name, value := range raw {
		if err := o.SetOpt(name, value); err != nil {
			return ConsOptions{}, err
		}
	}
	return o, nil
}

// SetOpt sets one option by name. Unknown names fail with
// ErrUnknownOption even when the value is also bad; out-of-range values
// fail with ErrInvalidOptionValue.
func (o *ConsOptions) SetOpt(name string, value int64) error {
	switch name {
	case "path_max", "value_max", "trail_max", "trail_count_max",
		"lexicon_max", "timestamp_max", "spill_threshold":
	default:
		return &OptionError{Name: name, Err: ErrUnknownOption}
	}
	if value <= 0 {
		return &OptionError{Name: name, Err: ErrInvalidOptionValue}
	}
	switch name {
	case "path_max":
		o.PathMax = int(value)
	case "value_max":
		o.ValueMax = int(value)
	case "trail_max":
		o.TrailMax = uint64(value)
	case "trail_count_max":
		if uint64(value) > maxTrailCount {
			return &OptionError{Name: name, Err: ErrInvalidOptionValue}
		}
		o.TrailCountMax = uint64(value)
	case "lexicon_max":
		if uint64(value) > maxVal {
			return &OptionError{Name: name, Err: ErrInvalidOptionValue}
		}
		o.LexiconMax = uint64(value)
	case "timestamp_max":
		o.TimestampMax = uint64(value)
	case "spill_threshold":
		o.SpillThreshold = int(value)
	}
	return nil
}

// FilterDiff is the only supported cursor filter: a diff-filtered cursor
// blanks items whose value repeats the previous event of the same trail.
const FilterDiff = "diff"

// SetOpt sets a reader option by name. The only recognized option is
// "filter", and the only supported filter is FilterDiff; anything else
// fails with ErrOnlyDiffFilter. Cursors created after a successful call
// observe the filter.
func (db *DB) SetOpt(name, value string) error {
	switch name {
	case "filter":
		if value != FilterDiff {
			return &OptionError{Name: name, Err: ErrOnlyDiffFilter}
		}
		db.onlyDiff = true
		return nil
	default:
		return &OptionError{Name: name, Err: ErrUnknownOption}
	}
}
