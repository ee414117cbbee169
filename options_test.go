package traildb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSetOpt(t *testing.T) {
	var o ConsOptions
	ensure(o.SetOpt("path_max", 100))
	ensure(o.SetOpt("value_max", 200))
	ensure(o.SetOpt("trail_max", 300))
	ensure(o.SetOpt("trail_count_max", 400))
	ensure(o.SetOpt("lexicon_max", 500))
	ensure(o.SetOpt("timestamp_max", 600))
	ensure(o.SetOpt("spill_threshold", 700))
	deepEq(t, o, ConsOptions{
		PathMax:        100,
		ValueMax:       200,
		TrailMax:       300,
		TrailCountMax:  400,
		LexiconMax:     500,
		TimestampMax:   600,
		SpillThreshold: 700,
	})

	if err := o.SetOpt("bogus", 1); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("got %v, wanted ErrUnknownOption", err)
	}
	// An unknown name wins over a bad value.
	if err := o.SetOpt("bogus", 0); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("got %v, wanted ErrUnknownOption", err)
	}
	if err := o.SetOpt("path_max", 0); !errors.Is(err, ErrInvalidOptionValue) {
		t.Errorf("got %v, wanted ErrInvalidOptionValue", err)
	}
	if err := o.SetOpt("path_max", -5); !errors.Is(err, ErrInvalidOptionValue) {
		t.Errorf("got %v, wanted ErrInvalidOptionValue", err)
	}
	if err := o.SetOpt("lexicon_max", 1<<60); !errors.Is(err, ErrInvalidOptionValue) {
		t.Errorf("lexicon_max above the id space: got %v", err)
	}
	if err := o.SetOpt("trail_count_max", maxTrailCount+1); !errors.Is(err, ErrInvalidOptionValue) {
		t.Errorf("trail_count_max above the id space: got %v", err)
	}

	var oe *OptionError
	err := o.SetOpt("bogus", 1)
	if !errors.As(err, &oe) || oe.Name != "bogus" {
		t.Errorf("OptionError should carry the option name, got %v", err)
	}
}

func TestFillDefaults(t *testing.T) {
	var o ConsOptions
	o.fillDefaults()
	deepEq(t, o.PathMax, defaultPathMax)
	deepEq(t, o.ValueMax, defaultValueMax)
	deepEq(t, o.TrailMax, defaultTrailMax)
	deepEq(t, o.TrailCountMax, defaultTrailCountMax)
	deepEq(t, o.LexiconMax, defaultLexiconMax)
	deepEq(t, o.TimestampMax, defaultTimestampMax)
	deepEq(t, o.SpillThreshold, defaultSpillThreshold)
	if o.Logger == nil {
		t.Errorf("Logger default missing")
	}

	// Out-of-range values snap back to the defaults.
	o = ConsOptions{LexiconMax: maxVal + 1, TimestampMax: 1 << 63, TrailCountMax: maxTrailCount + 1}
	o.fillDefaults()
	deepEq(t, o.LexiconMax, defaultLexiconMax)
	deepEq(t, o.TimestampMax, defaultTimestampMax)
	deepEq(t, o.TrailCountMax, defaultTrailCountMax)
}

func TestLoadConsOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opts.yaml")
	ensure(os.WriteFile(path, []byte("value_max: 64\nspill_threshold: 1024\n"), 0o666))

	o := must(LoadConsOptions(path))
	deepEq(t, o.ValueMax, 64)
	deepEq(t, o.SpillThreshold, 1024)
	deepEq(t, o.PathMax, 0) // unset keys stay zero until fillDefaults

	ensure(os.WriteFile(path, []byte("no_such_option: 1\n"), 0o666))
	if _, err := LoadConsOptions(path); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("got %v, wanted ErrUnknownOption", err)
	}

	ensure(os.WriteFile(path, []byte("value_max: [not, an, int]\n"), 0o666))
	if _, err := LoadConsOptions(path); !errors.Is(err, ErrInvalidOptionValue) {
		t.Errorf("got %v, wanted ErrInvalidOptionValue", err)
	}

	var ioe *IOError
	if _, err := LoadConsOptions(filepath.Join(t.TempDir(), "missing.yaml")); !errors.As(err, &ioe) {
		t.Errorf("got %v, wanted an IOError", err)
	}
}

func TestDBSetOpt(t *testing.T) {
	db := buildTestDB(t, ConsOptions{}, []string{"f"}, func(c *Cons) {
		ensure(c.Add(testUUID(1), 0, vals("x")))
	})

	if err := db.SetOpt("filter", "all"); !errors.Is(err, ErrOnlyDiffFilter) {
		t.Errorf("got %v, wanted ErrOnlyDiffFilter", err)
	}
	if err := db.SetOpt("nope", "x"); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("got %v, wanted ErrUnknownOption", err)
	}
	ensure(db.SetOpt("filter", FilterDiff))
}
