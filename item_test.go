package traildb

import "testing"

func TestItemPacking(t *testing.T) {
	tests := []struct {
		field Field
		val   Val
	}{
		{0, 0},
		{1, 0},
		{1, 1},
		{maxUserFields, maxVal},
		{7, 123456789},
	}
	for _, test := range tests {
		item := MakeItem(test.field, test.val)
		if item.Field() != test.field || item.Val() != test.val {
			t.Errorf("MakeItem(%d, %d) unpacked to (%d, %d)",
				test.field, test.val, item.Field(), item.Val())
		}
	}
}

func TestMakeItemRejectsOverflow(t *testing.T) {
	expectPanic(t, func() { MakeItem(maxUserFields+1, 0) })
	expectPanic(t, func() { MakeItem(0, maxVal+1) })
}

func expectPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic")
		}
	}()
	fn()
}
