package binding

import (
	"math"
	"testing"

	"github.com/wippyai/hostbridge/ir"
	"github.com/wippyai/hostbridge/resource"
)

func TestCheckArg_IntegerBounds(t *testing.T) {
	tests := []struct {
		typ ir.TypeRef
		v   any
		ok  bool
	}{
		{"s64", int64(math.MaxInt64), true},
		{"s64", int64(math.MinInt64), true},
		{"s64", uint64(math.MaxInt64), true},
		{"s64", uint64(1 << 63), false},
		{"s64", uint64(1<<63 + 500), false},
		{"s64", uint64(math.MaxUint64), false},
		{"u64", uint64(1 << 63), true},
		{"u64", uint64(math.MaxUint64), true},
		{"u64", int64(math.MaxInt64), true},
		{"u64", int64(math.MinInt64), false},
		{"u64", int64(-1), false},
		{"s32", int64(math.MaxInt32), true},
		{"s32", int64(math.MaxInt32 + 1), false},
		{"s32", int64(math.MinInt32), true},
		{"s32", int64(math.MinInt32 - 1), false},
		{"u8", 255, true},
		{"u8", 256, false},
		{"s8", int8(-128), true},
		{"u32", resource.Slot(1), false},
		{"u32", 1.5, false},
	}

	for _, tt := range tests {
		err := checkArg("f", ir.Arg{Name: "n", Type: tt.typ}, tt.v)
		if (err == nil) != tt.ok {
			t.Errorf("checkArg(%s, %T(%v)) = %v, want ok=%v", tt.typ, tt.v, tt.v, err, tt.ok)
		}
	}
}
