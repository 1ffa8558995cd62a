package conntable

import (
	"testing"
	"time"
)

func TestAvgMicrosZeroGuard(t *testing.T) {
	if got := avgMicros(12345, 0); got != 0 {
		t.Fatalf("avgMicros(_, 0) = %d, want 0", got)
	}
}

func TestAvgMicrosIntegerDivision(t *testing.T) {
	total := int64(3 * time.Millisecond)
	if got := avgMicros(total, 2); got != 1500 {
		t.Fatalf("avgMicros() = %d, want 1500", got)
	}
}

func TestOpString(t *testing.T) {
	if OpGet.String() != "GET" {
		t.Fatalf("OpGet.String() = %q", OpGet.String())
	}
	if OpPut.String() != "PUT" {
		t.Fatalf("OpPut.String() = %q", OpPut.String())
	}
}
