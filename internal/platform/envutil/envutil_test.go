package envutil

import (
	"testing"
	"time"
)

func TestTypedReads(t *testing.T) {
	t.Setenv("STOCKSCAN_TEST_INT", "7")
	t.Setenv("STOCKSCAN_TEST_BAD_INT", "seven")
	t.Setenv("STOCKSCAN_TEST_FLOAT", "0.65")
	t.Setenv("STOCKSCAN_TEST_BOOL", "on")
	t.Setenv("STOCKSCAN_TEST_SECONDS", "3")

	if got := Int("STOCKSCAN_TEST_INT", 1); got != 7 {
		t.Fatalf("Int: got %d", got)
	}
	if got := Int("STOCKSCAN_TEST_BAD_INT", 1); got != 1 {
		t.Fatalf("Int fallback: got %d", got)
	}
	if got := Float("STOCKSCAN_TEST_FLOAT", 0.1); got != 0.65 {
		t.Fatalf("Float: got %v", got)
	}
	if !Bool("STOCKSCAN_TEST_BOOL", false) {
		t.Fatalf("Bool: expected true")
	}
	if got := Seconds("STOCKSCAN_TEST_SECONDS", time.Minute); got != 3*time.Second {
		t.Fatalf("Seconds: got %v", got)
	}
	if got := String("STOCKSCAN_TEST_MISSING", "def"); got != "def" {
		t.Fatalf("String default: got %q", got)
	}
}
