package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"openai_api_key", "sk-abc", "receipt_id", "r1", "client_ip", "10.0.0.1"})
	if len(out) != 6 {
		t.Fatalf("expected 6 values, got %d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("api key not redacted: %v", out[1])
	}
	if out[3] != "r1" {
		t.Fatalf("receipt_id should pass through, got %v", out[3])
	}
	if s, _ := out[5].(string); len(s) != len("hash:")+12 {
		t.Fatalf("client_ip should be hashed, got %v", out[5])
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"stage", "matching", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected output: %#v", out)
	}
}

func TestNewTestModeIsQuiet(t *testing.T) {
	l, err := New("test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.With("component", "x").Info("hello", "k", "v")
	l.Sync()
}
