package storage

import (
	"math"
	"testing"
)

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"valid_ascii", "hello", "hello"},
		{"valid_multibyte", "héllo wörld", "héllo wörld"},
		{"invalid_sequence", "abc\xff\xfedef", "abcdef"},
		{"lone_continuation", "x\x80y", "xy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeUTF8(tt.input); got != tt.want {
				t.Errorf("SanitizeUTF8(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"shorter", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"truncated", "abcdefgh", 5, "abcde"},
		{"multibyte_not_split", "ééééé", 3, "ééé"},
		{"zero", "abc", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateRunes(tt.input, tt.n); got != tt.want {
				t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
		})
	}
}

func TestToUUID(t *testing.T) {
	if got := toUUID("not-a-uuid"); got.Valid {
		t.Error("toUUID(invalid) should be invalid")
	}

	if got := toUUID(""); got.Valid {
		t.Error("toUUID(empty) should be invalid")
	}

	valid := toUUID("11111111-2222-3333-4444-555555555555")
	if !valid.Valid {
		t.Error("toUUID(valid) should be valid")
	}

	if got := fromUUID(valid); got != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("fromUUID round trip = %q", got)
	}
}

func TestSafeFloat64ToFloat32(t *testing.T) {
	if got := safeFloat64ToFloat32(0.85); got != 0.85 {
		t.Errorf("safeFloat64ToFloat32(0.85) = %v", got)
	}

	if got := safeFloat64ToFloat32(math.MaxFloat64); got != math.MaxFloat32 {
		t.Errorf("safeFloat64ToFloat32(max) = %v, want clamp", got)
	}

	if got := safeFloat64ToFloat32(-math.MaxFloat64); got != -math.MaxFloat32 {
		t.Errorf("safeFloat64ToFloat32(-max) = %v, want clamp", got)
	}
}
