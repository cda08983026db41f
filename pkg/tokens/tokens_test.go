package tokens

import (
	"strings"
	"testing"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcdefgh", 2},
		{strings.Repeat("x", 400), 100},
	}

	for _, tt := range tests {
		if got := Estimate(tt.text); got != tt.want {
			t.Errorf("Estimate(%d chars) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestCounter_LocalFamilyUsesHeuristic(t *testing.T) {
	c := NewCounter(FamilyLocal)

	text := strings.Repeat("word ", 100) // 500 chars
	if got, want := c.Count(text), len(text)/4; got != want {
		t.Errorf("Count() = %d, want heuristic %d", got, want)
	}
	if c.Family() != FamilyLocal {
		t.Errorf("Family() = %v, want FamilyLocal", c.Family())
	}
}

func TestCounter_IsTooLarge(t *testing.T) {
	c := NewCounter(FamilyLocal)

	// Heuristic: tokens = chars/4, so BaseLimit tokens = 4*BaseLimit chars.
	small := strings.Repeat("x", 4*BaseLimit)   // exactly BaseLimit tokens
	large := strings.Repeat("x", 4*BaseLimit+8) // BaseLimit+2 tokens

	if c.IsTooLarge(small, 1) {
		t.Error("IsTooLarge(at limit, 1) = true, want false")
	}
	if !c.IsTooLarge(large, 1) {
		t.Error("IsTooLarge(over limit, 1) = false, want true")
	}

	// Code files get a 10x budget.
	if c.IsTooLarge(large, 10) {
		t.Error("IsTooLarge(over 1x limit, 10) = true, want false")
	}
	huge := strings.Repeat("x", 10*4*BaseLimit+8)
	if !c.IsTooLarge(huge, 10) {
		t.Error("IsTooLarge(over 10x limit, 10) = false, want true")
	}
}

func TestCounter_IsTooLargeZeroMultiplier(t *testing.T) {
	c := NewCounter(FamilyLocal)

	// Multiplier <= 0 behaves as 1x, never as "everything is too large".
	if c.IsTooLarge("short text", 0) {
		t.Error("IsTooLarge(short, 0) = true, want false")
	}
}

func TestCounter_BPEFamily(t *testing.T) {
	c := NewCounter(FamilyBPE)

	if got := c.Count(""); got != 0 {
		t.Errorf("Count(empty) = %d, want 0", got)
	}

	// Exact counts depend on whether the encoding could be loaded; either
	// way the count must be positive and bounded by the character count.
	text := "func main() { fmt.Println(\"hello\") }"
	got := c.Count(text)
	if got <= 0 || got > len(text) {
		t.Errorf("Count(%q) = %d, want within (0, %d]", text, got, len(text))
	}
}

func TestNilCounterDegrades(t *testing.T) {
	var c *Counter

	if got, want := c.Count("abcdefgh"), 2; got != want {
		t.Errorf("nil Counter.Count() = %d, want %d", got, want)
	}
	if c.Family() != FamilyLocal {
		t.Errorf("nil Counter.Family() = %v, want FamilyLocal", c.Family())
	}
}
