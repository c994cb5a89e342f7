package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateForEmbedding_ShortTextUnchanged(t *testing.T) {
	if got := TruncateForEmbedding("a quiet harbor"); got != "a quiet harbor" {
		t.Errorf("short text must pass through, got %q", got)
	}
}

func TestTruncateForEmbedding_CutsOnRuneBoundary(t *testing.T) {
	// Fill up to one byte short of the cap, then place a multi-byte rune
	// straddling it. The cut must back up to the boundary, never emitting
	// a partial rune.
	text := strings.Repeat("a", MaxEmbeddingTextLen-1) + "日本語"

	got := TruncateForEmbedding(text)
	if len(got) > MaxEmbeddingTextLen {
		t.Fatalf("result is %d bytes, cap is %d", len(got), MaxEmbeddingTextLen)
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation produced invalid UTF-8")
	}
	if want := MaxEmbeddingTextLen - 1; len(got) != want {
		t.Errorf("expected the cut to back up to %d bytes, got %d", want, len(got))
	}
}

func TestTruncateForEmbedding_MultiByteOnlyText(t *testing.T) {
	text := strings.Repeat("語", MaxEmbeddingTextLen) // 3 bytes per rune

	got := TruncateForEmbedding(text)
	if len(got) > MaxEmbeddingTextLen {
		t.Fatalf("result is %d bytes, cap is %d", len(got), MaxEmbeddingTextLen)
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation produced invalid UTF-8")
	}
	if len(got)%3 != 0 {
		t.Errorf("result length %d splits a 3-byte rune", len(got))
	}
}
