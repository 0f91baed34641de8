package processor

import (
	"strings"
	"testing"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func TestProcess_PlainText(t *testing.T) {
	p := New(10, 2)

	result, err := p.Process([]byte(words(25)), "notes.txt")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(result.Chunks) == 0 {
		t.Fatalf("expected chunks, got none")
	}
	if got := result.Metadata["processing_engine"]; got != "builtin" {
		t.Fatalf("processing_engine = %v, want builtin", got)
	}
	if got := result.Metadata["word_count"]; got != 25 {
		t.Fatalf("word_count = %v, want 25", got)
	}
}

func TestProcess_ChunkWindowsAreContiguousWithOverlap(t *testing.T) {
	p := New(10, 3)

	result, err := p.Process([]byte(words(30)), "notes.md")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	step := 10 - 3
	for i, c := range result.Chunks {
		if want := i * step; c.StartWord != want {
			t.Fatalf("chunk %d StartWord = %d, want %d", i, c.StartWord, want)
		}
		if c.EndWord <= c.StartWord {
			t.Fatalf("chunk %d has empty window [%d, %d)", i, c.StartWord, c.EndWord)
		}
		if c.TokenCount != c.EndWord-c.StartWord {
			t.Fatalf("chunk %d TokenCount = %d, want %d", i, c.TokenCount, c.EndWord-c.StartWord)
		}
	}

	last := result.Chunks[len(result.Chunks)-1]
	if last.EndWord != 30 {
		t.Fatalf("last chunk EndWord = %d, want 30", last.EndWord)
	}
}

func TestProcess_ShortTextYieldsSingleChunk(t *testing.T) {
	p := New(300, 50)

	result, err := p.Process([]byte("hello semantic world"), "a.txt")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(result.Chunks))
	}
	if got := result.Chunks[0].Content; got != "hello semantic world" {
		t.Fatalf("chunk content = %q", got)
	}
	if got := result.Chunks[0].TokenCount; got != 3 {
		t.Fatalf("TokenCount = %d, want 3", got)
	}
}

func TestProcess_EmptyContentFails(t *testing.T) {
	p := New(300, 50)

	if _, err := p.Process([]byte("   \n\t "), "empty.txt"); err == nil {
		t.Fatalf("expected error for whitespace-only content")
	}
}

func TestProcess_InvalidUTF8IsReplaced(t *testing.T) {
	p := New(300, 50)

	result, err := p.Process([]byte{'h', 'i', ' ', 0xff, 0xfe, ' ', 'o', 'k'}, "weird.txt")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(result.Chunks))
	}
	if !strings.Contains(result.Chunks[0].Content, "ok") {
		t.Fatalf("chunk content = %q, want it to contain %q", result.Chunks[0].Content, "ok")
	}
}

func TestProcess_BrokenPDFFails(t *testing.T) {
	p := New(300, 50)

	if _, err := p.Process([]byte("not a pdf"), "broken.pdf"); err == nil {
		t.Fatalf("expected error for invalid pdf bytes")
	}
}
