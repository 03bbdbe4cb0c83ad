package engine

import "testing"

func TestDecodeEntities(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ampersand", "rock &amp; roll", "rock & roll"},
		{"angle brackets", "&lt;i&gt;whisper&lt;/i&gt;", "<i>whisper</i>"},
		{"quotes", "she said &quot;hi&quot;", `she said "hi"`},
		{"numeric apostrophe", "it&#39;s fine", "it's fine"},
		{"named apostrophe", "it&apos;s fine", "it's fine"},
		{"embedded newline", "line one\nline two", "line one line two"},
		{"surrounding whitespace", "  padded  ", "padded"},
		{"plain text untouched", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeEntities(tt.in); got != tt.want {
				t.Errorf("DecodeEntities(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeSpace(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a  b\t c\n\nd", "a b c d"},
		{"  lead and trail  ", "lead and trail"},
		{"", ""},
		{"single", "single"},
	}
	for _, tt := range tests {
		if got := NormalizeSpace(tt.in); got != tt.want {
			t.Errorf("NormalizeSpace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"one", 1},
		{"never gonna give you up", 5},
		{"  spaced   out  ", 2},
	}
	for _, tt := range tests {
		if got := CountWords(tt.in); got != tt.want {
			t.Errorf("CountWords(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCleanHTML(t *testing.T) {
	got := CleanHTML("<p>hello <b>world</b></p>")
	if got != "hello world" {
		t.Errorf("CleanHTML() = %q, want %q", got, "hello world")
	}
}

func TestTruncateRunes(t *testing.T) {
	got := TruncateRunes("héllo wörld and more", 5, "…")
	if len([]rune(got)) >= len([]rune("héllo wörld and more")) {
		t.Errorf("TruncateRunes() = %q, expected truncation", got)
	}
	if got[len(got)-len("…"):] != "…" {
		t.Errorf("TruncateRunes() = %q, expected … suffix", got)
	}
	if got := TruncateRunes("short", 10, "…"); got != "short" {
		t.Errorf("TruncateRunes() = %q, want %q", got, "short")
	}
}
