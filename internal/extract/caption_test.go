package extract

import "testing"

func TestCleanCaption(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"plain", "Sunset at the pier", 120, "Sunset at the pier"},
		{"collapses spaces", "  lots   of\tspace  ", 120, "lots of space"},
		{"first non-empty line", "\n  \nhello\nworld", 120, "hello"},
		{"entities", "Tom &amp; Jerry", 120, "Tom & Jerry"},
		{"br splits lines", "first<br>second", 120, "first"},
		{"self-closing br", "first<br/>second", 120, "first"},
		{"paragraphs", "<p>one</p><p>two</p>", 120, "one"},
		{"inline tags stripped", "<b>bold</b> and <a href=\"x\">link</a>", 120, "bold and link"},
		{"heart is text", "I <3 this", 120, "I <3 this"},
		{"truncates runes", "ñandú ñandú", 5, "ñandú"},
		{"empty", "", 120, ""},
		{"only markup", "<br><br>", 120, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCaption(tt.in, tt.max); got != tt.want {
				t.Errorf("CleanCaption(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
