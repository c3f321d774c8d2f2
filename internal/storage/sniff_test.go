package storage

import (
	"io"
	"strings"
	"testing"
)

func TestSniffKeepsFullContent(t *testing.T) {
	content := "%PDF-1.7\n" + strings.Repeat("x", 5000)
	m, r, err := Sniff(strings.NewReader(content))
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if !m.Is("application/pdf") || m.Extension() != ".pdf" {
		t.Fatalf("unexpected type %s %s", m.String(), m.Extension())
	}
	data, err := io.ReadAll(r)
	if err != nil || string(data) != content {
		t.Fatalf("content changed by sniffing (%d bytes, %v)", len(data), err)
	}
}

func TestInlineTypes(t *testing.T) {
	cases := map[string]bool{
		"image/png":                true,
		"video/mp4":                true,
		"audio/mpeg":               true,
		"application/pdf":          true,
		"image/svg+xml":            false,
		"text/html; charset=utf-8": false,
		"application/octet-stream": false,
		"":                         false,
	}
	for ct, want := range cases {
		if got := Inline(ct); got != want {
			t.Errorf("Inline(%q) = %v, want %v", ct, got, want)
		}
	}
	if IsMedia("application/pdf") {
		t.Errorf("pdf is not comment media")
	}
}
