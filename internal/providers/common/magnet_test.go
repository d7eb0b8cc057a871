package common

import "testing"

// ---------------------------------------------------------------------------
// NormalizeInfoHash
// ---------------------------------------------------------------------------

func TestNormalizeInfoHash(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase hex", "abcdef1234567890", "abcdef1234567890"},
		{"uppercase hex", "ABCDEF1234567890", "abcdef1234567890"},
		{"with urn:btih: prefix", "urn:btih:abcdef1234567890", "abcdef1234567890"},
		{"with URN:BTIH: prefix uppercase", "URN:BTIH:ABCDEF1234567890", "abcdef1234567890"},
		{"empty string", "", ""},
		{"whitespace around hash", "  abcdef1234567890  ", "abcdef1234567890"},
		{"urn:btih: only", "urn:btih:", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeInfoHash(tc.input)
			if got != tc.want {
				t.Errorf("NormalizeInfoHash(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// InfoHashFromMagnet
// ---------------------------------------------------------------------------

func TestInfoHashFromMagnet(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"magnet:?xt=urn:btih:ABCDEF&dn=name", "abcdef"},
		{"magnet:?dn=name&xt=urn:btih:abc123&tr=udp%3A%2F%2Ft", "abc123"},
		{"magnet:?dn=name", ""},
		{"https://example.com/file.torrent", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := InfoHashFromMagnet(tc.input); got != tc.want {
			t.Errorf("InfoHashFromMagnet(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestIsMagnet(t *testing.T) {
	if !IsMagnet(" MAGNET:?xt=urn:btih:abc") {
		t.Error("upper-case magnet not detected")
	}
	if IsMagnet("http://x/magnet:?") {
		t.Error("http url detected as magnet")
	}
}
