package common

import "testing"

// ---------------------------------------------------------------------------
// ParseHumanSize
// ---------------------------------------------------------------------------

func TestParseHumanSizeAllUnits(t *testing.T) {
	cases := []struct {
		input string
		want  int64
	}{
		{"1 B", 1},
		{"1 KB", 1024},
		{"1 MB", 1024 * 1024},
		{"1 GB", 1024 * 1024 * 1024},
		{"1 TB", 1024 * 1024 * 1024 * 1024},
		{"1 GiB", 1024 * 1024 * 1024},
		{"2 МБ", 2 * 1024 * 1024},
		{"1024", 1024},
		{"", 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		got := ParseHumanSize(tc.input)
		if got != tc.want {
			t.Errorf("ParseHumanSize(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestParseHumanSizeFractional(t *testing.T) {
	cases := []struct {
		input string
		min   int64
		max   int64
	}{
		{"1.5 GB", 1610612736 - 1, 1610612736 + 1},
		{"2,5 MB", 2621440 - 1, 2621440 + 1},
		{"0.5 KB", 511, 513},
	}
	for _, tc := range cases {
		got := ParseHumanSize(tc.input)
		if got < tc.min || got > tc.max {
			t.Errorf("ParseHumanSize(%q) = %d, want between %d and %d", tc.input, got, tc.min, tc.max)
		}
	}
}

// ---------------------------------------------------------------------------
// FormatSize / NormalizeSize
// ---------------------------------------------------------------------------

func TestFormatSize(t *testing.T) {
	cases := []struct {
		input int64
		want  string
	}{
		{0, ""},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{1610612736, "1.5 GB"},
	}
	for _, tc := range cases {
		if got := FormatSize(tc.input); got != tc.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeSize(t *testing.T) {
	if got := NormalizeSize("1.5 GiB"); got != "1.5 GB" {
		t.Errorf("NormalizeSize = %q", got)
	}
	if got := NormalizeSize(" <b>n/a</b> "); got != "n/a" {
		t.Errorf("NormalizeSize passthrough = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Misc
// ---------------------------------------------------------------------------

func TestCleanHTMLText(t *testing.T) {
	if got := CleanHTMLText("  <a href='x'>Foo</a>&amp;  Bar  "); got != "Foo & Bar" {
		t.Errorf("CleanHTMLText = %q", got)
	}
}

func TestParseCount(t *testing.T) {
	cases := map[string]int{"12": 12, "1,204": 1204, " 3 ": 3, "-1": 0, "n/a": 0}
	for input, want := range cases {
		if got := ParseCount(input); got != want {
			t.Errorf("ParseCount(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestFormatUnixDate(t *testing.T) {
	if got := FormatUnixDate(1700000000); got != "2023-11-14" {
		t.Errorf("FormatUnixDate = %q", got)
	}
	if got := FormatUnixDate(0); got != "" {
		t.Errorf("FormatUnixDate(0) = %q", got)
	}
}
