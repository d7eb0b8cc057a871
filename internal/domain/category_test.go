package domain

import (
	"errors"
	"testing"
)

func TestCategoryIsNSFW(t *testing.T) {
	for _, c := range Categories() {
		want := c == CategoryPorn || c == CategoryOther
		if got := c.IsNSFW(); got != want {
			t.Errorf("%s.IsNSFW() = %v, want %v", c, got, want)
		}
	}
}

func TestCategoriesIsClosedSet(t *testing.T) {
	if got := len(Categories()); got != 10 {
		t.Fatalf("len(Categories()) = %d, want 10", got)
	}
	if Category("documentaries").Valid() {
		t.Error("unexpected category reported valid")
	}
}

func TestCategoryMatches(t *testing.T) {
	cases := []struct {
		provider, target Category
		want             bool
	}{
		{CategoryAll, CategoryAll, true},
		{CategoryAll, CategoryMovies, true},
		{CategoryAnime, CategoryAll, true},
		{CategoryAnime, CategoryAnime, true},
		{CategoryAnime, CategoryMovies, false},
		{CategoryMovies, CategorySeries, false},
		{"", CategoryBooks, true},
	}
	for _, tc := range cases {
		if got := tc.provider.Matches(tc.target); got != tc.want {
			t.Errorf("%s.Matches(%s) = %v, want %v", tc.provider, tc.target, got, tc.want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	cases := []struct {
		input   string
		want    Category
		wantErr bool
	}{
		{"", CategoryAll, false},
		{"Movies", CategoryMovies, false},
		{" anime ", CategoryAnime, false},
		{"tv", CategorySeries, false},
		{"software", CategoryApps, false},
		{"other", CategoryOther, false},
		{"bogus", "", true},
	}
	for _, tc := range cases {
		got, err := ParseCategory(tc.input)
		if tc.wantErr {
			if !errors.Is(err, ErrUnknownCategory) {
				t.Errorf("ParseCategory(%q) error = %v, want ErrUnknownCategory", tc.input, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseCategory(%q) = %q, %v; want %q", tc.input, got, err, tc.want)
		}
	}
}
