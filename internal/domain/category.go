package domain

import (
	"errors"
	"strings"
)

var ErrUnknownCategory = errors.New("unknown category")

// Category is the closed set of content categories a search can target.
type Category string

const (
	CategoryAll    Category = "all"
	CategoryAnime  Category = "anime"
	CategoryApps   Category = "apps"
	CategoryBooks  Category = "books"
	CategoryGames  Category = "games"
	CategoryMovies Category = "movies"
	CategoryMusic  Category = "music"
	CategoryPorn   Category = "porn"
	CategorySeries Category = "series"
	CategoryOther  Category = "other"
)

var categories = []Category{
	CategoryAll,
	CategoryAnime,
	CategoryApps,
	CategoryBooks,
	CategoryGames,
	CategoryMovies,
	CategoryMusic,
	CategoryPorn,
	CategorySeries,
	CategoryOther,
}

// Categories returns every category in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// IsNSFW reports whether results of the category may contain adult content.
// Other is flagged because providers lump uncategorised adult material there.
func (c Category) IsNSFW() bool {
	return c == CategoryPorn || c == CategoryOther
}

func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// Matches reports whether a provider specialised in c serves a search for
// target. An empty specialisation is treated as All.
func (c Category) Matches(target Category) bool {
	return target == CategoryAll || c == CategoryAll || c == "" || c == target
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory accepts category names case-insensitively. An empty value means All.
func ParseCategory(raw string) (Category, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return CategoryAll, nil
	}
	switch value {
	case "tv", "shows", "tvshows":
		return CategorySeries, nil
	case "software", "applications":
		return CategoryApps, nil
	case "xxx", "adult":
		return CategoryPorn, nil
	}
	c := Category(value)
	if !c.Valid() {
		return "", ErrUnknownCategory
	}
	return c, nil
}
