package search

import "torrentstream/aggregator/internal/domain"

// SelectProviders keeps the providers able to serve category. For CategoryAll
// the input is returned unchanged; otherwise a provider qualifies when it is
// generalist or specialised in exactly that category. Order is preserved.
func SelectProviders(providers []domain.Provider, category domain.Category) []domain.Provider {
	if category == domain.CategoryAll {
		return providers
	}
	selected := make([]domain.Provider, 0, len(providers))
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		if provider.Info().Category.Matches(category) {
			selected = append(selected, provider)
		}
	}
	return selected
}
