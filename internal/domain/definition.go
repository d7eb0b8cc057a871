package domain

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var ErrInvalidDefinition = errors.New("invalid provider definition")

var definitionIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ProviderDefinition describes a user-defined Torznab endpoint.
type ProviderDefinition struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	BaseURL   string    `json:"baseUrl" bson:"baseUrl"`
	APIKey    string    `json:"apiKey,omitempty" bson:"apiKey,omitempty"`
	Category  Category  `json:"category" bson:"category"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Normalize trims fields, lowercases the id and defaults the category to All.
func (d ProviderDefinition) Normalize() ProviderDefinition {
	d.ID = strings.ToLower(strings.TrimSpace(d.ID))
	d.Name = strings.TrimSpace(d.Name)
	d.BaseURL = strings.TrimSpace(d.BaseURL)
	d.APIKey = strings.TrimSpace(d.APIKey)
	if d.Category == "" {
		d.Category = CategoryAll
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	return d
}

func (d ProviderDefinition) Validate() error {
	if !definitionIDPattern.MatchString(d.ID) {
		return fmt.Errorf("%w: id %q must be lowercase letters, digits, '-' or '_'", ErrInvalidDefinition, d.ID)
	}
	uri, err := url.Parse(d.BaseURL)
	if err != nil || (uri.Scheme != "http" && uri.Scheme != "https") || uri.Host == "" {
		return fmt.Errorf("%w: base url %q must be an absolute http(s) url", ErrInvalidDefinition, d.BaseURL)
	}
	if !d.Category.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, ErrUnknownCategory)
	}
	return nil
}
