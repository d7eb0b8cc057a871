package common

import (
	"net/url"
	"strings"
)

func NormalizeInfoHash(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(strings.ToLower(value), "urn:btih:")
	if value == "" {
		return ""
	}
	return value
}

// InfoHashFromMagnet extracts the btih value of a magnet URI, normalised.
func InfoHashFromMagnet(magnet string) string {
	uri, err := url.Parse(strings.TrimSpace(magnet))
	if err != nil || uri.Scheme != "magnet" {
		return ""
	}
	for _, xt := range uri.Query()["xt"] {
		if strings.HasPrefix(strings.ToLower(xt), "urn:btih:") {
			return NormalizeInfoHash(xt)
		}
	}
	return ""
}

func IsMagnet(raw string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "magnet:?")
}
