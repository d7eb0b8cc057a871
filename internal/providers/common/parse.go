package common

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func CleanHTMLText(raw string) string {
	value := strings.TrimSpace(raw)
	value = html.UnescapeString(value)
	value = tagPattern.ReplaceAllString(value, " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

func ParseHumanSize(raw string) int64 {
	value := strings.TrimSpace(strings.ToUpper(raw))
	value = strings.ReplaceAll(value, "ГБ", "GB")
	value = strings.ReplaceAll(value, "МБ", "MB")
	value = strings.ReplaceAll(value, "КБ", "KB")
	value = strings.ReplaceAll(value, "ТБ", "TB")
	value = strings.ReplaceAll(value, "Б", "B")
	value = strings.ReplaceAll(value, "IB", "B")
	value = strings.ReplaceAll(value, "\u00a0", " ")
	if value == "" {
		return 0
	}

	unit := ""
	number := value
	for _, suffix := range []string{"TB", "GB", "MB", "KB", "B"} {
		if strings.HasSuffix(number, suffix) {
			unit = suffix
			number = strings.TrimSpace(strings.TrimSuffix(number, suffix))
			break
		}
	}
	if unit == "" {
		if parsed, err := strconv.ParseInt(number, 10, 64); err == nil {
			return parsed
		}
		return 0
	}

	parsed, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", "."), 64)
	if err != nil || parsed < 0 {
		return 0
	}

	multiplier := float64(1)
	switch unit {
	case "KB":
		multiplier = 1024
	case "MB":
		multiplier = 1024 * 1024
	case "GB":
		multiplier = 1024 * 1024 * 1024
	case "TB":
		multiplier = 1024 * 1024 * 1024 * 1024
	}
	return int64(parsed * multiplier)
}

// FormatSize renders a byte count the way users read it ("1.4 GB").
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return ""
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return fmt.Sprintf("%.1f %s", value, units[i])
}

// NormalizeSize turns a provider size column into the FormatSize rendering.
// Unparseable input is returned cleaned but otherwise untouched.
func NormalizeSize(raw string) string {
	if bytes := ParseHumanSize(raw); bytes > 0 {
		return FormatSize(bytes)
	}
	return CleanHTMLText(raw)
}

// ParseCount reads a seeders/leechers column, treating junk as zero.
func ParseCount(raw string) int {
	value := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// FormatUnixDate renders a unix timestamp as a date. Zero yields "".
func FormatUnixDate(unix int64) string {
	if unix <= 0 {
		return ""
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02")
}
