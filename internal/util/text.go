package util

import (
	"regexp"
	"strings"
	"time"
)

var (
	reHeaderNoise = regexp.MustCompile(`[^a-z0-9%]+`)
	reSpaces      = regexp.MustCompile(`\s+`)
)

// NormalizeHeader lowercases a column header and collapses punctuation so
// "Total Cost (Exclusive)" and "total_cost exclusive" compare equal.
func NormalizeHeader(input string) string {
	s := strings.ToLower(strings.ReplaceAll(input, "\u00A0", " "))
	s = reHeaderNoise.ReplaceAllString(s, " ")
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

// NormalizeCode trims item codes and strips the ".0" suffix spreadsheets add to
// numeric codes.
func NormalizeCode(input string) string {
	s := strings.TrimSpace(strings.ReplaceAll(input, "\u00A0", ""))
	s = strings.ReplaceAll(s, " ", "")
	if strings.HasSuffix(s, ".0") && isDigits(strings.TrimSuffix(s, ".0")) {
		s = strings.TrimSuffix(s, ".0")
	}
	return strings.ToUpper(s)
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

func HeaderContainsAll(header string, needles ...string) bool {
	for _, p := range needles {
		if !strings.Contains(header, p) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func StringPtr(v string) *string { return &v }

func TimePtr(v time.Time) *time.Time { return &v }
