package catalog

import (
	"regexp"
	"strings"
	"time"
)

const (
	minReaderAgeYears = 10
	maxReaderAgeYears = 120
	minBookYear       = 1000
)

var isbnSeparators = regexp.MustCompile(`[-\s]`)

// validISBN reports whether the given ISBN is a plausible ISBN-10 or
// ISBN-13. Hyphens and spaces are ignored. ISBN-10 allows a trailing X
// check digit. An empty ISBN is valid because the field is optional.
func validISBN(isbn string) bool {
	if isbn == "" {
		return true
	}

	clean := isbnSeparators.ReplaceAllString(isbn, "")
	switch len(clean) {
	case 10:
		return isDigits(clean[:9]) && (clean[9] == 'X' || isDigits(clean[9:]))
	case 13:
		return isDigits(clean)
	default:
		return false
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// normalizeISBN strips separators so storage and uniqueness checks see a
// canonical form.
func normalizeISBN(isbn string) string {
	return strings.ToUpper(isbnSeparators.ReplaceAllString(isbn, ""))
}

// validBookYear reports whether the publication year is plausible: not in
// the future and not before the year 1000.
func validBookYear(year int, now time.Time) bool {
	return year >= minBookYear && year <= now.Year()
}

// ageInYears computes a person's age at the given date using the average
// year length, matching how registration has always judged eligibility.
func ageInYears(birthDate, at time.Time) float64 {
	return at.Sub(birthDate).Hours() / 24 / 365.25
}
