package reconcile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Kind selects the canonicalization applied to a field before comparison.
type Kind string

const (
	KindText        Kind = "text"
	KindDateOfBirth Kind = "dob"
	KindPhone       Kind = "phone"
	KindEmail       Kind = "email"
	KindReference   Kind = "reference"
)

// ParseKind maps a configured kind name (case-insensitive, a few aliases) to a Kind.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "text", "name", "address":
		return KindText, nil
	case "dob", "date_of_birth", "birthdate":
		return KindDateOfBirth, nil
	case "phone", "phone_number":
		return KindPhone, nil
	case "email":
		return KindEmail, nil
	case "reference", "id", "code", "confirmation_code":
		return KindReference, nil
	default:
		return "", fmt.Errorf("unknown field kind %q", raw)
	}
}

var (
	textualMonthFirst = regexp.MustCompile(`^([a-z]{3,9})[\s\-/.,]+(\d{1,2})(?:st|nd|rd|th)?[\s\-/.,]+(\d{4})$`)
	textualDayFirst   = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?[\s\-/.,]+([a-z]{3,9})[\s\-/.,]+(\d{4})$`)
	numericYearFirst  = regexp.MustCompile(`^(\d{4})[\-/.](\d{1,2})[\-/.](\d{1,2})$`)
	numericMonthFirst = regexp.MustCompile(`^(\d{1,2})[\-/.](\d{1,2})[\-/.](\d{4})$`)
	numericCompact    = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
)

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// Normalize canonicalizes raw according to kind. Unknown kinds are treated as text.
func Normalize(kind Kind, raw string) string {
	switch kind {
	case KindDateOfBirth:
		return normalizeDate(raw)
	case KindPhone:
		return normalizePhone(raw)
	case KindEmail:
		return strings.ToLower(strings.TrimSpace(raw))
	case KindReference:
		return keepRunes(strings.ToLower(raw), func(r rune) bool {
			return r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)
		})
	default:
		return normalizeText(raw)
	}
}

func normalizeText(raw string) string {
	return keepRunes(strings.ToLower(raw), func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	})
}

func normalizePhone(raw string) string {
	digits := keepRunes(raw, func(r rune) bool { return r >= '0' && r <= '9' })
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// normalizeDate tries the textual patterns first, then the numeric ones, and
// emits YYYYMMDD. Anything unparseable falls back to text normalization.
func normalizeDate(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))

	if m := textualMonthFirst.FindStringSubmatch(v); m != nil {
		if out, ok := canonicalDate(m[3], monthIndex(m[1]), m[2]); ok {
			return out
		}
	}
	if m := textualDayFirst.FindStringSubmatch(v); m != nil {
		if out, ok := canonicalDate(m[3], monthIndex(m[2]), m[1]); ok {
			return out
		}
	}
	if m := numericYearFirst.FindStringSubmatch(v); m != nil {
		if out, ok := canonicalDate(m[1], atoi(m[2]), m[3]); ok {
			return out
		}
	}
	if m := numericMonthFirst.FindStringSubmatch(v); m != nil {
		if out, ok := canonicalDate(m[3], atoi(m[1]), m[2]); ok {
			return out
		}
	}
	if m := numericCompact.FindStringSubmatch(v); m != nil {
		if out, ok := canonicalDate(m[1], atoi(m[2]), m[3]); ok {
			return out
		}
	}
	return normalizeText(raw)
}

func canonicalDate(yearRaw string, month int, dayRaw string) (string, bool) {
	year, day := atoi(yearRaw), atoi(dayRaw)
	if month < 1 || month > 12 || day < 1 || day > 31 || year <= 0 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		// Rolled over, e.g. Feb 30.
		return "", false
	}
	return t.Format("20060102"), true
}

// monthIndex returns 1..12 for a month name or abbreviation, 0 otherwise.
func monthIndex(token string) int {
	if token == "sept" {
		return 9
	}
	for i, name := range monthNames {
		if len(token) >= 3 && strings.HasPrefix(name, token) {
			return i + 1
		}
	}
	return 0
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func keepRunes(s string, keep func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if keep(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
