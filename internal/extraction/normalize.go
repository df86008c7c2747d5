package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const descriptionCap = 500

// normalizeDate canonicalizes a statement date to YYYY-MM-DD. Accepted
// inputs are year-month-day and month-day-year with "-", "/" or "."
// separators; components need not be zero padded. Which side the year is
// on is decided by the four-digit component.
func normalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '/' || r == '.'
	})
	if len(parts) != 3 {
		return "", fmt.Errorf("unrecognized date %q", s)
	}

	var year, month, day string
	switch {
	case len(parts[0]) == 4:
		year, month, day = parts[0], parts[1], parts[2]
	case len(parts[2]) == 4:
		year, month, day = parts[2], parts[0], parts[1]
	default:
		return "", fmt.Errorf("unrecognized date %q", s)
	}

	y, err := strconv.Atoi(year)
	if err != nil {
		return "", fmt.Errorf("unrecognized date %q", s)
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return "", fmt.Errorf("unrecognized date %q", s)
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return "", fmt.Errorf("unrecognized date %q", s)
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d), nil
}

// normalizeAmount canonicalizes a money value to a fixed two-decimal
// string. Currency symbols, thousands separators and surrounding
// whitespace are stripped; accountant-style parentheses negate.
func normalizeAmount(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ',', r == ' ', r == '$', r == '€', r == '£', r == '¥':
			// separators and symbols dropped
		default:
			return "", fmt.Errorf("unrecognized amount %q", s)
		}
	}

	value, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return "", fmt.Errorf("unrecognized amount %q", s)
	}
	if negative {
		value = -value
	}
	return strconv.FormatFloat(value, 'f', 2, 64), nil
}

// normalizeDescription trims and caps the free-text description.
func normalizeDescription(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > descriptionCap {
		s = string(runes[:descriptionCap])
	}
	return s
}

// normalizeRow validates and canonicalizes one raw row. An error means the
// row is dropped, not that extraction fails.
func normalizeRow(r RawRow) (date, description, amount string, err error) {
	date, err = normalizeDate(r.Date)
	if err != nil {
		return "", "", "", err
	}
	amount, err = normalizeAmount(r.Amount)
	if err != nil {
		return "", "", "", err
	}
	return date, normalizeDescription(r.Description), amount, nil
}

// rowHash derives the idempotency key for one extracted row. Position is
// part of the hash so legitimate duplicate rows within one statement
// survive the unique constraint.
func rowHash(docID, date, amount, description string, index int) string {
	input := strings.Join([]string{
		docID,
		date,
		amount,
		strings.ToLower(description),
		strconv.Itoa(index),
	}, "|")
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
