// Package security validates user-supplied symbols and masks credentials
// before they reach logs or the terminal.
package security

import (
	"regexp"
	"strings"
	"unicode"

	"flag-scanner/internal/errors"
)

// Symbols are upper-case letters and digits with a few separators, as in
// INFY, M&M, BRK.B or NIFTY_50.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9&._-]{0,29}$`)

// ValidateSymbol normalizes symbol and checks its format.
func ValidateSymbol(symbol string) (string, error) {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))
	if symbol == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "symbol cannot be empty")
	}
	if !symbolPattern.MatchString(symbol) {
		return "", errors.Wrapf(errors.ErrInvalidInput, "invalid symbol %q", symbol)
	}
	return symbol, nil
}

// SanitizeSymbol upper-cases symbol and drops every character a symbol may
// not contain.
func SanitizeSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	var result strings.Builder
	for _, r := range symbol {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("&._-", r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// SanitizeText removes control characters from free-form text.
func SanitizeText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
