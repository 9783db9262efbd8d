// Package classify decides how a raw query string should be routed:
// straight to a JAN-code search, through identifier resolution, or as plain
// keyword search. Pure functions, re-evaluated on every query.
package classify

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// Kind is the shape of a query string.
type Kind int

const (
	// FreeText is anything that matches no identifier pattern.
	FreeText Kind = iota
	// JANCode is an 8- or 13-digit barcode.
	JANCode
	// MarketplaceID is a model-number-shaped token (alphanumeric with an
	// optional single hyphen), including exact 10-character ASINs.
	MarketplaceID
)

func (k Kind) String() string {
	switch k {
	case JANCode:
		return "jan_code"
	case MarketplaceID:
		return "marketplace_id"
	default:
		return "free_text"
	}
}

var (
	janRe     = regexp.MustCompile(`^[0-9]{8}$|^[0-9]{13}$`)
	asinRe    = regexp.MustCompile(`^[A-Za-z0-9]{10}$`)
	modelNoRe = regexp.MustCompile(`^[A-Za-z0-9]+-?[A-Za-z0-9]+$`)
)

// Classify categorizes a raw query. Full-width input is narrowed first so a
// barcode typed with IME digits still classifies as a JAN code.
func Classify(raw string) Kind {
	q := width.Fold.String(strings.TrimSpace(raw))
	switch {
	case janRe.MatchString(q):
		return JANCode
	case modelNoRe.MatchString(q):
		return MarketplaceID
	default:
		return FreeText
	}
}

// IsASIN reports whether the query matches Amazon's strict 10-character
// identifier shape.
func IsASIN(raw string) bool {
	return asinRe.MatchString(strings.TrimSpace(raw))
}

// IsJAN reports whether the query is an 8- or 13-digit barcode.
func IsJAN(raw string) bool {
	return janRe.MatchString(width.Fold.String(strings.TrimSpace(raw)))
}
