package catalog

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var separatorStripper = strings.NewReplacer(" ", "", "_", "", "-", "")

// Normalize folds a column or field name for comparison: compatibility
// composition (full-width and ligature forms collapse to ASCII), lower-case,
// and removal of spaces, underscores and hyphens.
func Normalize(name string) string {
	s := norm.NFKC.String(strings.TrimSpace(name))
	s = strings.ToLower(s)
	return separatorStripper.Replace(s)
}
