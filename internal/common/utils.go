package common

import "strings"

// CollapseSpaces trims s and collapses internal whitespace runs into
// single spaces. Scraped table cells carry stray newlines and tabs.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
