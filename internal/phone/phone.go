// Package phone normalizes phone numbers for provider APIs.
package phone

import "strings"

// Normalize strips everything but digits: "+1-555-0100" becomes "15550100".
func Normalize(number string) string {
	var b strings.Builder
	b.Grow(len(number))
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// E164 returns the number in "+<digits>" form, or "" when it has no digits.
func E164(number string) string {
	digits := Normalize(number)
	if digits == "" {
		return ""
	}
	return "+" + digits
}
