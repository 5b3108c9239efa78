package phone

import "strings"

// Number is a normalized phone number: digits with an optional leading '+'.
type Number string

// Normalize strips URI schemes (tel:, sip:), any host part and parameters,
// and keeps only digits plus a single leading '+'.
func Normalize(raw string) Number {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, ":"); i >= 0 {
		scheme := strings.ToLower(s[:i])
		if scheme == "tel" || scheme == "sip" || scheme == "sips" {
			s = s[i+1:]
		}
	}
	if i := strings.IndexAny(s, "@;"); i >= 0 {
		s = s[:i]
	}
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0 && strings.TrimSpace(s[:i]) == "":
			b.WriteRune(r)
		}
	}
	return Number(b.String())
}

// Valid reports whether the number carries at least one digit.
func (n Number) Valid() bool {
	return strings.TrimPrefix(string(n), "+") != ""
}

func (n Number) String() string { return string(n) }
