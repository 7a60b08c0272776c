package archive

import "strings"

// ValidTS reports whether ts is a non-negative decimal such as "1712345678.000100".
func ValidTS(ts string) bool {
	whole, frac, hasDot := strings.Cut(ts, ".")
	if whole == "" || (hasDot && frac == "") {
		return false
	}
	return allDigits(whole) && allDigits(frac)
}

// CompareTS orders two message timestamps numerically without converting
// them, so microsecond suffixes never collide. Invalid input falls back to a
// plain string comparison.
func CompareTS(a, b string) int {
	if !ValidTS(a) || !ValidTS(b) {
		return strings.Compare(a, b)
	}
	aWhole, aFrac, _ := strings.Cut(a, ".")
	bWhole, bFrac, _ := strings.Cut(b, ".")
	aWhole = trimLeadingZeros(aWhole)
	bWhole = trimLeadingZeros(bWhole)
	if len(aWhole) != len(bWhole) {
		if len(aWhole) < len(bWhole) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(aWhole, bWhole); c != 0 {
		return c
	}
	aFrac = strings.TrimRight(aFrac, "0")
	bFrac = strings.TrimRight(bFrac, "0")
	return strings.Compare(aFrac, bFrac)
}

// CanonicalTS is the form used to decide whether two timestamps name the same
// message: "0010.500" and "10.5" both become "10.5", "10.000" becomes "10".
// Invalid input is returned unchanged.
func CanonicalTS(ts string) string {
	if !ValidTS(ts) {
		return ts
	}
	whole, frac, _ := strings.Cut(ts, ".")
	whole = trimLeadingZeros(whole)
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func trimLeadingZeros(s string) string {
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
