package resolve

import "strings"

// CompareVersions orders version strings. Dot separated digit sequences
// compare numerically per component with missing components counting as
// zero, so "1.2" equals "1.2.0" and "1.10" is above "1.9". Anything else
// falls back to plain string comparison. A blank version sorts below every
// other value.
func CompareVersions(a, b string) int {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	if !isNumericVersion(a) || !isNumericVersion(b) {
		return strings.Compare(a, b)
	}

	pa := strings.Split(strings.TrimRight(a, "."), ".")
	pb := strings.Split(strings.TrimRight(b, "."), ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var x, y string
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if r := compareDigits(x, y); r != 0 {
			return r
		}
	}
	return 0
}

func isNumericVersion(v string) bool {
	for _, r := range v {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// compareDigits compares unbounded digit strings without converting them.
func compareDigits(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if len(x) != len(y) {
		if len(x) < len(y) {
			return -1
		}
		return 1
	}
	return strings.Compare(x, y)
}

// MaxVersion returns the highest version, or "" for an empty list.
func MaxVersion(versions []string) string {
	best := ""
	for _, v := range versions {
		if CompareVersions(v, best) > 0 {
			best = v
		}
	}
	return best
}
