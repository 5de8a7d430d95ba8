// Package platform describes the operating system and environment a
// reconciliation pass targets. Values are passed explicitly so a pass can be
// evaluated for an OS other than the one running the process.
package platform

import (
	"runtime"
	"strings"
)

// OS is a normalized operating system family.
type OS string

const (
	Windows OS = "windows"
	Linux   OS = "linux"
	MacOS   OS = "macos"
	Other   OS = "other"
)

// ParseOS maps free-form classifiers ("win64", "Darwin", "linux-x86_64", ...)
// to an OS family.
func ParseOS(value string) OS {
	key := strings.ToLower(strings.TrimSpace(value))
	switch {
	case strings.Contains(key, "mac") || strings.Contains(key, "darwin") || strings.Contains(key, "osx"):
		return MacOS
	case strings.Contains(key, "win"):
		return Windows
	case strings.Contains(key, "nux"):
		return Linux
	default:
		return Other
	}
}

// Detect returns the OS family of the running process.
func Detect() OS {
	return ParseOS(runtime.GOOS)
}

// Platform is the target of one reconciliation pass.
type Platform struct {
	OS          OS
	Environment []string
}

// New builds a platform. An empty osName falls back to the detected OS.
func New(osName string, environment []string) Platform {
	family := Detect()
	if strings.TrimSpace(osName) != "" {
		family = ParseOS(osName)
	}
	return Platform{OS: family, Environment: normalizeTags(environment)}
}

// MatchesClassifier is true for an empty classifier or one naming this OS.
func (p Platform) MatchesClassifier(classifier string) bool {
	if strings.TrimSpace(classifier) == "" {
		return true
	}
	return ParseOS(classifier) == p.OS
}

// MatchesAnyClassifier is true for an empty set or a set containing this OS.
func (p Platform) MatchesAnyClassifier(classifiers []string) bool {
	if len(classifiers) == 0 {
		return true
	}
	for _, c := range classifiers {
		if strings.TrimSpace(c) != "" && ParseOS(c) == p.OS {
			return true
		}
	}
	return false
}

// MatchesTypes is true when either side is empty or the sets intersect.
func (p Platform) MatchesTypes(types []string) bool {
	if len(types) == 0 || len(p.Environment) == 0 {
		return true
	}
	for _, t := range normalizeTags(types) {
		for _, env := range p.Environment {
			if t == env {
				return true
			}
		}
	}
	return false
}

// Applies combines the classifier and environment checks.
func (p Platform) Applies(classifier string, types []string) bool {
	return p.MatchesClassifier(classifier) && p.MatchesTypes(types)
}

func normalizeTags(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := map[string]bool{}
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
