package capability

import (
	"regexp"
	"strings"
)

// Matcher decides whether a rule applies to a device type string.
type Matcher func(deviceType string) bool

// Exact matches any of the given type strings.
func Exact(types ...string) Matcher {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(deviceType string) bool {
		_, ok := set[deviceType]
		return ok
	}
}

// Prefix matches type strings starting with any of the prefixes.
func Prefix(prefixes ...string) Matcher {
	return func(deviceType string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(deviceType, p) {
				return true
			}
		}
		return false
	}
}

// Pattern matches type strings against a regular expression. It panics on an
// invalid expression; rule tables are built once at startup.
func Pattern(expr string) Matcher {
	re := regexp.MustCompile(expr)
	return re.MatchString
}

// AnyOf matches when any of ms matches.
func AnyOf(ms ...Matcher) Matcher {
	return func(deviceType string) bool {
		for _, m := range ms {
			if m(deviceType) {
				return true
			}
		}
		return false
	}
}

// Except matches when m matches and none of excluded do.
func Except(m Matcher, excluded ...Matcher) Matcher {
	return func(deviceType string) bool {
		if !m(deviceType) {
			return false
		}
		for _, x := range excluded {
			if x(deviceType) {
				return false
			}
		}
		return true
	}
}
