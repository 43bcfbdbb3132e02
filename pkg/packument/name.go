package packument

import (
	"regexp"
	"strings"
)

var (
	urlSafeName = regexp.MustCompile(`^[A-Za-z0-9\-_.!~*'()]+$`)
	scopedName  = regexp.MustCompile(`^@([^/]+?)/([^/]+?)$`)
)

var reservedNames = map[string]bool{
	"node_modules": true,
	"favicon.ico":  true,
}

// ValidName reports whether name could address a package in the registry,
// including packages published before the current naming rules (upper case,
// long names and core module names are accepted).
func ValidName(name string) bool {
	if name == "" || strings.TrimSpace(name) != name {
		return false
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return false
	}
	if reservedNames[strings.ToLower(name)] {
		return false
	}
	if urlSafeName.MatchString(name) {
		return true
	}
	m := scopedName.FindStringSubmatch(name)
	if m == nil {
		return false
	}
	return urlSafeName.MatchString(m[1]) && urlSafeName.MatchString(m[2])
}
