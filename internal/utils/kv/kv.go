package kv

import (
	"fmt"
	"regexp"
	"strings"
)

var keyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// ParseSpecs parses KEY=VALUE specs into a map. Keys must be non-empty
// identifiers; duplicate keys keep the last value.
func ParseSpecs(specs []string) (map[string]string, error) {
	if len(specs) == 0 {
		return map[string]string{}, nil
	}

	data := make(map[string]string, len(specs))
	for _, spec := range specs {
		key, value, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid spec %q, expected KEY=VALUE", spec)
		}
		if !keyRegexp.MatchString(key) {
			return nil, fmt.Errorf("invalid key %q", key)
		}

		data[key] = value
	}

	return data, nil
}
