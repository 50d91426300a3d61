package synth

import (
	"fmt"
	"hash/fnv"
	"strings"
)

const maxNameLength = 24

// normalizeName lowercases a logical name, strips characters the provider
// disallows, and enforces the length limit.
func normalizeName(logical string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(logical) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "resource"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "r" + name
	}
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return strings.TrimRight(name, "-")
}

// nameSuffix derives a short deterministic disambiguator from the logical
// name's hash.
func nameSuffix(logical string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(logical))
	return fmt.Sprintf("%04x", h.Sum32()&0xffff)
}

// assignNames resolves normalized-name conflicts across a run. Logical names
// are processed in lexicographic order; the first claimant keeps the plain
// normalization, later ones get the hash suffix.
func assignNames(logicalNames []string) map[string]string {
	assigned := make(map[string]string, len(logicalNames))
	taken := make(map[string]bool, len(logicalNames))

	for _, logical := range logicalNames {
		name := normalizeName(logical)
		if taken[name] {
			suffix := nameSuffix(logical)
			trimmed := name
			if len(trimmed)+1+len(suffix) > maxNameLength {
				trimmed = trimmed[:maxNameLength-1-len(suffix)]
				trimmed = strings.TrimRight(trimmed, "-")
			}
			name = trimmed + "-" + suffix
		}
		taken[name] = true
		assigned[logical] = name
	}

	return assigned
}
