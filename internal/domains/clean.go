package domains

import (
	"errors"
	"sort"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmptyQuery is returned when nothing remains after cleaning the search term.
	ErrEmptyQuery = errors.New("domains: empty query")
	// ErrInvalidName is returned when the cleaned name is not a valid DNS label.
	ErrInvalidName = errors.New("domains: invalid name")
)

const maxLabelLength = 63

// Clean lowercases raw, strips one trailing known suffix and converts the remaining label to
// its ASCII form.
func Clean(raw string, knownSuffixes []string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(norm.NFC.String(raw)))
	if name == "" {
		return "", ErrEmptyQuery
	}

	suffixes := append([]string(nil), knownSuffixes...)
	sort.SliceStable(suffixes, func(i, j int) bool { return len(suffixes[i]) > len(suffixes[j]) })
	for _, suffix := range suffixes {
		suffix = strings.ToLower(strings.TrimSpace(suffix))
		if suffix == "" {
			continue
		}
		if !strings.HasPrefix(suffix, ".") {
			suffix = "." + suffix
		}
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	if name == "" {
		return "", ErrEmptyQuery
	}
	if strings.Contains(name, ".") {
		return "", ErrInvalidName
	}

	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil || ascii == "" || len(ascii) > maxLabelLength {
		return "", ErrInvalidName
	}
	return ascii, nil
}
