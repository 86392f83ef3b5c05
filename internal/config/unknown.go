package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// suggestWithin is the largest edit distance still offered as a "did you
// mean" hint.
const suggestWithin = 3

// configKeys lists every key the file format accepts, sorted. It is read
// off the toml tags of Config so new fields cannot be forgotten here.
var configKeys = tomlKeys(reflect.TypeFor[Config]())

func tomlKeys(t reflect.Type) []string {
	var keys []string

	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous {
			keys = append(keys, tomlKeys(f.Type)...)

			continue
		}

		if name, _, _ := strings.Cut(f.Tag.Get("toml"), ","); name != "" && name != "-" {
			keys = append(keys, name)
		}
	}

	slices.Sort(keys)

	return keys
}

func isConfigKey(name string) bool {
	_, found := slices.BinarySearch(configKeys, name)

	return found
}

// checkUnknownKeys turns the keys toml could not decode into one error per
// key. A known key placed under a [table] gets its own message: the format
// is flat and sections are a common mistake.
func checkUnknownKeys(md *toml.MetaData) error {
	var (
		errs     []error
		reported = map[string]bool{}
	)

	for _, key := range md.Undecoded() {
		full := key.String()
		if reported[full] {
			continue
		}

		reported[full] = true
		leaf := key[len(key)-1]

		if len(key) > 1 && isConfigKey(leaf) {
			errs = append(errs, fmt.Errorf("config key %q must be at the top level, found %q", leaf, full))

			continue
		}

		if hint := suggestKey(leaf); hint != "" {
			errs = append(errs, fmt.Errorf("unknown config key %q, did you mean %q?", leaf, hint))
		} else {
			errs = append(errs, fmt.Errorf("unknown config key %q", leaf))
		}
	}

	return errors.Join(errs...)
}

// suggestKey returns the known key nearest to name, or "" when none is
// within suggestWithin edits. Ties go to the alphabetically first key.
func suggestKey(name string) string {
	name = strings.ToLower(name)
	best, bestDist := "", suggestWithin+1

	for _, k := range configKeys {
		if d := editDistance(name, k); d < bestDist {
			best, bestDist = k, d
		}
	}

	return best
}

// editDistance is the Levenshtein distance over bytes, computed with two
// rolling rows.
func editDistance(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		diag := row[0]
		row[0] = i

		for j := 1; j <= len(b); j++ {
			sub := diag
			if a[i-1] != b[j-1] {
				sub++
			}

			diag = row[j]
			row[j] = min(row[j]+1, row[j-1]+1, sub)
		}
	}

	return row[len(b)]
}
