// Package columns turns raw header cells into legal, unique column names.
package columns

import (
	"fmt"
	"strings"
)

// Placeholder returns the synthetic name used for a header cell that holds no
// usable text.
func Placeholder(index int) string {
	return fmt.Sprintf("Column_%d", index)
}

// IsPlaceholder reports whether name is the synthetic name for index.
func IsPlaceholder(name string, index int) bool {
	return name == Placeholder(index)
}

// Sanitize returns the trimmed header text, or the placeholder for index when
// the cell is blank or reads as "nan" / "none" in any case.
func Sanitize(raw string, index int) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Placeholder(index)
	}
	switch strings.ToLower(s) {
	case "nan", "none":
		return Placeholder(index)
	}
	return s
}

// MakeUnique sanitizes every name by position and suffixes repeats: the
// second "Amount" becomes "Amount_1", the third "Amount_2". A suffixed name
// that collides with one already emitted keeps counting, so the output never
// holds duplicates.
func MakeUnique(raw []string) []string {
	seen := make(map[string]int, len(raw))
	used := make(map[string]bool, len(raw))
	out := make([]string, len(raw))

	for i, r := range raw {
		name := Sanitize(r, i)
		n, ok := seen[name]
		if !ok && !used[name] {
			seen[name] = 0
			used[name] = true
			out[i] = name
			continue
		}

		candidate := ""
		for {
			n++
			candidate = fmt.Sprintf("%s_%d", name, n)
			if !used[candidate] {
				break
			}
		}
		seen[name] = n
		used[candidate] = true
		out[i] = candidate
	}

	return out
}
