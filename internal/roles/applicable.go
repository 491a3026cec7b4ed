package roles

import (
	"slices"
	"sort"
)

// Applicable intersects a user's roles with the enabled roles and drops excluded ones.
// The result is sorted and free of duplicates.
func Applicable(userRoles, enabled, excluded []string) []string {
	out := make([]string, 0, len(userRoles))
	for _, role := range userRoles {
		if !slices.Contains(enabled, role) || slices.Contains(excluded, role) {
			continue
		}
		out = append(out, role)
	}
	sort.Strings(out)
	return slices.Compact(out)
}
