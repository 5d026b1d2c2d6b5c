package config

import (
	"fmt"
	"sort"
	"strings"
)

// NormalizeRoles trims role names and normalizes each permission list.
func NormalizeRoles(roles map[string][]string) (map[string][]string, error) {
	out := make(map[string][]string, len(roles))
	for name, perms := range roles {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return nil, fmt.Errorf("roles: empty role name")
		}
		if _, ok := out[trimmed]; ok {
			return nil, fmt.Errorf("roles: duplicate role %q", trimmed)
		}
		out[trimmed] = NormalizePermissions(perms)
	}
	return out, nil
}

// NormalizePermissions trims, de-duplicates, and sorts permissions.
func NormalizePermissions(perms []string) []string {
	if len(perms) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	sort.Strings(normalized)
	return normalized
}
