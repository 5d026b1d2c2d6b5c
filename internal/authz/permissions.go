package authz

import (
	"fmt"
	"sort"
	"strings"
)

// Identities lists every entity type exposed through the generic controllers.
var Identities = []string{
	"team", "user", "session", "alert", "alertButton",
	"barrelType", "barrel", "bottleType", "bottleAction", "message", "errorLog",
}

// Special permissions beyond `<type>/read` and `<type>/admin`.
const (
	PermAuthAs = "auth/as"
)

var extraPermissions = []string{
	PermAuthAs,
	"user/team",
	"alert/restrictedSender",
	"alert/restrictedReceiver",
	"alert/nullReceiver",
	"barrel/restricted",
	"bottleAction/restricted",
	"message/public",
	"message/group",
	"message/private",
	"message/oneChannel",
}

var definitionSet = buildDefinitionSet()

func buildDefinitionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(Identities)*2+len(extraPermissions))
	for _, identity := range Identities {
		set[identity+"/read"] = struct{}{}
		set[identity+"/admin"] = struct{}{}
	}
	for _, perm := range extraPermissions {
		set[perm] = struct{}{}
	}
	return set
}

// Definitions returns every known permission, sorted.
func Definitions() []string {
	out := make([]string, 0, len(definitionSet))
	for perm := range definitionSet {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}

// ValidatePermissions validates that all permissions exist in the definition set.
func ValidatePermissions(perms []string) error {
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := definitionSet[trimmed]; !ok {
			return fmt.Errorf("invalid permission: %s", trimmed)
		}
	}
	return nil
}

// ValidateRoles validates every role's permissions.
func ValidateRoles(roles map[string][]string) error {
	for name, perms := range roles {
		if err := ValidatePermissions(perms); err != nil {
			return fmt.Errorf("role %s: %w", name, err)
		}
	}
	return nil
}
