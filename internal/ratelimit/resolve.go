package ratelimit

import "strings"

// ResolveLogin returns the limits applied to a login attempt: one per client IP and,
// when a login name is supplied, one per account.
func ResolveLogin(settings SettingsConfig, ip, login string) []Decision {
	if settings.Limit <= 0 {
		return nil
	}
	decisions := make([]Decision, 0, 2)
	if ip = strings.TrimSpace(ip); ip != "" {
		decisions = append(decisions, Decision{Limit: settings.Limit, Scope: ScopeIP, Subject: ip})
	}
	if login = strings.TrimSpace(login); login != "" {
		decisions = append(decisions, Decision{Limit: settings.Limit, Scope: ScopeLogin, Subject: login})
	}
	return decisions
}
