package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// maxSubjectLength bounds the subject kept verbatim in a key; longer subjects are hashed.
const maxSubjectLength = 64

// KeyForDecision builds a limiter key for the resolved scope.
func KeyForDecision(decision Decision) string {
	subject := strings.TrimSpace(decision.Subject)
	if subject == "" || decision.Limit <= 0 {
		return ""
	}
	switch decision.Scope {
	case ScopeIP:
		return "login:ip:" + boundedSubject(subject)
	case ScopeLogin:
		return "login:user:" + boundedSubject(strings.ToLower(subject))
	default:
		return ""
	}
}

func boundedSubject(subject string) string {
	if len(subject) <= maxSubjectLength {
		return subject
	}
	sum := sha256.Sum256([]byte(subject))
	return "sha256:" + hex.EncodeToString(sum[:])
}
