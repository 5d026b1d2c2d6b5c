package models

import "strings"

// Channel kinds.
const (
	ChannelPublic  = "public"
	ChannelGroup   = "group"
	ChannelPrivate = "private"
)

// Message is a chat message posted to a channel such as `public:general`, `group:bar` or `private:12`.
type Message struct {
	Base

	SenderUserID *uint64 `gorm:"index" json:"senderUserId,omitempty"`
	SenderTeamID *uint64 `gorm:"index" json:"senderTeamId,omitempty"`
	Channel      string  `gorm:"type:text;not null;index" json:"channel"`
	Kind         string  `gorm:"type:text;not null;index" json:"kind"` // Derived from the channel prefix.
	Text         string  `gorm:"type:text;not null" json:"text"`
}

// Identity implements Entity.
func (*Message) Identity() string { return "message" }

// ChannelKind returns the kind prefix of channel, or "" when it is malformed.
func ChannelKind(channel string) string {
	kind, name, ok := strings.Cut(channel, ":")
	if !ok || strings.TrimSpace(name) == "" {
		return ""
	}
	switch kind {
	case ChannelPublic, ChannelGroup, ChannelPrivate:
		return kind
	default:
		return ""
	}
}
