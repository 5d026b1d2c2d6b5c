package authz

import (
	"strconv"

	"github.com/flux-project/flux-server/internal/models"
)

// TeamPolicy lets every team read itself.
type TeamPolicy struct {
	DefaultPolicy[*models.Team]
}

// ReadGroups implements Policy.
func (p TeamPolicy) ReadGroups(actor *Actor) Groups {
	groups := p.DefaultPolicy.ReadGroups(actor)
	if actor.TeamID() != 0 {
		groups = groups.Add(IDTag(actor.TeamID()))
	}
	return groups
}

// UserPolicy lets users read themselves and `user/team` holders manage their team members.
type UserPolicy struct {
	DefaultPolicy[*models.User]
}

// ReadGroups implements Policy.
func (p UserPolicy) ReadGroups(actor *Actor) Groups {
	groups := p.DefaultPolicy.ReadGroups(actor)
	if actor.UserID() != 0 {
		groups = groups.Add(IDTag(actor.UserID()))
	}
	return p.withTeam(actor, groups)
}

// CreateGroups implements Policy.
func (p UserPolicy) CreateGroups(actor *Actor) Groups {
	return p.withTeam(actor, p.DefaultPolicy.CreateGroups(actor))
}

// UpdateGroups implements Policy.
func (p UserPolicy) UpdateGroups(actor *Actor) Groups {
	return p.withTeam(actor, p.DefaultPolicy.UpdateGroups(actor))
}

// DestroyGroups implements Policy.
func (p UserPolicy) DestroyGroups(actor *Actor) Groups {
	return p.withTeam(actor, p.DefaultPolicy.DestroyGroups(actor))
}

// ItemGroups implements Policy.
func (p UserPolicy) ItemGroups(item *models.User) Groups {
	teamID := item.TeamID
	return p.DefaultPolicy.ItemGroups(item).Add(RefTag("team", &teamID))
}

// Relations implements Policy.
func (UserPolicy) Relations() map[string]Relation {
	return map[string]Relation{"team": IDRelation("team_id")}
}

func (p UserPolicy) withTeam(actor *Actor, groups Groups) Groups {
	if actor.Can("user/team") && actor.TeamID() != 0 {
		groups = groups.Add(RelationTag("team", actor.teamIDString()))
	}
	return groups
}

// SessionPolicy lets users list and close their own sessions.
type SessionPolicy struct {
	DefaultPolicy[*models.Session]
}

// ReadGroups implements Policy.
func (p SessionPolicy) ReadGroups(actor *Actor) Groups {
	return p.withSelf(actor, p.DefaultPolicy.ReadGroups(actor))
}

// DestroyGroups implements Policy.
func (p SessionPolicy) DestroyGroups(actor *Actor) Groups {
	return p.withSelf(actor, p.DefaultPolicy.DestroyGroups(actor))
}

// ItemGroups implements Policy.
func (p SessionPolicy) ItemGroups(item *models.Session) Groups {
	userID := item.UserID
	return p.DefaultPolicy.ItemGroups(item).Add(RefTag("user", &userID))
}

// Relations implements Policy.
func (SessionPolicy) Relations() map[string]Relation {
	return map[string]Relation{"user": IDRelation("user_id")}
}

func (SessionPolicy) withSelf(actor *Actor, groups Groups) Groups {
	if actor.UserID() != 0 {
		groups = groups.Add(RelationTag("user", strconv.FormatUint(actor.UserID(), 10)))
	}
	return groups
}

// AlertPolicy scopes alerts to the sending and receiving teams.
type AlertPolicy struct {
	DefaultPolicy[*models.Alert]
}

// ReadGroups implements Policy.
func (p AlertPolicy) ReadGroups(actor *Actor) Groups {
	groups := p.DefaultPolicy.ReadGroups(actor)
	if actor.Can("alert/restrictedSender") {
		groups = groups.Add(RelationTag("senderTeam", actor.teamIDString()))
	}
	if actor.Can("alert/restrictedReceiver") {
		groups = groups.Add(RelationTag("receiverTeam", actor.teamIDString()))
	}
	if actor.Can("alert/nullReceiver") {
		groups = groups.Add(RefTag("receiverTeam", nil))
	}
	return groups
}

// CreateGroups implements Policy.
func (p AlertPolicy) CreateGroups(actor *Actor) Groups {
	groups := p.DefaultPolicy.CreateGroups(actor)
	if actor.Can("alert/restrictedSender") {
		groups = groups.Add(RelationTag("senderTeam", actor.teamIDString()))
	}
	return groups
}

// UpdateGroups implements Policy.
func (p AlertPolicy) UpdateGroups(actor *Actor) Groups {
	groups := p.DefaultPolicy.UpdateGroups(actor)
	if actor.Can("alert/restrictedSender") {
		groups = groups.Add(RelationTag("senderTeam", actor.teamIDString()))
	}
	if actor.Can("alert/restrictedReceiver") {
		groups = groups.Add(RelationTag("receiverTeam", actor.teamIDString()))
	}
	if actor.Can("alert/nullReceiver") {
		groups = groups.Add(RefTag("receiverTeam", nil))
	}
	return groups
}

// ItemGroups implements Policy.
func (p AlertPolicy) ItemGroups(item *models.Alert) Groups {
	return p.DefaultPolicy.ItemGroups(item).Add(
		RefTag("senderTeam", item.SenderTeamID),
		RefTag("receiverTeam", item.ReceiverTeamID),
	)
}

// Relations implements Policy.
func (AlertPolicy) Relations() map[string]Relation {
	return map[string]Relation{
		"senderTeam":   IDRelation("sender_team_id"),
		"receiverTeam": IDRelation("receiver_team_id"),
	}
}

// AlertButtonPolicy shows buttons to the team group allowed to press them.
type AlertButtonPolicy struct {
	DefaultPolicy[*models.AlertButton]
}

// ReadGroups implements Policy.
func (p AlertButtonPolicy) ReadGroups(actor *Actor) Groups {
	groups := p.DefaultPolicy.ReadGroups(actor)
	if actor.Can("alert/restrictedSender") && actor.TeamGroup() != "" {
		groups = groups.Add(RelationTag("senderGroup", actor.TeamGroup()))
	}
	return groups
}

// ItemGroups implements Policy.
func (p AlertButtonPolicy) ItemGroups(item *models.AlertButton) Groups {
	return p.DefaultPolicy.ItemGroups(item).Add(RelationTag("senderGroup", item.SenderGroup))
}

// Relations implements Policy.
func (AlertButtonPolicy) Relations() map[string]Relation {
	return map[string]Relation{"senderGroup": TextRelation("sender_group")}
}

// BarrelPolicy lets `barrel/restricted` teams see and update the barrels placed at them.
type BarrelPolicy struct {
	DefaultPolicy[*models.Barrel]
}

// ReadGroups implements Policy.
func (p BarrelPolicy) ReadGroups(actor *Actor) Groups {
	return p.withPlace(actor, p.DefaultPolicy.ReadGroups(actor))
}

// UpdateGroups implements Policy.
func (p BarrelPolicy) UpdateGroups(actor *Actor) Groups {
	return p.withPlace(actor, p.DefaultPolicy.UpdateGroups(actor))
}

// ItemGroups implements Policy.
func (p BarrelPolicy) ItemGroups(item *models.Barrel) Groups {
	return p.DefaultPolicy.ItemGroups(item).Add(RefTag("place", item.PlaceID))
}

// Relations implements Policy.
func (BarrelPolicy) Relations() map[string]Relation {
	return map[string]Relation{"place": IDRelation("place_id")}
}

func (BarrelPolicy) withPlace(actor *Actor, groups Groups) Groups {
	if actor.Can("barrel/restricted") && actor.TeamID() != 0 {
		groups = groups.Add(RelationTag("place", actor.teamIDString()))
	}
	return groups
}

// BottleActionPolicy lets `bottleAction/restricted` teams see and record their own stock moves.
type BottleActionPolicy struct {
	DefaultPolicy[*models.BottleAction]
}

// ReadGroups implements Policy.
func (p BottleActionPolicy) ReadGroups(actor *Actor) Groups {
	return p.withTeam(actor, p.DefaultPolicy.ReadGroups(actor))
}

// CreateGroups implements Policy.
func (p BottleActionPolicy) CreateGroups(actor *Actor) Groups {
	return p.withTeam(actor, p.DefaultPolicy.CreateGroups(actor))
}

// ItemGroups implements Policy.
func (p BottleActionPolicy) ItemGroups(item *models.BottleAction) Groups {
	return p.DefaultPolicy.ItemGroups(item).Add(RefTag("team", item.TeamID))
}

// Relations implements Policy.
func (BottleActionPolicy) Relations() map[string]Relation {
	return map[string]Relation{"team": IDRelation("team_id")}
}

func (BottleActionPolicy) withTeam(actor *Actor, groups Groups) Groups {
	if actor.Can("bottleAction/restricted") && actor.TeamID() != 0 {
		groups = groups.Add(RelationTag("team", actor.teamIDString()))
	}
	return groups
}

// MessagePolicy maps chat permissions onto channels.
type MessagePolicy struct {
	DefaultPolicy[*models.Message]
}

// ReadGroups implements Policy.
func (p MessagePolicy) ReadGroups(actor *Actor) Groups {
	groups := p.channels(actor, p.adminOnly(actor))
	if actor.Can("message/private") && actor.TeamID() != 0 {
		groups = groups.Add(RelationTag("senderTeam", actor.teamIDString()))
	}
	return groups
}

// CreateGroups implements Policy.
func (p MessagePolicy) CreateGroups(actor *Actor) Groups {
	groups := p.channels(actor, p.adminOnly(actor))
	if actor.Can("message/oneChannel") && actor.TeamID() != 0 {
		groups = groups.Add(RelationTag("channel", models.ChannelPrivate+":"+actor.teamIDString()))
	}
	return groups
}

// ItemGroups implements Policy.
func (p MessagePolicy) ItemGroups(item *models.Message) Groups {
	return p.DefaultPolicy.ItemGroups(item).Add(
		RelationTag("kind", item.Kind),
		RelationTag("channel", item.Channel),
		RefTag("senderTeam", item.SenderTeamID),
	)
}

// Relations implements Policy.
func (MessagePolicy) Relations() map[string]Relation {
	return map[string]Relation{
		"kind":       TextRelation("kind"),
		"channel":    TextRelation("channel"),
		"senderTeam": IDRelation("sender_team_id"),
	}
}

// adminOnly ignores `message/read`; reading the whole chat requires `message/admin`.
func (MessagePolicy) adminOnly(actor *Actor) Groups {
	if actor.Can("message/admin") {
		return NewGroups(All)
	}
	return NewGroups()
}

func (MessagePolicy) channels(actor *Actor, groups Groups) Groups {
	if actor.Can("message/public") {
		groups = groups.Add(RelationTag("kind", models.ChannelPublic))
	}
	if actor.Can("message/group") && actor.TeamGroup() != "" {
		groups = groups.Add(RelationTag("channel", models.ChannelGroup+":"+actor.TeamGroup()))
	}
	if actor.Can("message/private") && actor.TeamID() != 0 {
		groups = groups.Add(RelationTag("channel", models.ChannelPrivate+":"+actor.teamIDString()))
	}
	return groups
}

// ErrorLogPolicy accepts reports from any authenticated actor.
type ErrorLogPolicy struct {
	DefaultPolicy[*models.ErrorLog]
}

// CreateGroups implements Policy.
func (p ErrorLogPolicy) CreateGroups(actor *Actor) Groups {
	if actor.Authenticated() {
		return NewGroups(All)
	}
	return p.DefaultPolicy.CreateGroups(actor)
}
