package authz

import "github.com/flux-project/flux-server/internal/models"

// Policy computes the group tags deciding who may act on items of one entity type.
// An action is allowed when the actor's groups intersect the item's groups.
type Policy[E models.Entity] interface {
	ReadGroups(actor *Actor) Groups
	CreateGroups(actor *Actor) Groups
	UpdateGroups(actor *Actor) Groups
	DestroyGroups(actor *Actor) Groups
	ItemGroups(item E) Groups
	// Relations maps the relation names used in tags to queryable columns.
	Relations() map[string]Relation
}

// Relation is the column backing a tag relation.
type Relation struct {
	Column  string
	Numeric bool
}

// IDRelation is a numeric foreign-key column.
func IDRelation(column string) Relation { return Relation{Column: column, Numeric: true} }

// TextRelation is a text column.
func TextRelation(column string) Relation { return Relation{Column: column} }

// Allowed reports whether actorGroups grant access to an item holding itemGroups.
func Allowed(actorGroups, itemGroups Groups) bool {
	return actorGroups.Intersects(itemGroups)
}

// DefaultPolicy grants everything to `<type>/admin` and reads to `<type>/read`.
type DefaultPolicy[E models.Entity] struct {
	Type string
}

// ReadGroups implements Policy.
func (p DefaultPolicy[E]) ReadGroups(actor *Actor) Groups {
	if actor.CanAny(p.Type+"/read", p.Type+"/admin") {
		return NewGroups(All)
	}
	return NewGroups()
}

// CreateGroups implements Policy.
func (p DefaultPolicy[E]) CreateGroups(actor *Actor) Groups { return p.admin(actor) }

// UpdateGroups implements Policy.
func (p DefaultPolicy[E]) UpdateGroups(actor *Actor) Groups { return p.admin(actor) }

// DestroyGroups implements Policy.
func (p DefaultPolicy[E]) DestroyGroups(actor *Actor) Groups { return p.admin(actor) }

// ItemGroups implements Policy.
func (p DefaultPolicy[E]) ItemGroups(item E) Groups {
	return NewGroups(IDTag(item.Meta().ID), All)
}

// Relations implements Policy.
func (p DefaultPolicy[E]) Relations() map[string]Relation { return nil }

func (p DefaultPolicy[E]) admin(actor *Actor) Groups {
	if actor.Can(p.Type + "/admin") {
		return NewGroups(All)
	}
	return NewGroups()
}
