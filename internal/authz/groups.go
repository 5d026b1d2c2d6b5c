package authz

import (
	"strconv"
	"strings"
)

// All is the tag held by every item and granted to unrestricted actors.
const All = "all"

// nullValue is the tag value of an unset relation.
const nullValue = "null"

// Groups is a deduplicated set of group tags kept in insertion order.
type Groups []string

// NewGroups builds a Groups set, dropping empty and duplicate tags.
func NewGroups(tags ...string) Groups {
	out := make(Groups, 0, len(tags))
	return out.Add(tags...)
}

// Add returns g extended with tags that are not present yet.
func (g Groups) Add(tags ...string) Groups {
	for _, tag := range tags {
		if tag == "" || g.Has(tag) {
			continue
		}
		g = append(g, tag)
	}
	return g
}

// Has reports whether tag is in g.
func (g Groups) Has(tag string) bool {
	for _, existing := range g {
		if existing == tag {
			return true
		}
	}
	return false
}

// Intersects reports whether g and other share at least one tag.
func (g Groups) Intersects(other Groups) bool {
	for _, tag := range g {
		if other.Has(tag) {
			return true
		}
	}
	return false
}

// Union returns the tags of g followed by the tags of other not already in g.
func (g Groups) Union(other Groups) Groups {
	out := make(Groups, 0, len(g)+len(other))
	return out.Add(g...).Add(other...)
}

// IDTag is the tag of a single item.
func IDTag(id uint64) string {
	return "id:" + strconv.FormatUint(id, 10)
}

// RefTag is the tag of a nullable foreign key; nil yields `<relation>:null`.
func RefTag(relation string, id *uint64) string {
	if id == nil {
		return relation + ":" + nullValue
	}
	return RelationTag(relation, strconv.FormatUint(*id, 10))
}

// RelationTag is the tag `<relation>:<value>`.
func RelationTag(relation, value string) string {
	return relation + ":" + value
}

// splitTag separates a tag on its first colon.
func splitTag(tag string) (relation, value string, ok bool) {
	return strings.Cut(tag, ":")
}
