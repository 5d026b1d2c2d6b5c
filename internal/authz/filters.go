package authz

import (
	"strconv"

	"github.com/flux-project/flux-server/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Predicate is an equality test; a nil Value tests IS NULL.
type Predicate struct {
	Column string
	Value  any
}

// Filter restricts a query to the items an actor may read.
// MatchAll skips filtering; an empty, non-MatchAll filter matches nothing.
type Filter struct {
	MatchAll   bool
	Predicates []Predicate
}

// ReadFilter converts the actor's read groups into OR-combined predicates.
func ReadFilter[E models.Entity](policy Policy[E], actor *Actor) Filter {
	return FilterFor(policy.ReadGroups(actor), policy.Relations())
}

// FilterFor converts groups into predicates using relations to resolve columns.
// Tags whose relation is unknown are dropped.
func FilterFor(groups Groups, relations map[string]Relation) Filter {
	filter := Filter{Predicates: []Predicate{}}
	for _, tag := range groups {
		if tag == All {
			return Filter{MatchAll: true}
		}
		relationName, raw, ok := splitTag(tag)
		if !ok {
			continue
		}
		relation, known := relations[relationName]
		if relationName == "id" {
			relation, known = IDRelation("id"), true
		}
		if !known {
			log.WithField("tag", tag).Warn("authz: read group has no relation column")
			continue
		}
		value, okValue := parseValue(relation, raw)
		if !okValue {
			continue
		}
		filter.Predicates = append(filter.Predicates, Predicate{Column: relation.Column, Value: value})
	}
	return filter
}

func parseValue(relation Relation, raw string) (any, bool) {
	if raw == nullValue {
		return nil, true
	}
	if !relation.Numeric {
		return raw, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, false
	}
	return id, true
}

// Apply restricts tx by f.
func (f Filter) Apply(tx *gorm.DB) *gorm.DB {
	if f.MatchAll {
		return tx
	}
	if len(f.Predicates) == 0 {
		return tx.Where("1 = 0")
	}
	group := tx.Session(&gorm.Session{NewDB: true})
	for i, predicate := range f.Predicates {
		var clauseSQL string
		var args []any
		if predicate.Value == nil {
			clauseSQL = tx.Statement.Quote(predicate.Column) + " IS NULL"
		} else {
			clauseSQL = tx.Statement.Quote(predicate.Column) + " = ?"
			args = []any{predicate.Value}
		}
		if i == 0 {
			group = group.Where(clauseSQL, args...)
		} else {
			group = group.Or(clauseSQL, args...)
		}
	}
	return tx.Where(group)
}
