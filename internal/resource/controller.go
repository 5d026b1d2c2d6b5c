package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/flux-project/flux-server/internal/authz"
	"github.com/flux-project/flux-server/internal/db"
	"github.com/flux-project/flux-server/internal/httperr"
	"github.com/flux-project/flux-server/internal/metrics"
	"github.com/flux-project/flux-server/internal/models"
	"github.com/flux-project/flux-server/internal/realtime"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Push verbs.
const (
	VerbCreated   = "created"
	VerbUpdated   = "updated"
	VerbDestroyed = "destroyed"
)

// Publisher pushes entity changes to realtime rooms.
type Publisher interface {
	Publish(ctx context.Context, event string, deliveries ...realtime.Delivery)
}

// Rooms manages realtime room memberships.
type Rooms interface {
	Join(connID string, rooms ...string) error
	Leave(connID string, rooms ...string)
}

// Operation identifies the write a Prepare hook runs for.
type Operation int

const (
	OpCreate Operation = iota
	OpUpdate
)

// Descriptor binds an entity type to its policy and its write hooks.
type Descriptor[E models.Entity] struct {
	New    func() E
	Policy authz.Policy[E]
	// Filters whitelists query parameters usable as equality filters.
	Filters map[string]authz.Relation
	// Prepare fills server-controlled fields before validation.
	Prepare func(actor *authz.Actor, item E, op Operation)
	// Validate checks field-level constraints.
	Validate func(item E) error
}

// Push is the payload of an entity change notification.
type Push struct {
	Verb string `json:"verb"`
	ID   uint64 `json:"id"`
	Data any    `json:"data,omitempty"`
}

// Controller enforces a policy on reads and writes of one entity type.
type Controller[E models.Entity] struct {
	db        *gorm.DB
	desc      Descriptor[E]
	identity  string
	publisher Publisher
	rooms     Rooms
}

// NewController builds a controller. publisher and rooms may be nil when no realtime transport runs.
func NewController[E models.Entity](conn *gorm.DB, desc Descriptor[E], publisher Publisher, rooms Rooms) *Controller[E] {
	return &Controller[E]{
		db:        conn,
		desc:      desc,
		identity:  desc.New().Identity(),
		publisher: publisher,
		rooms:     rooms,
	}
}

// Identity returns the entity type name.
func (c *Controller[E]) Identity() string { return c.identity }

// Find returns the readable items matching where, ordered by creation time.
// An actor without read groups gets an empty result and no query is issued.
func (c *Controller[E]) Find(ctx context.Context, actor *authz.Actor, where map[string]any) ([]E, error) {
	filter := authz.ReadFilter(c.desc.Policy, actor)
	items := make([]E, 0)
	if !filter.MatchAll && len(filter.Predicates) == 0 {
		return items, nil
	}

	query := filter.Apply(c.db.WithContext(ctx).Model(c.desc.New()))
	for column, value := range where {
		query = query.Where(clause.Eq{Column: clause.Column{Name: column}, Value: value})
	}
	if errFind := query.Order("created_at ASC").Order("id ASC").Find(&items).Error; errFind != nil {
		return nil, fmt.Errorf("resource: find %s: %w", c.identity, errFind)
	}
	return items, nil
}

// Get returns one readable item, or NotFound.
func (c *Controller[E]) Get(ctx context.Context, actor *authz.Actor, id uint64) (E, error) {
	var zero E
	items, err := c.Find(ctx, actor, map[string]any{"id": id})
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, httperr.NotFound(fmt.Sprintf("%s %d not found", c.identity, id))
	}
	return items[0], nil
}

// ParseFilters converts whitelisted query parameters into column conditions.
func (c *Controller[E]) ParseFilters(params map[string][]string) (map[string]any, error) {
	where := make(map[string]any)
	for name, values := range params {
		relation, ok := c.desc.Filters[name]
		if !ok || len(values) == 0 {
			continue
		}
		raw := values[len(values)-1]
		switch {
		case raw == "null":
			where[relation.Column] = nil
		case relation.Numeric:
			id, errParse := strconv.ParseUint(raw, 10, 64)
			if errParse != nil {
				return nil, httperr.BadRequest(fmt.Sprintf("Invalid %s filter", name))
			}
			where[relation.Column] = id
		default:
			where[relation.Column] = raw
		}
	}
	return where, nil
}

// Create builds an item from payload and persists it when the actor may create it.
func (c *Controller[E]) Create(ctx context.Context, actor *authz.Actor, payload []byte) (E, error) {
	var zero E
	item := c.desc.New()
	if errDecode := decode(payload, item); errDecode != nil {
		return zero, errDecode
	}
	*item.Meta() = models.Base{}
	if c.desc.Prepare != nil {
		c.desc.Prepare(actor, item, OpCreate)
	}
	if errValidate := c.validate(item); errValidate != nil {
		return zero, errValidate
	}
	if !authz.Allowed(c.desc.Policy.CreateGroups(actor), c.desc.Policy.ItemGroups(item)) {
		metrics.RecordDenial(c.identity, "create")
		return zero, httperr.Forbidden(fmt.Sprintf("You are not allowed to create this %s", c.identity))
	}

	if errCreate := c.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error; errCreate != nil {
		return zero, storageError(c.identity, "create", errCreate)
	}
	c.publish(ctx, VerbCreated, item, nil)
	return item, nil
}

// Update applies payload to an item. The actor must be allowed to update the item both before and after the change.
func (c *Controller[E]) Update(ctx context.Context, actor *authz.Actor, id uint64, payload []byte) (E, error) {
	var zero E
	before, errLoad := c.load(ctx, id)
	if errLoad != nil {
		return zero, errLoad
	}
	groups := c.desc.Policy.UpdateGroups(actor)
	if !authz.Allowed(groups, c.desc.Policy.ItemGroups(before)) {
		metrics.RecordDenial(c.identity, "update")
		return zero, httperr.Forbidden(fmt.Sprintf("You are not allowed to update this %s", c.identity))
	}

	after, errLoad := c.load(ctx, id)
	if errLoad != nil {
		return zero, errLoad
	}
	if errDecode := decode(payload, after); errDecode != nil {
		return zero, errDecode
	}
	*after.Meta() = *before.Meta()
	if c.desc.Prepare != nil {
		c.desc.Prepare(actor, after, OpUpdate)
	}
	if errValidate := c.validate(after); errValidate != nil {
		return zero, errValidate
	}
	if !authz.Allowed(groups, c.desc.Policy.ItemGroups(after)) {
		metrics.RecordDenial(c.identity, "update")
		return zero, httperr.Forbidden(fmt.Sprintf("You are not allowed to move this %s outside of your authorized scope", c.identity))
	}

	if errSave := c.db.WithContext(ctx).Omit(clause.Associations).Save(after).Error; errSave != nil {
		return zero, storageError(c.identity, "update", errSave)
	}
	c.publish(ctx, VerbUpdated, after, c.RoomsFor(c.desc.Policy.ItemGroups(before)))
	return after, nil
}

// Destroy deletes an item when the actor may destroy it and returns the deleted item.
func (c *Controller[E]) Destroy(ctx context.Context, actor *authz.Actor, id uint64) (E, error) {
	var zero E
	item, errLoad := c.load(ctx, id)
	if errLoad != nil {
		return zero, errLoad
	}
	if !authz.Allowed(c.desc.Policy.DestroyGroups(actor), c.desc.Policy.ItemGroups(item)) {
		metrics.RecordDenial(c.identity, "destroy")
		return zero, httperr.Forbidden(fmt.Sprintf("You are not allowed to destroy this %s", c.identity))
	}
	if errDelete := c.db.WithContext(ctx).Delete(c.desc.New(), id).Error; errDelete != nil {
		return zero, storageError(c.identity, "destroy", errDelete)
	}
	c.publish(ctx, VerbDestroyed, item, nil)
	return item, nil
}

// Subscribe joins the connection to the rooms of the actor's read groups.
func (c *Controller[E]) Subscribe(actor *authz.Actor, connID string) ([]string, error) {
	if connID == "" || c.rooms == nil {
		return nil, httperr.BadRequest("Subscriptions are only available over a socket connection")
	}
	rooms := c.RoomsFor(c.desc.Policy.ReadGroups(actor))
	if len(rooms) == 0 {
		return rooms, nil
	}
	if errJoin := c.rooms.Join(connID, rooms...); errJoin != nil {
		if errors.Is(errJoin, realtime.ErrUnknownConnection) {
			return nil, httperr.BadRequest("Unknown socket connection")
		}
		return nil, errJoin
	}
	return rooms, nil
}

// Unsubscribe leaves the rooms joined by Subscribe.
func (c *Controller[E]) Unsubscribe(actor *authz.Actor, connID string) ([]string, error) {
	if connID == "" || c.rooms == nil {
		return nil, httperr.BadRequest("Subscriptions are only available over a socket connection")
	}
	rooms := c.RoomsFor(c.desc.Policy.ReadGroups(actor))
	c.rooms.Leave(connID, rooms...)
	return rooms, nil
}

// RoomsFor names the rooms `model:<type>:<tag>` of groups.
func (c *Controller[E]) RoomsFor(groups authz.Groups) []string {
	rooms := make([]string, 0, len(groups))
	for _, tag := range groups {
		rooms = append(rooms, c.TypeRoom()+":"+tag)
	}
	return rooms
}

// TypeRoom is the untagged room of the entity type.
func (c *Controller[E]) TypeRoom() string {
	return "model:" + c.identity
}

// publish notifies the item's rooms. Rooms in previous that cannot see the item anymore
// receive the change without data.
func (c *Controller[E]) publish(ctx context.Context, verb string, item E, previous []string) {
	if c.publisher == nil {
		return
	}
	meta := item.Meta()
	visible := append(c.RoomsFor(c.desc.Policy.ItemGroups(item)), c.TypeRoom())
	if verb == VerbDestroyed {
		c.publisher.Publish(ctx, c.identity, realtime.Delivery{Rooms: visible, Payload: Push{Verb: verb, ID: meta.ID}})
		return
	}
	deliveries := []realtime.Delivery{{Rooms: visible, Payload: Push{Verb: verb, ID: meta.ID, Data: item}}}
	if len(previous) > 0 {
		deliveries = append(deliveries, realtime.Delivery{Rooms: previous, Payload: Push{Verb: verb, ID: meta.ID}})
	}
	c.publisher.Publish(ctx, c.identity, deliveries...)
}

func (c *Controller[E]) load(ctx context.Context, id uint64) (E, error) {
	var zero E
	item := c.desc.New()
	if errFind := c.db.WithContext(ctx).Take(item, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return zero, httperr.NotFound(fmt.Sprintf("%s %d not found", c.identity, id))
		}
		return zero, fmt.Errorf("resource: load %s %d: %w", c.identity, id, errFind)
	}
	return item, nil
}

func (c *Controller[E]) validate(item E) error {
	if c.desc.Validate == nil {
		return nil
	}
	if err := c.desc.Validate(item); err != nil {
		var apiErr *httperr.Error
		if errors.As(err, &apiErr) {
			return apiErr
		}
		return httperr.BadRequest(err.Error())
	}
	return nil
}

func decode(payload []byte, item any) error {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return httperr.BadRequest("Missing request body")
	}
	if err := json.Unmarshal(payload, item); err != nil {
		return httperr.BadRequest("Invalid request body: " + err.Error())
	}
	return nil
}

func storageError(identity, op string, err error) error {
	if db.IsUniqueViolation(err) {
		return httperr.Expected(http.StatusBadRequest, httperr.StatusUniqueViolation, fmt.Sprintf("This %s conflicts with an existing one", identity)).Wrap(err)
	}
	return fmt.Errorf("resource: %s %s: %w", op, identity, err)
}
