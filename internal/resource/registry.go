package resource

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flux-project/flux-server/internal/authz"
	"github.com/flux-project/flux-server/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Mountable is a controller exposing HTTP routes.
type Mountable interface {
	Identity() string
	Path() string
	Mount(group *gin.RouterGroup)
}

// Registry holds one controller per entity type.
type Registry struct {
	Teams         *Controller[*models.Team]
	Users         *Controller[*models.User]
	Sessions      *Controller[*models.Session]
	Alerts        *Controller[*models.Alert]
	AlertButtons  *Controller[*models.AlertButton]
	BarrelTypes   *Controller[*models.BarrelType]
	Barrels       *Controller[*models.Barrel]
	BottleTypes   *Controller[*models.BottleType]
	BottleActions *Controller[*models.BottleAction]
	Messages      *Controller[*models.Message]
	ErrorLogs     *Controller[*models.ErrorLog]
}

// NewRegistry builds every controller. roles is used to validate team roles.
func NewRegistry(conn *gorm.DB, roles map[string][]string, publisher Publisher, rooms Rooms) *Registry {
	return &Registry{
		Teams:         NewController(conn, teamDescriptor(roles), publisher, rooms),
		Users:         NewController(conn, userDescriptor(), publisher, rooms),
		Sessions:      NewController(conn, sessionDescriptor(), publisher, rooms),
		Alerts:        NewController(conn, alertDescriptor(), publisher, rooms),
		AlertButtons:  NewController(conn, alertButtonDescriptor(), publisher, rooms),
		BarrelTypes:   NewController(conn, barrelTypeDescriptor(), publisher, rooms),
		Barrels:       NewController(conn, barrelDescriptor(), publisher, rooms),
		BottleTypes:   NewController(conn, bottleTypeDescriptor(), publisher, rooms),
		BottleActions: NewController(conn, bottleActionDescriptor(), publisher, rooms),
		Messages:      NewController(conn, messageDescriptor(), publisher, rooms),
		ErrorLogs:     NewController(conn, errorLogDescriptor(), publisher, rooms),
	}
}

// All lists the controllers in registration order.
func (r *Registry) All() []Mountable {
	return []Mountable{
		r.Teams, r.Users, r.Sessions, r.Alerts, r.AlertButtons,
		r.BarrelTypes, r.Barrels, r.BottleTypes, r.BottleActions, r.Messages, r.ErrorLogs,
	}
}

// Mount registers every controller's routes on group.
func (r *Registry) Mount(group *gin.RouterGroup) {
	for _, ctl := range r.All() {
		ctl.Mount(group)
	}
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, candidate := range allowed {
		if value == candidate {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s", field, strings.Join(allowed, ", "))
}

func ownTeam(actor *authz.Actor) *uint64 {
	if actor.TeamID() == 0 {
		return nil
	}
	id := actor.TeamID()
	return &id
}

func ownUser(actor *authz.Actor) *uint64 {
	if actor.UserID() == 0 {
		return nil
	}
	id := actor.UserID()
	return &id
}

func teamDescriptor(roles map[string][]string) Descriptor[*models.Team] {
	return Descriptor[*models.Team]{
		New:    func() *models.Team { return &models.Team{} },
		Policy: authz.TeamPolicy{DefaultPolicy: authz.DefaultPolicy[*models.Team]{Type: "team"}},
		Filters: map[string]authz.Relation{
			"group": authz.TextRelation("group"),
			"role":  authz.TextRelation("role"),
		},
		Validate: func(team *models.Team) error {
			if err := required("name", team.Name); err != nil {
				return err
			}
			if _, ok := roles[team.Role]; !ok {
				return fmt.Errorf("role %q is not defined", team.Role)
			}
			return nil
		},
	}
}

func userDescriptor() Descriptor[*models.User] {
	return Descriptor[*models.User]{
		New:    func() *models.User { return &models.User{} },
		Policy: authz.UserPolicy{DefaultPolicy: authz.DefaultPolicy[*models.User]{Type: "user"}},
		Filters: map[string]authz.Relation{
			"teamId": authz.IDRelation("team_id"),
			"login":  authz.TextRelation("login"),
			"ip":     authz.TextRelation("ip"),
		},
		Prepare: func(actor *authz.Actor, user *models.User, op Operation) {
			if op == OpCreate && user.TeamID == 0 {
				user.TeamID = actor.TeamID()
			}
		},
		Validate: func(user *models.User) error {
			if user.TeamID == 0 {
				return errors.New("teamId is required")
			}
			return required("name", user.Name)
		},
	}
}

func sessionDescriptor() Descriptor[*models.Session] {
	return Descriptor[*models.Session]{
		New:    func() *models.Session { return &models.Session{} },
		Policy: authz.SessionPolicy{DefaultPolicy: authz.DefaultPolicy[*models.Session]{Type: "session"}},
		Filters: map[string]authz.Relation{
			"userId": authz.IDRelation("user_id"),
		},
		Validate: func(sess *models.Session) error {
			if sess.UserID == 0 {
				return errors.New("userId is required")
			}
			return nil
		},
	}
}

func alertDescriptor() Descriptor[*models.Alert] {
	return Descriptor[*models.Alert]{
		New:    func() *models.Alert { return &models.Alert{} },
		Policy: authz.AlertPolicy{DefaultPolicy: authz.DefaultPolicy[*models.Alert]{Type: "alert"}},
		Filters: map[string]authz.Relation{
			"senderTeamId":   authz.IDRelation("sender_team_id"),
			"receiverTeamId": authz.IDRelation("receiver_team_id"),
			"buttonId":       authz.IDRelation("button_id"),
			"severity":       authz.TextRelation("severity"),
		},
		Prepare: func(actor *authz.Actor, alert *models.Alert, op Operation) {
			if op != OpCreate {
				return
			}
			if alert.SenderTeamID == nil {
				alert.SenderTeamID = ownTeam(actor)
			}
			if alert.SenderUserID == nil {
				alert.SenderUserID = ownUser(actor)
			}
		},
		Validate: func(alert *models.Alert) error {
			if err := required("title", alert.Title); err != nil {
				return err
			}
			return oneOf("severity", alert.Severity, models.SeverityDone, models.SeverityWarning, models.SeveritySerious)
		},
	}
}

func alertButtonDescriptor() Descriptor[*models.AlertButton] {
	return Descriptor[*models.AlertButton]{
		New:    func() *models.AlertButton { return &models.AlertButton{} },
		Policy: authz.AlertButtonPolicy{DefaultPolicy: authz.DefaultPolicy[*models.AlertButton]{Type: "alertButton"}},
		Filters: map[string]authz.Relation{
			"senderGroup":    authz.TextRelation("sender_group"),
			"receiverTeamId": authz.IDRelation("receiver_team_id"),
			"category":       authz.TextRelation("category"),
		},
		Validate: func(button *models.AlertButton) error {
			if err := required("title", button.Title); err != nil {
				return err
			}
			return required("senderGroup", button.SenderGroup)
		},
	}
}

func barrelTypeDescriptor() Descriptor[*models.BarrelType] {
	return Descriptor[*models.BarrelType]{
		New:    func() *models.BarrelType { return &models.BarrelType{} },
		Policy: authz.DefaultPolicy[*models.BarrelType]{Type: "barrelType"},
		Validate: func(barrelType *models.BarrelType) error {
			return required("name", barrelType.Name)
		},
	}
}

func barrelDescriptor() Descriptor[*models.Barrel] {
	return Descriptor[*models.Barrel]{
		New:    func() *models.Barrel { return &models.Barrel{} },
		Policy: authz.BarrelPolicy{DefaultPolicy: authz.DefaultPolicy[*models.Barrel]{Type: "barrel"}},
		Filters: map[string]authz.Relation{
			"typeId":  authz.IDRelation("type_id"),
			"placeId": authz.IDRelation("place_id"),
			"state":   authz.TextRelation("state"),
		},
		Prepare: func(_ *authz.Actor, barrel *models.Barrel, op Operation) {
			if op == OpCreate && barrel.State == "" {
				barrel.State = models.BarrelNew
			}
		},
		Validate: func(barrel *models.Barrel) error {
			if barrel.TypeID == 0 {
				return errors.New("typeId is required")
			}
			return oneOf("state", barrel.State, models.BarrelNew, models.BarrelOpened, models.BarrelEmpty)
		},
	}
}

func bottleTypeDescriptor() Descriptor[*models.BottleType] {
	return Descriptor[*models.BottleType]{
		New:    func() *models.BottleType { return &models.BottleType{} },
		Policy: authz.DefaultPolicy[*models.BottleType]{Type: "bottleType"},
		Validate: func(bottleType *models.BottleType) error {
			return required("name", bottleType.Name)
		},
	}
}

func bottleActionDescriptor() Descriptor[*models.BottleAction] {
	return Descriptor[*models.BottleAction]{
		New:    func() *models.BottleAction { return &models.BottleAction{} },
		Policy: authz.BottleActionPolicy{DefaultPolicy: authz.DefaultPolicy[*models.BottleAction]{Type: "bottleAction"}},
		Filters: map[string]authz.Relation{
			"teamId":     authz.IDRelation("team_id"),
			"fromTeamId": authz.IDRelation("from_team_id"),
			"typeId":     authz.IDRelation("type_id"),
			"operation":  authz.TextRelation("operation"),
		},
		Validate: func(action *models.BottleAction) error {
			if action.TypeID == 0 {
				return errors.New("typeId is required")
			}
			if action.Quantity == 0 {
				return errors.New("quantity must not be zero")
			}
			return oneOf("operation", action.Operation, models.OperationPurchased, models.OperationMoved)
		},
	}
}

func messageDescriptor() Descriptor[*models.Message] {
	return Descriptor[*models.Message]{
		New:    func() *models.Message { return &models.Message{} },
		Policy: authz.MessagePolicy{DefaultPolicy: authz.DefaultPolicy[*models.Message]{Type: "message"}},
		Filters: map[string]authz.Relation{
			"channel":      authz.TextRelation("channel"),
			"kind":         authz.TextRelation("kind"),
			"senderTeamId": authz.IDRelation("sender_team_id"),
		},
		Prepare: func(actor *authz.Actor, msg *models.Message, _ Operation) {
			msg.SenderTeamID = ownTeam(actor)
			msg.SenderUserID = ownUser(actor)
			msg.Kind = models.ChannelKind(msg.Channel)
		},
		Validate: func(msg *models.Message) error {
			if msg.Kind == "" {
				return fmt.Errorf("invalid channel %q", msg.Channel)
			}
			return required("text", msg.Text)
		},
	}
}

func errorLogDescriptor() Descriptor[*models.ErrorLog] {
	return Descriptor[*models.ErrorLog]{
		New:    func() *models.ErrorLog { return &models.ErrorLog{} },
		Policy: authz.ErrorLogPolicy{DefaultPolicy: authz.DefaultPolicy[*models.ErrorLog]{Type: "errorLog"}},
		Filters: map[string]authz.Relation{
			"userId": authz.IDRelation("user_id"),
			"teamId": authz.IDRelation("team_id"),
		},
		Prepare: func(actor *authz.Actor, entry *models.ErrorLog, op Operation) {
			if op == OpCreate {
				entry.UserID = ownUser(actor)
				entry.TeamID = ownTeam(actor)
			}
		},
		Validate: func(entry *models.ErrorLog) error {
			return required("message", entry.Message)
		},
	}
}
