package resource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/flux-project/flux-server/internal/authz"
	"github.com/flux-project/flux-server/internal/db"
	"github.com/flux-project/flux-server/internal/httperr"
	"github.com/flux-project/flux-server/internal/models"
	"github.com/flux-project/flux-server/internal/realtime"
	"gorm.io/gorm"
)

var testRoles = map[string][]string{
	"orga":   {"alert/admin", "team/admin", "message/admin"},
	"bar":    {"alert/restrictedSender", "alertButton/read", "message/public", "message/group"},
	"nobody": {},
}

type recordedPush struct {
	event      string
	deliveries []realtime.Delivery
}

type fakePublisher struct {
	mu     sync.Mutex
	pushes []recordedPush
}

func (p *fakePublisher) Publish(_ context.Context, event string, deliveries ...realtime.Delivery) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, recordedPush{event: event, deliveries: deliveries})
}

type fixture struct {
	conn      *gorm.DB
	registry  *Registry
	publisher *fakePublisher
	hub       *realtime.Hub
	actors    map[string]*authz.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "resource.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	f := &fixture{conn: conn, publisher: &fakePublisher{}, hub: realtime.NewHub(), actors: map[string]*authz.Actor{}}
	f.registry = NewRegistry(conn, testRoles, f.publisher, f.hub)

	for _, role := range []string{"orga", "bar", "nobody"} {
		team := &models.Team{Name: role, Group: role, Role: role}
		if err := conn.Create(team).Error; err != nil {
			t.Fatalf("create team: %v", err)
		}
		user := &models.User{Name: role + "-user", TeamID: team.ID}
		if err := conn.Create(user).Error; err != nil {
			t.Fatalf("create user: %v", err)
		}
		f.actors[role] = authz.NewActor(user, team, testRoles)
	}
	return f
}

func (f *fixture) countAlerts(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.conn.Model(&models.Alert{}).Count(&n).Error; err != nil {
		t.Fatalf("count alerts: %v", err)
	}
	return n
}

func expectStatus(t *testing.T, err error, status string) *httperr.Error {
	t.Helper()
	var apiErr *httperr.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected %s error, got %v", status, err)
	}
	if apiErr.Status != status {
		t.Fatalf("expected status %s, got %s (%s)", status, apiErr.Status, apiErr.Message)
	}
	return apiErr
}

func alertPayload(teamID uint64) []byte {
	return []byte(`{"title":"Need ice","severity":"warning","senderTeamId":` + strconv.FormatUint(teamID, 10) + `}`)
}

func TestCreate_AlertScenarios(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alerts := f.registry.Alerts

	_, err := alerts.Create(ctx, f.actors["nobody"], alertPayload(f.actors["nobody"].TeamID()))
	expectStatus(t, err, httperr.StatusForbidden)
	if n := f.countAlerts(t); n != 0 {
		t.Fatalf("expected no rows after forbidden create, got %d", n)
	}

	bar := f.actors["bar"]
	created, err := alerts.Create(ctx, bar, alertPayload(bar.TeamID()))
	if err != nil {
		t.Fatalf("create own alert: %v", err)
	}
	if created.ID == 0 || created.SenderUserID == nil || *created.SenderUserID != bar.UserID() {
		t.Fatalf("expected persisted alert with sender user, got %+v", created)
	}

	_, err = alerts.Create(ctx, bar, alertPayload(f.actors["orga"].TeamID()))
	expectStatus(t, err, httperr.StatusForbidden)
	if n := f.countAlerts(t); n != 1 {
		t.Fatalf("expected one alert, got %d", n)
	}

	_, err = alerts.Create(ctx, bar, []byte(`{"title":"x","severity":"apocalyptic"}`))
	expectStatus(t, err, httperr.StatusBadRequest)
}

func TestUpdate_RechecksScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alerts := f.registry.Alerts
	bar := f.actors["bar"]

	created, err := alerts.Create(ctx, bar, alertPayload(bar.TeamID()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := alerts.Update(ctx, bar, created.ID, []byte(`{"title":"Need more ice","id":999}`))
	if err != nil {
		t.Fatalf("update in scope: %v", err)
	}
	if updated.Title != "Need more ice" || updated.ID != created.ID {
		t.Fatalf("unexpected update result %+v", updated)
	}

	_, errMove := alerts.Update(ctx, bar, created.ID, alertPayload(f.actors["orga"].TeamID()))
	moveErr := expectStatus(t, errMove, httperr.StatusForbidden)

	orgaAlert, err := alerts.Create(ctx, f.actors["orga"], alertPayload(f.actors["orga"].TeamID()))
	if err != nil {
		t.Fatalf("create orga alert: %v", err)
	}
	_, errBefore := alerts.Update(ctx, bar, orgaAlert.ID, []byte(`{"title":"mine"}`))
	beforeErr := expectStatus(t, errBefore, httperr.StatusForbidden)
	if moveErr.Message == beforeErr.Message {
		t.Fatalf("expected distinct forbidden messages, both %q", moveErr.Message)
	}

	var stored models.Alert
	if err = f.conn.Take(&stored, created.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.SenderTeamID == nil || *stored.SenderTeamID != bar.TeamID() || stored.Title != "Need more ice" {
		t.Fatalf("expected storage unchanged after denied move, got %+v", stored)
	}

	_, errMissing := alerts.Update(ctx, bar, 4242, []byte(`{"title":"x"}`))
	expectStatus(t, errMissing, httperr.StatusNotFound)
}

func TestFind_ScopesAndOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alerts := f.registry.Alerts
	bar, orga := f.actors["bar"], f.actors["orga"]

	first, _ := alerts.Create(ctx, bar, alertPayload(bar.TeamID()))
	_, _ = alerts.Create(ctx, orga, alertPayload(orga.TeamID()))
	third, _ := alerts.Create(ctx, bar, alertPayload(bar.TeamID()))

	items, err := alerts.Find(ctx, bar, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(items) != 2 || items[0].ID != first.ID || items[1].ID != third.ID {
		t.Fatalf("expected own alerts in creation order, got %+v", items)
	}

	all, err := alerts.Find(ctx, orga, map[string]any{"severity": "warning"})
	if err != nil || len(all) != 3 {
		t.Fatalf("expected admin to see 3 alerts, got %d (%v)", len(all), err)
	}

	none, err := alerts.Find(ctx, f.actors["nobody"], nil)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty result without error, got %d (%v)", len(none), err)
	}

	_, errGet := alerts.Get(ctx, bar, all[1].ID)
	expectStatus(t, errGet, httperr.StatusNotFound)
}

func TestDestroy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alerts := f.registry.Alerts
	bar, orga := f.actors["bar"], f.actors["orga"]

	created, _ := alerts.Create(ctx, bar, alertPayload(bar.TeamID()))

	_, err := alerts.Destroy(ctx, bar, created.ID)
	expectStatus(t, err, httperr.StatusForbidden)

	if _, err = alerts.Destroy(ctx, orga, created.ID); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	_, err = alerts.Destroy(ctx, orga, created.ID)
	expectStatus(t, err, httperr.StatusNotFound)

	last := f.publisher.pushes[len(f.publisher.pushes)-1]
	push, ok := last.deliveries[0].Payload.(Push)
	if !ok || push.Verb != VerbDestroyed || push.ID != created.ID || push.Data != nil {
		t.Fatalf("unexpected destroy push %+v", last.deliveries[0].Payload)
	}
}

func TestPublish_RoomsOnUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alerts := f.registry.Alerts
	orga := f.actors["orga"]

	created, _ := alerts.Create(ctx, orga, alertPayload(orga.TeamID()))
	if _, err := alerts.Update(ctx, orga, created.ID, []byte(`{"receiverTeamId":7}`)); err != nil {
		t.Fatalf("update: %v", err)
	}

	last := f.publisher.pushes[len(f.publisher.pushes)-1]
	if last.event != "alert" || len(last.deliveries) != 2 {
		t.Fatalf("unexpected push %+v", last)
	}
	visible := strings.Join(last.deliveries[0].Rooms, ",")
	previous := strings.Join(last.deliveries[1].Rooms, ",")
	if !strings.Contains(visible, "model:alert:receiverTeam:7") || !strings.HasSuffix(visible, ",model:alert") {
		t.Fatalf("expected new rooms and type room, got %s", visible)
	}
	if !strings.Contains(previous, "model:alert:receiverTeam:null") {
		t.Fatalf("expected previous rooms to include receiverTeam:null, got %s", previous)
	}
	if push := last.deliveries[1].Payload.(Push); push.Data != nil {
		t.Fatalf("expected previous rooms to get no data")
	}
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t)
	bar := f.actors["bar"]

	_, err := f.registry.Alerts.Subscribe(bar, "")
	expectStatus(t, err, httperr.StatusBadRequest)

	f.hub.Register(realtime.NewConn("sock", "", 8))
	rooms, err := f.registry.Alerts.Subscribe(bar, "sock")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	want := "model:alert:senderTeam:" + strconv.FormatUint(bar.TeamID(), 10)
	if len(rooms) != 1 || rooms[0] != want {
		t.Fatalf("expected [%s], got %v", want, rooms)
	}
	if joined := f.hub.Rooms("sock"); len(joined) != 1 || joined[0] != want {
		t.Fatalf("expected hub membership %s, got %v", want, joined)
	}

	if _, err = f.registry.Alerts.Unsubscribe(bar, "sock"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if joined := f.hub.Rooms("sock"); len(joined) != 0 {
		t.Fatalf("expected no rooms, got %v", joined)
	}
}

func TestMessage_SenderForced(t *testing.T) {
	f := newFixture(t)
	bar := f.actors["bar"]

	msg, err := f.registry.Messages.Create(context.Background(), bar, []byte(`{"channel":"group:bar","text":"hi","senderTeamId":1234}`))
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if msg.SenderTeamID == nil || *msg.SenderTeamID != bar.TeamID() || msg.Kind != models.ChannelGroup {
		t.Fatalf("expected forced sender and derived kind, got %+v", msg)
	}

	orga := f.actors["orga"]
	edited, err := f.registry.Messages.Update(context.Background(), orga, msg.ID, []byte(`{"text":"edited","senderTeamId":1234,"senderUserId":1234}`))
	if err != nil {
		t.Fatalf("update message: %v", err)
	}
	if edited.SenderTeamID == nil || *edited.SenderTeamID != orga.TeamID() || edited.SenderUserID == nil || *edited.SenderUserID != orga.UserID() {
		t.Fatalf("expected sender forced to the editing actor, got %+v", edited)
	}

	_, err = f.registry.Messages.Create(context.Background(), bar, []byte(`{"channel":"group:orga","text":"hi"}`))
	expectStatus(t, err, httperr.StatusForbidden)

	_, err = f.registry.Messages.Create(context.Background(), bar, []byte(`{"channel":"nowhere","text":"hi"}`))
	expectStatus(t, err, httperr.StatusBadRequest)
}

func TestTeam_RoleMustExist(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Teams.Create(context.Background(), f.actors["orga"], []byte(`{"name":"Bar 2","group":"bar","role":"ghost"}`))
	expectStatus(t, err, httperr.StatusBadRequest)
}

func TestUser_PasswordIsWriteOnly(t *testing.T) {
	f := newFixture(t)
	orga := f.actors["orga"]
	orga.Permissions = append(orga.Permissions, "user/admin")

	user, err := f.registry.Users.Create(context.Background(), orga, []byte(`{"name":"carol","login":"carol","password":"pw"}`))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	body, _ := json.Marshal(user)
	if strings.Contains(string(body), "pw") || strings.Contains(string(body), "password") {
		t.Fatalf("expected password to stay out of responses, got %s", body)
	}
	var stored models.User
	if err = f.conn.Take(&stored, user.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Password == "" || stored.Password == "pw" {
		t.Fatalf("expected hashed password, got %q", stored.Password)
	}
}

func TestMount_HTTP(t *testing.T) {
	f := newFixture(t)
	engine := newTestEngine(f, f.actors["bar"])

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alert", strings.NewReader(string(alertPayload(f.actors["bar"].TeamID())))))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alert?severity=warning", nil))
	var items []models.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil || len(items) != 1 {
		t.Fatalf("expected one alert, got %s (%v)", rec.Body.String(), err)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alert/999", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alert?senderTeamId=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alert/subscribe", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected subscribe over HTTP to fail with 400, got %d", rec.Code)
	}
}
