package authz

import (
	"testing"

	"github.com/flux-project/flux-server/internal/models"
)

func u64(v uint64) *uint64 { return &v }

func actorWith(teamID uint64, group string, perms ...string) *Actor {
	team := &models.Team{Base: models.Base{ID: teamID}, Group: group, Role: "r"}
	user := &models.User{Base: models.Base{ID: 100 + teamID}, TeamID: teamID}
	return NewActor(user, team, map[string][]string{"r": perms})
}

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy[*models.BarrelType]{Type: "barrelType"}
	item := &models.BarrelType{Base: models.Base{ID: 3}}

	reader := actorWith(1, "bar", "barrelType/read")
	if !Allowed(policy.ReadGroups(reader), policy.ItemGroups(item)) {
		t.Fatalf("expected reader to read")
	}
	if Allowed(policy.UpdateGroups(reader), policy.ItemGroups(item)) {
		t.Fatalf("expected reader not to update")
	}

	admin := actorWith(1, "bar", "barrelType/admin")
	for name, groups := range map[string]Groups{
		"read":    policy.ReadGroups(admin),
		"create":  policy.CreateGroups(admin),
		"update":  policy.UpdateGroups(admin),
		"destroy": policy.DestroyGroups(admin),
	} {
		if !Allowed(groups, policy.ItemGroups(item)) {
			t.Fatalf("expected admin to %s", name)
		}
	}

	nobody := actorWith(1, "bar")
	if len(policy.ReadGroups(nobody)) != 0 {
		t.Fatalf("expected no read groups, got %v", policy.ReadGroups(nobody))
	}

	want := Groups{"id:3", "all"}
	got := policy.ItemGroups(item)
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected item groups %v, got %v", want, got)
	}
}

func TestAlertPolicy_RestrictedSender(t *testing.T) {
	policy := AlertPolicy{DefaultPolicy[*models.Alert]{Type: "alert"}}
	actor := actorWith(5, "bar", "alert/restrictedSender")

	own := &models.Alert{Base: models.Base{ID: 1}, SenderTeamID: u64(5)}
	other := &models.Alert{Base: models.Base{ID: 2}, SenderTeamID: u64(6)}

	if !Allowed(policy.ReadGroups(actor), policy.ItemGroups(own)) {
		t.Fatalf("expected sender team to read own alert")
	}
	if Allowed(policy.ReadGroups(actor), policy.ItemGroups(other)) {
		t.Fatalf("expected sender team not to read foreign alert")
	}
	if !Allowed(policy.UpdateGroups(actor), policy.ItemGroups(own)) {
		t.Fatalf("expected sender team to update own alert")
	}
	if Allowed(policy.DestroyGroups(actor), policy.ItemGroups(own)) {
		t.Fatalf("expected sender team not to destroy")
	}

	moved := *own
	moved.SenderTeamID = u64(6)
	if Allowed(policy.UpdateGroups(actor), policy.ItemGroups(&moved)) {
		t.Fatalf("expected moving alert out of scope to be denied")
	}
}

func TestAlertPolicy_NullReceiver(t *testing.T) {
	policy := AlertPolicy{DefaultPolicy[*models.Alert]{Type: "alert"}}
	actor := actorWith(5, "orga", "alert/nullReceiver")

	unassigned := &models.Alert{Base: models.Base{ID: 1}, SenderTeamID: u64(9)}
	assigned := &models.Alert{Base: models.Base{ID: 2}, SenderTeamID: u64(9), ReceiverTeamID: u64(7)}

	if !Allowed(policy.ReadGroups(actor), policy.ItemGroups(unassigned)) {
		t.Fatalf("expected null receiver alert to be readable")
	}
	if Allowed(policy.ReadGroups(actor), policy.ItemGroups(assigned)) {
		t.Fatalf("expected assigned alert to be hidden")
	}
}

func TestMessagePolicy_Channels(t *testing.T) {
	policy := MessagePolicy{DefaultPolicy[*models.Message]{Type: "message"}}
	actor := actorWith(4, "bar", "message/public", "message/group")

	public := &models.Message{Base: models.Base{ID: 1}, Channel: "public:general", Kind: models.ChannelPublic}
	group := &models.Message{Base: models.Base{ID: 2}, Channel: "group:bar", Kind: models.ChannelGroup}
	foreignGroup := &models.Message{Base: models.Base{ID: 3}, Channel: "group:orga", Kind: models.ChannelGroup}
	private := &models.Message{Base: models.Base{ID: 4}, Channel: "private:4", Kind: models.ChannelPrivate}

	read := policy.ReadGroups(actor)
	if !Allowed(read, policy.ItemGroups(public)) || !Allowed(read, policy.ItemGroups(group)) {
		t.Fatalf("expected public and own group channels to be readable, groups=%v", read)
	}
	if Allowed(read, policy.ItemGroups(foreignGroup)) {
		t.Fatalf("expected foreign group channel to be hidden")
	}
	if Allowed(read, policy.ItemGroups(private)) {
		t.Fatalf("expected private channel to need message/private")
	}

	oneChannel := actorWith(4, "bar", "message/oneChannel")
	if !Allowed(policy.CreateGroups(oneChannel), policy.ItemGroups(private)) {
		t.Fatalf("expected oneChannel to post to own private channel")
	}
	if Allowed(policy.ReadGroups(oneChannel), policy.ItemGroups(private)) {
		t.Fatalf("expected oneChannel not to grant reads")
	}
}

func TestUserPolicy_TeamScope(t *testing.T) {
	policy := UserPolicy{DefaultPolicy[*models.User]{Type: "user"}}
	manager := actorWith(2, "bar", "user/team")

	mate := &models.User{Base: models.Base{ID: 50}, TeamID: 2}
	stranger := &models.User{Base: models.Base{ID: 51}, TeamID: 3}

	if !Allowed(policy.UpdateGroups(manager), policy.ItemGroups(mate)) {
		t.Fatalf("expected team manager to update mate")
	}
	if Allowed(policy.UpdateGroups(manager), policy.ItemGroups(stranger)) {
		t.Fatalf("expected team manager not to update stranger")
	}
	if !Allowed(policy.ReadGroups(actorWith(2, "bar")), policy.ItemGroups(manager.User)) {
		t.Fatalf("expected user to read self")
	}
}

func TestErrorLogPolicy_AnyAuthenticatedActorCreates(t *testing.T) {
	policy := ErrorLogPolicy{DefaultPolicy[*models.ErrorLog]{Type: "errorLog"}}
	item := &models.ErrorLog{Base: models.Base{ID: 1}}
	if !Allowed(policy.CreateGroups(actorWith(1, "bar")), policy.ItemGroups(item)) {
		t.Fatalf("expected any actor to report errors")
	}
	if Allowed(policy.ReadGroups(actorWith(1, "bar")), policy.ItemGroups(item)) {
		t.Fatalf("expected reads to need errorLog/read")
	}
}

func TestValidateRoles(t *testing.T) {
	if err := ValidateRoles(map[string][]string{"bar": {"alert/restrictedSender", "message/public"}}); err != nil {
		t.Fatalf("expected valid roles, got %v", err)
	}
	if err := ValidateRoles(map[string][]string{"bar": {"alert/fly"}}); err == nil {
		t.Fatalf("expected unknown permission to fail")
	}
}
