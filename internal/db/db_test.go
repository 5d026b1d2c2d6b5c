package db

import (
	"path/filepath"
	"testing"

	"github.com/flux-project/flux-server/internal/models"
)

func strPtr(v string) *string { return &v }

func TestMigrate_SQLite(t *testing.T) {
	conn, errOpen := Open("file:" + filepath.Join(t.TempDir(), "migrate.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	defer Close(conn)

	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	for _, model := range models.All() {
		if !conn.Migrator().HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}
}

func TestIsUniqueViolation_SQLite(t *testing.T) {
	conn, errOpen := Open("file:" + filepath.Join(t.TempDir(), "unique.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	defer Close(conn)
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	first := models.Session{UserID: 1, SocketID: strPtr("sock")}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create first: %v", errCreate)
	}
	second := models.Session{UserID: 2, SocketID: strPtr("sock")}
	errCreate := conn.Create(&second).Error
	if !IsUniqueViolation(errCreate) {
		t.Fatalf("expected unique violation, got %v", errCreate)
	}

	// NULL socket ids never collide.
	for i := 0; i < 2; i++ {
		if errNull := conn.Create(&models.Session{UserID: 3}).Error; errNull != nil {
			t.Fatalf("create null socket session: %v", errNull)
		}
	}
}
