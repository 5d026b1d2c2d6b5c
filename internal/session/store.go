package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flux-project/flux-server/internal/db"
	"github.com/flux-project/flux-server/internal/httperr"
	"github.com/flux-project/flux-server/internal/models"
	"github.com/flux-project/flux-server/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Verification failures. All of them leave a request unauthenticated.
var (
	ErrInvalidToken    = security.ErrInvalidToken
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
)

// StatusSessionConflict is returned when a concurrent login claimed the same socket or device.
const StatusSessionConflict = "SessionConflict"

// Connection describes the client opening a session.
type Connection struct {
	IP            string
	SocketID      string
	DeviceID      string
	FirebaseToken string
}

// Store persists sessions and issues their tokens.
type Store struct {
	db     *gorm.DB
	signer *security.TokenSigner
	now    func() time.Time
}

// NewStore builds a session store.
func NewStore(conn *gorm.DB, signer *security.TokenSigner) *Store {
	return &Store{db: conn, signer: signer, now: time.Now}
}

// Create replaces any session sharing the socket, device or push token and issues a token for the new one.
func (s *Store) Create(ctx context.Context, user *models.User, conn Connection) (*models.Session, string, error) {
	if user == nil || user.ID == 0 {
		return nil, "", fmt.Errorf("session: create: %w", ErrUserNotFound)
	}
	sess := &models.Session{
		UserID:        user.ID,
		IP:            conn.IP,
		SocketID:      optional(conn.SocketID),
		DeviceID:      optional(conn.DeviceID),
		FirebaseToken: optional(conn.FirebaseToken),
		LastAction:    s.now(),
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if colliding := collisions(tx, conn); colliding != nil {
			if errDelete := colliding.Delete(&models.Session{}).Error; errDelete != nil {
				return errDelete
			}
		}
		return tx.Create(sess).Error
	})
	if errTx != nil {
		if db.IsUniqueViolation(errTx) {
			return nil, "", httperr.Expected(http.StatusServiceUnavailable, StatusSessionConflict, "Another login claimed this connection, retry").Wrap(errTx)
		}
		return nil, "", fmt.Errorf("session: create: %w", errTx)
	}

	token, errSign := s.signer.Sign(user.ID, sess.ID)
	if errSign != nil {
		return nil, "", errSign
	}
	return sess, token, nil
}

// collisions returns a query over sessions sharing one of the connection's unique keys, or nil.
func collisions(tx *gorm.DB, conn Connection) *gorm.DB {
	var clauses []string
	var args []any
	if v := strings.TrimSpace(conn.SocketID); v != "" {
		clauses = append(clauses, "socket_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(conn.DeviceID); v != "" {
		clauses = append(clauses, "device_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(conn.FirebaseToken); v != "" {
		clauses = append(clauses, "firebase_token = ?")
		args = append(args, v)
	}
	if len(clauses) == 0 {
		return nil
	}
	return tx.Where(strings.Join(clauses, " OR "), args...)
}

// Verify checks a token and loads its session and user.
func (s *Store) Verify(ctx context.Context, token string) (*models.Session, *models.User, error) {
	claims, errParse := s.signer.Parse(token)
	if errParse != nil {
		return nil, nil, errParse
	}
	if claims.SessionID == 0 {
		return nil, nil, ErrSessionNotFound
	}
	var sess models.Session
	errFind := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", claims.SessionID, claims.UserID).
		Take(&sess).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("session: verify: %w", errFind)
	}
	user, errUser := s.loadUser(ctx, sess.UserID)
	if errUser != nil {
		return nil, nil, errUser
	}
	return &sess, user, nil
}

// FindBySocket loads the session bound to a realtime connection.
func (s *Store) FindBySocket(ctx context.Context, socketID string) (*models.Session, *models.User, error) {
	if strings.TrimSpace(socketID) == "" {
		return nil, nil, ErrSessionNotFound
	}
	var sess models.Session
	errFind := s.db.WithContext(ctx).Where("socket_id = ?", socketID).Take(&sess).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("session: find by socket: %w", errFind)
	}
	user, errUser := s.loadUser(ctx, sess.UserID)
	if errUser != nil {
		return nil, nil, errUser
	}
	return &sess, user, nil
}

func (s *Store) loadUser(ctx context.Context, userID uint64) (*models.User, error) {
	var user models.User
	if errUser := s.db.WithContext(ctx).Take(&user, userID).Error; errUser != nil {
		if errors.Is(errUser, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("session: load user: %w", errUser)
	}
	return &user, nil
}

// Touch records activity from ip and binds socketID to the session. A session that no longer
// exists is left alone, so the socket stays with whichever session replaced it.
// Failures are logged, never returned.
func (s *Store) Touch(ctx context.Context, sessionID uint64, socketID, ip string) {
	if sessionID == 0 {
		return
	}
	updates := map[string]any{"last_action": s.now()}
	if ip = strings.TrimSpace(ip); ip != "" {
		updates["ip"] = ip
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if errCount := tx.Model(&models.Session{}).Where("id = ?", sessionID).Count(&count).Error; errCount != nil {
			return errCount
		}
		if count == 0 {
			return nil
		}
		if socketID != "" {
			errClear := tx.Model(&models.Session{}).
				Where("socket_id = ? AND id <> ?", socketID, sessionID).
				Update("socket_id", nil).Error
			if errClear != nil {
				return errClear
			}
			updates["socket_id"] = socketID
		}
		return tx.Model(&models.Session{}).Where("id = ?", sessionID).Updates(updates).Error
	})
	if errTx != nil {
		log.WithError(errTx).WithField("session_id", sessionID).Warn("session: touch failed")
	}
}

// Disconnect marks the session as disconnected.
func (s *Store) Disconnect(ctx context.Context, sessionID uint64) error {
	errUpdate := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", sessionID).
		Update("disconnected_at", s.now()).Error
	if errUpdate != nil {
		return fmt.Errorf("session: disconnect: %w", errUpdate)
	}
	return nil
}

// DisconnectSocket unbinds a closed realtime connection from its session.
func (s *Store) DisconnectSocket(ctx context.Context, socketID string) error {
	if socketID == "" {
		return nil
	}
	errUpdate := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("socket_id = ?", socketID).
		Updates(map[string]any{"socket_id": nil, "disconnected_at": s.now()}).Error
	if errUpdate != nil {
		return fmt.Errorf("session: disconnect socket: %w", errUpdate)
	}
	return nil
}

// Destroy deletes a session, invalidating its token.
func (s *Store) Destroy(ctx context.Context, sessionID uint64) error {
	if errDelete := s.db.WithContext(ctx).Delete(&models.Session{}, sessionID).Error; errDelete != nil {
		return fmt.Errorf("session: destroy: %w", errDelete)
	}
	return nil
}

// TeamActive reports whether a member of the team is connected from a non-mobile client.
// A session counts when it never disconnected or acted after its last disconnection.
func (s *Store) TeamActive(ctx context.Context, teamID uint64) (bool, error) {
	var count int64
	query := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("user_id IN (?)", s.db.Model(&models.User{}).Select("id").Where("team_id = ?", teamID)).
		Where("firebase_token IS NULL").
		Where("disconnected_at IS NULL OR last_action >= disconnected_at")
	if expiry := s.signer.Expiry(); expiry > 0 {
		query = query.Where("last_action >= ?", s.now().Add(-expiry))
	}
	if errCount := query.Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("session: team active: %w", errCount)
	}
	return count > 0, nil
}

// Purge deletes sessions idle for longer than the token lifetime.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	expiry := s.signer.Expiry()
	if expiry <= 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Where("last_action < ?", s.now().Add(-expiry)).Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session: purge: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func optional(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
