package roles

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/elections/internal/players"
	"go.uber.org/zap"
)

// Holder is a time-bounded role grant.
type Holder struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	PlayerUUID       string `gorm:"column:player_uuid;size:36;not null;index:idx_role_holders_player_region,priority:1"`
	PlayerName       string `gorm:"column:player_name;size:64;not null"`
	RegionID         string `gorm:"column:region_id;size:64;not null;index:idx_role_holders_player_region,priority:2"`
	Role             string `gorm:"column:role;size:64;not null"`
	ElectionID       int64  `gorm:"column:election_id;not null;index"`
	StartedAtSeconds int64  `gorm:"column:started_at_s;not null"`
	EndsAtSeconds    int64  `gorm:"column:ends_at_s;not null;index:idx_role_holders_active_expiry,priority:2"`
	Active           bool   `gorm:"column:active;not null;default:true;index:idx_role_holders_active_expiry,priority:1"`
	Notified         bool   `gorm:"column:notified;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (Holder) TableName() string {
	return "role_holders"
}

// EndsAt returns the mandate expiry instant.
func (h Holder) EndsAt() time.Time {
	return time.Unix(h.EndsAtSeconds, 0).UTC()
}

// Authorizer is the external permission backend. Revocation must be idempotent.
type Authorizer interface {
	GrantTimeBoundRole(ctx context.Context, playerID players.PlayerID, group string, regionID string, expiry time.Time) error
	RevokeTimeBoundRole(ctx context.Context, playerID players.PlayerID, group string, regionID string) error
}

// LoggingAuthorizer records grants and revocations without a permission backend.
type LoggingAuthorizer struct {
	Logger *zap.Logger
}

// GrantTimeBoundRole logs the grant.
func (a LoggingAuthorizer) GrantTimeBoundRole(_ context.Context, playerID players.PlayerID, group string, regionID string, expiry time.Time) error {
	a.logger().Info("role granted",
		zap.String("player_uuid", playerID.String()),
		zap.String("group", group),
		zap.String("region_id", regionID),
		zap.Time("expiry", expiry))
	return nil
}

// RevokeTimeBoundRole logs the revocation.
func (a LoggingAuthorizer) RevokeTimeBoundRole(_ context.Context, playerID players.PlayerID, group string, regionID string) error {
	a.logger().Info("role revoked",
		zap.String("player_uuid", playerID.String()),
		zap.String("group", group),
		zap.String("region_id", regionID))
	return nil
}

func (a LoggingAuthorizer) logger() *zap.Logger {
	if a.Logger == nil {
		return noOpLogger
	}
	return a.Logger
}

// NotificationKind distinguishes the messages sent to role holders.
type NotificationKind string

const (
	NotificationWon     NotificationKind = "role_won"
	NotificationExpired NotificationKind = "role_expired"
)

// Notification is a message for a single player.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	PlayerID   players.PlayerID `json:"player_uuid"`
	Role       string           `json:"role"`
	RoleName   string           `json:"role_name"`
	RegionID   string           `json:"region_id"`
	ElectionID int64            `json:"election_id"`
	EndsAt     time.Time        `json:"ends_at"`
}

// Notifier delivers notifications to reachable players.
type Notifier interface {
	Reachable(playerID players.PlayerID) bool
	Notify(ctx context.Context, notification Notification) error
}
