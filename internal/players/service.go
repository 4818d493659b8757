package players

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ServiceConfig describes the dependencies required for the player directory.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service maps player identifiers to their last known display names.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	names sync.Map
}

// NewService constructs the player directory.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("players: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// Touch records that the player was seen under the provided name.
func (s *Service) Touch(ctx context.Context, playerID PlayerID, playerName string) error {
	if playerID == "" {
		return ErrInvalidPlayerID
	}
	name, err := NormalizeName(playerName)
	if err != nil {
		return err
	}
	if cached, ok := s.names.Load(playerID); ok {
		if cachedName, ok := cached.(string); ok && cachedName == name {
			return nil
		}
	}

	identity := Identity{
		PlayerUUID: playerID.String(),
		PlayerName: name,
		LastSeenAt: s.now().UTC(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "player_uuid"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"player_name":  identity.PlayerName,
			"last_seen_at": identity.LastSeenAt,
		}),
	}).Create(&identity).Error
	if err != nil {
		return err
	}

	s.names.Store(playerID, name)
	return nil
}

// ResolveName returns the last known name for the player.
func (s *Service) ResolveName(ctx context.Context, playerID PlayerID) (string, error) {
	if cached, ok := s.names.Load(playerID); ok {
		if name, ok := cached.(string); ok {
			return name, nil
		}
	}

	var identity Identity
	err := s.db.WithContext(ctx).
		Where("player_uuid = ?", playerID.String()).
		Take(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrPlayerNotFound
	}
	if err != nil {
		return "", err
	}

	s.names.Store(playerID, identity.PlayerName)
	return identity.PlayerName, nil
}

// FindByName resolves a player by display name, ignoring case. The most recently seen
// identity wins when several players have used the same name.
func (s *Service) FindByName(ctx context.Context, playerName string) (PlayerID, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return "", ErrInvalidPlayerName
	}

	var identity Identity
	err := s.db.WithContext(ctx).
		Where("LOWER(player_name) = LOWER(?)", name).
		Order("last_seen_at DESC").
		Take(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrPlayerNotFound
	}
	if err != nil {
		return "", err
	}
	return PlayerID(identity.PlayerUUID), nil
}

// Resolve accepts either a player UUID or a known display name. A UUID the directory has
// never seen resolves with an empty name.
func (s *Service) Resolve(ctx context.Context, rawInput string) (PlayerID, string, error) {
	if playerID, err := NewPlayerID(rawInput); err == nil {
		name, lookupErr := s.ResolveName(ctx, playerID)
		if lookupErr != nil && !errors.Is(lookupErr, ErrPlayerNotFound) {
			return "", "", lookupErr
		}
		return playerID, name, nil
	}
	playerID, err := s.FindByName(ctx, rawInput)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", strings.TrimSpace(rawInput), err)
	}
	return playerID, strings.TrimSpace(rawInput), nil
}
