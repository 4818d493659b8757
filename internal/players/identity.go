package players

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxNameLength = 64

var (
	// ErrInvalidPlayerID indicates that a player identifier is not a UUID.
	ErrInvalidPlayerID = errors.New("players: invalid player id")
	// ErrInvalidPlayerName indicates that a player name is empty or exceeds storage bounds.
	ErrInvalidPlayerName = errors.New("players: invalid player name")
	// ErrPlayerNotFound indicates that the directory has never seen the player.
	ErrPlayerNotFound = errors.New("players: player not found")
)

// PlayerID represents a validated, canonical player UUID.
type PlayerID string

// NewPlayerID validates raw input and returns the canonical lowercase form.
func NewPlayerID(rawInput string) (PlayerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPlayerID)
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPlayerID, err)
	}
	return PlayerID(parsed.String()), nil
}

// String returns the underlying identifier.
func (id PlayerID) String() string {
	return string(id)
}

// NormalizeName trims a display name and enforces storage bounds.
func NormalizeName(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPlayerName)
	}
	if utf8.RuneCountInString(trimmed) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPlayerName, maxNameLength)
	}
	return trimmed, nil
}

// Identity records the last known name for a player.
type Identity struct {
	PlayerUUID string    `gorm:"column:player_uuid;primaryKey;size:36;not null"`
	PlayerName string    `gorm:"column:player_name;size:64;not null;index"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing player identities.
func (Identity) TableName() string {
	return "players"
}
