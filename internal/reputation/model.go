package reputation

import (
	"sort"

	"github.com/MarcoPoloResearchLab/elections/internal/players"
)

// AwardKind classifies a ledger entry.
type AwardKind string

const (
	KindWinner    AwardKind = "winner"
	KindCandidate AwardKind = "candidate"
	KindVoter     AwardKind = "voter"
	KindAdmin     AwardKind = "admin"
)

// Record holds a player's running reputation total.
type Record struct {
	PlayerUUID       string `gorm:"column:player_uuid;primaryKey;size:36;not null"`
	PlayerName       string `gorm:"column:player_name;size:64;not null;default:''"`
	Points           int64  `gorm:"column:points;not null;default:0"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "reputation"
}

// Entry is one append-only change to a player's reputation.
type Entry struct {
	EntryID          string    `gorm:"column:entry_id;primaryKey;size:36;not null"`
	PlayerUUID       string    `gorm:"column:player_uuid;size:36;not null;uniqueIndex:idx_reputation_entries_award,priority:2;index"`
	Amount           int64     `gorm:"column:amount;not null"`
	Reason           string    `gorm:"column:reason;size:200;not null;default:''"`
	Kind             AwardKind `gorm:"column:kind;size:16;not null;uniqueIndex:idx_reputation_entries_award,priority:3"`
	ElectionID       *int64    `gorm:"column:election_id;uniqueIndex:idx_reputation_entries_award,priority:1"`
	CreatedAtSeconds int64     `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "reputation_entries"
}

// Award is a single reputation change request. Awards scoped to an election are applied at
// most once per (election, player, kind).
type Award struct {
	PlayerID   players.PlayerID
	PlayerName string
	Amount     int64
	Reason     string
	Kind       AwardKind
	ElectionID *int64
}

// Amounts are the default reward sizes.
type Amounts struct {
	Winner    int64
	Candidate int64
	Voter     int64
}

// DefaultAmounts returns the stock reward sizes.
func DefaultAmounts() Amounts {
	return Amounts{Winner: 10, Candidate: 2, Voter: 1}
}

// Tier is a title unlocked once a player reaches MinPoints.
type Tier struct {
	MinPoints int64
	Title     string
}

// Tiers is an ascending list of reputation titles.
type Tiers []Tier

// NewTiers sorts the provided tiers by threshold.
func NewTiers(tiers []Tier) Tiers {
	sorted := make(Tiers, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinPoints < sorted[j].MinPoints
	})
	return sorted
}

// For returns the highest tier the points qualify for.
func (t Tiers) For(points int64) (Tier, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if points >= t[i].MinPoints {
			return t[i], true
		}
	}
	return Tier{}, false
}

// Standing is a player's reputation with the title it unlocks.
type Standing struct {
	PlayerID   players.PlayerID
	PlayerName string
	Points     int64
	Tier       *Tier
}
