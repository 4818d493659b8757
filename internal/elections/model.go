package elections

import (
	"fmt"
	"strings"
	"time"
)

// Phase is the current stage of an election cycle.
type Phase string

const (
	// PhaseRegistration accepts candidacies.
	PhaseRegistration Phase = "REGISTRATION"
	// PhaseVoting accepts votes.
	PhaseVoting Phase = "VOTING"
	// PhaseResults holds the results while the winners serve their mandate.
	PhaseResults Phase = "RESULTS"
)

// MaxSloganLength bounds candidate slogans, counted in runes.
const MaxSloganLength = 100

// SingleOpenElectionIndexSQL enforces that at most one election is open at a time.
const SingleOpenElectionIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_elections_single_open ON elections ((ended_at_s IS NULL)) WHERE ended_at_s IS NULL`

// ParsePhase converts a stored phase name into a Phase.
func ParsePhase(raw string) (Phase, error) {
	switch Phase(strings.ToUpper(strings.TrimSpace(raw))) {
	case PhaseRegistration:
		return PhaseRegistration, nil
	case PhaseVoting:
		return PhaseVoting, nil
	case PhaseResults:
		return PhaseResults, nil
	default:
		return "", fmt.Errorf("elections: unknown phase %q", raw)
	}
}

// Next returns the successor phase. RESULTS has none: the cycle closes instead.
func (p Phase) Next() (Phase, bool) {
	switch p {
	case PhaseRegistration:
		return PhaseVoting, true
	case PhaseVoting:
		return PhaseResults, true
	default:
		return "", false
	}
}

// DisplayName returns a human readable phase name.
func (p Phase) DisplayName() string {
	switch p {
	case PhaseRegistration:
		return "Candidate registration"
	case PhaseVoting:
		return "Voting"
	case PhaseResults:
		return "Results"
	default:
		return string(p)
	}
}

// Election is one row per election cycle.
type Election struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RegionID         string `gorm:"column:region_id;size:64;not null;index"`
	Phase            Phase  `gorm:"column:phase;size:16;not null"`
	StartedAtSeconds int64  `gorm:"column:started_at_s;not null;index"`
	EndedAtSeconds   *int64 `gorm:"column:ended_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Election) TableName() string {
	return "elections"
}

// StartedAt returns the election start instant.
func (e Election) StartedAt() time.Time {
	return time.Unix(e.StartedAtSeconds, 0).UTC()
}

// Ended reports whether the election has an end time at or before now.
func (e Election) Ended(now time.Time) bool {
	return e.EndedAtSeconds != nil && *e.EndedAtSeconds <= now.Unix()
}

// Candidate is one row per (election, player) pair.
type Candidate struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ElectionID       int64  `gorm:"column:election_id;not null;uniqueIndex:idx_candidates_election_player,priority:1"`
	PlayerUUID       string `gorm:"column:player_uuid;size:36;not null;uniqueIndex:idx_candidates_election_player,priority:2"`
	PlayerName       string `gorm:"column:player_name;size:64;not null"`
	Role             string `gorm:"column:role;size:64;not null"`
	Slogan           string `gorm:"column:slogan;size:400;not null;default:''"`
	Votes            int64  `gorm:"column:votes;not null;default:0"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Candidate) TableName() string {
	return "candidates"
}

// Vote is one row per (election, voter) pair.
type Vote struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ElectionID     int64  `gorm:"column:election_id;not null;uniqueIndex:idx_votes_election_voter,priority:1"`
	VoterUUID      string `gorm:"column:voter_uuid;size:36;not null;uniqueIndex:idx_votes_election_voter,priority:2"`
	CandidateID    int64  `gorm:"column:candidate_id;not null;index"`
	VotedAtSeconds int64  `gorm:"column:voted_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}

// Durations are the configured phase lengths.
type Durations struct {
	Registration time.Duration
	Voting       time.Duration
	Mandate      time.Duration
}

// Threshold returns the elapsed time since the election start after which the phase is over.
// Every threshold is cumulative from the original start time.
func (d Durations) Threshold(phase Phase) time.Duration {
	switch phase {
	case PhaseRegistration:
		return d.Registration
	case PhaseVoting:
		return d.Registration + d.Voting
	case PhaseResults:
		return d.Registration + d.Voting + d.Mandate
	default:
		return 0
	}
}

// PhaseEndsAt returns the instant the election's current phase expires.
func (d Durations) PhaseEndsAt(election Election) time.Time {
	return election.StartedAt().Add(d.Threshold(election.Phase))
}

// Due reports whether the election's current phase has expired at now.
func (d Durations) Due(election Election, now time.Time) bool {
	return now.Sub(election.StartedAt()) >= d.Threshold(election.Phase)
}

// Transition describes the effect of one progression step.
type Transition struct {
	From     Phase
	To       Phase
	Election Election
	Opened   *Election
}

// Closed reports whether the step closed the election cycle.
func (t Transition) Closed() bool {
	return t.To == ""
}
