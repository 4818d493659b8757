package elections

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/elections/internal/players"
	"github.com/MarcoPoloResearchLab/elections/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var noOpLogger = zap.NewNop()

// RegionRotation supplies the circular region order.
type RegionRotation interface {
	NextRegion(current string) string
	Contains(regionID string) bool
}

// RoleSet reports which role identifiers may be contested.
type RoleSet interface {
	HasRole(roleID string) bool
}

// IncumbencyChecker reports whether a player still serves a mandate in a region.
type IncumbencyChecker interface {
	HasActiveRole(ctx context.Context, playerID players.PlayerID, regionID string) (bool, error)
}

// ServiceConfig describes the dependencies of the election state machine.
type ServiceConfig struct {
	Database   *gorm.DB
	Regions    RegionRotation
	Roles      RoleSet
	Incumbents IncumbencyChecker
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service owns the current election and every write to elections, candidates and votes.
// The cached current election is a projection of the store: it is rebuilt by Load and only
// changed after a committed write.
type Service struct {
	db         *gorm.DB
	regions    RegionRotation
	roles      RoleSet
	incumbents IncumbencyChecker
	clock      func() time.Time
	logger     *zap.Logger

	mu      sync.RWMutex
	current *Election
}

// NewService constructs the state machine. Call Load before serving requests.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.Regions == nil {
		return nil, newServiceError(opServiceNew, reasonMissingRegions, errMissingRegions)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		regions:    cfg.Regions,
		roles:      cfg.Roles,
		incumbents: cfg.Incumbents,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Registration is a candidacy request.
type Registration struct {
	PlayerID   players.PlayerID
	PlayerName string
	Role       string
	Slogan     string
}

// Load rebuilds the cached current election from the store.
func (s *Service) Load(ctx context.Context) error {
	now := s.clock()

	var election Election
	err := s.db.WithContext(ctx).
		Where("ended_at_s IS NULL OR ended_at_s > ?", now.Unix()).
		Order("started_at_s DESC, id DESC").
		Take(&election).
		Error

	s.mu.Lock()
	defer s.mu.Unlock()

	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.current = nil
		return nil
	}
	if err != nil {
		return s.fail(opLoad, reasonQueryFailed, err)
	}

	s.current = &election
	s.logger.Info("current election loaded",
		zap.Int64("election_id", election.ID),
		zap.String("region_id", election.RegionID),
		zap.String("phase", string(election.Phase)))
	return nil
}

// Current returns a copy of the cached current election.
func (s *Service) Current() (Election, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return Election{}, false
	}
	return *s.current, true
}

// IsElectionActive reports whether a current election exists and has not ended.
func (s *Service) IsElectionActive() bool {
	_, ok := s.activeElection()
	return ok
}

func (s *Service) activeElection() (Election, bool) {
	election, ok := s.Current()
	if !ok || election.Ended(s.clock()) {
		return Election{}, false
	}
	return election, true
}

// StartNewElection opens a REGISTRATION election in the region.
func (s *Service) StartNewElection(ctx context.Context, regionID string) (Election, error) {
	regionID = strings.TrimSpace(regionID)
	if regionID == "" || !s.regions.Contains(regionID) {
		return Election{}, ErrUnknownRegion
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if s.current != nil && !s.current.Ended(now) {
		return Election{}, ErrElectionAlreadyActive
	}

	var created Election
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		election, err := openElection(tx, regionID, now)
		if err != nil {
			return err
		}
		created = election
		return nil
	})
	if err != nil {
		return Election{}, s.fail(opStartNewElection, reasonInsertFailed, err, zap.String("region_id", regionID))
	}

	s.current = &created
	s.logger.Info("election started",
		zap.Int64("election_id", created.ID),
		zap.String("region_id", created.RegionID))
	return created, nil
}

// RegisterCandidate records a candidacy in the current election.
func (s *Service) RegisterCandidate(ctx context.Context, registration Registration) (Candidate, error) {
	if registration.PlayerID == "" {
		return Candidate{}, players.ErrInvalidPlayerID
	}
	name, err := players.NormalizeName(registration.PlayerName)
	if err != nil {
		return Candidate{}, err
	}
	role := strings.TrimSpace(registration.Role)
	if role == "" || s.roles == nil || !s.roles.HasRole(role) {
		return Candidate{}, ErrUnknownRole
	}
	slogan := strings.TrimSpace(registration.Slogan)
	if utf8.RuneCountInString(slogan) > MaxSloganLength {
		return Candidate{}, ErrSloganTooLong
	}

	current, ok := s.activeElection()
	if !ok {
		return Candidate{}, ErrNoActiveElection
	}
	if current.Phase != PhaseRegistration {
		return Candidate{}, ErrWrongPhase
	}

	if s.incumbents != nil {
		holds, err := s.incumbents.HasActiveRole(ctx, registration.PlayerID, current.RegionID)
		if err != nil {
			return Candidate{}, s.fail(opRegisterCandidate, reasonIncumbencyCheck, err,
				zap.String("player_uuid", registration.PlayerID.String()))
		}
		if holds {
			return Candidate{}, ErrAlreadyHoldsRole
		}
	}

	candidate := Candidate{
		ElectionID:       current.ID,
		PlayerUUID:       registration.PlayerID.String(),
		PlayerName:       name,
		Role:             role,
		Slogan:           slogan,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requirePhase(tx, current.ID, PhaseRegistration); err != nil {
			return err
		}
		if err := tx.Create(&candidate).Error; err != nil {
			if storage.IsUniqueViolation(err) {
				return ErrAlreadyRegistered
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Candidate{}, s.fail(opRegisterCandidate, reasonInsertFailed, err,
			zap.Int64("election_id", current.ID),
			zap.String("player_uuid", registration.PlayerID.String()))
	}

	s.logger.Info("candidate registered",
		zap.Int64("election_id", current.ID),
		zap.Int64("candidate_id", candidate.ID),
		zap.String("role", role))
	return candidate, nil
}

// CastVote records the vote and increments the candidate's counter in one transaction.
func (s *Service) CastVote(ctx context.Context, voterID players.PlayerID, candidateID int64) error {
	if voterID == "" {
		return players.ErrInvalidPlayerID
	}
	if candidateID <= 0 {
		return ErrCandidateNotFound
	}

	current, ok := s.activeElection()
	if !ok {
		return ErrNoActiveElection
	}
	if current.Phase != PhaseVoting {
		return ErrWrongPhase
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requirePhase(tx, current.ID, PhaseVoting); err != nil {
			return err
		}

		vote := Vote{
			ElectionID:     current.ID,
			VoterUUID:      voterID.String(),
			CandidateID:    candidateID,
			VotedAtSeconds: s.clock().UTC().Unix(),
		}
		if err := tx.Create(&vote).Error; err != nil {
			if storage.IsUniqueViolation(err) {
				return ErrAlreadyVoted
			}
			return err
		}

		result := tx.Model(&Candidate{}).
			Where("id = ? AND election_id = ?", candidateID, current.ID).
			UpdateColumn("votes", gorm.Expr("votes + ?", 1))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return ErrCandidateNotFound
		}
		return nil
	})
	if err != nil {
		return s.fail(opCastVote, reasonInsertFailed, err,
			zap.Int64("election_id", current.ID),
			zap.Int64("candidate_id", candidateID))
	}
	return nil
}

// ProgressElection advances the current election to its next phase. From RESULTS it closes
// the election and opens the next region's election in the same transaction.
func (s *Service) ProgressElection(ctx context.Context) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Transition{}, ErrNoActiveElection
	}
	current := *s.current

	next, ok := current.Phase.Next()
	if !ok {
		return s.closeAndRotate(ctx, opProgressElection, current)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Election{}).
			Where("id = ? AND phase = ? AND ended_at_s IS NULL", current.ID, current.Phase).
			Update("phase", next)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return ErrWrongPhase
		}
		return nil
	})
	if err != nil {
		return Transition{}, s.fail(opProgressElection, reasonUpdateFailed, err,
			zap.Int64("election_id", current.ID))
	}

	updated := current
	updated.Phase = next
	s.current = &updated

	s.logger.Info("election progressed",
		zap.Int64("election_id", updated.ID),
		zap.String("from", string(current.Phase)),
		zap.String("to", string(next)))
	return Transition{From: current.Phase, To: next, Election: updated}, nil
}

// Rotate closes the current election whatever its phase and opens the next region.
func (s *Service) Rotate(ctx context.Context) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Transition{}, ErrNoActiveElection
	}
	return s.closeAndRotate(ctx, opRotate, *s.current)
}

func (s *Service) closeAndRotate(ctx context.Context, operation string, current Election) (Transition, error) {
	now := s.clock()
	endedAt := now.Unix()
	nextRegion := s.regions.NextRegion(current.RegionID)
	openNext := nextRegion != "" && nextRegion != current.RegionID

	var opened *Election
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Election{}).
			Where("id = ? AND ended_at_s IS NULL", current.ID).
			Update("ended_at_s", endedAt)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return ErrNoActiveElection
		}
		if !openNext {
			return nil
		}
		election, err := openElection(tx, nextRegion, now)
		if err != nil {
			return err
		}
		opened = &election
		return nil
	})
	if err != nil {
		return Transition{}, s.fail(operation, reasonUpdateFailed, err,
			zap.Int64("election_id", current.ID))
	}

	closed := current
	closed.EndedAtSeconds = &endedAt
	s.current = opened

	s.logger.Info("election closed",
		zap.String("operation", operation),
		zap.Int64("election_id", closed.ID),
		zap.String("region_id", closed.RegionID))
	if opened == nil {
		s.logger.Warn("no next region available, election cycle stopped",
			zap.String("region_id", current.RegionID),
			zap.String("next_region_id", nextRegion))
	} else {
		s.logger.Info("election started",
			zap.Int64("election_id", opened.ID),
			zap.String("region_id", opened.RegionID))
	}

	return Transition{From: current.Phase, Election: closed, Opened: opened}, nil
}

// Candidates returns the current election's candidates, votes descending then name ascending.
func (s *Service) Candidates(ctx context.Context) ([]Candidate, error) {
	current, ok := s.Current()
	if !ok {
		return []Candidate{}, nil
	}
	return s.CandidatesFor(ctx, current.ID)
}

// CandidatesFor returns the candidates of any election in display order.
func (s *Service) CandidatesFor(ctx context.Context, electionID int64) ([]Candidate, error) {
	var candidates []Candidate
	if err := s.db.WithContext(ctx).
		Where("election_id = ?", electionID).
		Order("votes DESC, player_name ASC, id ASC").
		Find(&candidates).Error; err != nil {
		return nil, s.fail(opListCandidates, reasonQueryFailed, err, zap.Int64("election_id", electionID))
	}
	return candidates, nil
}

// VotersFor returns the distinct voters of an election.
func (s *Service) VotersFor(ctx context.Context, electionID int64) ([]players.PlayerID, error) {
	var voterUUIDs []string
	if err := s.db.WithContext(ctx).
		Model(&Vote{}).
		Where("election_id = ?", electionID).
		Order("voted_at_s ASC, id ASC").
		Pluck("voter_uuid", &voterUUIDs).Error; err != nil {
		return nil, s.fail(opListVoters, reasonQueryFailed, err, zap.Int64("election_id", electionID))
	}

	voters := make([]players.PlayerID, 0, len(voterUUIDs))
	for _, voterUUID := range voterUUIDs {
		voters = append(voters, players.PlayerID(voterUUID))
	}
	return voters, nil
}

// HasVoted reports whether the player voted in the current election.
func (s *Service) HasVoted(ctx context.Context, playerID players.PlayerID) (bool, error) {
	current, ok := s.Current()
	if !ok {
		return false, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Vote{}).
		Where("election_id = ? AND voter_uuid = ?", current.ID, playerID.String()).
		Count(&count).Error; err != nil {
		return false, s.fail(opHasVoted, reasonQueryFailed, err)
	}
	return count > 0, nil
}

// IsRegistered reports whether the player runs in the current election.
func (s *Service) IsRegistered(ctx context.Context, playerID players.PlayerID) (bool, error) {
	current, ok := s.Current()
	if !ok {
		return false, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Candidate{}).
		Where("election_id = ? AND player_uuid = ?", current.ID, playerID.String()).
		Count(&count).Error; err != nil {
		return false, s.fail(opIsRegistered, reasonQueryFailed, err)
	}
	return count > 0, nil
}

// Snapshot is the read projection handed to presentation layers.
type Snapshot struct {
	Election    Election
	Candidates  []Candidate
	PhaseEndsAt time.Time
	Remaining   time.Duration
}

// Status returns the current election with candidates and time remaining in the phase.
func (s *Service) Status(ctx context.Context, durations Durations) (Snapshot, error) {
	current, ok := s.Current()
	if !ok {
		return Snapshot{}, ErrNoActiveElection
	}
	candidates, err := s.CandidatesFor(ctx, current.ID)
	if err != nil {
		return Snapshot{}, err
	}

	endsAt := durations.PhaseEndsAt(current)
	remaining := endsAt.Sub(s.clock())
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{
		Election:    current,
		Candidates:  candidates,
		PhaseEndsAt: endsAt,
		Remaining:   remaining,
	}, nil
}

func openElection(tx *gorm.DB, regionID string, now time.Time) (Election, error) {
	var open int64
	if err := tx.Model(&Election{}).Where("ended_at_s IS NULL").Count(&open).Error; err != nil {
		return Election{}, err
	}
	if open > 0 {
		return Election{}, ErrElectionAlreadyActive
	}

	election := Election{
		RegionID:         regionID,
		Phase:            PhaseRegistration,
		StartedAtSeconds: now.UTC().Unix(),
	}
	if err := tx.Create(&election).Error; err != nil {
		if storage.IsUniqueViolation(err) {
			return Election{}, ErrElectionAlreadyActive
		}
		return Election{}, err
	}
	return election, nil
}

func requirePhase(tx *gorm.DB, electionID int64, phase Phase) error {
	var stored Election
	err := tx.Where("id = ?", electionID).Take(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNoActiveElection
	}
	if err != nil {
		return err
	}
	if stored.EndedAtSeconds != nil {
		return ErrNoActiveElection
	}
	if stored.Phase != phase {
		return ErrWrongPhase
	}
	return nil
}

// fail passes business-rule violations through and wraps everything else as a logged
// ServiceError.
func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	if IsPrecondition(err) {
		return err
	}
	s.logError(operation, reason, err, fields...)
	return newServiceError(operation, reason, err)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("elections service error", attrs...)
}
