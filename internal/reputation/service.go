package reputation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/elections/internal/elections"
	"github.com/MarcoPoloResearchLab/elections/internal/players"
	"github.com/MarcoPoloResearchLab/elections/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var noOpLogger = zap.NewNop()

const (
	reasonElectionWin         = "Election victory"
	reasonElectionCandidature = "Election candidacy"
	reasonElectionVote        = "Election vote"
)

// RoleRewards resolves a role-specific winner bonus. Zero means use the default.
type RoleRewards interface {
	RewardFor(roleID string) int64
}

// NameResolver looks up the last known display name of a player.
type NameResolver interface {
	ResolveName(ctx context.Context, playerID players.PlayerID) (string, error)
}

// ServiceConfig describes the dependencies of the reputation ledger.
type ServiceConfig struct {
	Database    *gorm.DB
	IDProvider  IDProvider
	Clock       func() time.Time
	Logger      *zap.Logger
	Amounts     Amounts
	RoleRewards RoleRewards
	Names       NameResolver
	Tiers       []Tier
	Retry       storage.RetryPolicy
}

// Service owns the reputation totals and their ledger.
type Service struct {
	db          *gorm.DB
	ids         IDProvider
	clock       func() time.Time
	logger      *zap.Logger
	roleRewards RoleRewards
	names       NameResolver
	retry       storage.RetryPolicy

	mu      sync.RWMutex
	amounts Amounts
	tiers   Tiers
}

// NewService constructs the ledger service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDB, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, reasonMissingIDs, errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	retry := cfg.Retry
	if retry.Attempts <= 0 {
		retry = storage.DefaultRetryPolicy()
	}

	return &Service{
		db:          cfg.Database,
		ids:         cfg.IDProvider,
		clock:       clock,
		logger:      logger,
		roleRewards: cfg.RoleRewards,
		names:       cfg.Names,
		retry:       retry,
		amounts:     cfg.Amounts,
		tiers:       NewTiers(cfg.Tiers),
	}, nil
}

// SetRewards replaces the default reward sizes.
func (s *Service) SetRewards(amounts Amounts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.amounts = amounts
}

// SetTiers replaces the reputation titles.
func (s *Service) SetTiers(tiers []Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers = NewTiers(tiers)
}

// Rewards returns the current default reward sizes.
func (s *Service) Rewards() Amounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.amounts
}

// TierFor returns the title unlocked by the points.
func (s *Service) TierFor(points int64) (Tier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tiers.For(points)
}

// AwardResult reports the outcome of one award.
type AwardResult struct {
	Applied bool
	Total   int64
	Reached *Tier
}

// AddPoints appends a ledger entry and updates the player's total in one transaction.
// An election-scoped award that was already applied is a no-op with Applied=false.
func (s *Service) AddPoints(ctx context.Context, award Award) (AwardResult, error) {
	if award.PlayerID == "" {
		return AwardResult{}, players.ErrInvalidPlayerID
	}
	if award.Amount == 0 {
		return AwardResult{}, ErrZeroAmount
	}

	result, err := s.apply(ctx, award)
	if err != nil {
		return AwardResult{}, s.fail(opAddPoints, reasonWriteFailed, err,
			zap.String("player_uuid", award.PlayerID.String()),
			zap.String("kind", string(award.Kind)))
	}
	return result, nil
}

// Adjust applies a signed operator adjustment.
func (s *Service) Adjust(ctx context.Context, playerID players.PlayerID, playerName string, delta int64, reason string) (AwardResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Operator adjustment"
	}
	return s.AddPoints(ctx, Award{
		PlayerID:   playerID,
		PlayerName: playerName,
		Amount:     delta,
		Reason:     reason,
		Kind:       KindAdmin,
	})
}

func (s *Service) apply(ctx context.Context, award Award) (AwardResult, error) {
	entryID, err := s.ids.NewID()
	if err != nil {
		return AwardResult{}, err
	}
	now := s.clock().UTC().Unix()
	name := strings.TrimSpace(award.PlayerName)

	var result AwardResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var before Record
		err := tx.Where("player_uuid = ?", award.PlayerID.String()).Take(&before).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		entry := Entry{
			EntryID:          entryID,
			PlayerUUID:       award.PlayerID.String(),
			Amount:           award.Amount,
			Reason:           award.Reason,
			Kind:             award.Kind,
			ElectionID:       award.ElectionID,
			CreatedAtSeconds: now,
		}
		inserted := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
		if inserted.Error != nil {
			return inserted.Error
		}
		if inserted.RowsAffected == 0 {
			result.Total = before.Points
			return nil
		}

		updates := map[string]interface{}{
			"points":       gorm.Expr("points + ?", award.Amount),
			"updated_at_s": now,
		}
		if name != "" {
			updates["player_name"] = name
		}
		record := Record{
			PlayerUUID:       award.PlayerID.String(),
			PlayerName:       name,
			Points:           award.Amount,
			UpdatedAtSeconds: now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "player_uuid"}},
			DoUpdates: clause.Assignments(updates),
		}).Create(&record).Error; err != nil {
			return err
		}

		result.Applied = true
		result.Total = before.Points + award.Amount
		return nil
	})
	if err != nil {
		return AwardResult{}, err
	}

	if result.Applied {
		previous, hadTier := s.TierFor(result.Total - award.Amount)
		current, hasTier := s.TierFor(result.Total)
		if hasTier && (!hadTier || current.MinPoints != previous.MinPoints) && award.Amount > 0 {
			reached := current
			result.Reached = &reached
			s.logger.Info("reputation tier reached",
				zap.String("player_uuid", award.PlayerID.String()),
				zap.String("title", current.Title),
				zap.Int64("points", result.Total))
		}
	}
	return result, nil
}

// ElectionRewards lists the participants of a closing election.
type ElectionRewards struct {
	ElectionID int64
	Winners    []elections.Candidate
	Candidates []elections.Candidate
	Voters     []players.PlayerID
}

// RewardSummary counts applied awards per kind.
type RewardSummary struct {
	Winners    int
	Candidates int
	Voters     int
	Skipped    int
	Failed     int
}

// DistributeElectionRewards awards every winner, candidate and voter of an election. Each
// award is recorded at most once, so a repeated distribution changes nothing. A failed award
// is logged and the rest continue.
func (s *Service) DistributeElectionRewards(ctx context.Context, rewards ElectionRewards) RewardSummary {
	amounts := s.Rewards()
	electionID := rewards.ElectionID
	var summary RewardSummary

	grant := func(award Award, counter *int) {
		if award.Amount == 0 {
			return
		}
		award.ElectionID = &electionID
		var result AwardResult
		err := storage.Retry(ctx, s.logger, opDistribute, s.retry, func() error {
			var applyErr error
			result, applyErr = s.apply(ctx, award)
			return applyErr
		})
		switch {
		case err != nil:
			summary.Failed++
			s.logError(opDistribute, reasonWriteFailed, err,
				zap.Int64("election_id", electionID),
				zap.String("player_uuid", award.PlayerID.String()),
				zap.String("kind", string(award.Kind)))
		case result.Applied:
			*counter++
		default:
			summary.Skipped++
		}
	}

	for _, winner := range rewards.Winners {
		amount := amounts.Winner
		if s.roleRewards != nil {
			if override := s.roleRewards.RewardFor(winner.Role); override != 0 {
				amount = override
			}
		}
		grant(Award{
			PlayerID:   players.PlayerID(winner.PlayerUUID),
			PlayerName: winner.PlayerName,
			Amount:     amount,
			Reason:     reasonElectionWin,
			Kind:       KindWinner,
		}, &summary.Winners)
	}

	for _, candidate := range rewards.Candidates {
		grant(Award{
			PlayerID:   players.PlayerID(candidate.PlayerUUID),
			PlayerName: candidate.PlayerName,
			Amount:     amounts.Candidate,
			Reason:     reasonElectionCandidature,
			Kind:       KindCandidate,
		}, &summary.Candidates)
	}

	seen := make(map[players.PlayerID]bool, len(rewards.Voters))
	for _, voter := range rewards.Voters {
		if seen[voter] {
			continue
		}
		seen[voter] = true
		grant(Award{
			PlayerID:   voter,
			PlayerName: s.resolveName(ctx, voter),
			Amount:     amounts.Voter,
			Reason:     reasonElectionVote,
			Kind:       KindVoter,
		}, &summary.Voters)
	}

	s.logger.Info("election rewards distributed",
		zap.Int64("election_id", electionID),
		zap.Int("winners", summary.Winners),
		zap.Int("candidates", summary.Candidates),
		zap.Int("voters", summary.Voters),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary
}

func (s *Service) resolveName(ctx context.Context, playerID players.PlayerID) string {
	if s.names == nil {
		return ""
	}
	name, err := s.names.ResolveName(ctx, playerID)
	if err != nil {
		if !errors.Is(err, players.ErrPlayerNotFound) {
			s.logger.Warn("player name lookup failed",
				zap.String("player_uuid", playerID.String()),
				zap.Error(err))
		}
		return ""
	}
	return name
}

// Points returns the player's total, zero for players without a record.
func (s *Service) Points(ctx context.Context, playerID players.PlayerID) (int64, error) {
	var record Record
	err := s.db.WithContext(ctx).Where("player_uuid = ?", playerID.String()).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, s.fail(opPoints, reasonQueryFailed, err, zap.String("player_uuid", playerID.String()))
	}
	return record.Points, nil
}

// Standing returns the player's total together with the unlocked title.
func (s *Service) Standing(ctx context.Context, playerID players.PlayerID) (Standing, error) {
	var record Record
	err := s.db.WithContext(ctx).Where("player_uuid = ?", playerID.String()).Take(&record).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Standing{}, s.fail(opPoints, reasonQueryFailed, err, zap.String("player_uuid", playerID.String()))
	}

	standing := Standing{
		PlayerID:   playerID,
		PlayerName: record.PlayerName,
		Points:     record.Points,
	}
	if tier, ok := s.TierFor(record.Points); ok {
		standing.Tier = &tier
	}
	return standing, nil
}

// Leaderboard returns the highest totals, ties broken by name.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	var records []Record
	if err := s.db.WithContext(ctx).
		Order("points DESC, player_name ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, s.fail(opLeaderboard, reasonQueryFailed, err)
	}
	return records, nil
}

// Entries returns the ledger of a player, newest first.
func (s *Service) Entries(ctx context.Context, playerID players.PlayerID) ([]Entry, error) {
	var entries []Entry
	if err := s.db.WithContext(ctx).
		Where("player_uuid = ?", playerID.String()).
		Order("created_at_s DESC, entry_id DESC").
		Find(&entries).Error; err != nil {
		return nil, s.fail(opPoints, reasonQueryFailed, err)
	}
	return entries, nil
}

func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
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
	s.logger.Error("reputation service error", attrs...)
}
