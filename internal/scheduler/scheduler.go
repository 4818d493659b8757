package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/elections/internal/elections"
	"github.com/MarcoPoloResearchLab/elections/internal/players"
	"github.com/MarcoPoloResearchLab/elections/internal/reputation"
	"github.com/MarcoPoloResearchLab/elections/internal/roles"
	"go.uber.org/zap"
)

const defaultTickInterval = time.Minute

var errMissingDependency = errors.New("scheduler: elections, rewards and grants are required")

// Elections is the state machine driven by the scheduler.
type Elections interface {
	Current() (elections.Election, bool)
	ProgressElection(ctx context.Context) (elections.Transition, error)
	CandidatesFor(ctx context.Context, electionID int64) ([]elections.Candidate, error)
	VotersFor(ctx context.Context, electionID int64) ([]players.PlayerID, error)
}

// Rewards distributes reputation for a closing election.
type Rewards interface {
	DistributeElectionRewards(ctx context.Context, rewards reputation.ElectionRewards) reputation.RewardSummary
}

// Grants manages the mandates of elected players.
type Grants interface {
	AssignWinners(ctx context.Context, grant roles.Grant) (int, error)
	SweepExpired(ctx context.Context) (int, error)
}

// Config describes the scheduler dependencies.
type Config struct {
	Elections    Elections
	Rewards      Rewards
	Grants       Grants
	Announcer    Announcer
	Durations    elections.Durations
	TickInterval time.Duration
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Scheduler advances elections whose phase has expired and sweeps expired mandates.
type Scheduler struct {
	elections Elections
	rewards   Rewards
	grants    Grants
	announcer Announcer
	interval  time.Duration
	clock     func() time.Time
	logger    *zap.Logger

	mu        sync.RWMutex
	durations elections.Durations

	advanceMu sync.Mutex
}

// New constructs a scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Elections == nil || cfg.Rewards == nil || cfg.Grants == nil {
		return nil, errMissingDependency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	announcer := cfg.Announcer
	if announcer == nil {
		announcer = LogAnnouncer{Logger: logger}
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		elections: cfg.Elections,
		rewards:   cfg.Rewards,
		grants:    cfg.Grants,
		announcer: announcer,
		interval:  interval,
		clock:     clock,
		logger:    logger,
		durations: cfg.Durations,
	}, nil
}

// SetDurations replaces the phase lengths.
func (s *Scheduler) SetDurations(durations elections.Durations) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.durations = durations
}

// Durations returns the phase lengths in effect.
func (s *Scheduler) Durations() elections.Durations {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.durations
}

// Run ticks immediately and then on every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var ticker = time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick sweeps expired mandates and advances the current election when its phase is due.
func (s *Scheduler) Tick(ctx context.Context) {
	if swept, err := s.grants.SweepExpired(ctx); err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
	} else if swept > 0 {
		s.logger.Info("expired mandates swept", zap.Int("count", swept))
	}

	current, ok := s.elections.Current()
	if !ok || !s.Durations().Due(current, s.clock()) {
		return
	}
	if err := s.advanceIfDue(ctx); err != nil {
		s.logger.Error("scheduled progression failed",
			zap.Int64("election_id", current.ID),
			zap.String("phase", string(current.Phase)),
			zap.Error(err))
	}
}

// Advance progresses the current election one step and runs its side effects: on entering
// RESULTS rewards are distributed, then winners receive their roles.
func (s *Scheduler) Advance(ctx context.Context) (elections.Transition, error) {
	s.advanceMu.Lock()
	defer s.advanceMu.Unlock()
	return s.advanceLocked(ctx)
}

// advanceIfDue re-checks the election under advanceMu so a progression that ran since the
// caller's check is not repeated.
func (s *Scheduler) advanceIfDue(ctx context.Context) error {
	s.advanceMu.Lock()
	defer s.advanceMu.Unlock()

	current, ok := s.elections.Current()
	if !ok || !s.Durations().Due(current, s.clock()) {
		return nil
	}
	_, err := s.advanceLocked(ctx)
	return err
}

func (s *Scheduler) advanceLocked(ctx context.Context) (elections.Transition, error) {
	transition, err := s.elections.ProgressElection(ctx)
	if err != nil {
		return elections.Transition{}, err
	}

	var winners []elections.Candidate
	if transition.To == elections.PhaseResults {
		winners = s.settle(ctx, transition.Election)
	}
	s.announce(ctx, transition, winners)
	return transition, nil
}

func (s *Scheduler) settle(ctx context.Context, election elections.Election) []elections.Candidate {
	candidates, err := s.elections.CandidatesFor(ctx, election.ID)
	if err != nil {
		s.logger.Error("candidate lookup failed, skipping settlement",
			zap.Int64("election_id", election.ID),
			zap.Error(err))
		return nil
	}
	voters, err := s.elections.VotersFor(ctx, election.ID)
	if err != nil {
		s.logger.Warn("voter lookup failed, voters go unrewarded",
			zap.Int64("election_id", election.ID),
			zap.Error(err))
	}

	winners := elections.SelectWinners(candidates)
	s.rewards.DistributeElectionRewards(ctx, reputation.ElectionRewards{
		ElectionID: election.ID,
		Winners:    winners,
		Candidates: candidates,
		Voters:     voters,
	})

	if len(winners) == 0 {
		s.logger.Info("election closed without candidates", zap.Int64("election_id", election.ID))
		return nil
	}
	if _, err := s.grants.AssignWinners(ctx, roles.Grant{
		ElectionID: election.ID,
		RegionID:   election.RegionID,
		Winners:    winners,
	}); err != nil {
		s.logger.Error("role assignment failed",
			zap.Int64("election_id", election.ID),
			zap.Error(err))
	}
	return winners
}

func (s *Scheduler) announce(ctx context.Context, transition elections.Transition, winners []elections.Candidate) {
	if !transition.Closed() {
		s.announcer.Announce(ctx, Announcement{
			Kind:       AnnouncementPhaseChanged,
			ElectionID: transition.Election.ID,
			RegionID:   transition.Election.RegionID,
			Phase:      transition.To,
			Winners:    announcedWinners(winners),
		})
		return
	}

	s.announcer.Announce(ctx, Announcement{
		Kind:       AnnouncementElectionClosed,
		ElectionID: transition.Election.ID,
		RegionID:   transition.Election.RegionID,
		Phase:      transition.From,
	})
	if transition.Opened != nil {
		s.announcer.Announce(ctx, Announcement{
			Kind:       AnnouncementElectionStarted,
			ElectionID: transition.Opened.ID,
			RegionID:   transition.Opened.RegionID,
			Phase:      transition.Opened.Phase,
		})
	}
}
