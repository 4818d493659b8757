package roles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/elections/internal/elections"
	"github.com/MarcoPoloResearchLab/elections/internal/players"
	"github.com/MarcoPoloResearchLab/elections/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultAuthorizerTimeout = 5 * time.Second

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingCatalog  = errors.New("role catalog is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError wraps unexpected storage faults with a stable code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "roles.service.new"
	opAssignWinners  = "roles.assign_winners"
	opSweepExpired   = "roles.sweep_expired"
	opDeliverPending = "roles.deliver_pending"
	opHasActiveRole  = "roles.has_active_role"
	opActiveHolders  = "roles.active_holders"
	opDeactivate     = "roles.deactivate"
	opMarkNotified   = "roles.mark_notified"

	reasonMissingDatabase = "missing_database"
	reasonMissingCatalog  = "missing_catalog"
	reasonQueryFailed     = "query_failed"
	reasonInsertFailed    = "insert_failed"
	reasonUpdateFailed    = "update_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the role service.
type ServiceConfig struct {
	Database          *gorm.DB
	Catalog           *Catalog
	Authorizer        Authorizer
	Notifier          Notifier
	Mandate           time.Duration
	AuthorizerTimeout time.Duration
	Retry             storage.RetryPolicy
	Clock             func() time.Time
	Logger            *zap.Logger
}

// Service owns role holder rows and keeps the permission backend in step with them.
type Service struct {
	db          *gorm.DB
	catalog     *Catalog
	authorizer  Authorizer
	notifier    Notifier
	authTimeout time.Duration
	retry       storage.RetryPolicy
	clock       func() time.Time
	logger      *zap.Logger

	mandateMu sync.RWMutex
	mandate   time.Duration

	deliverMu sync.Mutex
}

// NewService constructs the role service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.Catalog == nil {
		return nil, newServiceError(opServiceNew, reasonMissingCatalog, errMissingCatalog)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	authorizer := cfg.Authorizer
	if authorizer == nil {
		authorizer = LoggingAuthorizer{Logger: logger}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	timeout := cfg.AuthorizerTimeout
	if timeout <= 0 {
		timeout = defaultAuthorizerTimeout
	}
	retry := cfg.Retry
	if retry.Attempts <= 0 {
		retry = storage.DefaultRetryPolicy()
	}

	return &Service{
		db:          cfg.Database,
		catalog:     cfg.Catalog,
		authorizer:  authorizer,
		notifier:    cfg.Notifier,
		authTimeout: timeout,
		retry:       retry,
		clock:       clock,
		logger:      logger,
		mandate:     cfg.Mandate,
	}, nil
}

// SetNotifier installs the notification channel. Set before the scheduler starts.
func (s *Service) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// SetMandate replaces the mandate length applied to future grants.
func (s *Service) SetMandate(mandate time.Duration) {
	s.mandateMu.Lock()
	defer s.mandateMu.Unlock()
	s.mandate = mandate
}

// Mandate returns the mandate length applied to new grants.
func (s *Service) Mandate() time.Duration {
	s.mandateMu.RLock()
	defer s.mandateMu.RUnlock()
	return s.mandate
}

// Grant lists the winners of a closing election.
type Grant struct {
	ElectionID int64
	RegionID   string
	Winners    []elections.Candidate
}

// AssignWinners records a role holder for every winner whose role maps to a permission group,
// notifies reachable winners and grants the role in the permission backend. A backend failure
// is logged and the holder row is kept.
func (s *Service) AssignWinners(ctx context.Context, grant Grant) (int, error) {
	now := s.clock().UTC()
	endsAt := now.Add(s.Mandate())
	assigned := 0

	for _, winner := range grant.Winners {
		definition, ok := s.catalog.Lookup(winner.Role)
		if !ok || definition.PermissionGroup == "" {
			s.logger.Warn("role has no permission group, skipping winner",
				zap.String("role", winner.Role),
				zap.String("player_uuid", winner.PlayerUUID),
				zap.Int64("election_id", grant.ElectionID))
			continue
		}

		holder := Holder{
			PlayerUUID:       winner.PlayerUUID,
			PlayerName:       winner.PlayerName,
			RegionID:         grant.RegionID,
			Role:             winner.Role,
			ElectionID:       grant.ElectionID,
			StartedAtSeconds: now.Unix(),
			EndsAtSeconds:    endsAt.Unix(),
			Active:           true,
		}
		err := storage.Retry(ctx, s.logger, opAssignWinners, s.retry, func() error {
			holder.ID = 0
			return s.db.WithContext(ctx).Create(&holder).Error
		})
		if err != nil {
			s.logError(opAssignWinners, reasonInsertFailed, err,
				zap.String("player_uuid", winner.PlayerUUID),
				zap.String("role", winner.Role))
			continue
		}
		assigned++

		playerID := players.PlayerID(winner.PlayerUUID)
		if s.reachable(playerID) {
			s.deliver(ctx, holder, NotificationWon)
		}

		authCtx, cancel := context.WithTimeout(ctx, s.authTimeout)
		if err := s.authorizer.GrantTimeBoundRole(authCtx, playerID, definition.PermissionGroup, grant.RegionID, endsAt); err != nil {
			s.logger.Warn("permission grant failed",
				zap.String("player_uuid", winner.PlayerUUID),
				zap.String("group", definition.PermissionGroup),
				zap.String("region_id", grant.RegionID),
				zap.Error(err))
		}
		cancel()

		s.logger.Info("role assigned",
			zap.Int64("holder_id", holder.ID),
			zap.String("player_uuid", winner.PlayerUUID),
			zap.String("role", winner.Role),
			zap.String("region_id", grant.RegionID),
			zap.Time("ends_at", endsAt))
	}
	return assigned, nil
}

// SweepExpired revokes and deactivates every active holder whose mandate has ended. Each row is
// deactivated at most once; a failing row never stops the sweep.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.clock().UTC().Unix()

	var expired []Holder
	if err := s.db.WithContext(ctx).
		Where("active = ? AND ends_at_s <= ?", true, now).
		Order("ends_at_s ASC, id ASC").
		Find(&expired).Error; err != nil {
		return 0, s.fail(opSweepExpired, reasonQueryFailed, err)
	}

	deactivated := 0
	for _, holder := range expired {
		playerID := players.PlayerID(holder.PlayerUUID)
		group := s.catalog.Group(holder.Role)
		if group == "" {
			s.logger.Warn("expired role has no permission group, deactivating without revoke",
				zap.Int64("holder_id", holder.ID),
				zap.String("role", holder.Role))
		} else {
			authCtx, cancel := context.WithTimeout(ctx, s.authTimeout)
			if err := s.authorizer.RevokeTimeBoundRole(authCtx, playerID, group, holder.RegionID); err != nil {
				s.logger.Warn("permission revoke failed",
					zap.Int64("holder_id", holder.ID),
					zap.String("player_uuid", holder.PlayerUUID),
					zap.String("group", group),
					zap.Error(err))
			}
			cancel()
		}

		var rows int64
		err := storage.Retry(ctx, s.logger, opDeactivate, s.retry, func() error {
			result := s.db.WithContext(ctx).
				Model(&Holder{}).
				Where("id = ? AND active = ?", holder.ID, true).
				Update("active", false)
			rows = result.RowsAffected
			return result.Error
		})
		if err != nil {
			s.logError(opDeactivate, reasonUpdateFailed, err, zap.Int64("holder_id", holder.ID))
			continue
		}
		if rows != 1 {
			continue
		}
		deactivated++

		if s.reachable(playerID) {
			notification := s.notification(holder, NotificationExpired)
			if err := s.notifier.Notify(ctx, notification); err != nil {
				s.logger.Warn("expiry notification failed",
					zap.Int64("holder_id", holder.ID),
					zap.Error(err))
			}
		}
		s.logger.Info("role expired",
			zap.Int64("holder_id", holder.ID),
			zap.String("player_uuid", holder.PlayerUUID),
			zap.String("role", holder.Role),
			zap.String("region_id", holder.RegionID))
	}
	return deactivated, nil
}

// DeliverPending sends win notifications that could not be delivered while the player was
// unreachable. Each holder row is delivered at most once.
func (s *Service) DeliverPending(ctx context.Context, playerID players.PlayerID) (int, error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	var pending []Holder
	if err := s.db.WithContext(ctx).
		Where("player_uuid = ? AND active = ? AND notified = ? AND ends_at_s > ?",
			playerID.String(), true, false, s.clock().UTC().Unix()).
		Order("id ASC").
		Find(&pending).Error; err != nil {
		return 0, s.fail(opDeliverPending, reasonQueryFailed, err, zap.String("player_uuid", playerID.String()))
	}

	delivered := 0
	for _, holder := range pending {
		if s.deliver(ctx, holder, NotificationWon) {
			delivered++
		}
	}
	return delivered, nil
}

func (s *Service) reachable(playerID players.PlayerID) bool {
	return s.notifier != nil && s.notifier.Reachable(playerID)
}

// deliver notifies the holder and flips notified. It reports whether this call set the flag.
func (s *Service) deliver(ctx context.Context, holder Holder, kind NotificationKind) bool {
	if s.notifier == nil {
		return false
	}
	if err := s.notifier.Notify(ctx, s.notification(holder, kind)); err != nil {
		s.logger.Warn("role notification failed",
			zap.Int64("holder_id", holder.ID),
			zap.String("player_uuid", holder.PlayerUUID),
			zap.Error(err))
		return false
	}

	var rows int64
	err := storage.Retry(ctx, s.logger, opMarkNotified, s.retry, func() error {
		result := s.db.WithContext(ctx).
			Model(&Holder{}).
			Where("id = ? AND notified = ?", holder.ID, false).
			Update("notified", true)
		rows = result.RowsAffected
		return result.Error
	})
	if err != nil {
		s.logError(opMarkNotified, reasonUpdateFailed, err, zap.Int64("holder_id", holder.ID))
		return false
	}
	return rows == 1
}

func (s *Service) notification(holder Holder, kind NotificationKind) Notification {
	return Notification{
		Kind:       kind,
		PlayerID:   players.PlayerID(holder.PlayerUUID),
		Role:       holder.Role,
		RoleName:   s.catalog.DisplayName(holder.Role),
		RegionID:   holder.RegionID,
		ElectionID: holder.ElectionID,
		EndsAt:     holder.EndsAt(),
	}
}

// HasActiveRole reports whether the player serves an unexpired mandate in the region.
func (s *Service) HasActiveRole(ctx context.Context, playerID players.PlayerID, regionID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Holder{}).
		Where("player_uuid = ? AND region_id = ? AND active = ? AND ends_at_s > ?",
			playerID.String(), regionID, true, s.clock().UTC().Unix()).
		Count(&count).Error; err != nil {
		return false, s.fail(opHasActiveRole, reasonQueryFailed, err, zap.String("player_uuid", playerID.String()))
	}
	return count > 0, nil
}

// ActiveHolders lists unexpired holders of a region, or of every region when regionID is empty.
func (s *Service) ActiveHolders(ctx context.Context, regionID string) ([]Holder, error) {
	query := s.db.WithContext(ctx).
		Where("active = ? AND ends_at_s > ?", true, s.clock().UTC().Unix())
	if regionID != "" {
		query = query.Where("region_id = ?", regionID)
	}
	var holders []Holder
	if err := query.Order("region_id ASC, role ASC, id ASC").Find(&holders).Error; err != nil {
		return nil, s.fail(opActiveHolders, reasonQueryFailed, err)
	}
	return holders, nil
}

// HoldingsOf lists the unexpired roles held by a player.
func (s *Service) HoldingsOf(ctx context.Context, playerID players.PlayerID) ([]Holder, error) {
	var holders []Holder
	if err := s.db.WithContext(ctx).
		Where("player_uuid = ? AND active = ? AND ends_at_s > ?", playerID.String(), true, s.clock().UTC().Unix()).
		Order("ends_at_s ASC").
		Find(&holders).Error; err != nil {
		return nil, s.fail(opActiveHolders, reasonQueryFailed, err)
	}
	return holders, nil
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
	s.logger.Error("roles service error", attrs...)
}
