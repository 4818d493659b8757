package main

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/MarcoPoloResearchLab/elections/internal/auth"
	"github.com/MarcoPoloResearchLab/elections/internal/config"
	"github.com/MarcoPoloResearchLab/elections/internal/database"
	"github.com/MarcoPoloResearchLab/elections/internal/elections"
	"github.com/MarcoPoloResearchLab/elections/internal/players"
	"github.com/MarcoPoloResearchLab/elections/internal/regions"
	"github.com/MarcoPoloResearchLab/elections/internal/reputation"
	"github.com/MarcoPoloResearchLab/elections/internal/roles"
	"github.com/MarcoPoloResearchLab/elections/internal/scheduler"
	"github.com/MarcoPoloResearchLab/elections/internal/server"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// application holds the wired services of one process.
type application struct {
	viper  *viper.Viper
	logger *zap.Logger
	db     *gorm.DB

	regions     *regions.Catalog
	roleCatalog *roles.Catalog
	players     *players.Service
	roles       *roles.Service
	elections   *elections.Service
	reputation  *reputation.Service
	gate        *reputation.RequirementGate
	scheduler   *scheduler.Scheduler
	tokens      *auth.TokenIssuer
	realtime    *server.RealtimeDispatcher

	mu     sync.Mutex
	config config.AppConfig
}

// newApplication opens the store and wires every service. With realtime enabled role
// notifications and announcements go to player event streams; otherwise they are logged.
func newApplication(ctx context.Context, configViper *viper.Viper, cfg config.AppConfig, logger *zap.Logger, realtime bool) (*application, error) {
	db, err := database.OpenSQLite(cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	app := &application{
		viper:       configViper,
		logger:      logger,
		db:          db,
		config:      cfg,
		regions:     regions.NewCatalog(cfg.Rotation, regionEntries(cfg)),
		roleCatalog: roles.NewCatalog(roleDefinitions(cfg)),
	}
	if err := app.wire(ctx, cfg, realtime); err != nil {
		_ = app.close()
		return nil, err
	}
	return app, nil
}

func (a *application) wire(ctx context.Context, cfg config.AppConfig, realtime bool) error {
	var err error
	a.players, err = players.NewService(players.ServiceConfig{Database: a.db})
	if err != nil {
		return err
	}

	a.roles, err = roles.NewService(roles.ServiceConfig{
		Database:          a.db,
		Catalog:           a.roleCatalog,
		Authorizer:        roles.LoggingAuthorizer{Logger: a.logger},
		Mandate:           cfg.Mandate,
		AuthorizerTimeout: cfg.AuthorizerTimeout,
		Logger:            a.logger,
	})
	if err != nil {
		return err
	}

	a.elections, err = elections.NewService(elections.ServiceConfig{
		Database:   a.db,
		Regions:    a.regions,
		Roles:      a.roleCatalog,
		Incumbents: a.roles,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}
	if err := a.elections.Load(ctx); err != nil {
		return err
	}

	a.reputation, err = reputation.NewService(reputation.ServiceConfig{
		Database:    a.db,
		IDProvider:  reputation.NewUUIDProvider(),
		Logger:      a.logger,
		Amounts:     rewardAmounts(cfg),
		RoleRewards: a.roleCatalog,
		Names:       a.players,
		Tiers:       reputationTiers(cfg),
	})
	if err != nil {
		return err
	}
	a.gate = reputation.NewRequirementGate(a.reputation, cfg.MinReputation, a.logger)

	var announcer scheduler.Announcer
	if realtime {
		a.realtime = server.NewRealtimeDispatcher()
		a.roles.SetNotifier(a.realtime)
		announcer = a.realtime
	}
	a.scheduler, err = scheduler.New(scheduler.Config{
		Elections:    a.elections,
		Rewards:      a.reputation,
		Grants:       a.roles,
		Announcer:    announcer,
		Durations:    phaseDurations(cfg),
		TickInterval: cfg.TickInterval,
		Logger:       a.logger,
	})
	if err != nil {
		return err
	}

	a.tokens, err = auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(cfg.AdminSigningKey),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      cfg.AdminTokenTTL,
	})
	return err
}

func (a *application) handler() (http.Handler, error) {
	return server.NewHTTPHandler(server.Dependencies{
		Elections:      a.elections,
		Progressor:     a.scheduler,
		Players:        a.players,
		Reputation:     a.reputation,
		Roles:          a.roles,
		Regions:        a.regions,
		Eligibility:    a.gate,
		TokenManager:   a.tokens,
		Realtime:       a.realtime,
		Reload:         a.reload,
		AllowedOrigins: a.currentConfig().AllowedOrigins,
		Logger:         a.logger,
	})
}

func (a *application) currentConfig() config.AppConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// reload re-reads the configuration file and applies the reloadable settings. Listen
// address, database path and signing secret need a restart.
func (a *application) reload(_ context.Context) error {
	if err := a.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	cfg, err := config.Load(a.viper)
	if err != nil {
		return err
	}
	a.apply(cfg)
	return nil
}

func (a *application) apply(cfg config.AppConfig) {
	a.mu.Lock()
	previous := a.config
	a.config = cfg
	a.mu.Unlock()

	a.regions.Replace(cfg.Rotation, regionEntries(cfg))
	a.roleCatalog.Replace(roleDefinitions(cfg))
	a.scheduler.SetDurations(phaseDurations(cfg))
	a.roles.SetMandate(cfg.Mandate)
	a.reputation.SetRewards(rewardAmounts(cfg))
	a.reputation.SetTiers(reputationTiers(cfg))
	a.gate.SetMinimum(cfg.MinReputation)

	if previous.DatabasePath != cfg.DatabasePath || previous.HTTPAddress != cfg.HTTPAddress {
		a.logger.Warn("listen address and database path changes apply after restart")
	}
	a.logger.Info("configuration applied",
		zap.Strings("regions", cfg.Rotation),
		zap.Int("roles", len(cfg.Roles)),
		zap.Duration("registration", cfg.RegistrationPhase),
		zap.Duration("voting", cfg.VotingPhase),
		zap.Duration("mandate", cfg.Mandate))
}

func (a *application) close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func regionEntries(cfg config.AppConfig) []regions.Region {
	entries := make([]regions.Region, 0, len(cfg.Regions))
	for _, region := range cfg.Regions {
		entry := regions.Region{ID: region.ID, DisplayName: region.DisplayName}
		if region.Boundary != nil {
			boundary := regions.NewBoundary(region.Boundary.World,
				region.Boundary.MinX, region.Boundary.MinY, region.Boundary.MinZ,
				region.Boundary.MaxX, region.Boundary.MaxY, region.Boundary.MaxZ)
			entry.Boundary = &boundary
		}
		entries = append(entries, entry)
	}
	return entries
}

func roleDefinitions(cfg config.AppConfig) []roles.Definition {
	definitions := make([]roles.Definition, 0, len(cfg.Roles))
	for _, role := range cfg.Roles {
		definitions = append(definitions, roles.Definition{
			ID:               role.ID,
			DisplayName:      role.DisplayName,
			PermissionGroup:  role.PermissionGroup,
			ReputationReward: role.ReputationReward,
		})
	}
	return definitions
}

func reputationTiers(cfg config.AppConfig) []reputation.Tier {
	tiers := make([]reputation.Tier, 0, len(cfg.Tiers))
	for _, tier := range cfg.Tiers {
		tiers = append(tiers, reputation.Tier{MinPoints: tier.MinPoints, Title: tier.Title})
	}
	return tiers
}

func rewardAmounts(cfg config.AppConfig) reputation.Amounts {
	return reputation.Amounts{
		Winner:    cfg.WinnerReward,
		Candidate: cfg.CandidateReward,
		Voter:     cfg.VoterReward,
	}
}

func phaseDurations(cfg config.AppConfig) elections.Durations {
	return elections.Durations{
		Registration: cfg.RegistrationPhase,
		Voting:       cfg.VotingPhase,
		Mandate:      cfg.Mandate,
	}
}
