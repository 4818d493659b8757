package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "ELECTIONS"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "elections.db"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultRegistrationDays  = 7
	defaultVotingDays        = 7
	defaultMandateDays       = 30
	defaultDayLength         = 24 * time.Hour
	defaultTickInterval      = time.Minute
	defaultAuthorizerTimeout = 5 * time.Second
	defaultWinnerReward      = 10
	defaultCandidateReward   = 2
	defaultVoterReward       = 1
	defaultTokenTTLMinutes   = 60
)

// Boundary is an axis-aligned region box in a named world.
type Boundary struct {
	World string  `mapstructure:"world"`
	MinX  float64 `mapstructure:"min_x"`
	MinY  float64 `mapstructure:"min_y"`
	MinZ  float64 `mapstructure:"min_z"`
	MaxX  float64 `mapstructure:"max_x"`
	MaxY  float64 `mapstructure:"max_y"`
	MaxZ  float64 `mapstructure:"max_z"`
}

// RegionConfig describes one entry of region_catalog.
type RegionConfig struct {
	ID          string    `mapstructure:"-"`
	DisplayName string    `mapstructure:"display_name"`
	Boundary    *Boundary `mapstructure:"boundary"`
}

// RoleConfig describes one entry of roles.
type RoleConfig struct {
	ID               string `mapstructure:"-"`
	DisplayName      string `mapstructure:"display_name"`
	PermissionGroup  string `mapstructure:"permission_group"`
	ReputationReward int64  `mapstructure:"reputation_reward"`
}

// TierConfig is one reputation title threshold.
type TierConfig struct {
	MinPoints int64  `mapstructure:"min_points"`
	Title     string `mapstructure:"title"`
}

// AppConfig captures runtime configuration for the election service.
type AppConfig struct {
	HTTPAddress       string
	DatabasePath      string
	LogLevel          string
	LogFormat         string
	AdminSigningKey   string
	AdminTokenTTL     time.Duration
	RegistrationPhase time.Duration
	VotingPhase       time.Duration
	Mandate           time.Duration
	TickInterval      time.Duration
	AuthorizerTimeout time.Duration
	WinnerReward      int64
	CandidateReward   int64
	VoterReward       int64
	MinReputation     int64
	Rotation          []string
	Regions           []RegionConfig
	Roles             []RoleConfig
	Tiers             []TierConfig
	AllowedOrigins    []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("election.registration_days", defaultRegistrationDays)
	configViper.SetDefault("election.voting_days", defaultVotingDays)
	configViper.SetDefault("election.mandate_days", defaultMandateDays)
	configViper.SetDefault("election.day_length", defaultDayLength)
	configViper.SetDefault("scheduler.tick_interval", defaultTickInterval)
	configViper.SetDefault("authorizer.timeout", defaultAuthorizerTimeout)
	configViper.SetDefault("reputation.winner", defaultWinnerReward)
	configViper.SetDefault("reputation.candidate", defaultCandidateReward)
	configViper.SetDefault("reputation.voter", defaultVoterReward)
	configViper.SetDefault("eligibility.min_reputation", 0)
	configViper.SetDefault("admin.token_ttl_minutes", defaultTokenTTLMinutes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	dayLength := configViper.GetDuration("election.day_length")
	if dayLength <= 0 {
		dayLength = defaultDayLength
	}

	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		LogFormat:         configViper.GetString("log.format"),
		AdminSigningKey:   configViper.GetString("admin.signing_secret"),
		AdminTokenTTL:     time.Duration(configViper.GetInt("admin.token_ttl_minutes")) * time.Minute,
		RegistrationPhase: time.Duration(configViper.GetInt("election.registration_days")) * dayLength,
		VotingPhase:       time.Duration(configViper.GetInt("election.voting_days")) * dayLength,
		Mandate:           time.Duration(configViper.GetInt("election.mandate_days")) * dayLength,
		TickInterval:      configViper.GetDuration("scheduler.tick_interval"),
		AuthorizerTimeout: configViper.GetDuration("authorizer.timeout"),
		WinnerReward:      configViper.GetInt64("reputation.winner"),
		CandidateReward:   configViper.GetInt64("reputation.candidate"),
		VoterReward:       configViper.GetInt64("reputation.voter"),
		MinReputation:     configViper.GetInt64("eligibility.min_reputation"),
		Rotation:          lowerList(normalizeList(configViper.GetStringSlice("regions"))),
		AllowedOrigins:    normalizeList(configViper.GetStringSlice("http.allowed_origins")),
	}

	regionEntries := map[string]RegionConfig{}
	if err := configViper.UnmarshalKey("region_catalog", &regionEntries); err != nil {
		return AppConfig{}, fmt.Errorf("region_catalog: %w", err)
	}
	for _, id := range sortedKeys(regionEntries) {
		entry := regionEntries[id]
		entry.ID = id
		cfg.Regions = append(cfg.Regions, entry)
	}

	roleEntries := map[string]RoleConfig{}
	if err := configViper.UnmarshalKey("roles", &roleEntries); err != nil {
		return AppConfig{}, fmt.Errorf("roles: %w", err)
	}
	for _, id := range sortedKeys(roleEntries) {
		entry := roleEntries[id]
		entry.ID = id
		cfg.Roles = append(cfg.Roles, entry)
	}

	if err := configViper.UnmarshalKey("reputation.tiers", &cfg.Tiers); err != nil {
		return AppConfig{}, fmt.Errorf("reputation.tiers: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AdminSigningKey) == "" {
		return fmt.Errorf("admin.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if len(c.Rotation) == 0 {
		return fmt.Errorf("regions must list at least one region")
	}
	if len(c.Roles) == 0 {
		return fmt.Errorf("roles must define at least one role")
	}
	if c.RegistrationPhase <= 0 || c.VotingPhase <= 0 || c.Mandate <= 0 {
		return fmt.Errorf("election phase lengths must be positive")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive")
	}
	return nil
}

func normalizeList(values []string) []string {
	normalized := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

// viper folds map keys to lower case, so rotation entries are folded to match region_catalog.
func lowerList(values []string) []string {
	for i, value := range values {
		values[i] = strings.ToLower(value)
	}
	return values
}

func sortedKeys[T any](entries map[string]T) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
