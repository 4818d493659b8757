package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/elections/internal/config"
	"github.com/MarcoPoloResearchLab/elections/internal/elections"
	"github.com/MarcoPoloResearchLab/elections/internal/logging"
	"github.com/MarcoPoloResearchLab/elections/internal/players"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "elections-api",
		Short: "Region-rotating election service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the phase scheduler",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServer(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "start <region>",
			Short: "Open an election in the region",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApplication(cmd.Context(), func(ctx context.Context, app *application) error {
					election, err := app.elections.StartNewElection(ctx, strings.ToLower(strings.TrimSpace(args[0])))
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Started election %d in %s\n", election.ID, app.regions.DisplayName(election.RegionID))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "progress",
			Short: "Advance the current election one phase",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApplication(cmd.Context(), func(ctx context.Context, app *application) error {
					transition, err := app.scheduler.Advance(ctx)
					if err != nil {
						return err
					}
					printTransition(cmd, app, transition)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "rotate",
			Short: "Close the current election and open the next region",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApplication(cmd.Context(), func(ctx context.Context, app *application) error {
					transition, err := app.elections.Rotate(ctx)
					if err != nil {
						return err
					}
					printTransition(cmd, app, transition)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current election",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApplication(cmd.Context(), func(ctx context.Context, app *application) error {
					snapshot, err := app.elections.Status(ctx, app.scheduler.Durations())
					if errors.Is(err, elections.ErrNoActiveElection) {
						fmt.Fprintln(cmd.OutOrStdout(), "No election is running")
						return nil
					}
					if err != nil {
						return err
					}
					return printStatus(cmd, app, snapshot)
				})
			},
		},
		newReputationCommand(),
		&cobra.Command{
			Use:   "issue-token <operator>",
			Short: "Issue an operator bearer token for the admin API",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApplication(cmd.Context(), func(_ context.Context, app *application) error {
					token, expiresAt, err := app.tokens.IssueOperatorToken(args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), token)
					fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
					return nil
				})
			},
		},
	)
	return rootCmd
}

func newReputationCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reputation <player> <delta>",
		Short: "Adjust a player's reputation by UUID or name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("delta must be an integer: %w", err)
			}
			return withApplication(cmd.Context(), func(ctx context.Context, app *application) error {
				playerID, playerName, err := app.players.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				result, err := app.reputation.Adjust(ctx, playerID, playerName, delta, reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d reputation\n", displayPlayer(playerID, playerName), result.Total)
				if result.Reached != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Reached %s\n", result.Reached.Title)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the ledger")
	return cmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().Duration("tick-interval", defaults.GetDuration("scheduler.tick_interval"), "Scheduler tick interval")
	cmd.PersistentFlags().String("signing-secret", "", "Admin token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "scheduler.tick_interval", "tick-interval")
	bindFlag(cmd, "admin.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("elections")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// withApplication wires the services against the configured store for a one-shot command.
// Run these while the server is stopped: a serving process keeps its own election cache.
func withApplication(ctx context.Context, run func(ctx context.Context, app *application) error) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if ctx == nil {
		ctx = context.Background()
	}
	app, err := newApplication(ctx, viper.GetViper(), appConfig, logger, false)
	if err != nil {
		return err
	}
	defer app.close() //nolint:errcheck

	return run(ctx, app)
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if ctx == nil {
		ctx = context.Background()
	}
	app, err := newApplication(ctx, viper.GetViper(), appConfig, logger, true)
	if err != nil {
		return err
	}
	defer app.close() //nolint:errcheck

	handler, err := app.handler()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go app.scheduler.Run(signalCtx)
	go watchReload(signalCtx, app)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// watchReload applies the configuration file again on every SIGHUP.
func watchReload(ctx context.Context, app *application) {
	hangups := make(chan os.Signal, 1)
	signal.Notify(hangups, syscall.SIGHUP)
	defer signal.Stop(hangups)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hangups:
			if err := app.reload(ctx); err != nil {
				app.logger.Error("configuration reload failed", zap.Error(err))
			}
		}
	}
}

func displayPlayer(playerID players.PlayerID, playerName string) string {
	if playerName == "" {
		return playerID.String()
	}
	return playerName
}

func printTransition(cmd *cobra.Command, app *application, transition elections.Transition) {
	out := cmd.OutOrStdout()
	region := app.regions.DisplayName(transition.Election.RegionID)
	if !transition.Closed() {
		fmt.Fprintf(out, "Election %d in %s moved from %s to %s\n",
			transition.Election.ID, region, transition.From.DisplayName(), transition.To.DisplayName())
		return
	}
	fmt.Fprintf(out, "Election %d in %s closed\n", transition.Election.ID, region)
	if transition.Opened != nil {
		fmt.Fprintf(out, "Election %d opened in %s\n", transition.Opened.ID, app.regions.DisplayName(transition.Opened.RegionID))
	} else {
		fmt.Fprintln(out, "No next region is configured; the cycle stopped")
	}
}

type statusCandidate struct {
	ID     int64  `json:"id"`
	Player string `json:"player"`
	Role   string `json:"role"`
	Votes  int64  `json:"votes"`
	Slogan string `json:"slogan,omitempty"`
}

type statusReport struct {
	ElectionID  int64             `json:"election_id"`
	Region      string            `json:"region"`
	Phase       string            `json:"phase"`
	PhaseEndsAt time.Time         `json:"phase_ends_at"`
	Remaining   string            `json:"remaining"`
	Candidates  []statusCandidate `json:"candidates"`
}

func printStatus(cmd *cobra.Command, app *application, snapshot elections.Snapshot) error {
	report := statusReport{
		ElectionID:  snapshot.Election.ID,
		Region:      app.regions.DisplayName(snapshot.Election.RegionID),
		Phase:       snapshot.Election.Phase.DisplayName(),
		PhaseEndsAt: snapshot.PhaseEndsAt,
		Remaining:   snapshot.Remaining.Round(time.Second).String(),
		Candidates:  make([]statusCandidate, 0, len(snapshot.Candidates)),
	}
	for _, candidate := range snapshot.Candidates {
		report.Candidates = append(report.Candidates, statusCandidate{
			ID:     candidate.ID,
			Player: candidate.PlayerName,
			Role:   app.roleCatalog.DisplayName(candidate.Role),
			Votes:  candidate.Votes,
			Slogan: candidate.Slogan,
		})
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
