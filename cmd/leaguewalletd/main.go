package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/leaguewallet/internal/walletapi"
	"github.com/MarkoPoloResearchLab/leaguewallet/pkg/ledger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagDatabaseURL      = "database-url"
	flagInstantFeeRate   = "instant-fee-rate"
	flagNotifyWebhookURL = "notify-webhook-url"
	flagNotifyToken      = "notify-token"
	flagNotifyTimeout    = "notify-timeout"
	flagListenAddr       = "listen-addr"
	flagAllowedOrigins   = "allowed-origins"
	flagJWTSigningKey    = "jwt-signing-key"
	flagJWTIssuer        = "jwt-issuer"
	flagJWTCookieName    = "jwt-cookie-name"
	flagWebhookToken     = "webhook-token"
	flagResumeInterval   = "resume-interval"
	flagLeague           = "league"
	flagWeek             = "week"
	envPrefix            = "LEAGUEWALLET"
	defaultDatabaseURL   = "sqlite:///tmp/leaguewallet.db"
	defaultListenAddr    = ":8080"
	defaultFeeRate       = "0.025"
	defaultNotifyTimeout = 5 * time.Second
)

type runtimeConfig struct {
	DatabaseURL      string
	InstantFeeRate   string
	NotifyWebhookURL string
	NotifyToken      string
	NotifyTimeout    time.Duration
	API              walletapi.Config
	ResumeInterval   time.Duration
	League           string
	Week             int
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "leaguewalletd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "leaguewalletd",
		Short:         "League wallet ledger and weekly award settlement",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}

	cmd.PersistentFlags().String(flagDatabaseURL, defaultDatabaseURL, "postgres:// URL, sqlite:// URL or sqlite file path")
	cmd.PersistentFlags().String(flagInstantFeeRate, defaultFeeRate, "fraction retained on instant payouts and withdrawals")
	cmd.PersistentFlags().String(flagNotifyWebhookURL, "", "SMS gateway webhook; empty logs notifications instead")
	cmd.PersistentFlags().String(flagNotifyToken, "", "service token sent to the SMS gateway")
	cmd.PersistentFlags().Duration(flagNotifyTimeout, defaultNotifyTimeout, "SMS gateway request timeout")

	cmd.AddCommand(newServeCommand(cfg), newSettleCommand(cfg), newResumeCommand(cfg), newMigrateCommand(cfg))
	return cmd
}

func newServeCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the wallet HTTP API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.API.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApplication(ctx, cfg, func(app *application) error {
				if cfg.ResumeInterval > 0 {
					scheduler, err := startResumeSweep(ctx, app.settlement, cfg.ResumeInterval, app.logger)
					if err != nil {
						return err
					}
					defer func() {
						if shutdownErr := scheduler.Shutdown(); shutdownErr != nil {
							app.logger.Warn("resume sweep shutdown", zap.Error(shutdownErr))
						}
					}()
				}
				return walletapi.Run(ctx, cfg.API, walletapi.Dependencies{
					Service:    app.service,
					Settlement: app.settlement,
					Treasury:   app.treasury,
					Directory:  app.store,
				}, app.logger)
			})
		},
	}

	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "TAuth JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "", "expected JWT issuer")
	cmd.Flags().String(flagJWTCookieName, "", "JWT cookie name")
	cmd.Flags().String(flagWebhookToken, "", "token required on payment processor callbacks; empty disables them")
	cmd.Flags().Duration(flagResumeInterval, 0, "interval for retrying unfinished settlements; 0 disables")
	return cmd
}

func newSettleCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle the weekly awards for one league week",
		RunE: func(cmd *cobra.Command, args []string) error {
			leagueID, err := ledger.NewLeagueID(cfg.League)
			if err != nil {
				return err
			}
			week, err := ledger.NewWeek(cfg.Week)
			if err != nil {
				return err
			}
			return withApplication(cmd.Context(), cfg, func(app *application) error {
				result, err := app.settlement.SettleWeek(cmd.Context(), leagueID, week)
				if err != nil {
					return err
				}
				printSettlement(cmd, result)
				return nil
			})
		},
	}
	cmd.Flags().String(flagLeague, "", "league id (required)")
	cmd.Flags().Int(flagWeek, 0, "week number (required)")
	return cmd
}

func newResumeCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Retry every settlement with an unfinished step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd.Context(), cfg, func(app *application) error {
				results, err := app.settlement.ResumePending(cmd.Context())
				for _, result := range results {
					printSettlement(cmd, result)
				}
				return err
			})
		},
	}
}

func newMigrateCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			gormDB, cleanup, _, err := openDatabase(cmd.Context(), cfg.DatabaseURL, logger)
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer func() { _ = cleanup() }()
			return migrateSchema(gormDB)
		},
	}
}

func printSettlement(cmd *cobra.Command, result ledger.SettlementResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "league %s week %d: hps_credited=%t lps_notified=%t already_processed=%t\n",
		result.Event.LeagueID.String(),
		result.Event.Week.Int(),
		result.HighScoreCredited,
		result.LowScoreNotified,
		result.AlreadyProcessed,
	)
	if result.NotificationError != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "  notification pending: %v\n", result.NotificationError)
	}
}

// loadConfig reads an optional .env, then binds every flag of the running
// command to LEAGUEWALLET_* environment variables.
func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if bindErr == nil {
			bindErr = v.BindPFlag(flag.Name, flag)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg.DatabaseURL = v.GetString(flagDatabaseURL)
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return fmt.Errorf("%s is required", flagDatabaseURL)
	}
	cfg.InstantFeeRate = v.GetString(flagInstantFeeRate)
	cfg.NotifyWebhookURL = v.GetString(flagNotifyWebhookURL)
	cfg.NotifyToken = v.GetString(flagNotifyToken)
	cfg.NotifyTimeout = v.GetDuration(flagNotifyTimeout)
	cfg.ResumeInterval = v.GetDuration(flagResumeInterval)
	cfg.League = v.GetString(flagLeague)
	cfg.Week = v.GetInt(flagWeek)
	cfg.API = walletapi.Config{
		ListenAddr:        v.GetString(flagListenAddr),
		AllowedOrigins:    walletapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		SessionSigningKey: v.GetString(flagJWTSigningKey),
		SessionIssuer:     v.GetString(flagJWTIssuer),
		SessionCookieName: v.GetString(flagJWTCookieName),
		WebhookToken:      v.GetString(flagWebhookToken),
	}
	return nil
}
