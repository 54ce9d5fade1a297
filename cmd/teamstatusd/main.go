package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/teamstatus-dev/backend/internal/account"
	"github.com/teamstatus-dev/backend/internal/bus"
	"github.com/teamstatus-dev/backend/internal/config"
	"github.com/teamstatus-dev/backend/internal/database"
	"github.com/teamstatus-dev/backend/internal/fanout"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/logging"
	"github.com/teamstatus-dev/backend/internal/onboarding"
	"github.com/teamstatus-dev/backend/internal/org"
	"github.com/teamstatus-dev/backend/internal/project"
	"github.com/teamstatus-dev/backend/internal/roster"
	"github.com/teamstatus-dev/backend/internal/schema"
	"github.com/teamstatus-dev/backend/internal/status"
	"github.com/teamstatus-dev/backend/internal/store"
	"github.com/teamstatus-dev/backend/internal/syncpage"
	"github.com/teamstatus-dev/backend/internal/token"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "teamstatusd",
		Short: "Teamstatus coordination core",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Duration("sweep-interval", defaults.GetDuration("database.sweep_interval"), "Expired item sweep interval")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("private-key-path", "", "Path to Ed25519 private key PEM")
	cmd.PersistentFlags().String("public-key-path", "", "Path to Ed25519 public key PEM")
	cmd.PersistentFlags().String("feedback-project", defaults.GetString("onboarding.feedback_project"), "Project every new user joins")
	cmd.PersistentFlags().String("fanout-mode", defaults.GetString("fanout.mode"), "Outbound event channel (none, sns, webhook)")

	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.sweep_interval", "sweep-interval")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "token.private_key_path", "private-key-path")
	bindFlag(cmd, "token.public_key_path", "public-key-path")
	bindFlag(cmd, "onboarding.feedback_project", "feedback-project")
	bindFlag(cmd, "fanout.mode", "fanout-mode")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// services bundles every constructed operation surface. A transport layer
// attaches here.
type services struct {
	Account  *account.Service
	Orgs     *org.Service
	Projects *project.Service
	Statuses *status.Service
	Syncs    *syncpage.Service
	Roster   *roster.Service
	Issuer   *token.Issuer
	Verifier *token.Verifier
}

func runDaemon(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	storeClient, err := store.NewClient(store.ClientConfig{
		Database:      db,
		Indexes:       schema.Indexes(),
		Clock:         time.Now,
		Logger:        logger,
		SweepInterval: appConfig.SweepInterval,
	})
	if err != nil {
		return err
	}
	defer storeClient.Close()

	eventBus := bus.New()

	issuer, verifier, err := loadTokenKeys(appConfig)
	if err != nil {
		return err
	}

	core, err := buildServices(storeClient, eventBus, issuer, verifier, logger)
	if err != nil {
		return err
	}

	onboardingSubscriber, err := onboarding.NewSubscriber(onboarding.SubscriberConfig{
		Roster:          core.Roster,
		Bus:             eventBus,
		IDs:             ident.NewULIDSource(time.Now),
		FeedbackProject: appConfig.FeedbackProject,
		Clock:           time.Now,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	onboardingSubscriber.Register(eventBus)

	publisher, err := buildPublisher(ctx, appConfig)
	if err != nil {
		return err
	}
	fanout.NewForwarder(publisher, logger).Register(eventBus)

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("core started",
		zap.String("database", appConfig.DatabasePath),
		zap.String("fanout", appConfig.FanoutMode))

	<-signalCtx.Done()
	logger.Info("core stopping")
	return nil
}

func buildServices(storeClient *store.Client, eventBus *bus.Bus, issuer *token.Issuer, verifier *token.Verifier, logger *zap.Logger) (*services, error) {
	rosterService, err := roster.NewService(roster.ServiceConfig{Store: storeClient, Logger: logger})
	if err != nil {
		return nil, err
	}
	ids := ident.NewULIDSource(time.Now)

	accountService, err := account.NewService(account.ServiceConfig{
		Store: storeClient, Bus: eventBus, Clock: time.Now, Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	orgService, err := org.NewService(org.ServiceConfig{
		Store: storeClient, Bus: eventBus, Roster: rosterService, IDs: ids, Clock: time.Now, Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	projectService, err := project.NewService(project.ServiceConfig{
		Store: storeClient, Bus: eventBus, Roster: rosterService, IDs: ids, Clock: time.Now, Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	statusService, err := status.NewService(status.ServiceConfig{
		Store: storeClient, Bus: eventBus, Roster: rosterService, IDs: ids, Clock: time.Now, Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	syncService, err := syncpage.NewService(syncpage.ServiceConfig{
		Store: storeClient, Bus: eventBus, Roster: rosterService, Clock: time.Now, Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	return &services{
		Account:  accountService,
		Orgs:     orgService,
		Projects: projectService,
		Statuses: statusService,
		Syncs:    syncService,
		Roster:   rosterService,
		Issuer:   issuer,
		Verifier: verifier,
	}, nil
}

func loadTokenKeys(appConfig config.AppConfig) (*token.Issuer, *token.Verifier, error) {
	privatePEM, err := os.ReadFile(appConfig.PrivateKeyPath)
	if err != nil {
		return nil, nil, err
	}
	privateKey, err := token.ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, nil, err
	}

	var publicKey ed25519.PublicKey
	if appConfig.PublicKeyPath != "" {
		publicPEM, err := os.ReadFile(appConfig.PublicKeyPath)
		if err != nil {
			return nil, nil, err
		}
		publicKey, err = token.ParsePublicKey(publicPEM)
		if err != nil {
			return nil, nil, err
		}
	} else {
		publicKey = privateKey.Public().(ed25519.PublicKey)
	}

	issuer, err := token.NewIssuer(token.IssuerConfig{
		PrivateKey: privateKey,
		Issuer:     appConfig.TokenIssuer,
		Audience:   appConfig.TokenAudience,
		Clock:      time.Now,
	})
	if err != nil {
		return nil, nil, err
	}
	verifier, err := token.NewVerifier(token.VerifierConfig{
		PublicKey: publicKey,
		Issuer:    appConfig.TokenIssuer,
		Audience:  appConfig.TokenAudience,
		Clock:     time.Now,
	})
	if err != nil {
		return nil, nil, err
	}
	return issuer, verifier, nil
}

func buildPublisher(ctx context.Context, appConfig config.AppConfig) (fanout.Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(appConfig.FanoutMode)) {
	case "sns":
		return fanout.NewSNSPublisher(ctx, appConfig.SNSAccessKey, appConfig.SNSSecretKey, appConfig.SNSRegion, appConfig.SNSTopicARN)
	case "webhook":
		return fanout.NewWebhookPublisher(appConfig.WebhookURL), nil
	default:
		return fanout.NoopPublisher{}, nil
	}
}
