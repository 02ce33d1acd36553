package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/fieldcall/internal/cli"
	"github.com/julianstephens/fieldcall/internal/cli/activities"
	"github.com/julianstephens/fieldcall/internal/cli/backups"
	"github.com/julianstephens/fieldcall/internal/cli/companies"
	"github.com/julianstephens/fieldcall/internal/cli/due"
	"github.com/julianstephens/fieldcall/internal/cli/quotas"
	"github.com/julianstephens/fieldcall/internal/cli/skips"
	"github.com/julianstephens/fieldcall/internal/cli/system"
	"github.com/julianstephens/fieldcall/internal/config"
	"github.com/julianstephens/fieldcall/internal/constants"
	"github.com/julianstephens/fieldcall/internal/engine"
	apperrors "github.com/julianstephens/fieldcall/internal/errors"
	"github.com/julianstephens/fieldcall/internal/keyring"
	"github.com/julianstephens/fieldcall/internal/lifecycle"
	"github.com/julianstephens/fieldcall/internal/logger"
	"github.com/julianstephens/fieldcall/internal/storage"
	"github.com/julianstephens/fieldcall/internal/storage/memory"
	"github.com/julianstephens/fieldcall/internal/storage/postgres"
	"github.com/julianstephens/fieldcall/internal/storage/sqlite"
	"github.com/julianstephens/fieldcall/internal/survey"
	"github.com/julianstephens/fieldcall/internal/utils"
)

var CLI struct {
	Version kong.VersionFlag
	DB      string `help:"SQLite path, PostgreSQL connection string without a password, \"keyring\" to use the stored connection string, or :memory:." env:"FIELDCALL_DB" default:"${db}"`
	Config  string `help:"Config file path." env:"FIELDCALL_CONFIG" default:"${config}"`
	Agent   string `help:"Agent the command acts for." env:"FIELDCALL_AGENT"`
	Debug   bool   `help:"Log debug output to stderr."`

	Init    system.InitCmd    `cmd:"" help:"Initialize fieldcall storage and write a default config."`
	Migrate system.MigrateCmd `cmd:"" help:"Run database migrations."`
	Keyring system.KeyringCmd `cmd:"" help:"Manage secrets in the OS keyring."`
	Backup  struct {
		Create  backups.BackupCreateCmd  `cmd:"" help:"Create a manual backup." default:"1"`
		List    backups.BackupListCmd    `cmd:"" help:"List available backups."`
		Restore backups.BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
	} `cmd:"" help:"Manage SQLite database backups."`
	Company  companies.CompanyCmd   `cmd:"" help:"Manage the account registry."`
	Quota    quotas.QuotaCmd        `cmd:"" help:"Show and work the daily call list."`
	Skip     skips.SkipCmd          `cmd:"" help:"Manage skip periods."`
	Activity activities.ActivityCmd `cmd:"" help:"Record sales activities."`
	Due      due.DueCmd             `cmd:"" help:"Show due callbacks, follow-ups and inquiries."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Sales call scheduling: daily call lists, activity tracking and due reminders"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": constants.Version,
			"db":      constants.DefaultDBPath,
			"config":  constants.DefaultConfigPath,
		},
	)

	configPath, err := utils.ExpandHome(CLI.Config)
	if err != nil {
		apperrors.Fatal(err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		apperrors.Fatal(err)
	}

	command := kctx.Command()
	if err := logger.Init(logger.Config{
		Debug:      CLI.Debug,
		ConfigDir:  filepath.Dir(configPath),
		Stderr:     strings.HasPrefix(command, "due watch"),
		Agent:      CLI.Agent,
		Command:    command,
		Format:     cfg.Log.Format,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	store, err := openStore(CLI.DB)
	if err != nil {
		apperrors.Fatal(err)
	}
	defer store.Close()

	opts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		apperrors.Fatal(err)
	}
	if opts.Survey, err = surveyDispatcher(cfg); err != nil {
		apperrors.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx := &cli.Context{
		Store:      store,
		Engine:     engine.New(store, opts),
		Config:     cfg,
		ConfigPath: configPath,
		Agent:      CLI.Agent,
		Ctx:        ctx,
	}

	// init prepares storage itself; keyring never touches it
	if !strings.HasPrefix(command, "init") && !strings.HasPrefix(command, "keyring") {
		if err := store.Load(); err != nil {
			fmt.Fprintln(os.Stderr, apperrors.Format(err))
			os.Exit(1)
		}
	}

	if err := kctx.Run(appCtx); err != nil {
		logger.Debug("command failed", "command", command, "error", err)
		fmt.Fprintln(os.Stderr, apperrors.Format(err))
		stop()
		store.Close()
		os.Exit(1)
	}
}

// openStore picks the backend from the --db value.
func openStore(db string) (storage.Provider, error) {
	switch {
	case db == ":memory:":
		return memory.New(), nil
	case db == "keyring":
		conn, err := keyring.Get(keyring.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to read connection string from keyring: %w", err)
		}
		// Stored secrets may carry a password; only the shape is checked.
		if err := postgres.ValidateConnString(conn); err != nil && !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return nil, err
		}
		return postgres.New(conn), nil
	case strings.HasPrefix(db, "postgres://"), strings.HasPrefix(db, "postgresql://"):
		if err := postgres.ValidateConnString(db); err != nil {
			if errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return nil, fmt.Errorf("%w: store it with \"fieldcall keyring set database-url\" and pass --db keyring, or use ~/.pgpass", err)
			}
			return nil, err
		}
		return postgres.New(db), nil
	}
	if env := os.Getenv("FIELDCALL_DB_CONNECTION"); env != "" && db == constants.DefaultDBPath {
		if err := postgres.ValidateConnString(env); err != nil && !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return nil, err
		}
		return postgres.New(env), nil
	}
	path, err := utils.ExpandHome(db)
	if err != nil {
		return nil, err
	}
	return sqlite.NewStore(path), nil
}

// surveyDispatcher posts to the configured endpoint, or only logs when none
// is set.
func surveyDispatcher(cfg *config.Config) (lifecycle.SurveyDispatcher, error) {
	if cfg.Survey.Endpoint == "" {
		return survey.LogOnly{}, nil
	}
	token := os.Getenv("FIELDCALL_SURVEY_TOKEN")
	if token == "" {
		var err error
		if token, err = keyring.Lookup(keyring.SurveyToken); err != nil {
			logger.Warn("survey token unavailable", "error", err)
		}
	}
	return survey.New(cfg.Survey.Endpoint,
		survey.WithToken(token),
		survey.WithTimeout(cfg.Survey.Timeout),
		survey.WithRetries(cfg.Survey.MaxRetries, constants.SurveyRetryDelay),
		survey.WithRate(cfg.Survey.RatePerSec),
	)
}
