// modctl is the operator CLI. It works straight against the database, so
// word list and ledger maintenance does not need the server running.
package main

import (
	"fmt"
	"os"

	"github.com/fairguard/backend/config"
	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/ledger"
	"github.com/fairguard/backend/internal/logging"
	"github.com/fairguard/backend/internal/settings"
	"github.com/fairguard/backend/internal/wordlist"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "modctl",
		Usage: "FairGuard operator tool for word lists, warnings and settings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity",
				Value:   "warn",
				EnvVars: []string{"MODCTL_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			wordsCmd,
			ledgerCmd,
			settingsCmd,
			analyticsCmd,
		},
	}
}

// env holds what a command needs. It is opened per invocation.
type env struct {
	cfg    *config.Config
	db     *database.DB
	ledger *ledger.Ledger
}

func openEnv(cctx *cli.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:       cctx.String("log-level"),
		Environment: cfg.Server.Env,
		Secrets:     cfg.Secrets(),
	})

	db, err := database.Open(cfg.Database.Driver, cfg.GetDSN())
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return &env{
		cfg:    cfg,
		db:     db,
		ledger: ledger.New(db, ledger.WithExpiry(cfg.Moderation.WarningExpiry)),
	}, nil
}

func (e *env) Close() error { return e.db.Close() }

func (e *env) words(cctx *cli.Context) (*wordlist.Lists, error) {
	l := wordlist.New(e.db)
	if err := l.Reload(cctx.Context); err != nil {
		return nil, err
	}
	return l, nil
}

func (e *env) settings() (*settings.Store, error) {
	var cipher *settings.SecretCipher
	if len(e.cfg.Security.EncryptionKey) > 0 {
		c, err := settings.NewSecretCipher(e.cfg.Security.EncryptionKey)
		if err != nil {
			return nil, err
		}
		cipher = c
	}
	return settings.New(e.db, cipher), nil
}

// run opens the environment around fn
func run(fn func(cctx *cli.Context, e *env) error) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		e, err := openEnv(cctx)
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(cctx, e)
	}
}
