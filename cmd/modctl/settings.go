package main

import (
	"fmt"

	"github.com/fairguard/backend/internal/settings"
	"github.com/fairguard/backend/internal/validation"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/urfave/cli/v2"
)

var settingsCmd = &cli.Command{
	Name:  "settings",
	Usage: "inspect and change runtime overrides",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "print stored overrides, secrets redacted",
			Action: run(runSettingsList),
		},
		{
			Name:  "set-classifier",
			Usage: "switch the classifier provider; a running server picks it up on restart",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "provider", Usage: "gemini, openai, cerebras or claude", Required: true},
				&cli.StringFlag{Name: "model"},
				&cli.StringFlag{Name: "endpoint"},
				&cli.StringFlag{Name: "api-key", EnvVars: []string{"MODCTL_API_KEY"}},
				moderatorFlag,
			},
			Action: run(runSetClassifier),
		},
	},
}

func runSettingsList(cctx *cli.Context, e *env) error {
	store, err := e.settings()
	if err != nil {
		return err
	}
	all, err := store.List(cctx.Context)
	if err != nil {
		return err
	}
	for _, s := range all {
		fmt.Fprintf(cctx.App.Writer, "%s=%s\t(%s)\n", s.Key, s.Value, s.UpdatedBy)
	}
	return nil
}

func runSetClassifier(cctx *cli.Context, e *env) error {
	u := settings.ClassifierUpdate{
		Provider: cctx.String("provider"),
		Model:    cctx.String("model"),
		Endpoint: cctx.String("endpoint"),
		APIKey:   cctx.String("api-key"),
	}
	if err := validation.Struct(u); err != nil {
		return err
	}

	store, err := e.settings()
	if err != nil {
		return err
	}
	cfg, err := store.UpdateClassifier(cctx.Context, e.cfg.AI, u, moderatorOf(cctx, e), nil, cleanhttp.DefaultClient())
	if err != nil {
		return err
	}
	pc, _ := cfg.ProviderSettings(cfg.Provider)
	fmt.Fprintf(cctx.App.Writer, "classifier provider set to %s (model %s)\n", cfg.Provider, pc.Model)
	return nil
}
