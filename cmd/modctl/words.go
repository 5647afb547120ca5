package main

import (
	"fmt"
	"strings"

	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/validation"
	"github.com/urfave/cli/v2"
)

var moderatorFlag = &cli.StringFlag{
	Name:  "moderator",
	Usage: "platform user id recorded in the moderation log (defaults to BOT_USER_ID)",
}

var wordsCmd = &cli.Command{
	Name:  "words",
	Usage: "inspect and edit the blacklist and graylist",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "print both lists in lookup order",
			Action: run(runWordsList),
		},
		{
			Name:      "add",
			Usage:     "add a word to a list",
			ArgsUsage: "<word>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "list",
					Usage: "BLACK or GRAY",
					Value: string(models.ListGray),
				},
				moderatorFlag,
			},
			Action: run(runWordsAdd),
		},
		{
			Name:      "remove",
			Usage:     "remove a word from whichever list holds it",
			ArgsUsage: "<word>",
			Flags:     []cli.Flag{moderatorFlag},
			Action:    run(runWordsRemove),
		},
	},
}

func runWordsList(cctx *cli.Context, e *env) error {
	lists, err := e.words(cctx)
	if err != nil {
		return err
	}
	black, gray := lists.Words()
	out := cctx.App.Writer
	fmt.Fprintf(out, "BLACK (%d)\n", len(black))
	for _, w := range black {
		fmt.Fprintf(out, "  %s\n", w)
	}
	fmt.Fprintf(out, "GRAY (%d)\n", len(gray))
	for _, w := range gray {
		fmt.Fprintf(out, "  %s\n", w)
	}
	return nil
}

func wordArg(cctx *cli.Context) (string, error) {
	word := cctx.Args().First()
	req := struct {
		Word string `validate:"required,word"`
	}{Word: word}
	if err := validation.Struct(req); err != nil {
		return "", err
	}
	return word, nil
}

func moderatorOf(cctx *cli.Context, e *env) string {
	if m := cctx.String("moderator"); m != "" {
		return m
	}
	return e.cfg.Platform.BotUserID
}

func runWordsAdd(cctx *cli.Context, e *env) error {
	word, err := wordArg(cctx)
	if err != nil {
		return err
	}
	list := models.ListType(strings.ToUpper(cctx.String("list")))
	if !list.Valid() {
		return fmt.Errorf("--list must be BLACK or GRAY, got %q", cctx.String("list"))
	}

	lists, err := e.words(cctx)
	if err != nil {
		return err
	}
	res, err := lists.Add(cctx.Context, word, list, moderatorOf(cctx, e))
	if err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "%s: %s (%s)\n", res, word, list)
	return nil
}

func runWordsRemove(cctx *cli.Context, e *env) error {
	word, err := wordArg(cctx)
	if err != nil {
		return err
	}
	lists, err := e.words(cctx)
	if err != nil {
		return err
	}
	res, err := lists.Remove(cctx.Context, word, moderatorOf(cctx, e))
	if err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "%s: %s\n", res, word)
	return nil
}
