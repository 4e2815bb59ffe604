package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/engine"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/logger"
	"github.com/hpungsan/leadcap/internal/ops"
	"github.com/hpungsan/leadcap/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, eng *engine.Engine, log *logger.Logger) *cli.App {
	app := &cli.App{
		Name:    "leadcap",
		Usage:   "Conversational lead capture engine",
		Version: Version,
		Commands: []*cli.Command{
			turnCmd(eng),
			transcriptCmd(eng),
			serveCmd(db, cfg, eng, log),
			leadsCmd(db, cfg),
		},
	}
	// Slot values may contain commas.
	app.DisableSliceFlagSeparator = true
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// turnCmd creates the turn command.
func turnCmd(eng *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:  "turn",
		Usage: "Run one capture turn (a JSON request may be piped via stdin; flags override it)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Session id (empty starts a new session)"},
			&cli.StringFlag{Name: "channel", Aliases: []string{"c"}, Value: "cli", Usage: "Host channel"},
			&cli.StringFlag{Name: "utterance", Aliases: []string{"u"}, Usage: "Raw user utterance"},
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Request kind, e.g. LaunchRequest"},
			&cli.StringSliceFlag{Name: "slot", Usage: "Slot value as name=value (repeatable)"},
			&cli.StringFlag{Name: "form", Usage: "Form name (form-widget channel)"},
			&cli.StringFlag{Name: "step", Usage: "Form step (form-widget channel)"},
		},
		Action: func(c *cli.Context) error {
			if eng == nil {
				return outputError(errors.NewNotConfigured("engine"))
			}

			var req engine.Request
			if stdinHasData() {
				data, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				if data != "" {
					if err := json.Unmarshal([]byte(data), &req); err != nil {
						return outputError(errors.NewInvalidRequest("invalid turn JSON: " + err.Error()))
					}
				}
			}

			if c.IsSet("session") {
				req.SessionID = c.String("session")
			}
			if c.IsSet("channel") || req.Channel == "" {
				req.Channel = c.String("channel")
			}
			if c.IsSet("utterance") {
				req.RawUtterance = c.String("utterance")
			}
			if c.IsSet("kind") {
				req.Kind = c.String("kind")
			}
			if c.IsSet("form") {
				req.Attributes.FormName = c.String("form")
			}
			if c.IsSet("step") {
				req.Attributes.FormStep = c.String("step")
			}
			if pairs := c.StringSlice("slot"); len(pairs) > 0 {
				values, err := parseSlots(pairs)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				if req.Slots == nil {
					req.Slots = map[string]string{}
				}
				for k, v := range values {
					req.Slots[k] = v
				}
			}

			resp, err := eng.Handle(c.Context, &req)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(resp)
		},
	}
}

// transcriptCmd creates the transcript command.
func transcriptCmd(eng *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:      "transcript",
		Usage:     "Print the messages recorded for a session",
		ArgsUsage: "<session-id>",
		Action: func(c *cli.Context) error {
			if eng == nil {
				return outputError(errors.NewNotConfigured("engine"))
			}
			msgs, err := eng.Transcript(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"session_id": c.Args().First(),
				"messages":   msgs,
			})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(db *sql.DB, cfg *config.Config, eng *engine.Engine, log *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Usage: "Listen address (default from config http_addr)"},
		},
		Action: func(c *cli.Context) error {
			addr := c.String("addr")
			if addr == "" && cfg != nil {
				addr = cfg.HTTPAddr
			}
			if addr == "" {
				addr = config.DefaultConfig().HTTPAddr
			}
			return web.Run(web.NewServer(db, cfg, eng, log, addr), log)
		},
	}
}

// leadsCmd groups the outbox commands.
func leadsCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "leads",
		Usage: "Inspect and manage submitted leads",
		Subcommands: []*cli.Command{
			listCmd(db),
			fetchCmd(db),
			exportCmd(db, cfg),
			deleteCmd(db),
			purgeCmd(db),
		},
	}
}

// listCmd creates the leads list command.
func listCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List submitted leads, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Filter by session id"},
			&cli.BoolFlag{Name: "complete", Usage: "Only complete leads"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted leads"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, db, ops.ListInput{
				SessionID:      c.String("session"),
				CompleteOnly:   c.Bool("complete"),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// fetchCmd creates the leads fetch command.
func fetchCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a lead by ref id",
		ArgsUsage: "<ref-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted leads"},
			&cli.BoolFlag{Name: "no-transcript", Usage: "Exclude the transcript from output"},
		},
		Action: func(c *cli.Context) error {
			input := ops.FetchInput{
				RefID:          c.Args().First(),
				IncludeDeleted: c.Bool("include-deleted"),
			}
			if c.Bool("no-transcript") {
				includeTranscript := false
				input.IncludeTranscript = &includeTranscript
			}

			output, err := ops.Fetch(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the leads export command.
func exportCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export leads to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.leadcap/exports/<session|all>-<timestamp>.jsonl)"},
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Filter by session id"},
			&cli.BoolFlag{Name: "complete", Usage: "Only complete leads"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted leads"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, db, cfg, ops.ExportInput{
				Path:           c.String("path"),
				SessionID:      c.String("session"),
				CompleteOnly:   c.Bool("complete"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the leads delete command.
func deleteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete a lead",
		ArgsUsage: "<ref-id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Delete(c.Context, db, ops.DeleteInput{RefID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// purgeCmd creates the leads purge command.
func purgeCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete soft-deleted leads",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
			&cli.StringFlag{Name: "idle-sessions", Usage: "Also remove sessions idle for N days (e.g., 30d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}

			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}
			if idle := c.String("idle-sessions"); idle != "" {
				days, err := parseDuration(idle)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.IdleSessionDays = &days
			}

			output, err := ops.Purge(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if lErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", lErr.Code, lErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseSlots turns name=value pairs into a slot map. Later pairs win.
func parseSlots(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid slot %q: want name=value", p)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
