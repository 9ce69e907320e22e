// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func userFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    "User ID",
		Required: required,
	}
}

func jsonFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// setupCommand handles first-run setup and migrations
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and maintenance commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write the example configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Where to write the configuration",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "migrations",
				Usage:  "Show applied migrations",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.Migrations,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the latest migration",
				Action: r.Rollback,
			},
		},
	}
}

// importCommand imports export files from disk
func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a listening history export",
		ArgsUsage: "FILE [FILE...]",
		Flags: []cli.Flag{
			userFlag(true),
			&cli.StringFlag{
				Name:     "platform",
				Aliases:  []string{"p"},
				Usage:    "Export platform (spotify or apple-music)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Result format (text, json or markdown)",
				Value:   "text",
			},
			jsonFlag(),
			&cli.DurationFlag{
				Name:  "window",
				Usage: "Duplicate tolerance, overriding import.dedup_window",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a Markdown report with current rankings to this directory",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show interactive progress",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Log destination while the TUI is running",
			},
		},
		Action: r.Import,
	}
}

// importsCommand lists the import audit
func importsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "imports",
		Usage: "Import history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List past imports, newest first",
				Flags: []cli.Flag{
					userFlag(false),
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status",
					},
					&cli.StringFlag{
						Name:  "platform",
						Usage: "Filter by platform",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of imports to return",
						Value: 20,
					},
					jsonFlag(),
				},
				Action: r.ImportsList,
			},
		},
	}
}

// modeCommand reads and changes the data source mode
func modeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "mode",
		Usage: "Data source mode",
		Commands: []*cli.Command{
			{
				Name:   "get",
				Usage:  "Show a user's data source mode",
				Flags:  []cli.Flag{userFlag(true), jsonFlag()},
				Action: r.ModeGet,
			},
			{
				Name:  "set",
				Usage: "Change a user's data source mode and rebuild rankings",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "mode",
					},
				},
				Flags:  []cli.Flag{userFlag(true)},
				Action: r.ModeSet,
			},
		},
	}
}

// topCommand prints rankings
func topCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "top",
		Usage: "Show a user's top artists and tracks",
		Flags: []cli.Flag{
			userFlag(true),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Entries per list",
				Value: 10,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (text, json or markdown)",
				Value:   "text",
			},
		},
		Action: r.Top,
	}
}

// playsCommand exports stored plays
func playsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "plays",
		Usage: "Stored play history",
		Commands: []*cli.Command{
			{
				Name:  "export",
				Usage: "Export a user's plays",
				Flags: []cli.Flag{
					userFlag(true),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format (csv, text or json)",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path, or base name for csv",
					},
				},
				Action: r.PlaysExport,
			},
		},
	}
}

// serveCommand runs the HTTP API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the import API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host, overriding server.host",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port, overriding server.port",
			},
			&cli.DurationFlag{
				Name:  "grace",
				Usage: "How long to wait for running imports on shutdown",
				Value: 2 * time.Minute,
			},
		},
		Action: r.Serve,
	}
}

// aggregateCommand handles ranking recalculation
func aggregateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "aggregate",
		Aliases: []string{"agg"},
		Usage:   "Ranking recalculation",
		Commands: []*cli.Command{
			{
				Name:  "worker",
				Usage: "Consume recalculation requests from Redis",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "poll",
						Usage: "Queue poll interval",
						Value: time.Second,
					},
				},
				Action: r.AggregateWorker,
			},
			{
				Name:   "run",
				Usage:  "Rebuild a user's rankings now",
				Flags:  []cli.Flag{userFlag(true)},
				Action: r.AggregateRun,
			},
		},
	}
}
