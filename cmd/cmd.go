// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// serveCommand runs the long-running archiver daemon.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the archiver daemon with scheduler and OAuth callback server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "cron",
				Usage: "Cron expression overriding the configured schedule",
			},
			&cli.BoolFlag{
				Name:  "immediate",
				Usage: "Run one archival pass immediately on startup",
			},
		},
		Action: r.Serve,
	}
}

// runCommand executes a single archival pass and exits.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a single archival pass across all configured pairs",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-record",
				Usage: "Skip writing the run to the history database",
			},
		},
		Action: r.RunOnce,
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize with Spotify using OAuth2 via a local callback server",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the login URL instead of opening a browser",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Check current authentication state against the Spotify API",
				Action: r.AuthStatus,
			},
		},
	}
}

// playlistsCommand lists the authorized user's playlists.
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "List Spotify playlists for the authorized user",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of playlists to print",
				Value: 50,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
			},
		},
		Action: r.Playlists,
	}
}

// stateCommand inspects the persisted archiver state.
func stateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Inspect persisted archiver state",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print persisted playlist snapshots and blacklists",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "playlist",
						Usage: "Limit output to one playlist ID",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.StateShow,
			},
		},
	}
}

// runsCommand inspects run history.
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect archival run history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent archival runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to print",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.RunsList,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write an example config.toml to the given path",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Destination path for the config file",
						Value:   "config.toml",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the run-history database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}
