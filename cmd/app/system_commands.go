package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/custodia/custodia/cmd/app/commands"
	"github.com/custodia/custodia/internal/app"
	"github.com/custodia/custodia/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the platform: lease sweepers and metrics server",
			Flags: []cli.Flag{
				unsealShareFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version, cmd.StringSlice("unseal-share"))
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), cfg.StorageBackend, cfg.DBConnectionString)
			},
		},
		{
			Name:  "init",
			Usage: "Initialize the platform and print the unseal shares",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "shares",
					Aliases: []string{"n"},
					Value:   5,
					Usage:   "Number of unseal shares to generate",
				},
				&cli.IntFlag{
					Name:    "threshold",
					Aliases: []string{"k"},
					Value:   3,
					Usage:   "Number of shares required to unseal",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				sealManager, err := container.SealManager()
				if err != nil {
					return err
				}

				return commands.RunInit(
					ctx,
					sealManager,
					container.Logger(),
					commands.DefaultIO().Writer,
					int(cmd.Int("shares")),
					int(cmd.Int("threshold")),
				)
			},
		},
		{
			Name:  "unseal",
			Usage: "Verify unseal shares reconstruct the root key",
			Flags: []cli.Flag{
				unsealShareFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				sealManager, err := container.SealManager()
				if err != nil {
					return err
				}

				return commands.RunUnseal(
					ctx,
					sealManager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
				)
			},
		},
		{
			Name:  "status",
			Usage: "Show the seal status",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				sealManager, err := container.SealManager()
				if err != nil {
					return err
				}

				return commands.RunStatus(sealManager, commands.DefaultIO().Writer, cmd.String("format"))
			},
		},
		{
			Name:  "verify-audit",
			Usage: "Verify the integrity of the stored audit trail",
			Flags: []cli.Flag{
				unsealShareFlag(),
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				backend, err := container.Backend()
				if err != nil {
					return err
				}
				sealManager, err := container.SealManager()
				if err != nil {
					return err
				}

				return commands.RunVerifyAudit(
					ctx,
					backend,
					sealManager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "rotate-root",
			Usage: "Rotate the root key and print a fresh share set",
			Flags: []cli.Flag{
				unsealShareFlag(),
				&cli.IntFlag{
					Name:    "shares",
					Aliases: []string{"n"},
					Value:   5,
					Usage:   "Number of unseal shares to generate",
				},
				&cli.IntFlag{
					Name:    "threshold",
					Aliases: []string{"k"},
					Value:   3,
					Usage:   "Number of shares required to unseal",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				sealManager, err := container.SealManager()
				if err != nil {
					return err
				}

				return commands.RunRotateRoot(
					ctx,
					sealManager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					int(cmd.Int("shares")),
					int(cmd.Int("threshold")),
				)
			},
		},
	}
}
