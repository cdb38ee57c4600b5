package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/custodia/custodia/cmd/app/commands"
	"github.com/custodia/custodia/internal/app"
	"github.com/custodia/custodia/internal/config"
	dbengineUsecase "github.com/custodia/custodia/internal/dbengine/usecase"
	sealService "github.com/custodia/custodia/internal/seal/service"
)

// databaseDeps resolves the database engine and seal manager from a fresh
// container.
func databaseDeps(container *app.Container) (dbengineUsecase.DatabaseEngine, *sealService.SealManager, error) {
	eng, err := container.DatabaseEngine()
	if err != nil {
		return nil, nil, err
	}
	sealManager, err := container.SealManager()
	if err != nil {
		return nil, nil, err
	}
	return eng, sealManager, nil
}

func getDatabaseCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "db-configure",
			Usage: "Configure a database connection from a JSON file",
			Flags: []cli.Flag{
				unsealShareFlag(),
				&cli.StringFlag{
					Name:     "config",
					Aliases:  []string{"c"},
					Required: true,
					Usage:    "Path to the connection configuration JSON file",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				eng, sealManager, err := databaseDeps(container)
				if err != nil {
					return err
				}

				return commands.RunConfigureDBConnection(
					ctx,
					eng,
					sealManager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("config"),
				)
			},
		},
		{
			Name:  "db-credentials",
			Usage: "Issue a dynamic database credential for a role",
			Flags: []cli.Flag{
				unsealShareFlag(),
				&cli.StringFlag{
					Name:     "connection",
					Aliases:  []string{"c"},
					Required: true,
					Usage:    "Connection name",
				},
				&cli.StringFlag{
					Name:     "role",
					Aliases:  []string{"r"},
					Required: true,
					Usage:    "Role name",
				},
				&cli.DurationFlag{
					Name:    "ttl",
					Aliases: []string{"t"},
					Value:   0,
					Usage:   "Credential TTL (0 uses the role's default)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				eng, sealManager, err := databaseDeps(container)
				if err != nil {
					return err
				}

				return commands.RunCreateDBCredentials(
					ctx,
					eng,
					sealManager,
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("connection"),
					cmd.String("role"),
					cmd.Duration("ttl"),
				)
			},
		},
		{
			Name:  "db-rotate-root",
			Usage: "Rotate a database connection's root password",
			Flags: []cli.Flag{
				unsealShareFlag(),
				&cli.StringFlag{
					Name:     "connection",
					Aliases:  []string{"c"},
					Required: true,
					Usage:    "Connection name",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				eng, sealManager, err := databaseDeps(container)
				if err != nil {
					return err
				}

				return commands.RunRotateDBRoot(
					ctx,
					eng,
					sealManager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("connection"),
				)
			},
		},
		{
			Name:  "lease-list",
			Usage: "List all leases in the ledger",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				leases, err := container.LeaseManager()
				if err != nil {
					return err
				}

				return commands.RunListLeases(ctx, leases, commands.DefaultIO().Writer)
			},
		},
		{
			Name:  "lease-revoke",
			Usage: "Revoke a lease and run its revocation side effect",
			Flags: []cli.Flag{
				unsealShareFlag(),
				&cli.StringFlag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Lease ID (UUID)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				// Mount the engines so revocation can route to the issuer.
				if _, err := container.DatabaseEngine(); err != nil {
					return err
				}
				leases, err := container.LeaseManager()
				if err != nil {
					return err
				}
				sealManager, err := container.SealManager()
				if err != nil {
					return err
				}

				return commands.RunRevokeLease(
					ctx,
					leases,
					sealManager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("id"),
				)
			},
		},
	}
}
