package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/custodia/custodia/cmd/app/commands"
	"github.com/custodia/custodia/internal/app"
	"github.com/custodia/custodia/internal/config"
)

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-key",
			Usage: "Create a named key in the registry",
			Flags: []cli.Flag{
				unsealShareFlag(),
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Key name",
				},
				&cli.StringFlag{
					Name:    "type",
					Aliases: []string{"t"},
					Value:   "encryption",
					Usage:   "Key type: 'encryption' or 'signing'",
				},
				&cli.StringFlag{
					Name:    "algorithm",
					Aliases: []string{"alg"},
					Value:   "aes256-gcm",
					Usage:   "Algorithm: aes256-gcm, chacha20-poly1305, ed25519 or ecdsa-p256",
				},
				&cli.BoolFlag{
					Name:  "exportable",
					Value: false,
					Usage: "Allow the key material to be exported",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				keyring, err := container.KeyringUseCase()
				if err != nil {
					return err
				}
				sealManager, err := container.SealManager()
				if err != nil {
					return err
				}

				return commands.RunCreateKey(
					ctx,
					keyring,
					sealManager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("name"),
					cmd.String("type"),
					cmd.String("algorithm"),
					cmd.Bool("exportable"),
				)
			},
		},
		{
			Name:  "rotate-key",
			Usage: "Rotate a named key to a new version",
			Flags: []cli.Flag{
				unsealShareFlag(),
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Key name",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				keyring, err := container.KeyringUseCase()
				if err != nil {
					return err
				}
				sealManager, err := container.SealManager()
				if err != nil {
					return err
				}

				return commands.RunRotateKey(
					ctx,
					keyring,
					sealManager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("name"),
				)
			},
		},
		{
			Name:  "update-key-config",
			Usage: "Update a named key's version bounds and deletion policy",
			Flags: []cli.Flag{
				unsealShareFlag(),
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Key name",
				},
				&cli.IntFlag{
					Name:  "min-decryption-version",
					Value: 0,
					Usage: "Lowest key version allowed to decrypt (0 leaves unchanged)",
				},
				&cli.IntFlag{
					Name:  "min-encryption-version",
					Value: 0,
					Usage: "Lowest key version allowed to encrypt (0 leaves unchanged)",
				},
				&cli.StringFlag{
					Name:  "deletion-allowed",
					Value: "",
					Usage: "Allow key deletion: 'true' or 'false' (empty leaves unchanged)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				keyring, err := container.KeyringUseCase()
				if err != nil {
					return err
				}
				sealManager, err := container.SealManager()
				if err != nil {
					return err
				}

				return commands.RunUpdateKeyConfig(
					ctx,
					keyring,
					sealManager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("name"),
					int(cmd.Int("min-decryption-version")),
					int(cmd.Int("min-encryption-version")),
					cmd.String("deletion-allowed"),
				)
			},
		},
		{
			Name:  "delete-key",
			Usage: "Delete a named key and all its versions",
			Flags: []cli.Flag{
				unsealShareFlag(),
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Key name",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				keyring, err := container.KeyringUseCase()
				if err != nil {
					return err
				}
				sealManager, err := container.SealManager()
				if err != nil {
					return err
				}

				return commands.RunDeleteKey(
					ctx,
					keyring,
					sealManager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("name"),
				)
			},
		},
		{
			Name:  "get-key",
			Usage: "Show a named key's metadata and version history",
			Flags: []cli.Flag{
				unsealShareFlag(),
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Key name",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				keyring, err := container.KeyringUseCase()
				if err != nil {
					return err
				}
				sealManager, err := container.SealManager()
				if err != nil {
					return err
				}

				return commands.RunGetKey(
					ctx,
					keyring,
					sealManager,
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("name"),
				)
			},
		},
		{
			Name:  "list-keys",
			Usage: "List the names of all keys in the registry",
			Flags: []cli.Flag{
				unsealShareFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				keyring, err := container.KeyringUseCase()
				if err != nil {
					return err
				}
				sealManager, err := container.SealManager()
				if err != nil {
					return err
				}

				return commands.RunListKeys(
					ctx,
					keyring,
					sealManager,
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
				)
			},
		},
	}
}
