package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/custodia/custodia/cmd/app/commands"
	"github.com/custodia/custodia/internal/app"
	"github.com/custodia/custodia/internal/config"
	sealService "github.com/custodia/custodia/internal/seal/service"
	transitUsecase "github.com/custodia/custodia/internal/transit/usecase"
)

// transitDeps resolves the transit use case and seal manager from a fresh
// container.
func transitDeps(container *app.Container) (transitUsecase.TransitUseCase, *sealService.SealManager, error) {
	transit, err := container.TransitUseCase()
	if err != nil {
		return nil, nil, err
	}
	sealManager, err := container.SealManager()
	if err != nil {
		return nil, nil, err
	}
	return transit, sealManager, nil
}

func getTransitCommands() []*cli.Command {
	keyFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "key",
			Aliases:  []string{"k"},
			Required: true,
			Usage:    "Named key to use",
		}
	}
	contextFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "context",
			Aliases: []string{"c"},
			Usage:   "Base64 encryption context bound as associated data",
		}
	}

	return []*cli.Command{
		{
			Name:  "encrypt",
			Usage: "Encrypt a plaintext under a named key",
			Flags: []cli.Flag{
				unsealShareFlag(),
				keyFlag(),
				contextFlag(),
				&cli.StringFlag{
					Name:     "plaintext",
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "Plaintext to encrypt",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				transit, sealManager, err := transitDeps(container)
				if err != nil {
					return err
				}

				return commands.RunEncrypt(
					ctx,
					transit,
					sealManager,
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("key"),
					cmd.String("plaintext"),
					cmd.String("context"),
				)
			},
		},
		{
			Name:  "decrypt",
			Usage: "Decrypt a ciphertext envelope",
			Flags: []cli.Flag{
				unsealShareFlag(),
				keyFlag(),
				contextFlag(),
				&cli.StringFlag{
					Name:     "ciphertext",
					Aliases:  []string{"C"},
					Required: true,
					Usage:    "Ciphertext envelope to decrypt",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				transit, sealManager, err := transitDeps(container)
				if err != nil {
					return err
				}

				return commands.RunDecrypt(
					ctx,
					transit,
					sealManager,
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("key"),
					cmd.String("ciphertext"),
					cmd.String("context"),
				)
			},
		},
		{
			Name:  "rewrap",
			Usage: "Re-encrypt a ciphertext envelope under the latest key version",
			Flags: []cli.Flag{
				unsealShareFlag(),
				keyFlag(),
				contextFlag(),
				&cli.StringFlag{
					Name:     "ciphertext",
					Aliases:  []string{"C"},
					Required: true,
					Usage:    "Ciphertext envelope to rewrap",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				transit, sealManager, err := transitDeps(container)
				if err != nil {
					return err
				}

				return commands.RunRewrap(
					ctx,
					transit,
					sealManager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("key"),
					cmd.String("ciphertext"),
					cmd.String("context"),
				)
			},
		},
		{
			Name:  "generate-data-key",
			Usage: "Generate a data key wrapped under a named key",
			Flags: []cli.Flag{
				unsealShareFlag(),
				keyFlag(),
				&cli.IntFlag{
					Name:    "bits",
					Aliases: []string{"b"},
					Value:   256,
					Usage:   "Data key size in bits: 128, 256 or 512",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				transit, sealManager, err := transitDeps(container)
				if err != nil {
					return err
				}

				return commands.RunGenerateDataKey(
					ctx,
					transit,
					sealManager,
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("key"),
					int(cmd.Int("bits")),
				)
			},
		},
		{
			Name:  "sign",
			Usage: "Sign a message with a signing key",
			Flags: []cli.Flag{
				unsealShareFlag(),
				keyFlag(),
				&cli.StringFlag{
					Name:     "message",
					Aliases:  []string{"m"},
					Required: true,
					Usage:    "Message to sign",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				transit, sealManager, err := transitDeps(container)
				if err != nil {
					return err
				}

				return commands.RunSign(
					ctx,
					transit,
					sealManager,
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("key"),
					cmd.String("message"),
				)
			},
		},
		{
			Name:  "verify",
			Usage: "Verify a signature envelope against a message",
			Flags: []cli.Flag{
				unsealShareFlag(),
				keyFlag(),
				&cli.StringFlag{
					Name:     "message",
					Aliases:  []string{"m"},
					Required: true,
					Usage:    "Message the signature covers",
				},
				&cli.StringFlag{
					Name:     "signature",
					Aliases:  []string{"s"},
					Required: true,
					Usage:    "Signature envelope to verify",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				transit, sealManager, err := transitDeps(container)
				if err != nil {
					return err
				}

				return commands.RunVerify(
					ctx,
					transit,
					sealManager,
					commands.DefaultIO().Writer,
					cmd.StringSlice("unseal-share"),
					cmd.String("key"),
					cmd.String("message"),
					cmd.String("signature"),
				)
			},
		},
	}
}
