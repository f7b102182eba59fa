package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/dirstore/internal"
	"github.com/starford/dirstore/internal/models"
	"github.com/starford/dirstore/internal/session"
)

// cliLogger writes to stderr so command output on stdout stays clean.
func cliLogger(cfg *internal.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
}

// withBackend loads the config, opens the backend and passes it to fn.
func withBackend(ctx context.Context, cmd *cli.Command, fn func(*internal.Backend, *slog.Logger) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cliLogger(cfg)
	backend, err := internal.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(backend, logger)
}

// withSession logs in as the tenant named by --user/--password.
func withSession(ctx context.Context, cmd *cli.Command, fn func(*session.Client, *slog.Logger) error) error {
	return withBackend(ctx, cmd, func(b *internal.Backend, logger *slog.Logger) error {
		client, err := b.Tenants.Login(ctx, models.Credentials{
			Username: cmd.String("user"),
			Password: cmd.String("password"),
		})
		if err != nil {
			return err
		}
		defer client.Close()
		return fn(client, logger)
	})
}

func tenantFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "user",
			Aliases:  []string{"u"},
			Usage:    "Tenant username",
			Required: true,
			Sources:  cli.EnvVars("DIRSTORE_USER"),
		},
		&cli.StringFlag{
			Name:     "password",
			Aliases:  []string{"p"},
			Usage:    "Tenant password",
			Required: true,
			Sources:  cli.EnvVars("DIRSTORE_PASSWORD"),
		},
	}
}

// requireArgs fails unless cmd received at least n positional arguments.
func requireArgs(cmd *cli.Command, n int) error {
	if cmd.Args().Len() < n {
		return fmt.Errorf("%s: expected %s", cmd.Name, cmd.ArgsUsage)
	}
	return nil
}

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Provision tenants",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a tenant role, user and partition",
				ArgsUsage: "<username> <password>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 2); err != nil {
						return err
					}
					return withBackend(ctx, cmd, func(b *internal.Backend, _ *slog.Logger) error {
						client, err := b.Tenants.SignUpNewUser(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
						if err != nil {
							return err
						}
						defer client.Close()
						fmt.Printf("created %s (partition %s)\n", client.Username(), client.Partition())
						return nil
					})
				},
			},
			{
				Name:      "drop",
				Usage:     "Drop a tenant user",
				ArgsUsage: "<username>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 1); err != nil {
						return err
					}
					return withBackend(ctx, cmd, func(b *internal.Backend, _ *slog.Logger) error {
						return b.Tenants.DropUser(ctx, cmd.Args().Get(0))
					})
				},
			},
			{
				Name:      "exists",
				Usage:     "Report whether a tenant user exists",
				ArgsUsage: "<username>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 1); err != nil {
						return err
					}
					return withBackend(ctx, cmd, func(b *internal.Backend, _ *slog.Logger) error {
						ok, err := b.Tenants.UserExists(ctx, cmd.Args().Get(0))
						if err != nil {
							return err
						}
						fmt.Println(ok)
						return nil
					})
				},
			},
		},
	}
}
