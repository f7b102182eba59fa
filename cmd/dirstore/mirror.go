package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/starford/dirstore/internal/mirror"
	"github.com/starford/dirstore/internal/session"
)

func mirrorCommand() *cli.Command {
	return &cli.Command{
		Name:      "mirror",
		Usage:     "Mirror a local directory into a tenant namespace",
		ArgsUsage: "<local-dir> <target-dir>",
		Flags: append(tenantFlags(),
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Keep mirroring changes until interrupted"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, 2); err != nil {
				return err
			}
			root, target := cmd.Args().Get(0), cmd.Args().Get(1)
			return withSession(ctx, cmd, func(c *session.Client, logger *slog.Logger) error {
				ns, err := c.Namespace()
				if err != nil {
					return err
				}
				rep, err := mirror.Sync(ctx, ns, root, target, logger)
				if err != nil {
					return err
				}
				logger.Info("mirror: initial sync",
					slog.Int("uploaded", rep.Uploaded),
					slog.Int("removed", rep.Removed),
					slog.Int("unchanged", rep.Unchanged))
				if !cmd.Bool("watch") {
					return nil
				}

				sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				g, gCtx := errgroup.WithContext(sigCtx)
				g.Go(func() error {
					return mirror.Watch(gCtx, ns, root, target, logger, func(kind, key string) {
						logger.Info("mirror: "+kind, slog.String("path", key))
					})
				})
				return g.Wait()
			})
		},
	}
}
