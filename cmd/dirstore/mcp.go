package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/starford/dirstore/internal/mcpserver"
	"github.com/starford/dirstore/internal/session"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve one tenant's namespace as MCP tools over stdio",
		Flags: tenantFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(ctx, cmd, func(c *session.Client, logger *slog.Logger) error {
				logger.Info("mcp: serving stdio", slog.String("user", c.Username()))
				return mcpserver.New(c).ServeStdio()
			})
		},
	}
}
