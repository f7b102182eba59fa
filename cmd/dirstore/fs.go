package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/dirstore/internal/namespace"
	"github.com/starford/dirstore/internal/pathutil"
	"github.com/starford/dirstore/internal/session"
)

// nsAction runs fn against the namespace of the logged-in tenant after
// checking that at least nargs positional arguments were given.
func nsAction(nargs int, fn func(ctx context.Context, cmd *cli.Command, ns *namespace.Namespace) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := requireArgs(cmd, nargs); err != nil {
			return err
		}
		return withSession(ctx, cmd, func(c *session.Client, _ *slog.Logger) error {
			ns, err := c.Namespace()
			if err != nil {
				return err
			}
			return fn(ctx, cmd, ns)
		})
	}
}

func fsCommand() *cli.Command {
	return &cli.Command{
		Name:  "fs",
		Usage: "Work with a tenant namespace",
		Flags: tenantFlags(),
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List a directory",
				ArgsUsage: "[dir]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "List every entry below dir"},
				},
				Action: nsAction(0, func(ctx context.Context, cmd *cli.Command, ns *namespace.Namespace) error {
					dir := pathutil.Root
					if cmd.Args().Len() > 0 {
						dir = cmd.Args().Get(0)
					}
					if cmd.Bool("recursive") {
						objs, err := ns.Walk(ctx, dir)
						if err != nil {
							return err
						}
						for _, obj := range objs {
							fmt.Printf("%10d  %s  %s\n", obj.Length, obj.CreatedAt.Format(time.RFC3339), obj.Key)
						}
						return nil
					}
					keys, err := ns.ListFiles(ctx, dir)
					if err != nil {
						return err
					}
					for _, k := range keys {
						fmt.Println(k)
					}
					return nil
				}),
			},
			{
				Name:      "put",
				Usage:     "Upload a local file",
				ArgsUsage: "<local> <path>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-replace", Usage: "Fail when path already exists"},
				},
				Action: nsAction(2, func(ctx context.Context, cmd *cli.Command, ns *namespace.Namespace) error {
					ref, err := ns.UploadFile(ctx, cmd.Args().Get(0), cmd.Args().Get(1), !cmd.Bool("no-replace"))
					if err != nil {
						return err
					}
					fmt.Println(ref)
					return nil
				}),
			},
			{
				Name:      "get",
				Usage:     "Download a file; \"-\" writes to stdout",
				ArgsUsage: "<path> [local]",
				Action: nsAction(1, func(ctx context.Context, cmd *cli.Command, ns *namespace.Namespace) error {
					if cmd.Args().Get(1) == "-" {
						_, err := ns.Download(ctx, cmd.Args().Get(0), os.Stdout)
						return err
					}
					written, err := ns.DownloadToFile(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
					if err != nil {
						return err
					}
					fmt.Println(written)
					return nil
				}),
			},
			{
				Name:      "mkdir",
				Usage:     "Create a directory and its missing ancestors",
				ArgsUsage: "<dir>",
				Action: nsAction(1, func(ctx context.Context, cmd *cli.Command, ns *namespace.Namespace) error {
					return ns.MakeDirs(ctx, cmd.Args().Get(0))
				}),
			},
			{
				Name:      "rm",
				Usage:     "Remove the latest version of a file",
				ArgsUsage: "<path>",
				Action: nsAction(1, func(ctx context.Context, cmd *cli.Command, ns *namespace.Namespace) error {
					return ns.Remove(ctx, cmd.Args().Get(0))
				}),
			},
			{
				Name:      "rmdir",
				Usage:     "Remove a directory",
				ArgsUsage: "<dir>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "Remove the whole subtree"},
				},
				Action: nsAction(1, func(ctx context.Context, cmd *cli.Command, ns *namespace.Namespace) error {
					removed, err := ns.RemoveDir(ctx, cmd.Args().Get(0), cmd.Bool("recursive"))
					for _, obj := range removed {
						fmt.Println(obj.Key)
					}
					return err
				}),
			},
			{
				Name:      "mv",
				Usage:     "Move a directory to a new prefix",
				ArgsUsage: "<from> <to>",
				Action: nsAction(2, func(ctx context.Context, cmd *cli.Command, ns *namespace.Namespace) error {
					n, err := ns.MoveDir(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
					fmt.Printf("moved %d entries\n", n)
					return err
				}),
			},
			{
				Name:      "rename",
				Usage:     "Rename a file",
				ArgsUsage: "<from> <to>",
				Action: nsAction(2, func(ctx context.Context, cmd *cli.Command, ns *namespace.Namespace) error {
					return ns.Rename(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
				}),
			},
			{
				Name:      "versions",
				Usage:     "List stored versions of a file, newest first",
				ArgsUsage: "<path>",
				Action: nsAction(1, func(ctx context.Context, cmd *cli.Command, ns *namespace.Namespace) error {
					objs, err := ns.Versions(ctx, cmd.Args().Get(0))
					if err != nil {
						return err
					}
					for _, obj := range objs {
						fmt.Printf("%s  %10d  %s  %s\n", obj.Ref, obj.Length, obj.CreatedAt.Format(time.RFC3339Nano), obj.Checksum)
					}
					return nil
				}),
			},
			{
				Name:      "prune",
				Usage:     "Delete every version of a file but the latest",
				ArgsUsage: "<path>",
				Action: nsAction(1, func(ctx context.Context, cmd *cli.Command, ns *namespace.Namespace) error {
					n, err := ns.Prune(ctx, cmd.Args().Get(0))
					if err != nil {
						return err
					}
					fmt.Printf("pruned %d versions\n", n)
					return nil
				}),
			},
		},
	}
}
