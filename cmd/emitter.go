package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/CoolE88/observatory/internal/service"

	"github.com/urfave/cli/v3"
)

func descriptionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "description",
		Aliases:  []string{"d"},
		Usage:    "Unique emitter description",
		Required: true,
	}
}

func emitterCommand() *cli.Command {
	return &cli.Command{
		Name:  "emitter",
		Usage: "Manage API tokens of data emitters",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Register an emitter and print its token",
				Flags: []cli.Flag{
					descriptionFlag(),
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Token lifetime, 0 means it never expires",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withEmitters(ctx, func(emitters *service.EmitterService) error {
						emitter, err := emitters.Add(ctx, cmd.String("description"), cmd.Duration("ttl"))
						if err != nil {
							return err
						}
						return printJSON(emitter)
					})
				},
			},
			{
				Name:  "list",
				Usage: "List registered emitters",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return withEmitters(ctx, func(emitters *service.EmitterService) error {
						list, err := emitters.List(ctx)
						if err != nil {
							return err
						}
						return printJSON(list)
					})
				},
			},
			{
				Name:  "delete",
				Usage: "Delete all emitters with the given description",
				Flags: []cli.Flag{descriptionFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withEmitters(ctx, func(emitters *service.EmitterService) error {
						affected, err := emitters.Delete(ctx, cmd.String("description"))
						if err != nil {
							return err
						}
						return printJSON(map[string]int64{"affected_rows": affected})
					})
				},
			},
		},
	}
}

func withEmitters(ctx context.Context, fn func(*service.EmitterService) error) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	repo, err := env.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	return fn(service.NewEmitterService(repo, env.logger))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	return nil
}
