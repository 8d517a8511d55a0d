package main

import (
	"context"
	"fmt"

	"exproctor/pkg/types"

	"github.com/k0kubun/pp/v3"
	"github.com/urfave/cli/v2"
)

var evidenceCommand = &cli.Command{
	Name:  "evidence",
	Usage: "Inspect and delete stored evidence",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "List evidence for a user, or for one attempt when --attempt is set",
			Flags: []cli.Flag{
				&cli.Int64Flag{Name: "course", Required: true},
				&cli.Int64Flag{Name: "quiz", Required: true},
				&cli.Int64Flag{Name: "user", Required: true},
				&cli.Int64Flag{Name: "attempt"},
			},
			Action: listEvidence,
		},
		{
			Name:  "users",
			Usage: "List the users with evidence for a quiz",
			Flags: []cli.Flag{
				&cli.Int64Flag{Name: "course", Required: true},
				&cli.Int64Flag{Name: "quiz", Required: true},
			},
			Action: listUsers,
		},
		{
			Name:  "delete",
			Usage: "Delete one evidence record and its stored image",
			Flags: []cli.Flag{
				&cli.Int64Flag{Name: "id", Required: true},
			},
			Action: deleteEvidence,
		},
		{
			Name:  "purge",
			Usage: "Delete all evidence of one type for a user",
			Flags: []cli.Flag{
				&cli.Int64Flag{Name: "course", Required: true},
				&cli.Int64Flag{Name: "quiz", Required: true},
				&cli.Int64Flag{Name: "user", Required: true},
				&cli.StringFlag{Name: "type", Value: string(types.EvidenceTypeWebcam), Usage: "webcam or screen"},
			},
			Action: purgeEvidence,
		},
	},
}

func listEvidence(c *cli.Context) error {
	ctx := context.Background()

	d, err := buildDeps(ctx, newLogger(c))
	if err != nil {
		return err
	}
	defer d.Close()

	var views []types.EvidenceView
	if attempt := c.Int64("attempt"); attempt > 0 {
		views, err = d.report.EvidenceByAttempt(ctx, types.AttemptKey{
			CourseID:  c.Int64("course"),
			QuizID:    c.Int64("quiz"),
			UserID:    c.Int64("user"),
			AttemptID: attempt,
		})
	} else {
		views, err = d.report.EvidenceByUser(ctx, c.Int64("course"), c.Int64("quiz"), c.Int64("user"))
	}
	if err != nil {
		return err
	}

	pp.Println(views)
	return nil
}

func listUsers(c *cli.Context) error {
	ctx := context.Background()

	d, err := buildDeps(ctx, newLogger(c))
	if err != nil {
		return err
	}
	defer d.Close()

	summaries, err := d.report.DistinctByUser(ctx, c.Int64("course"), c.Int64("quiz"))
	if err != nil {
		return err
	}

	pp.Println(summaries)
	return nil
}

func deleteEvidence(c *cli.Context) error {
	ctx := context.Background()

	d, err := buildDeps(ctx, newLogger(c))
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.retention.DeleteEvidence(ctx, c.Int64("id")); err != nil {
		return err
	}

	fmt.Printf("deleted evidence %d\n", c.Int64("id"))
	return nil
}

func purgeEvidence(c *cli.Context) error {
	evidenceType, err := types.ParseEvidenceType(c.String("type"))
	if err != nil {
		return err
	}

	ctx := context.Background()

	d, err := buildDeps(ctx, newLogger(c))
	if err != nil {
		return err
	}
	defer d.Close()

	deleted, err := d.retention.DeleteAllForUser(ctx, c.Int64("course"), c.Int64("quiz"), c.Int64("user"), evidenceType)
	fmt.Printf("deleted %d %s records\n", deleted, evidenceType)
	return err
}
