package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okian/ghostrun/internal/replay"
	"github.com/okian/ghostrun/pkg/logger"
)

const defaultTimeout = 10 * time.Second

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "replay",
		Usage:     "replay run scenarios and fingerprint the resulting leaderboard",
		Writer:    stdout,
		ErrWriter: stderr,
		Commands: []*cli.Command{
			runCommand(stderr),
		},
	}
}

func runCommand(stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "replay a YAML scenario",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "scenario", Aliases: []string{"s"}, Usage: "scenario file", Required: true},
			&cli.BoolFlag{Name: "digest-only", Usage: "print only the leaderboard digest"},
			&cli.StringFlag{Name: "url", Usage: "replay against a running service instead of in process"},
			&cli.DurationFlag{Name: "timeout", Value: defaultTimeout, Usage: "HTTP request and settlement timeout"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log every step"},
		},
		Action: func(c *cli.Context) error {
			level := "warn"
			if c.Bool("verbose") {
				level = "debug"
			}
			if err := logger.Init(logger.WithOutput(stderr)); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			_ = logger.SetLevelString(level)

			sc, err := replay.LoadScenario(c.String("scenario"))
			if err != nil {
				return err
			}

			d, err := newDriver(c.Context, c.String("url"), c.Duration("timeout"), sc)
			if err != nil {
				return err
			}
			defer d.Close()

			res, err := replay.Run(c.Context, sc, d, replay.Config{
				SettleTimeout: c.Duration("timeout"),
				Verbose:       c.Bool("verbose"),
			})
			if res != nil {
				printResult(c.App.Writer, res, c.Bool("digest-only"))
			}
			if errors.Is(err, replay.ErrExpectation) {
				for _, m := range res.Mismatches {
					_, _ = fmt.Fprintln(c.App.ErrWriter, m)
				}
			}
			return err
		},
	}
}

func newDriver(ctx context.Context, url string, timeout time.Duration, sc *replay.Scenario) (replay.Driver, error) {
	if url != "" {
		return replay.NewHTTPDriver(url, timeout, sc.Leaderboard.Size), nil
	}
	return replay.NewServiceDriver(ctx, sc)
}

func printResult(w io.Writer, res *replay.Result, digestOnly bool) {
	if digestOnly {
		_, _ = fmt.Fprintln(w, res.Digest)
		return
	}
	s := res.Stats
	_, _ = fmt.Fprintf(w, "steps=%d started=%d battles=%d settled=%d duplicates=%d abandoned=%d rejected=%d\n",
		s.Steps, s.Started, s.Battles, s.Settled, s.Duplicates, s.Abandoned, s.Rejected)
	for _, e := range res.Leaderboard {
		_, _ = fmt.Fprintf(w, "%4d  %-24s %5d\n", e.Rank, e.Account, e.EP)
	}
	_, _ = fmt.Fprintf(w, "digest %s\n", res.Digest)
}
