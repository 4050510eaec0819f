// Package cmd provides the qtap CLI commands, built on
// github.com/urfave/cli/v2.
package cmd

import "github.com/urfave/cli/v2"

// RunFlags returns the flags accepted by qtap's run behavior, per
// the harness's CLI surface.
func RunFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "browser",
			Aliases: []string{"b"},
			Usage:   "browser to run tests in (repeatable)",
			Value:   cli.NewStringSlice("detect"),
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a qtap YAML config file",
		},
		&cli.StringFlag{
			Name:  "cwd",
			Usage: "static-server root override",
		},
		&cli.Float64Flag{
			Name:  "timeout",
			Usage: "idle timeout in seconds",
			Value: 5,
		},
		&cli.Float64Flag{
			Name:  "connect-timeout",
			Usage: "initial browser startup timeout in seconds",
			Value: 60,
		},
		&cli.StringSliceFlag{
			Name:    "reporter",
			Aliases: []string{"r"},
			Usage:   "reporter to use (repeatable)",
			Value:   cli.NewStringSlice("minimal"),
		},
		&cli.BoolFlag{
			Name:    "watch",
			Aliases: []string{"w"},
			Usage:   "re-run all pairs when a test file changes",
		},
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"d"},
			Usage:   "disable liveness timeouts and keep browsers open",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "enable debug-level logging",
		},
	}
}
