// Package main provides the qtap CLI entrypoint: a browser-based TAP
// test harness.
//
// Usage:
//
//	qtap <file-or-url>... [options]
//
// Exit code: 0 iff every pair finished ok; 1 otherwise (bailouts,
// failing assertions, timeouts, launch errors).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/qunitjs/qtap/cli/cmd"
	"github.com/qunitjs/qtap/types"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	// Reserve -V for --version; -v is --verbose on the
	// run command instead of the library's default version alias.
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:           "qtap",
		Usage:          "run browser-based TAP unit tests headlessly",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Flags:          cmd.RunFlags(),
		Action:         cmd.RunAction,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.ListCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
