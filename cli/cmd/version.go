package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/qunitjs/qtap/types"
)

// VersionCommand reports the qtap release version and the commit it was
// built from.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "show version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "qtap %s (commit: %s)\n", types.Version, commit)
			return nil
		},
	}
}
