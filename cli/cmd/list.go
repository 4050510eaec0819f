package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// knownBrowsers and knownReporters are the names qtap resolves without
// a config file, shown by `qtap list`.
var (
	knownBrowsers  = []string{"detect", "chrome-headless", "firefox-headless", "safari-webdriver", "fake"}
	knownReporters = []string{"minimal", "tap", "json", "tui", "webhook", "redis"}
)

// ListCommand lists the browsers and reporters qtap can resolve by
// name, for discoverability without reading source.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list available browsers and reporters",
		Subcommands: []*cli.Command{
			{
				Name:  "browsers",
				Usage: "list resolvable browser names",
				Action: func(c *cli.Context) error {
					for _, name := range knownBrowsers {
						fmt.Fprintln(c.App.Writer, name)
					}
					return nil
				},
			},
			{
				Name:  "reporters",
				Usage: "list available reporters",
				Action: func(c *cli.Context) error {
					for _, name := range knownReporters {
						fmt.Fprintln(c.App.Writer, name)
					}
					return nil
				},
			},
		},
	}
}
