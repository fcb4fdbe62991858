package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/zipbuilder/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     address and port of the zipbuilder server
//	-i duration   status poll interval
//	-t duration   wait timeout (0 waits forever)
//
// Only these flags are taken from os.Args, so subcommands and their
// arguments pass through untouched.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], "a", "i", "t")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.DurationVar(&cfg.PollInterval, "i", cfg.PollInterval, "status poll interval")
	fs.DurationVar(&cfg.WaitTimeout, "t", cfg.WaitTimeout, "wait timeout")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
