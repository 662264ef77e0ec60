package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/vrm-integration/cmd"
)

func main() {
	logLevel := &cli.StringFlag{
		Name:    "log-level",
		EnvVars: []string{"LOG_LEVEL"},
		Value:   "INFO",
	}
	app := &cli.App{
		Name:   "vrm-integration",
		Usage:  "publishes Victron VRM device telemetry to MQTT and postgres",
		Action: cmd.VrmCommand,
		Flags:  []cli.Flag{logLevel},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "poll VRM and publish device telemetry",
				Action: cmd.VrmCommand,
				Flags:  []cli.Flag{logLevel},
			},
			{
				Name:   "discover",
				Usage:  "list the devices of the account's installation",
				Action: cmd.DiscoverCommand,
				Flags:  []cli.Flag{logLevel},
			},
			{
				Name:   "hash-token",
				Usage:  "generate an admin token and its ADMIN_TOKEN_HASH",
				Action: cmd.HashTokenCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "token",
						Usage: "hash this token instead of generating one",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
