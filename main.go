package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "packchicken",
		Usage: "collect shop orders, book Bring shipments and print labels",
		Commands: []*cli.Command{
			serveCommand(),
			processCommand(),
			enqueueCommand(),
			ingestEmailCommand(),
			importStorefrontCommand(),
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
