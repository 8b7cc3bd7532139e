// Command cyqld opens a cyql database file and runs a single Cypher
// statement, printing its QueryResponse as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/rlch/cyql"
	"github.com/rlch/cyql/store"
)

func main() {
	cmd := &cli.Command{
		Name:  "cyqld",
		Usage: "run a Cypher statement against a cyql database file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Usage:   "path to the SQLite database file",
				Value:   "cyql.db",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "zap log level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		ArgsUsage: "[cypher]",
		Action:    run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	source := cmd.Args().First()
	if source == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("cyqld: reading stdin: %w", err)
		}
		source = string(data)
	}

	log, err := cyql.NewLogger(cmd.String("log-level"))
	if err != nil {
		return fmt.Errorf("cyqld: building logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := store.Open(cmd.String("database"), store.WithLogger(log))
	if err != nil {
		return fmt.Errorf("cyqld: opening database: %w", err)
	}

	engine := cyql.New(db, &cyql.EngineConfig{DefaultMaxHops: cyql.DefaultMaxHops}, log)
	defer func() { _ = engine.Close() }()

	resp := engine.Execute(ctx, source, nil)

	enc := json.NewEncoder(os.Stdout)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(resp)
}
