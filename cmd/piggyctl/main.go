/*piggyctl administers a piggybank data store from the command line.*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"piggybank/internal/cli"
	"piggybank/internal/config"
	"piggybank/internal/core"
	"piggybank/internal/export"
	"piggybank/internal/gateway"
	"piggybank/internal/gateway/memory"
	applog "piggybank/internal/log"
	"piggybank/internal/services"
	"piggybank/internal/worker"
)

// globals are the options shared by every command. Unset flags fall back to
// the environment, as for the server.
type globals struct {
	Backend     string        `help:"Data backend [memory sqlite postgres]."`
	SQLitePath  string        `name:"sqlite-path" help:"SQLite database file."`
	DatabaseURL string        `name:"database-url" help:"Postgres connection URL."`
	LogLevel    string        `name:"log-level" default:"warn" help:"Log level [debug info warn error]."`
	Timeout     time.Duration `default:"30s" help:"Overall deadline for the command."`
}

var (
	stdout io.Writer = os.Stdout
	logger *applog.Logger
)

var cmd struct {
	Globals globals `embed:""`

	Migrate migrateCmd `cmd:"" help:"Create or upgrade the database schema."`
	Summary summaryCmd `cmd:"" help:"Print a user's ledger summary as JSON."`
	Seed    seedCmd    `cmd:"" help:"Load sample or fixture data into a user's ledger."`
	Export  exportCmd  `cmd:"" help:"Export ledgers to a sink."`
}

func main() {
	cli.LoadEnvFile()
	ctx := kong.Parse(&cmd,
		kong.Name("piggyctl"),
		kong.Description("Administer piggybank data."))
	logger = cli.SetupLogger(cmd.Globals.LogLevel, applog.ComponentApp)
	err := ctx.Run(&cmd.Globals)
	ctx.FatalIfErrorf(err)
}

// config merges flags over the environment.
func (g *globals) config() *config.Config {
	cfg := config.Load()
	if g.Backend != "" {
		cfg.DataBackend = g.Backend
	}
	if g.SQLitePath != "" {
		cfg.SQLiteDBPath = g.SQLitePath
	}
	if g.DatabaseURL != "" {
		cfg.DatabaseURL = g.DatabaseURL
	}
	// The CLI never invents data implicitly; use the seed command.
	cfg.SeedDemoData = false
	return cfg
}

// open runs fn with a gateway for the configured backend.
func (g *globals) open(fn func(ctx context.Context, gw gateway.Gateway) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()

	res, err := cli.OpenBackend(ctx, g.config(), logger)
	if err != nil {
		return err
	}
	defer cli.CloseBackend(res, logger)
	return fn(ctx, res.Gateway)
}

type migrateCmd struct{}

func (c *migrateCmd) Run(g *globals) error {
	cfg := g.config()
	if cfg.DataBackend == "memory" {
		return fmt.Errorf("nothing to migrate for the memory backend")
	}
	// Opening a persistent backend applies pending migrations.
	return g.open(func(ctx context.Context, gw gateway.Gateway) error {
		if err := gw.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s schema is up to date\n", cfg.DataBackend)
		return nil
	})
}

type summaryCmd struct {
	User string `required:"" help:"User id to summarize."`
}

func (c *summaryCmd) Run(g *globals) error {
	return g.open(func(ctx context.Context, gw gateway.Gateway) error {
		return writeSummary(ctx, stdout, gw, c.User, logger)
	})
}

func writeSummary(ctx context.Context, w io.Writer, gw gateway.Gateway, userID string, logger *applog.Logger) error {
	svc := services.NewLedgerService(gw, nil, services.Options{Logger: logger})
	snap, err := svc.Snapshot(ctx, userID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		UserID string `json:"user_id"`
		core.Summary
		TransactionCount int `json:"transaction_count"`
		GoalCount        int `json:"goal_count"`
	}{userID, snap.Summary, len(snap.Transactions), len(snap.Goals)})
}

type seedCmd struct {
	User string `required:"" help:"User id to seed."`
	File string `type:"existingfile" help:"JSON fixture with transactions and goals. Defaults to the demo data."`
}

func (c *seedCmd) Run(g *globals) error {
	fx := memory.DemoFixture(time.Now())
	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return err
		}
		fx = memory.Fixture{}
		if err := json.Unmarshal(data, &fx); err != nil {
			return fmt.Errorf("decode fixture %s: %w", c.File, err)
		}
	}
	return g.open(func(ctx context.Context, gw gateway.Gateway) error {
		txs, goals, err := seedLedger(ctx, gw, c.User, fx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "seeded %d transactions and %d goals for %s\n", txs, goals, c.User)
		return nil
	})
}

// seedLedger inserts fx through the gateway. Stores assign fresh ids and
// dates; goal progress is applied after each insert.
func seedLedger(ctx context.Context, gw gateway.Gateway, userID string, fx memory.Fixture) (int, int, error) {
	if err := gateway.RequireUser(userID); err != nil {
		return 0, 0, err
	}
	for i, t := range fx.Transactions {
		n := core.NewTransaction{Type: t.Type, Amount: t.Amount, Category: t.Category, Description: t.Description}
		if err := n.Validate(); err != nil {
			return i, 0, fmt.Errorf("transaction %d: %w", i, err)
		}
		if _, err := gw.InsertTransaction(ctx, userID, n); err != nil {
			return i, 0, err
		}
	}
	for i, goal := range fx.Goals {
		if err := goal.Validate(); err != nil {
			return len(fx.Transactions), i, fmt.Errorf("goal %d: %w", i, err)
		}
		created, err := gw.InsertGoal(ctx, userID, goal.Name, goal.TargetAmount)
		if err != nil {
			return len(fx.Transactions), i, err
		}
		if goal.CurrentAmount.IsPositive() {
			if err := gw.UpdateGoalCurrentAmount(ctx, userID, created.ID, goal.CurrentAmount); err != nil {
				return len(fx.Transactions), i, err
			}
		}
	}
	return len(fx.Transactions), len(fx.Goals), nil
}

type exportCmd struct {
	User string `help:"User id to export. Exports every user when empty."`
	Out  string `default:"jsonfile:piggybank.json" help:"Where to write [jsonfile:/path/file.json jsondir:/path es8:http://myelasticsearch:9200]"`
}

func (c *exportCmd) Run(g *globals) error {
	sink, err := export.Parse(c.Out)
	if err != nil {
		return err
	}
	return g.open(func(ctx context.Context, gw gateway.Gateway) error {
		users, _ := gw.(gateway.UserLister)
		w := worker.NewExportWorker(gw, users, []export.Sink{sink}, worker.DefaultConfig())
		if c.User != "" {
			if err := w.ExportUser(ctx, c.User); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "exported %s to %s\n", c.User, sink.Name())
			return nil
		}
		n, err := w.ExportAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "exported %d users to %s\n", n, sink.Name())
		return nil
	})
}
