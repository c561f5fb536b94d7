package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-training/internal/checkpoint"
	"github.com/danielpatrickdp/adaptive-training/internal/lrate"
	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
	"github.com/danielpatrickdp/adaptive-training/internal/replay"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to training_runs.db")
	sessionID := flag.String("session", "", "session to export (default: most recent)")
	last := flag.Int("last", 0, "export only the last N steps (0 = all)")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --out path/to/fixture.json [--session ID] [--last N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *sessionID, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath, sessionID string, last int, outPath string) error {
	store, err := checkpoint.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	if sessionID == "" {
		sessions, err := store.ListSessions()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return fmt.Errorf("no sessions in %s", dbPath)
		}
		sessionID = sessions[len(sessions)-1]
	}

	steps, err := store.ListSteps(sessionID)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("session %s has no recorded steps", sessionID)
	}
	if last > 0 && len(steps) > last {
		steps = steps[len(steps)-last:]
	}

	var lrSnap lrate.Snapshot
	if err := store.LatestSnapshot(sessionID, "lrate", &lrSnap); err != nil {
		return fmt.Errorf("latest lrate snapshot: %w", err)
	}

	fixture := &replay.Fixture{
		Description: fmt.Sprintf("exported from session %s (%d steps)", sessionID, len(steps)),
		LRConfig:    &lrSnap.Config,
	}
	for i, rec := range steps {
		fixture.Epochs = append(fixture.Epochs, replay.FixtureEpoch{
			Metrics: metrics.StepMetrics{Loss: rec.Loss, ValLoss: rec.ValLoss, Epoch: i},
		})
		lr := rec.LR
		fixture.ExpectedResults = append(fixture.ExpectedResults, replay.ExpectedResult{Epoch: i, LR: &lr})
	}

	if err := replay.SaveFixture(outPath, fixture); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %d epochs, %d expected results\n", outPath, len(fixture.Epochs), len(fixture.ExpectedResults))
	return nil
}

// #endregion export
