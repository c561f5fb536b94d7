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
	dbPath := flag.String("db", "", "path to training_runs.db (DB mode)")
	sessionID := flag.String("session", "", "session ID to replay (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/training_runs.db --session ID")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *sessionID)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func runFixtureMode(path string) int {
	fixture, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	results, summary, err := replay.Replay(fixture)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	fmt.Printf("fixture: %s\n", fixture.Description)
	printResults(results, summary)

	mismatches := replay.Verify(fixture, results)
	if len(mismatches) == 0 {
		if len(fixture.ExpectedResults) > 0 {
			fmt.Printf("\nall %d expected results matched\n", len(fixture.ExpectedResults))
		}
		return 0
	}
	fmt.Printf("\n%d mismatches:\n", len(mismatches))
	for _, m := range mismatches {
		fmt.Printf("  %s\n", m)
	}
	return 1
}

// #endregion fixture-mode

// #region db-mode

// runDBMode rebuilds a fixture from a recorded session's step log plus its
// latest learning-rate snapshot, replays it, and compares against the
// learning rates that were recorded live.
func runDBMode(dbPath, sessionID string) int {
	store, err := checkpoint.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	if sessionID == "" {
		sessions, err := store.ListSessions()
		if err != nil || len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "no sessions found; pass --session")
			return 2
		}
		sessionID = sessions[len(sessions)-1]
		fmt.Printf("no session given, using %s\n", sessionID)
	}

	steps, err := store.ListSteps(sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list steps: %v\n", err)
		return 2
	}
	if len(steps) == 0 {
		fmt.Fprintf(os.Stderr, "session %s has no recorded steps\n", sessionID)
		return 2
	}

	var lrSnap lrate.Snapshot
	if err := store.LatestSnapshot(sessionID, "lrate", &lrSnap); err != nil {
		fmt.Fprintf(os.Stderr, "latest lrate snapshot: %v\n", err)
		return 2
	}

	fixture := fixtureFromSteps(sessionID, lrSnap.Config, steps)
	results, summary, err := replay.Replay(fixture)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}
	printResults(results, summary)

	mismatches := replay.Verify(fixture, results)
	if len(mismatches) == 0 {
		fmt.Printf("\nreplay reproduced all %d recorded learning rates\n", len(steps))
		return 0
	}
	fmt.Printf("\n%d divergences from the recorded run:\n", len(mismatches))
	for _, m := range mismatches {
		fmt.Printf("  %s\n", m)
	}
	return 1
}

func fixtureFromSteps(sessionID string, cfg lrate.Config, steps []checkpoint.StepRecord) *replay.Fixture {
	f := &replay.Fixture{
		Description: fmt.Sprintf("session %s step log", sessionID),
		LRConfig:    &cfg,
	}
	for i, rec := range steps {
		f.Epochs = append(f.Epochs, replay.FixtureEpoch{
			Metrics: metrics.StepMetrics{Loss: rec.Loss, ValLoss: rec.ValLoss, Epoch: i},
		})
		lr := rec.LR
		f.ExpectedResults = append(f.ExpectedResults, replay.ExpectedResult{Epoch: i, LR: &lr})
	}
	return f
}

// #endregion db-mode

// #region output

func printResults(results []replay.StepResult, summary replay.Summary) {
	for _, r := range results {
		line := fmt.Sprintf("epoch %3d  lr=%.6g", r.Epoch, r.LR)
		if r.BatchSize > 0 {
			line += fmt.Sprintf("  batch=%d", r.BatchSize)
		}
		if r.Stopped {
			line += fmt.Sprintf("  STOPPED (%s)", r.StopReason)
		}
		fmt.Println(line)
	}
	fmt.Printf("\nepochs=%d reductions=%d resizes=%d final_lr=%.6g",
		summary.TotalEpochs, summary.RateReductions, summary.BatchResizes, summary.FinalLR)
	if summary.StoppedAtEpoch >= 0 {
		fmt.Printf(" stopped_at=%d best_epoch=%d", summary.StoppedAtEpoch, summary.BestEpoch)
	}
	fmt.Println()
}

// #endregion output
