package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danielpatrickdp/adaptive-training/internal/checkpoint"
	"github.com/danielpatrickdp/adaptive-training/internal/earlystop"
	"github.com/danielpatrickdp/adaptive-training/internal/lrate"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to training_runs.db")
	sessionID := flag.String("session", "", "session to inspect (default: all sessions listed)")
	adjustments := flag.Int("adjustments", 20, "number of adjustment-log entries to show")
	asJSON := flag.Bool("json", false, "dump latest snapshots as JSON")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/training_runs.db [--session ID] [--json]")
		os.Exit(2)
	}

	store, err := checkpoint.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(2)
	}
	defer store.Close()

	if *sessionID == "" {
		if err := listSessions(store); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := inspectSession(store, *sessionID, *adjustments, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region sessions

func listSessions(store *checkpoint.Store) error {
	sessions, err := store.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}
	fmt.Printf("%d sessions:\n", len(sessions))
	for _, id := range sessions {
		steps, err := store.ListSteps(id)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			fmt.Printf("  %s  (no steps)\n", id)
			continue
		}
		last := steps[len(steps)-1]
		fmt.Printf("  %s  steps=%d epochs=%d last_loss=%.4f last_lr=%.6g\n",
			id, len(steps), last.Epoch+1, last.Loss, last.LR)
	}
	return nil
}

// #endregion sessions

// #region session-detail

func inspectSession(store *checkpoint.Store, sessionID string, adjustments int, asJSON bool) error {
	steps, err := store.ListSteps(sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("session %s: %d steps\n", sessionID, len(steps))

	if asJSON {
		return dumpSnapshots(store, sessionID)
	}

	var lrSnap lrate.Snapshot
	if err := store.LatestSnapshot(sessionID, "lrate", &lrSnap); err == nil {
		fmt.Printf("\nlearning rate (%s):\n", lrSnap.Config.Policy)
		fmt.Printf("  current=%.6g steps=%d reductions=%d improvements=%d\n",
			lrSnap.State.CurrentLR, lrSnap.State.TotalSteps,
			lrSnap.State.Reductions, lrSnap.State.Improvements)
	}

	var stopSnap earlystop.Snapshot
	if err := store.LatestSnapshot(sessionID, "earlystop", &stopSnap); err == nil {
		fmt.Printf("\nearly stopping (%s, %s):\n", stopSnap.Config.Monitor, stopSnap.Config.Mode)
		status := "monitoring"
		if stopSnap.State.Stopped {
			status = fmt.Sprintf("stopped (%s)", stopSnap.State.StopReason)
		}
		best := "none"
		if stopSnap.BestMetric != nil {
			best = fmt.Sprintf("%.4f@epoch%d", *stopSnap.BestMetric, stopSnap.State.BestEpoch)
		}
		fmt.Printf("  %s  best=%s wait=%d/%d\n",
			status, best, stopSnap.State.WaitCount, stopSnap.State.Patience)
	}

	entries, err := store.ListAdjustments(sessionID, adjustments)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		fmt.Printf("\nadjustments (%d):\n", len(entries))
		for _, e := range entries {
			fmt.Printf("  step %4d  %-10s %-20s %.6g -> %.6g  %s\n",
				e.Step, e.Controller, e.EventType, e.OldValue, e.NewValue, e.Reason)
		}
	}
	return nil
}

func dumpSnapshots(store *checkpoint.Store, sessionID string) error {
	out := map[string]json.RawMessage{}
	for _, controller := range []string{"gradient", "lrate", "batch", "earlystop"} {
		var raw json.RawMessage
		if err := store.LatestSnapshot(sessionID, controller, &raw); err != nil {
			if strings.Contains(err.Error(), "no rows") {
				continue
			}
			return err
		}
		out[controller] = raw
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// #endregion session-detail
