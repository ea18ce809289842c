// Simulate - generates labeled EV charging telemetry and scores it
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/evgrid/guardian/internal/dataset"
	"github.com/evgrid/guardian/internal/guardian"
	"github.com/evgrid/guardian/internal/logging"
	"github.com/evgrid/guardian/internal/simulator"
	"github.com/evgrid/guardian/internal/telemetry"
)

func main() {
	var (
		count      = flag.Int("count", 20, "number of sessions to generate")
		duration   = flag.Int("duration", 120, "readings per session (1 per second)")
		fraudRatio = flag.Float64("fraud-ratio", 0.3, "fraction of sessions with injected fraud")
		seed       = flag.Int64("seed", 42, "random seed")
		output     = flag.String("output", "", "write sessions as CSV to this path")
		modelPath  = flag.String("model", "", "classifier artifact to score with")
	)
	flag.Parse()

	logger := logging.New("info", "text")

	if *count <= 0 || *duration <= 0 {
		logger.Error("count and duration must be positive")
		os.Exit(1)
	}
	if *fraudRatio < 0 || *fraudRatio > 1 {
		logger.Error("fraud-ratio must be in [0, 1]")
		os.Exit(1)
	}

	gen := simulator.New(*seed)
	labeled := gen.Dataset(*count, *duration, *fraudRatio)

	if *output != "" {
		rows := make([]dataset.Labeled, 0, len(labeled))
		for _, l := range labeled {
			rows = append(rows, dataset.Labeled{Session: l.Session, Label: l.Label})
		}
		if err := dataset.WriteFile(*output, rows); err != nil {
			logger.Error("failed to write dataset", "path", *output, "error", err)
			os.Exit(1)
		}
		logger.Info("dataset written", "path", *output, "sessions", len(rows))
	}

	engine := guardian.NewEngine()
	if *modelPath != "" {
		model, err := guardian.LoadModelFile(*modelPath)
		if err != nil {
			logger.Warn("failed to load model, scoring rule-only",
				"path", *modelPath,
				"error", err,
			)
		} else {
			engine = engine.WithModel(model)
		}
	}

	sessions := make([]*telemetry.Session, 0, len(labeled))
	for _, l := range labeled {
		sessions = append(sessions, l.Session)
	}

	summary, err := engine.EvaluateAll(context.Background(), sessions)
	if err != nil {
		logger.Error("evaluation failed", "error", err)
		os.Exit(1)
	}

	correct := 0
	fmt.Printf("%-14s %-16s %-8s %-8s %s\n", "SESSION", "SCENARIO", "LABEL", "VERDICT", "REASON")
	for i, d := range summary.Decisions {
		l := labeled[i]
		verdictLabel := simulator.LabelNormal
		if d.Status == guardian.StatusFraud {
			verdictLabel = simulator.LabelFraud
		}
		if verdictLabel == l.Label {
			correct++
		}
		fmt.Printf("%-14s %-16s %-8s %-8s %s\n",
			d.SessionID, l.Scenario, l.Label, d.Status, d.Reason)
	}

	fmt.Printf("\ntotal=%d valid=%d fraud=%d accuracy=%.1f%%\n",
		summary.Total, summary.Valid, summary.Fraud,
		float64(correct)/float64(summary.Total)*100)
}
