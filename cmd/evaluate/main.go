// Command evaluate scores the configured model against a labelled image tree
// (one subdirectory per class, as used for training) and prints per-class
// results.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"syscall"
	"text/tabwriter"

	"imgclass/internal/bootstrap"
	"imgclass/internal/config"
	"imgclass/internal/dataset"
	"imgclass/internal/logging"
)

func main() {
	dir := flag.String("dir", "database/test", "dataset root with one subdirectory per class")
	workers := flag.Int("workers", runtime.NumCPU(), "concurrent predictions")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(os.Stderr, cfg.Log.Level)

	classNames := [2]string{cfg.Model.ClassNames[0], cfg.Model.ClassNames[1]}
	samples, skipped, err := dataset.Walk(*dir, classNames)
	if err != nil {
		logger.Error("read dataset failed", "err", err)
		os.Exit(1)
	}
	for _, name := range skipped {
		logger.Warn("skipping directory that is not a configured class", "dir", name)
	}
	logger.Info("dataset loaded", "root", *dir, "samples", len(samples))

	model, classifier, err := bootstrap.LoadClassifier(cfg)
	if err != nil {
		logger.Error("load classifier failed", "err", err)
		os.Exit(1)
	}
	defer model.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := dataset.Evaluate(ctx, classifier, samples, *workers, logger)
	if err != nil {
		logger.Error("evaluation interrupted", "err", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		printReport(os.Stdout, report, cfg.Model.Threshold)
	}
	if err != nil {
		os.Exit(1)
	}
}

func printReport(w io.Writer, report *dataset.Report, threshold float64) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "class\ttotal\tcorrect\twrong\tunknown\tfailed")

	names := make([]string, 0, len(report.Classes))
	for name := range report.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := report.Classes[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", name, s.Total, s.Correct, s.Wrong, s.Unknown, s.Failed)
	}
	o := report.Overall
	fmt.Fprintf(tw, "all\t%d\t%d\t%d\t%d\t%d\n", o.Total, o.Correct, o.Wrong, o.Unknown, o.Failed)
	_ = tw.Flush()

	fmt.Fprintf(w, "\naccuracy %.4f  coverage %.4f  (threshold %.2f)\n", report.Accuracy(), report.Coverage(), threshold)
}
