// Command score evaluates one customer record against a churn bundle offline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"

	"churnguard/artifact"
	"churnguard/ml"
	"churnguard/scoring"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "score: %v\n", err)
		os.Exit(1)
	}
}

// optionalFloat is a float flag that remembers whether it was given.
type optionalFloat struct {
	value float64
	set   bool
}

func (f *optionalFloat) String() string {
	if !f.set {
		return ""
	}
	return strconv.FormatFloat(f.value, 'f', -1, 64)
}

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.value, f.set = v, true
	return nil
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	bundlePath := fs.String("bundle", "final_churn_bundle.json", "bundle artifact path")
	recordPath := fs.String("record", "-", "JSON record file, or - for stdin")
	verbose := fs.Bool("v", false, "log to stderr")
	var costFP, costFN optionalFloat
	fs.Var(&costFP, "cost_fp", "cost of a false positive")
	fs.Var(&costFN, "cost_fn", "cost of a false negative")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if costFP.set != costFN.set {
		return errors.New("cost_fp and cost_fn must be given together")
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = l
	}

	store := artifact.NewStore(*bundlePath, logger)
	if _, err := store.Bundle(); err != nil {
		return err
	}

	record, err := readRecord(*recordPath, stdin)
	if err != nil {
		return err
	}

	var costs *scoring.CostParameters
	if costFP.set {
		costs = &scoring.CostParameters{FalsePositive: costFP.value, FalseNegative: costFN.value}
	}

	result, err := scoring.NewService(store, scoring.WithLogger(logger)).Evaluate(context.Background(), record, costs)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readRecord(path string, stdin io.Reader) (ml.InputRecord, error) {
	if path == "-" {
		return ml.DecodeRecord(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ml.DecodeRecord(f)
}
