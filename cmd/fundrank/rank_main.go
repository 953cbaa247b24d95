package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/fundrank/internal/domain/fund"
	"github.com/sawpanic/fundrank/internal/interfaces/output"
	fundlog "github.com/sawpanic/fundrank/internal/log"
	"github.com/sawpanic/fundrank/internal/match"
	"github.com/sawpanic/fundrank/internal/metrics"
	"github.com/sawpanic/fundrank/internal/pipeline"
	"github.com/sawpanic/fundrank/internal/ranking"
)

type rankOptions struct {
	category    string
	weights     map[string]string
	rateChange  float64
	bestEffort  bool
	format      string
	top         int
	timeout     time.Duration
	riskCeiling string
	epsilon     float64
	outFile     string
}

func newRankCmd() *cobra.Command {
	opts := &rankOptions{}
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank the funds of one category",
		Long: `Fetches, reconciles and enriches the funds of a category, then ranks them.
Weights come from --weights or, when omitted, from the weights config.`,
		Example: `  fundrank rank --category debt --rate-change -0.5
  fundrank rank --category index --weights expenseRatio=0.4,trackingErrorRatio=0.3,aumRatio=0.2,cagrRatio=0.1
  fundrank rank --category arbitrage --offline testdata --format json
  fundrank rank --category equity-saver --out equity-saver.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRank(cmd, opts)
		},
	}
	addRankFlags(cmd.Flags(), opts)
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func addRankFlags(fs *pflag.FlagSet, opts *rankOptions) {
	fs.StringVarP(&opts.category, "category", "c", "", "Fund category ("+categoryList()+")")
	fs.StringToStringVarP(&opts.weights, "weights", "w", nil, "Weights as key=value pairs, overriding the weights config")
	fs.Float64Var(&opts.rateChange, "rate-change", 0, "Expected interest rate change in percentage points (debt)")
	fs.BoolVar(&opts.bestEffort, "best-effort", false, "Drop funds that cannot be reconciled instead of failing")
	fs.StringVar(&opts.format, "format", "auto", "Output format (auto|table|json)")
	fs.IntVar(&opts.top, "top", 0, "Show only the top N funds (0 shows all); --out files keep every fund")
	fs.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall run timeout")
	fs.StringVar(&opts.riskCeiling, "risk-ceiling", "", "Keep funds at or below this risk class")
	fs.Float64Var(&opts.epsilon, "expense-epsilon", 0, "Tolerance for expense ratio matching (0 is exact)")
	fs.StringVarP(&opts.outFile, "out", "o", "", "Also write the result to a .csv or .json file")
}

func categoryList() string {
	names := make([]string, len(fund.Categories))
	for i, c := range fund.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, "|")
}

func runRank(cmd *cobra.Command, opts *rankOptions) error {
	category, err := fund.ParseCategory(opts.category)
	if err != nil {
		return err
	}
	format, err := resolveFormat(opts.format)
	if err != nil {
		return err
	}

	req := pipeline.Request{Category: category, RateChange: opts.rateChange}
	if opts.bestEffort {
		req.MatchPolicy = match.BestEffort
	}
	if opts.riskCeiling != "" {
		req.RiskCeiling = fund.ParseRisk(opts.riskCeiling)
		if req.RiskCeiling == fund.RiskUnknown {
			return fmt.Errorf("unknown risk class %q", opts.riskCeiling)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	engineOpts := []pipeline.Option{pipeline.WithMatchOptions(match.Options{Epsilon: opts.epsilon})}
	var progress *fundlog.ProgressIndicator
	if format == formatTable && fundlog.IsTerminal(os.Stderr) {
		progress = fundlog.NewProgressIndicator(os.Stderr, "Ranking "+string(category), expectedSteps(category))
		engineOpts = append(engineOpts, pipeline.WithStepObserver(func(s metrics.Step) { progress.Step(string(s)) }))
	}

	a, err := newApp(ctx, cmd, engineOpts...)
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := a.engine.Plan(category)
	if err != nil {
		return err
	}
	req.Weights, err = resolveWeights(cmd, opts, plan)
	if err != nil {
		return err
	}

	res, err := a.engine.Build(ctx, req)
	if err != nil {
		if progress != nil {
			progress.Fail(err.Error())
		}
		return err
	}
	if progress != nil {
		progress.Finish(fmt.Sprintf("%d funds", len(res.Funds)))
	}

	if opts.outFile != "" {
		if err := output.NewEmitter(version).Emit(opts.outFile, res, plan); err != nil {
			return err
		}
		log.Info().Str("file", opts.outFile).Int("funds", len(res.Funds)).Msg("Ranking written")
	}

	// --top trims the display only; the file above keeps every fund
	shown := *res
	if opts.top > 0 && len(shown.Funds) > opts.top {
		shown.Funds = shown.Funds[:opts.top]
	}

	out := cmd.OutOrStdout()
	if format == formatJSON {
		return renderJSON(out, &shown)
	}
	return renderTable(out, &shown, plan)
}

// resolveWeights returns the --weights flag when given and the configured
// weights of the category otherwise. Keys the plan does not read weigh
// nothing and only log a warning.
func resolveWeights(cmd *cobra.Command, opts *rankOptions, plan pipeline.Plan) (ranking.Weights, error) {
	var weights ranking.Weights
	if len(opts.weights) > 0 {
		w, err := ranking.WeightsFromStrings(opts.weights)
		if err != nil {
			return nil, err
		}
		weights = w
	} else {
		wl, err := loadWeights(cmd)
		if err != nil {
			return nil, fmt.Errorf("no --weights given and %w", err)
		}
		w, err := wl.GetWeights(string(plan.Category))
		if err != nil {
			return nil, err
		}
		weights = w
	}

	known := make(map[string]bool)
	for _, k := range plan.WeightKeys() {
		known[k] = true
	}
	var unknown []string
	for k := range weights {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		log.Warn().
			Strs("keys", unknown).
			Strs("expected", plan.WeightKeys()).
			Msg("Unknown weight keys ignored")
	}
	for _, k := range plan.WeightKeys() {
		if _, ok := weights[k]; !ok {
			log.Warn().Str("key", k).Msg("Weight not set, parameter weighs 0")
		}
	}
	return weights, nil
}

// expectedSteps counts the step observations of one run of category
func expectedSteps(category fund.Category) int {
	plan, ok := pipeline.DefaultPlans()[category]
	if !ok {
		return 0
	}
	n := 3 // fetch, normalize, rank
	if plan.Reference != nil {
		n += 3 // fetch, normalize, match
	}
	if len(plan.Stages) > 0 {
		n++
	}
	return n
}
