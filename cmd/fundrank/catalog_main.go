package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sawpanic/fundrank/internal/domain/fund"
	"github.com/sawpanic/fundrank/internal/pipeline"
)

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List supported categories and their ranking parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			plans := pipeline.DefaultPlans()
			for _, c := range pipeline.SortedCategories(plans) {
				p := plans[c]
				fmt.Fprintf(out, "%s (%s)\n", c, p.TieMode)
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, param := range p.Params {
					fmt.Fprintf(tw, "  %s\t%s\t%s\n", param.WeightKey, param.Field, param.Direction)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				var sources []string
				if p.Reference != nil {
					sources = append(sources, "reconciled with "+p.Reference.Provider)
				}
				for _, st := range p.Stages {
					for _, m := range st.Metrics {
						sources = append(sources, fmt.Sprintf("%s from %s (%s)", m.Field, st.Provider, st.Mode))
					}
				}
				if p.ExpectedReturns {
					sources = append(sources, "expected returns")
				}
				if len(sources) > 0 {
					fmt.Fprintf(out, "  enrichment: %s\n", strings.Join(sources, "; "))
				}
			}
			return nil
		},
	}
}

func newWeightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Show and validate the configured weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			wl, err := loadWeights(cmd)
			if err != nil {
				return err
			}
			only, _ := cmd.Flags().GetString("category")
			plans := pipeline.DefaultPlans()
			out := cmd.OutOrStdout()

			problems := 0
			for _, name := range wl.Categories() {
				if only != "" && name != only {
					continue
				}
				summary, err := wl.GetWeightsSummary(name)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, summary)

				cat, err := fund.ParseCategory(name)
				if err != nil {
					fmt.Fprintf(out, "  ⚠️  %s is not a supported category\n", name)
					problems++
					continue
				}
				if unknown := wl.CheckKeys(name, plans[cat].WeightKeys()); len(unknown) > 0 {
					fmt.Fprintf(out, "  ⚠️  unknown keys: %s\n", strings.Join(unknown, ", "))
					problems++
				}
			}
			if problems > 0 {
				return fmt.Errorf("%d weight configuration problems", problems)
			}
			return nil
		},
	}
	cmd.Flags().String("category", "", "Show a single category")
	return cmd
}
