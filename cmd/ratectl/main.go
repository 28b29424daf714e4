package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/uplift-eval/ratekit/internal/api"
	"github.com/uplift-eval/ratekit/internal/export"
	"github.com/uplift-eval/ratekit/internal/rate"
	"github.com/uplift-eval/ratekit/internal/sim"
)

var (
	inputFile  string
	outputFile string
	curveCSV   string
	weighting  string
	alpha      float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ratectl",
		Short: "Rank-weighted average treatment effect estimation",
		Long: `ratectl computes TOC curves and RATE estimates (AUTOC/QINI) from
doubly-robust pseudo-outcomes or raw trial data with nuisance estimates.`,
	}

	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "Output file for the JSON response (default stdout)")
	rootCmd.PersistentFlags().StringVar(&curveCSV, "curve-csv", "", "Also export the TOC curve as CSV to this path")
	rootCmd.PersistentFlags().StringVarP(&weighting, "weighting", "w", "AUTOC", "Weighting scheme (AUTOC or QINI)")
	rootCmd.PersistentFlags().Float64Var(&alpha, "alpha", 0.05, "Significance level for confidence intervals")

	rootCmd.AddCommand(estimateCmd())
	rootCmd.AddCommand(compareCmd())
	rootCmd.AddCommand(simulateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// estimateCmd runs one RATE estimate from a JSON request file.
func estimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Compute a RATE estimate from a JSON request file",
		Long: `Reads an estimate request (pseudo-outcomes or raw nuisance vectors plus
prioritization scores) from a JSON file and prints the RATE result with its
confidence interval, p-value, and TOC curve.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.EstimateRequest
			if err := loadJSON(inputFile, &req); err != nil {
				return err
			}
			if req.Weighting == "" {
				req.Weighting = weighting
			}
			if req.Alpha == 0 {
				req.Alpha = alpha
			}
			req.KeepCurve = true

			engine := rate.NewEngine(api.DefaultEstimateParams())
			resp, err := engine.Estimate(context.Background(), &req)
			if err != nil {
				return err
			}
			return emit(resp)
		},
	}
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Request file (JSON)")
	cmd.MarkFlagRequired("input")
	return cmd
}

// compareCmd runs a paired comparison of two prioritization rules.
func compareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare two prioritization rules on the same pseudo-outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.CompareRequest
			if err := loadJSON(inputFile, &req); err != nil {
				return err
			}
			if req.Weighting == "" {
				req.Weighting = weighting
			}
			if req.Alpha == 0 {
				req.Alpha = alpha
			}

			engine := rate.NewEngine(api.DefaultEstimateParams())
			resp, err := engine.Compare(context.Background(), &req)
			if err != nil {
				return err
			}
			return emitJSON(resp)
		},
	}
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Request file (JSON)")
	cmd.MarkFlagRequired("input")
	return cmd
}

// simulateCmd draws a synthetic trial and estimates it.
func simulateCmd() *cobra.Command {
	var (
		n           int
		seed        int64
		gridStep    float64
		informative bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the estimator on a synthetic standard-normal trial",
		Long: `Draws n i.i.d. standard-normal pseudo-outcomes and estimates RATE with
either an informative prioritization rule (the pseudo-outcomes themselves)
or an uninformative one (independent noise).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := sim.Run(context.Background(), sim.Config{
				N:           n,
				Seed:        seed,
				Informative: informative,
				Weighting:   weighting,
				GridStep:    gridStep,
				Alpha:       alpha,
			})
			if err != nil {
				return err
			}
			return emit(resp)
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 1000, "Number of simulated units")
	cmd.Flags().Int64Var(&seed, "seed", 42, "RNG seed")
	cmd.Flags().Float64Var(&gridStep, "grid-step", 0.05, "Quantile grid step (0 = full k/n grid)")
	cmd.Flags().BoolVar(&informative, "informative", true, "Prioritize by the pseudo-outcomes themselves")
	return cmd
}

func loadJSON(path string, v interface{}) error {
	if path == "" {
		return fmt.Errorf("input file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func emit(resp *api.EstimateResponse) error {
	if curveCSV != "" {
		if err := export.WriteCurveCSVFile(curveCSV, resp.Result.Curve); err != nil {
			return err
		}
	}

	out := os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outputFile, err)
		}
		defer f.Close()
		out = f
	}
	return export.WriteResponseJSON(out, resp)
}

func emitJSON(v interface{}) error {
	out := os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outputFile, err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
