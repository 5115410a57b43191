package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/eventseq/internal/dataset"
	"github.com/danielpatrickdp/eventseq/internal/gate"
	"github.com/danielpatrickdp/eventseq/internal/pipeline"
	"github.com/danielpatrickdp/eventseq/internal/replay"
	"github.com/danielpatrickdp/eventseq/internal/report"
	"github.com/danielpatrickdp/eventseq/internal/runlog"
)

// #region train

func trainCmd(flags *rootFlags) *cobra.Command {
	var fresh, force bool
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train on train.json, validate on validation.json and gate the new version",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				res, err := a.pipeline.Train(cmd.Context(), pipeline.TrainOptions{New: fresh, Force: force})
				if err != nil {
					return err
				}
				printTrainResult(cmd, res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&fresh, "new", false, "start from fresh weights instead of the active version")
	cmd.Flags().BoolVar(&force, "force", false, "commit the new version even if the gate rejects it")
	return cmd
}

func printTrainResult(cmd *cobra.Command, res pipeline.TrainResult) {
	out := cmd.OutOrStdout()
	verb := "rejected"
	if res.Committed() {
		verb = "committed"
	}
	fmt.Fprintf(out, "version %s %s: %s\n", res.Version.VersionID, verb, res.Decision.Reason)
	fmt.Fprintf(out, "  epochs %d, train loss %.4f\n", res.Fit.Epochs, res.Fit.Loss)
	fmt.Fprintf(out, "  validation accuracy %.4f, loss %.4f (%d examples)\n", res.Eval.Accuracy, res.Eval.Loss, res.Eval.Count)
	if n := len(res.Skipped); n > 0 {
		fmt.Fprintf(out, "  skipped %d invalid records\n", n)
	}
}

// #endregion train

// #region add

func addCmd(flags *rootFlags) *cobra.Command {
	var seq, output string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a labelled example to train.json and retrain",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if seq == "" || output == "" {
				return usagef("add requires both --sequence and --output")
			}
			return withApp(flags, func(a *app) error {
				res, err := a.pipeline.AddExample(cmd.Context(), seq, output)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %q -> %q\n", seq, output)
				printTrainResult(cmd, res)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&seq, "sequence", "s", "", "input sequence, e.g. driver:apply|us:sms")
	cmd.Flags().StringVarP(&output, "output", "o", "", "label: entity:event for next_event, 0 or 1 for binary")
	return cmd
}

// #endregion add

// #region predict

func predictCmd(flags *rootFlags) *cobra.Command {
	var seq string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict for one sequence, or report test accuracy when no sequence is given",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				out := cmd.OutOrStdout()
				if seq == "" {
					result, err := a.pipeline.Evaluate(cmd.Context())
					if err != nil {
						return err
					}
					if jsonOut {
						return report.WriteJSON(out, result)
					}
					fmt.Fprintf(out, "test accuracy %.4f, loss %.4f (%d examples)\n", result.Accuracy, result.Loss, result.Count)
					return nil
				}

				pred, err := a.pipeline.Predict(cmd.Context(), seq)
				if err != nil {
					return err
				}
				if jsonOut {
					return report.WriteJSON(out, pred)
				}
				fmt.Fprintf(out, "%s (p=%.4f)\n", pred.Label, pred.Probability)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&seq, "sequence", "s", "", "input sequence; omit to evaluate on test.json")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

// #endregion predict

// #region data

func generateCmd(flags *rootFlags) *cobra.Command {
	var samples, maxLength int
	var seed uint64
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write synthetic hiring-funnel sequences to events.json",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if samples < 0 || maxLength < 1 {
				return usagef("--samples must be non-negative and --max-length positive")
			}
			return withApp(flags, func(a *app) error {
				records, err := a.pipeline.GenerateEvents(samples, maxLength, seed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s\n", len(records), a.pipeline.Data().Path(dataset.Events))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&samples, "samples", 1400, "number of sequences to generate")
	cmd.Flags().IntVar(&maxLength, "max-length", 10, "maximum events per sequence")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	return cmd
}

func splitCmd(flags *rootFlags) *cobra.Command {
	var shuffle bool
	var seed uint64
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split events.json into train, validation and test collections",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				sp, err := a.pipeline.SplitEvents(shuffle, seed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "train %d, validation %d, test %d\n", len(sp.Train), len(sp.Validation), len(sp.Test))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&shuffle, "shuffle", true, "shuffle before splitting")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "shuffle seed")
	return cmd
}

// #endregion data

// #region versions

func versionsCmd(flags *rootFlags) *cobra.Command {
	var last int
	var versionID string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List trained model versions, or show one with --version",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if last < 1 {
				return usagef("--last must be at least 1")
			}
			return withApp(flags, func(a *app) error {
				out := cmd.OutOrStdout()
				if versionID != "" {
					v, err := a.registry.GetVersion(versionID)
					if err != nil {
						return err
					}
					runs, err := runlog.ForVersion(a.registry.DB(), versionID)
					if err != nil {
						return err
					}
					active, _ := a.registry.ActiveID()
					d := report.NewDetail(v, active == v.VersionID, runs)
					if jsonOut {
						return report.WriteJSON(out, d)
					}
					return report.WriteDetail(out, d)
				}

				versions, err := a.registry.ListVersions(last)
				if err != nil {
					return err
				}
				rows := report.Rows(versions)
				if jsonOut {
					return report.WriteJSON(out, rows)
				}
				return report.WriteTable(out, rows)
			})
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent versions")
	cmd.Flags().StringVar(&versionID, "version", "", "show single version detail")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	return cmd
}

func rollbackCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback VERSION_ID",
		Short: "Make an earlier version the active model",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				if err := a.registry.Activate(args[0]); err != nil {
					return err
				}
				a.log.Info("active version changed", map[string]interface{}{"version_id": args[0]})
				fmt.Fprintf(cmd.OutOrStdout(), "active version is now %s\n", args[0])
				return nil
			})
		},
	}
}

// #endregion versions

// #region replay

func replayCmd(flags *rootFlags) *cobra.Command {
	var last int
	var fixturePath, exportPath string
	var minAccuracy, maxRegression float64
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-gate recorded training runs under different thresholds",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if last < 1 {
				return usagef("--last must be at least 1")
			}
			if fixturePath != "" && exportPath != "" {
				return usagef("--fixture and --export are mutually exclusive")
			}
			override := func(cfg gate.GateConfig) gate.GateConfig {
				if cmd.Flags().Changed("min-accuracy") {
					cfg.MinAccuracy = minAccuracy
				}
				if cmd.Flags().Changed("max-regression") {
					cfg.MaxRegression = maxRegression
				}
				return cfg
			}
			out := cmd.OutOrStdout()

			if fixturePath != "" {
				f, err := replay.LoadFixture(fixturePath)
				if err != nil {
					return err
				}
				results := replay.Replay(f.ToRuns(), override(f.GateConfig.ToGateConfig()))
				for _, m := range f.Mismatches(results) {
					fmt.Fprintf(cmd.ErrOrStderr(), "fixture mismatch: %s\n", m)
				}
				return report.WriteReplay(out, results)
			}

			return withApp(flags, func(a *app) error {
				entries, err := runlog.ListRuns(a.registry.DB(), last)
				if err != nil {
					return err
				}
				runs, err := replay.RunsFromEntries(entries)
				if err != nil {
					return err
				}
				current := gate.GateConfig{
					MinAccuracy:   a.cfg.Gate.MinAccuracy,
					MaxRegression: a.cfg.Gate.MaxRegression,
				}
				if exportPath != "" {
					desc := fmt.Sprintf("%d runs from %s", len(runs), a.cfg.Registry.DBPath)
					if err := replay.NewFixture(desc, current, runs).Save(exportPath); err != nil {
						return err
					}
					fmt.Fprintf(out, "wrote %d runs to %s\n", len(runs), exportPath)
					return nil
				}
				return report.WriteReplay(out, replay.Replay(runs, override(current)))
			})
		},
	}
	cmd.Flags().IntVar(&last, "last", 1000, "replay the N most recent runs")
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "replay a fixture file instead of the registry")
	cmd.Flags().StringVar(&exportPath, "export", "", "write recorded runs to a fixture file")
	cmd.Flags().Float64Var(&minAccuracy, "min-accuracy", 0, "override gate.min_accuracy")
	cmd.Flags().Float64Var(&maxRegression, "max-regression", 0, "override gate.max_regression")
	return cmd
}

// #endregion replay
