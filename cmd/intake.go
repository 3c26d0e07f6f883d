package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/clearance-cli/internal/config"
	"github.com/sells-group/clearance-cli/internal/model"
)

var intakeCollected string

var intakeCmd = &cobra.Command{
	Use:   "intake <message>",
	Short: "Route a citizen message to a customs procedure",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntake(cmd.Context(), cmd.OutOrStdout(), cfg, strings.Join(args, " "), intakeCollected)
	},
}

func runIntake(ctx context.Context, w io.Writer, c *config.Config, message, collectedPath string) error {
	collected, err := loadFields(collectedPath)
	if err != nil {
		return err
	}

	env, err := initChains(c)
	if err != nil {
		return err
	}
	defer env.flushMetrics(metricsFile)

	reply, err := env.Classifier.Classify(ctx, message, collected)
	if err != nil {
		return err
	}
	return writeJSON(w, reply)
}

// loadFields reads a JSON object of fields collected on earlier turns. An
// empty path returns nil.
func loadFields(path string) (model.Fields, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read collected fields %s", path)
	}
	var fields model.Fields
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, eris.Wrapf(err, "parse collected fields %s", path)
	}
	return fields, nil
}

func init() {
	intakeCmd.Flags().StringVar(&intakeCollected, "collected", "", "JSON file of fields collected on earlier turns")
	rootCmd.AddCommand(intakeCmd)
}
