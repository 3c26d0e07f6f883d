package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/clearance-cli/internal/config"
	"github.com/sells-group/clearance-cli/internal/refdata"
	"github.com/sells-group/clearance-cli/internal/scorer"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load schemas and reference data and report what was found",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.OutOrStdout(), cfg)
	},
}

// checkReport summarizes the loaded catalogues.
type checkReport struct {
	Schemas         []string        `json:"schemas"`
	Refdata         refdata.Summary `json:"refdata"`
	ValidationRules []string        `json:"validation_rules"`
	Scoring         scorer.Config   `json:"scoring"`
}

func runCheck(w io.Writer, c *config.Config) error {
	env, err := initCore(c)
	if err != nil {
		return err
	}

	return writeJSON(w, checkReport{
		Schemas:         env.Schemas.Names(),
		Refdata:         env.Catalogue.Summarize(),
		ValidationRules: env.Validation.RuleIDs(),
		Scoring:         env.Scorer.Config(),
	})
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
