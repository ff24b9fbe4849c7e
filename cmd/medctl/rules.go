package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/medassistd/internal/triage"
)

// rulesCmd groups triage rule-catalog operations
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Triage rule-catalog operations",
}

// rulesValidateCmd validates a candidate rule catalog
var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a triage rule catalog",
	Long: `Validate a triage rule-catalog file without starting the daemon.

Runs the same parser and checks the daemon applies at startup, so a
catalog that validates here will load there. Prints a summary on
success and the first failure otherwise.

Examples:
  # Validate the shipped catalog
  medctl rules validate configs/rules.json

  # Validate a candidate before rollout
  medctl rules validate /tmp/rules-draft.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesValidate,
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd)
}

// runRulesValidate handles the rules validate command
func runRulesValidate(cmd *cobra.Command, args []string) error {
	catalog, err := triage.LoadCatalog(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Catalog OK: %s\n", args[0])
	fmt.Printf("  Symptom rules: %d\n", len(catalog.Symptoms))
	fmt.Printf("  Overrides:     %d\n", countOverrides(catalog))
	fmt.Printf("  Red flags:     %d\n", len(catalog.RedFlags))

	return nil
}

// countOverrides totals the conditional overrides across all symptom rules.
func countOverrides(catalog *triage.Catalog) int {
	n := 0
	for _, rule := range catalog.Symptoms {
		n += len(rule.Overrides)
	}
	return n
}
