package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report inconsistent run plans and unknown detector names",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	in, err := loadInputs(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	issues := in.set.Check()

	unknown, err := in.resolver.UnknownAliases("")
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(issues)+len(unknown))

	for _, issue := range issues {
		run := ""
		if issue.Run != 0 {
			run = strconv.Itoa(issue.Run)
		}

		rows = append(rows, []string{issue.Campaign, issue.Plan, run, issue.Message})
	}

	for _, name := range unknown {
		rows = append(rows, []string{"", "", "", fmt.Sprintf("unknown diamond alias %q", name)})
	}

	if len(rows) == 0 {
		log.Info("No issues found")

		return nil
	}

	printTable(cmd.OutOrStdout(), []string{"Campaign", "Plan", "Run", "Issue"}, rows)

	return fmt.Errorf("found %d issues", len(rows))
}
