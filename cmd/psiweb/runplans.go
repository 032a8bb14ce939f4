package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/diamondpsi/psiweb/pkg/campaign"
	"github.com/diamondpsi/psiweb/pkg/metrics"
	"github.com/diamondpsi/psiweb/pkg/resolver"
	"github.com/spf13/cobra"
)

var (
	runPlansDUT      string
	runPlansCampaign string
	runPlansByBias   bool
)

var runPlansCmd = &cobra.Command{
	Use:   "runplans",
	Short: "Print the run plans of a DUT",
	RunE:  runRunPlans,
}

func init() {
	rootCmd.AddCommand(runPlansCmd)
	runPlansCmd.Flags().StringVar(&runPlansDUT, "dut", "",
		"DUT name (raw alias or canonical)")
	runPlansCmd.Flags().StringVar(&runPlansCampaign, "campaign", "",
		"restrict to one campaign (YYYYMM)")
	runPlansCmd.Flags().BoolVar(&runPlansByBias, "by-bias", false,
		"group the run plans by bias voltage")

	_ = runPlansCmd.MarkFlagRequired("dut")
}

func runRunPlans(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	in, err := loadInputs(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	if runPlansByBias {
		return printPlansByBias(cmd, in.resolver)
	}

	found, err := in.resolver.FindRunPlansForDUT(runPlansDUT, runPlansCampaign)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, 16)

	for _, tc := range sortedKeys(found) {
		for _, m := range found[tc] {
			s, err := in.resolver.Summary(tc, m.Tag, m.Channel)
			if err != nil {
				return err
			}

			duration := metrics.Unavailable
			if s.DurationKnown {
				duration = metrics.DurationString(s.Duration)
			}

			rows = append(rows, []string{
				tc,
				m.Tag,
				strconv.Itoa(m.Channel),
				s.RunsString,
				s.BiasString,
				metrics.EventsString(s.Events),
				duration,
			})
		}
	}

	if len(rows) == 0 {
		return fmt.Errorf("no run plans found for %q", runPlansDUT)
	}

	printTable(cmd.OutOrStdout(),
		[]string{"Campaign", "Plan", "Ch", "Runs", "Bias", "Events", "Duration"},
		rows,
	)

	return nil
}

func printPlansByBias(cmd *cobra.Command, res *resolver.Resolver) error {
	found, err := res.FindRunPlansByBias(runPlansDUT, runPlansCampaign)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, 16)

	for _, tc := range sortedKeys(found) {
		biases := make([]float64, 0, len(found[tc]))
		for bias := range found[tc] {
			biases = append(biases, bias)
		}

		sort.Float64s(biases)

		for _, bias := range biases {
			plans := found[tc][bias]

			tags := sortedKeys(plans)
			campaign.SortTags(tags)

			entries := make([]string, 0, len(plans))
			for _, tag := range tags {
				entries = append(entries, fmt.Sprintf("%s (ch%d)", tag, plans[tag]))
			}

			rows = append(rows, []string{
				tc,
				metrics.BiasString([]float64{bias}),
				strings.Join(entries, ", "),
			})
		}
	}

	if len(rows) == 0 {
		return fmt.Errorf("no run plans found for %q", runPlansDUT)
	}

	printTable(cmd.OutOrStdout(), []string{"Campaign", "Bias", "Plans"}, rows)

	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
