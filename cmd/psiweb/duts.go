package main

import (
	"strings"

	"github.com/diamondpsi/psiweb/pkg/metrics"
	"github.com/spf13/cobra"
)

var dutsCampaign string

var dutsCmd = &cobra.Command{
	Use:   "duts",
	Short: "Print the DUTs measured in the run plans",
	RunE:  runDUTs,
}

func init() {
	rootCmd.AddCommand(dutsCmd)
	dutsCmd.Flags().StringVar(&dutsCampaign, "campaign", "",
		"restrict to one campaign (YYYYMM)")
}

func runDUTs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	in, err := loadInputs(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	names, err := in.resolver.AllDUTs(dutsCampaign)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(names))

	for _, name := range names {
		d := in.duts.Lookup(name)

		campaigns, err := in.resolver.CampaignsForDUT(name)
		if err != nil {
			return err
		}

		irradiations := make([]string, 0, 4)
		for _, irr := range d.IrradiationList() {
			irradiations = append(irradiations, metrics.IrradiationString(irr))
		}

		rows = append(rows, []string{
			name,
			d.Manufacturer,
			strings.Join(d.TypeList(campaigns), ", "),
			strings.Join(irradiations, ", "),
			strings.Join(campaigns, ", "),
		})
	}

	printTable(cmd.OutOrStdout(),
		[]string{"DUT", "Manufacturer", "Type", "Irradiation", "Campaigns"},
		rows,
	)

	return nil
}
