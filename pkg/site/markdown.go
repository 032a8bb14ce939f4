package site

import (
	"fmt"
	"strings"
)

// CampaignMarkdown renders the run plan table of a campaign.
func CampaignMarkdown(cp *CampaignPlans) string {
	var sb strings.Builder

	sb.Grow(2048)

	fmt.Fprintf(&sb, "# Run Plans for the Beam Test in %s\n\n", cp.Label)

	maxDUTs := 0
	for _, p := range cp.Plans {
		maxDUTs = max(maxDUTs, len(p.DUTs))
	}

	sb.WriteString("| Nr. | Digitiser | Amplifier | DUT Type | Sub Plan | Type | Runs | Total Events |")

	for i := 1; i <= maxDUTs; i++ {
		fmt.Fprintf(&sb, " DUT %d | Bias [V] |", i)
	}

	sb.WriteString("\n|" + strings.Repeat("---|", 8+2*maxDUTs) + "\n")

	for _, p := range cp.Plans {
		main, digi, amp, typ := "", "", "", ""
		if p.Main {
			main, digi, amp, typ = p.Tag, p.Digitiser, p.Amplifier, p.DUTType
		}

		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s | %s | %s |",
			main, digi, amp, typ, p.SubPlan, p.Type, p.Runs, p.Events)

		for i := 0; i < maxDUTs; i++ {
			if i >= len(p.DUTs) {
				sb.WriteString("  |  |")

				continue
			}

			d := p.DUTs[i]
			fmt.Fprintf(&sb, " %s | %s |", cell(d.Name), d.Bias)
		}

		sb.WriteByte('\n')
	}

	sb.WriteByte('\n')

	return sb.String()
}

// DUTMarkdown renders the run plan table of a DUT in one campaign.
func DUTMarkdown(dp *DUTPlans) string {
	var sb strings.Builder

	sb.Grow(2048)

	fmt.Fprintf(&sb, "# Run Plans of %s in %s\n\n", dp.DUT, dp.Label)

	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(&sb, "| Type | %s |\n", dp.Type)

	if dp.Pulser != "" {
		fmt.Fprintf(&sb, "| Pulser | %s |\n", dp.Pulser)
	}

	fmt.Fprintf(&sb, "| Irradiation | %s |\n\n", dp.Irradiation)

	sb.WriteString("| Nr. | Pos. | Digitiser | Amp | DUT Att. | Pulser Att. | HV [V] | Runs " +
		"| Flux [kHz/cm²] | Signal | Pulser | Signal corr. | Pulser corr. | Noise " +
		"| Events | Start | Duration |\n")
	sb.WriteString("|" + strings.Repeat("---|", 17) + "\n")

	for _, r := range dp.Plans {
		fmt.Fprintf(&sb,
			"| %s | %s | %s | %s | %s | %s | %s | %s | %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			strings.TrimLeft(r.Tag, "0"), r.Position, r.Digitiser, r.Amplifier,
			r.Attenuator, r.PulserAttenuator, r.Bias, r.Runs, r.Flux,
			r.Signal, r.Pulser, r.CorrectedSignal, r.CorrectedPulser, r.Noise,
			r.Events, r.Start, r.Duration)
	}

	sb.WriteByte('\n')

	return sb.String()
}

// cell escapes table separators.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
