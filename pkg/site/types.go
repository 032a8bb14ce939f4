package site

// Index is the diamond overview.
type Index struct {
	DUTs []*IndexDUT `json:"duts"`
}

// IndexDUT summarizes one DUT over all campaigns.
type IndexDUT struct {
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Thickness    string   `json:"thickness"`
	Size         string   `json:"size"`
	Types        []string `json:"types"`
	Irradiations []string `json:"irradiations"`
	Campaigns    []string `json:"campaigns"`
}

// CampaignPlans lists the run plans of one campaign.
type CampaignPlans struct {
	Campaign string             `json:"campaign"`
	Label    string             `json:"label"`
	Plans    []*CampaignPlanRow `json:"plans"`
}

// CampaignPlanRow is one run plan of a campaign table.
type CampaignPlanRow struct {
	Tag       string         `json:"tag"`
	Main      bool           `json:"main"`
	SubPlan   string         `json:"sub_plan"`
	Digitiser string         `json:"digitiser"`
	Amplifier string         `json:"amplifier"`
	DUTType   string         `json:"dut_type"`
	Type      string         `json:"type"`
	Runs      string         `json:"runs"`
	Events    string         `json:"events"`
	DUTs      []*CampaignDUT `json:"duts"`
}

// CampaignDUT is a DUT column of a campaign table row.
type CampaignDUT struct {
	Channel int    `json:"channel"`
	Name    string `json:"name"`
	Bias    string `json:"bias"`
	Dir     string `json:"dir,omitempty"`
}

// DUTPlans lists the run plans of one DUT in one campaign.
type DUTPlans struct {
	DUT         string        `json:"dut"`
	Campaign    string        `json:"campaign"`
	Label       string        `json:"label"`
	Type        string        `json:"type"`
	Pulser      string        `json:"pulser,omitempty"`
	Irradiation string        `json:"irradiation"`
	Plans       []*DUTPlanRow `json:"plans"`
}

// DUTPlanRow is one run plan of a DUT table.
type DUTPlanRow struct {
	Tag              string `json:"tag"`
	Channel          int    `json:"channel"`
	Position         string `json:"position"`
	Digitiser        string `json:"digitiser"`
	Amplifier        string `json:"amplifier"`
	Attenuator       string `json:"attenuator"`
	PulserAttenuator string `json:"pulser_attenuator"`
	Bias             string `json:"bias"`
	Runs             string `json:"runs"`
	Flux             string `json:"flux"`
	Signal           string `json:"signal"`
	Pulser           string `json:"pulser"`
	CorrectedSignal  string `json:"corrected_signal"`
	CorrectedPulser  string `json:"corrected_pulser"`
	Noise            string `json:"noise"`
	Events           string `json:"events"`
	Start            string `json:"start"`
	Duration         string `json:"duration"`
	Dir              string `json:"dir"`
}

// RunList lists the runs of one DUT in one run plan.
type RunList struct {
	DUT      string    `json:"dut"`
	Campaign string    `json:"campaign"`
	Plan     string    `json:"plan"`
	Channel  int       `json:"channel"`
	Dir      string    `json:"-"`
	Runs     []*RunRow `json:"runs"`
}

// RunRow is a single run of a run list.
type RunRow struct {
	Run         int    `json:"run"`
	Type        string `json:"type"`
	Bias        string `json:"bias"`
	Flux        string `json:"flux"`
	PulseHeight string `json:"pulse_height"`
	Pulser      string `json:"pulser"`
	Noise       string `json:"noise"`
	Pedestal    string `json:"pedestal"`
	Events      string `json:"events"`
	Start       string `json:"start"`
	Duration    string `json:"duration"`
	Comment     string `json:"comment"`
}
