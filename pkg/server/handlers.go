package server

import (
	"encoding/json"
	"net/http"

	"github.com/diamondpsi/psiweb/pkg/campaign"
	"github.com/diamondpsi/psiweb/pkg/site"
	"github.com/go-chi/chi/v5"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// campaignEntry is one element of the campaign listing.
type campaignEntry struct {
	Campaign string `json:"campaign"`
	Label    string `json:"label"`
	Plans    int    `json:"plans"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListCampaigns returns the campaigns of the site, oldest first.
func (s *server) handleListCampaigns(w http.ResponseWriter, _ *http.Request) {
	campaigns := s.current().Campaigns

	resp := make([]campaignEntry, 0, len(campaigns))
	for _, cp := range campaigns {
		resp = append(resp, campaignEntry{
			Campaign: cp.Campaign,
			Label:    cp.Label,
			Plans:    len(cp.Plans),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCampaignPlans returns the run plan table of one campaign.
func (s *server) handleCampaignPlans(w http.ResponseWriter, r *http.Request) {
	tc := chi.URLParam(r, "tc")

	for _, cp := range s.current().Campaigns {
		if cp.Campaign == tc {
			writeJSON(w, http.StatusOK, cp)

			return
		}
	}

	writeJSON(w, http.StatusNotFound,
		errorResponse{campaign.ErrCampaignNotFound.Error()})
}

// handleListDUTs returns the diamond overview.
func (s *server) handleListDUTs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.current().Index)
}

// handleDUTPlans returns the run plan tables of a DUT, optionally
// restricted to the campaign given by the "campaign" query parameter.
func (s *server) handleDUTPlans(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tc := r.URL.Query().Get("campaign")

	if !s.knownDUT(name) {
		writeJSON(w, http.StatusNotFound, errorResponse{"dut not found"})

		return
	}

	resp := make([]*site.DUTPlans, 0, 4)
	for _, dp := range s.current().DUTPlans {
		if dp.DUT != name || (tc != "" && dp.Campaign != tc) {
			continue
		}

		resp = append(resp, dp)
	}

	if tc != "" && len(resp) == 0 {
		writeJSON(w, http.StatusNotFound,
			errorResponse{campaign.ErrPlanNotFound.Error()})

		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) knownDUT(name string) bool {
	st := s.current()
	if st.Index == nil {
		return false
	}

	for _, d := range st.Index.DUTs {
		if d.Name == name {
			return true
		}
	}

	return false
}

// handleSiteFile serves a file of the site directory.
func (s *server) handleSiteFile(w http.ResponseWriter, r *http.Request) {
	filePath := chi.URLParam(r, "*")

	if err := s.files.ServeFile(w, r, filePath); err != nil {
		s.log.WithError(err).Debug("Site file not served")

		writeJSON(w, http.StatusNotFound, errorResponse{"not found"})
	}
}
