package campaign

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ID is a parsed campaign identifier such as "201608" or "201608-2".
type ID struct {
	Month  time.Time
	Suffix int
}

// ParseID parses a campaign identifier "YYYYMM" with an optional "-N"
// suffix.
func ParseID(tc string) (ID, error) {
	base, suffix, hasSuffix := strings.Cut(tc, "-")

	month, err := time.Parse("200601", base)
	if err != nil {
		return ID{}, fmt.Errorf("invalid campaign id %q", tc)
	}

	id := ID{Month: month}

	if hasSuffix {
		n, err := strconv.Atoi(suffix)
		if err != nil || n < 1 {
			return ID{}, fmt.Errorf("invalid campaign id suffix %q", tc)
		}

		id.Suffix = n
	}

	return id, nil
}

// String returns the canonical identifier.
func (id ID) String() string {
	s := id.Month.Format("200601")
	if id.Suffix > 0 {
		s += "-" + strconv.Itoa(id.Suffix)
	}

	return s
}

// Label returns "Aug16" (short) or "August 2016", keeping the suffix.
func (id ID) Label(short bool) string {
	layout := "January 2006"
	if short {
		layout = "Jan06"
	}

	s := id.Month.Format(layout)
	if id.Suffix > 0 {
		s += "-" + strconv.Itoa(id.Suffix)
	}

	return s
}

// Year returns the calendar year of the campaign.
func (id ID) Year() int {
	return id.Month.Year()
}

// Label formats tc for display and falls back to tc for malformed ids.
func Label(tc string, short bool) string {
	id, err := ParseID(tc)
	if err != nil {
		return tc
	}

	return id.Label(short)
}

// Before reports whether campaign tc started before campaign ref. Only
// the YYYYMM part is compared.
func Before(tc, ref string) bool {
	return baseID(tc) < baseID(ref)
}

// Years returns the distinct sorted years of the given campaigns.
func Years(tcs []string) []int {
	seen := make(map[int]struct{}, len(tcs))
	years := make([]int, 0, len(tcs))

	for _, tc := range tcs {
		id, err := ParseID(tc)
		if err != nil {
			continue
		}

		if _, ok := seen[id.Year()]; ok {
			continue
		}

		seen[id.Year()] = struct{}{}
		years = append(years, id.Year())
	}

	sort.Ints(years)

	return years
}

func baseID(tc string) string {
	base, _, _ := strings.Cut(tc, "-")

	return base
}
