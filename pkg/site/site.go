package site

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/diamondpsi/psiweb/pkg/fsutil"
	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
)

// Site holds the derived tables of one build.
type Site struct {
	log logrus.FieldLogger

	Index     *Index
	Campaigns []*CampaignPlans
	DUTPlans  []*DUTPlans
	RunLists  []*RunList
}

// File is one output file relative to the site directory.
type File struct {
	Path string
	Data []byte
}

// Files renders the site. The order and content only depend on the
// derived tables.
func (s *Site) Files() ([]File, error) {
	files := make([]File, 0, 1+2*len(s.Campaigns)+2*len(s.DUTPlans)+len(s.RunLists))

	add := func(p string, v any) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding %s: %w", p, err)
		}

		files = append(files, File{Path: p, Data: append(data, '\n')})

		return nil
	}

	if err := add("index.json", s.Index); err != nil {
		return nil, err
	}

	for _, cp := range s.Campaigns {
		dir := path.Join("campaigns", cp.Campaign)

		if err := add(path.Join(dir, "runplans.json"), cp); err != nil {
			return nil, err
		}

		files = append(files, File{
			Path: path.Join(dir, "runplans.md"),
			Data: []byte(CampaignMarkdown(cp)),
		})
	}

	for _, dp := range s.DUTPlans {
		dir := path.Join("duts", dirName(dp.DUT), dp.Campaign)

		if err := add(path.Join(dir, "runplans.json"), dp); err != nil {
			return nil, err
		}

		files = append(files, File{
			Path: path.Join(dir, "runplans.md"),
			Data: []byte(DUTMarkdown(dp)),
		})
	}

	seen := make(map[string]struct{}, len(s.RunLists))

	for _, rl := range s.RunLists {
		p := path.Join(rl.Dir, "runs.json")
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("run lists of %s plan %s share %s", rl.DUT, rl.Plan, p)
		}

		seen[p] = struct{}{}

		if err := add(p, rl); err != nil {
			return nil, err
		}
	}

	return files, nil
}

// Write writes the site below dir and returns the number of bytes
// written. owner is an optional "UID:GID".
func (s *Site) Write(dir, owner string) (int64, error) {
	ownerCfg, err := fsutil.ParseOwner(owner)
	if err != nil {
		return 0, fmt.Errorf("parsing owner: %w", err)
	}

	files, err := s.Files()
	if err != nil {
		return 0, err
	}

	var total int64

	for _, f := range files {
		p := filepath.Join(dir, filepath.FromSlash(f.Path))

		if err := fsutil.MkdirAll(filepath.Dir(p), 0o755, ownerCfg); err != nil {
			return total, fmt.Errorf("creating directory for %s: %w", f.Path, err)
		}

		if err := fsutil.WriteFile(p, f.Data, 0o644, ownerCfg); err != nil {
			return total, fmt.Errorf("writing %s: %w", f.Path, err)
		}

		total += int64(len(f.Data))
	}

	if s.log != nil {
		s.log.WithFields(logrus.Fields{
			"dir":   dir,
			"files": len(files),
			"size":  units.HumanSize(float64(total)),
		}).Info("Wrote site")
	}

	return total, nil
}

// Clean removes a previous site directory.
func Clean(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing %s: %w", dir, err)
	}

	return nil
}
