// Package alias maps the detector names recorded by the shift crew to
// canonical DUT names.
package alias

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/diamondpsi/psiweb/pkg/storage"
	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

const (
	// None is the name recorded for an empty slot.
	None = "none"

	// UnknownPrefix marks a name without alias entry.
	UnknownPrefix = "?"

	// iniSection holds the raw -> canonical table in INI files.
	iniSection = "ALIASES"
)

// Resolver translates raw detector names. It is safe for concurrent use.
type Resolver struct {
	log       logrus.FieldLogger
	aliases   map[string]string
	canonical map[string]string

	mu     sync.Mutex
	warned map[string]struct{}
}

// New creates a Resolver from a raw -> canonical table. Raw names are
// matched case-insensitively.
func New(log logrus.FieldLogger, table map[string]string) *Resolver {
	r := &Resolver{
		log:       log.WithField("component", "alias"),
		aliases:   make(map[string]string, len(table)),
		canonical: make(map[string]string, len(table)),
		warned:    make(map[string]struct{}, 8),
	}

	for raw, name := range table {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		r.aliases[strings.ToLower(strings.TrimSpace(raw))] = name
		r.canonical[strings.ToLower(name)] = name
	}

	return r
}

// Load reads the alias table through reader. YAML files (.yaml, .yml)
// carry an "aliases" mapping, anything else is parsed as INI with an
// [ALIASES] section.
func Load(
	ctx context.Context,
	reader storage.Reader,
	name string,
	log logrus.FieldLogger,
) (*Resolver, error) {
	data, err := reader.ReadFile(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reading alias table: %w", err)
	}

	if data == nil {
		return nil, fmt.Errorf("alias table %q not found in %s", name, reader.Location())
	}

	var table map[string]string

	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		table, err = parseYAML(data)
	default:
		table, err = parseINI(data)
	}

	if err != nil {
		return nil, fmt.Errorf("parsing alias table %q: %w", name, err)
	}

	r := New(log, table)

	r.log.WithFields(logrus.Fields{
		"aliases": len(r.aliases),
		"duts":    len(r.canonical),
	}).Debug("Loaded alias table")

	return r, nil
}

func parseINI(data []byte) (map[string]string, error) {
	f, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, data)
	if err != nil {
		return nil, err
	}

	sec, err := f.GetSection(iniSection)
	if err != nil {
		return nil, fmt.Errorf("missing [%s] section", iniSection)
	}

	table := make(map[string]string, len(sec.Keys()))
	for _, key := range sec.Keys() {
		table[key.Name()] = key.String()
	}

	return table, nil
}

func parseYAML(data []byte) (map[string]string, error) {
	var doc struct {
		Aliases map[string]string `yaml:"aliases"`
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	if doc.Aliases == nil {
		return nil, fmt.Errorf("missing aliases mapping")
	}

	return doc.Aliases, nil
}

// Translate returns the canonical name of raw. Names that already are
// canonical map to themselves. The empty slot marker "none" yields
// ("none", false) silently; any other unknown name yields "?"+raw and a
// warning, logged once per name.
func (r *Resolver) Translate(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))

	if name, ok := r.aliases[key]; ok {
		return name, true
	}

	if name, ok := r.canonical[key]; ok {
		return name, true
	}

	if key == None {
		return None, false
	}

	if IsUnknown(raw) {
		return raw, false
	}

	r.warnOnce(raw)

	return UnknownPrefix + raw, false
}

// Canonical returns the sorted set of canonical names.
func (r *Resolver) Canonical() []string {
	names := make([]string, 0, len(r.canonical))
	for _, name := range r.canonical {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Unknown returns the sorted raw names that failed to translate so far.
func (r *Resolver) Unknown() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.warned))
	for name := range r.warned {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (r *Resolver) warnOnce(raw string) {
	r.mu.Lock()
	_, seen := r.warned[raw]
	r.warned[raw] = struct{}{}
	r.mu.Unlock()

	if !seen {
		r.log.WithField("name", raw).Warn("Unknown diamond alias")
	}
}

// IsUnknown reports whether name is the result of a failed translation.
func IsUnknown(name string) bool {
	return strings.HasPrefix(name, UnknownPrefix)
}

// IsNone reports whether name marks an empty slot.
func IsNone(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), None)
}
