package fitres

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/diamondpsi/psiweb/pkg/config"
	"github.com/diamondpsi/psiweb/pkg/metrics"
	"github.com/diamondpsi/psiweb/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Kind selects one of the per run fits.
type Kind string

const (
	// KindPH is the signal pulse height fit; parameter 0 is the mean.
	KindPH Kind = "ph"
	// KindPedestal is the pedestal fit; parameter 1 is the pedestal and
	// parameter 2 the noise.
	KindPedestal Kind = "pedestal"
	// KindPulser is the pulser fit; parameter 1 is the pulser height.
	KindPulser Kind = "pulser"
	// KindPulserPedestal is the pedestal fit of pulser events.
	KindPulserPedestal Kind = "pulser_pedestal"
)

// Parameter indices used by the site tables.
const (
	ParSignal   = 0
	ParPedestal = 1
	ParPulser   = 1
	ParNoise    = 2
)

// Loader reads fit files through a storage.Reader.
type Loader struct {
	log       logrus.FieldLogger
	reader    storage.Reader
	dir       string
	templates map[Kind]string
}

// NewLoader creates a Loader for fit files below dir.
func NewLoader(
	log logrus.FieldLogger,
	reader storage.Reader,
	dir string,
	templates config.FitTemplates,
) *Loader {
	return &Loader{
		log:    log.WithField("component", "fitres"),
		reader: reader,
		dir:    dir,
		templates: map[Kind]string{
			KindPH:             templates.PH,
			KindPedestal:       templates.Pedestal,
			KindPulser:         templates.Pulser,
			KindPulserPedestal: templates.PulserPedestal,
		},
	}
}

// Path returns the fit file path of kind for a run and channel.
func (l *Loader) Path(kind Kind, tc string, run, ch int) (string, error) {
	tmpl, ok := l.templates[kind]
	if !ok || tmpl == "" {
		return "", fmt.Errorf("no file template for fit kind %q", kind)
	}

	name := strings.NewReplacer(
		"{tc}", tc,
		"{run}", strconv.Itoa(run),
		"{ch}", strconv.Itoa(ch),
	).Replace(tmpl)

	return path.Join(l.dir, name), nil
}

// Load reads a fit. A missing file is logged and yields Empty().
func (l *Loader) Load(ctx context.Context, kind Kind, tc string, run, ch int) (*Result, error) {
	p, err := l.Path(kind, tc, run, ch)
	if err != nil {
		return nil, err
	}

	data, err := l.reader.ReadFile(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("reading fit %s: %w", p, err)
	}

	if data == nil {
		l.log.WithField("path", p).Warn("Did not find fit file")

		return Empty(), nil
	}

	res, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}

	return res, nil
}

// Mean returns the weighted mean of parameter par over runs. The result
// is nil if any run lacks the fit or the parameter.
func (l *Loader) Mean(
	ctx context.Context,
	kind Kind,
	tc string,
	runs []int,
	ch, par int,
) (*metrics.Value, error) {
	if len(runs) == 0 {
		return nil, nil
	}

	values := make([]metrics.Value, 0, len(runs))

	for _, run := range runs {
		res, err := l.Load(ctx, kind, tc, run, ch)
		if err != nil {
			return nil, err
		}

		v, ok := res.Value(par)
		if !ok {
			return nil, nil
		}

		values = append(values, v)
	}

	mean, err := metrics.MeanSigma(values)
	if err != nil {
		return nil, fmt.Errorf("averaging %s fits: %w", kind, err)
	}

	return &mean, nil
}
