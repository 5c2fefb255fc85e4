package qc

import "github.com/couchcryptid/station-qc/internal/domain"

// Toolbox binds the stateless checks to a validated threshold set. The bool
// results report whether the check is configured for the variable.
type Toolbox struct {
	th Thresholds
}

// NewToolbox validates th and returns a Toolbox over it.
func NewToolbox(th Thresholds) (*Toolbox, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &Toolbox{th: th}, nil
}

// Thresholds returns the active thresholds.
func (t *Toolbox) Thresholds() Thresholds { return t.th }

func (t *Toolbox) ExtremeValue(v domain.Variable, value float64, class string) (domain.QcVerdict, bool) {
	r, ok := t.th.RangeFor(v, class)
	if !ok {
		return domain.QcVerdict{}, false
	}
	return ExtremeValue(v, value, r), true
}

func (t *Toolbox) TemporalStep(v domain.Variable, current domain.Sample, history []domain.Sample) (domain.QcVerdict, bool) {
	limit, ok := t.th.Steps[v]
	if !ok {
		return domain.QcVerdict{}, false
	}
	return TemporalStep(v, current, history, limit), true
}

func (t *Toolbox) SpatialConsistency(v domain.Variable, value float64, neighbors []domain.Neighbor) (domain.QcVerdict, bool) {
	limit, ok := t.th.Spatial[v]
	if !ok {
		return domain.QcVerdict{}, false
	}
	return SpatialConsistency(v, value, neighbors, limit), true
}

func (t *Toolbox) RadarSNR(snr float64) domain.QcVerdict {
	return RadarSNR(snr, t.th.Radar)
}

func (t *Toolbox) ReflectivityBias(bias float64) domain.QcVerdict {
	return ReflectivityBias(bias, t.th.Radar)
}

func (t *Toolbox) CrossVariable(r Readings) []domain.QcVerdict {
	return CrossVariable(r, t.th.Consistency)
}

// HasStepLimit reports whether v keeps history for the temporal step check.
func (t *Toolbox) HasStepLimit(v domain.Variable) bool {
	_, ok := t.th.Steps[v]
	return ok
}
