package device

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

// Sources are the documents available to one poll cycle. Any of them may be nil.
type Sources struct {
	Diagnostics *model.DiagnosticsBatch
	Overview    model.Document
	Device      model.Document
}

// Pass carries one resolution attempt through a chain. Strategies may refine
// the identity, for example when a document reveals the device instance.
type Pass struct {
	Identity model.DeviceIdentity
	Sources  Sources
	Prior    State

	skipped []FieldConversionError
}

func (p *Pass) skip(e FieldConversionError) {
	p.skipped = append(p.skipped, e)
}

type Strategy interface {
	Name() string
	Resolve(p *Pass) (Update, error)
}

type strategy struct {
	name    string
	resolve func(p *Pass) (Update, error)
}

func (s strategy) Name() string {
	return s.name
}

func (s strategy) Resolve(p *Pass) (Update, error) {
	return s.resolve(p)
}

// Outcome reports what a chain did. Strategy is empty when every strategy failed.
type Outcome struct {
	Identity model.DeviceIdentity
	Strategy string
	Failures []ResolutionFailure
	Skipped  []FieldConversionError
}

func (o Outcome) Resolved() bool {
	return o.Strategy != ""
}

// Err is nil when a strategy committed.
func (o Outcome) Err() error {
	if o.Resolved() {
		return nil
	}
	errs := []error{ErrAllStrategiesFailed}
	for i := range o.Failures {
		errs = append(errs, &o.Failures[i])
	}
	return errors.Join(errs...)
}

// Resolver runs a device kind's strategies in order and commits to the first
// that produces a non-empty update.
type Resolver struct {
	kind       model.DeviceKind
	strategies []Strategy
	logger     *zap.Logger
}

func NewResolver(kind model.DeviceKind, strategies ...Strategy) *Resolver {
	return &Resolver{
		kind:       kind,
		strategies: strategies,
		logger:     zap.L(),
	}
}

// For returns the resolver for a device kind.
func For(kind model.DeviceKind) (*Resolver, error) {
	switch kind {
	case model.KindBatteryMonitor:
		return NewBatteryMonitor(), nil
	case model.KindSolarCharger:
		return NewSolarCharger(), nil
	case model.KindInverter:
		return NewInverter(), nil
	case model.KindGateway:
		return NewGateway(), nil
	}
	return nil, fmt.Errorf("no resolver for device kind %q", kind)
}

func (r *Resolver) Kind() model.DeviceKind {
	return r.kind
}

func (r *Resolver) Strategies() []string {
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Update resolves id against src. When every strategy fails prior is returned
// untouched and the failures are reported in the outcome.
func (r *Resolver) Update(id model.DeviceIdentity, src Sources, prior State) (State, Outcome) {
	if prior.Kind() != r.kind {
		prior = NewState(r.kind).Merge(Update(prior.Values()))
	}
	p := &Pass{Identity: id, Sources: src, Prior: prior}
	out := Outcome{Identity: id}
	log := r.logger.With(zap.String("device", id.Address()), zap.String("kind", r.kind.String()))

	for _, s := range r.strategies {
		u, err := s.Resolve(p)
		out.Identity = p.Identity
		out.Skipped = p.skipped
		if err == nil && len(u) == 0 {
			err = failure(NoUsableFields)
		}
		if err != nil {
			var rf *ResolutionFailure
			if !errors.As(err, &rf) {
				rf = &ResolutionFailure{Reason: MalformedPayload, Err: err}
			}
			rf.Strategy = s.Name()
			out.Failures = append(out.Failures, *rf)
			log.Debug("strategy produced no update", zap.String("strategy", s.Name()), zap.String("reason", string(rf.Reason)))
			continue
		}
		out.Strategy = s.Name()
		log.Debug("device resolved", zap.String("strategy", s.Name()), zap.Int("fields", len(u)))
		return prior.Merge(u), out
	}

	log.Warn("no strategy resolved device", zap.Int("strategies", len(r.strategies)))
	return prior, out
}
