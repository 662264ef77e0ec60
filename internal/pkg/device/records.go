package device

import (
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/vrm-integration/internal/pkg/classifier"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

// telemetry keeps records carrying the kind's exact Device label and instance.
func telemetry(batch *model.DiagnosticsBatch, kind model.DeviceKind, instance int) []model.DiagnosticRecord {
	return lo.Filter(batch.Records, func(r model.DiagnosticRecord, _ int) bool {
		return r.Label == kind.Label() && r.Instance == instance
	})
}

// sweep keeps every record sharing the instance that is not tagged as another kind.
func sweep(batch *model.DiagnosticsBatch, kind model.DeviceKind, instance int) []model.DiagnosticRecord {
	return lo.Filter(batch.Records, func(r model.DiagnosticRecord, _ int) bool {
		return r.Instance == instance && (r.Kind == kind || r.Kind == model.KindUnknown)
	})
}

// byKind keeps records of kind at instance, matching the Device column by kind rather than exact label.
func byKind(batch *model.DiagnosticsBatch, kind model.DeviceKind, instance int) []model.DiagnosticRecord {
	return lo.Filter(batch.Records, func(r model.DiagnosticRecord, _ int) bool {
		return r.Kind == kind && r.Instance == instance
	})
}

type selector func(batch *model.DiagnosticsBatch, kind model.DeviceKind, instance int) []model.DiagnosticRecord

// fromRecords builds a strategy that classifies the selected records with table.
// implicit is the instance used when the identity carries none, NoInstance when
// the kind cannot be resolved without one.
func fromRecords(name string, table classifier.Table, sel selector, implicit int, derive deriver) Strategy {
	return strategy{
		name: name,
		resolve: func(p *Pass) (Update, error) {
			if p.Sources.Diagnostics == nil {
				return nil, failure(SourceUnavailable)
			}
			instance := p.Identity.Instance
			if !p.Identity.HasInstance() {
				instance = implicit
			}
			if instance == model.NoInstance {
				return nil, failure(NoMatchingRecords)
			}
			records := sel(p.Sources.Diagnostics, table.Kind, instance)
			if len(records) == 0 {
				return nil, failure(NoMatchingRecords)
			}
			u := classify(p, table, records)
			if len(u) == 0 {
				return nil, failure(NoUsableFields)
			}
			return derive(p, u), nil
		},
	}
}

// classify accumulates classified records into an update. Later records win
// when two classify to the same field.
func classify(p *Pass, table classifier.Table, records []model.DiagnosticRecord) Update {
	u := Update{}
	for _, r := range records {
		field, ok := table.ClassifyRecord(r)
		if !ok {
			continue
		}
		set(p, u, table.Kind, field, r.RawValue)
	}
	return u
}

// set converts raw into the field's type, recording a skip when it cannot.
func set(p *Pass, u Update, kind model.DeviceKind, field model.Field, raw any) bool {
	spec, ok := model.Spec(kind, field)
	if !ok || raw == nil {
		return false
	}
	v, err := spec.Convert(raw)
	if err != nil {
		p.skip(FieldConversionError{Field: field, Raw: raw, Err: err})
		zap.L().Warn("dropping unconvertible field",
			zap.String("device", p.Identity.Address()),
			zap.String("field", field.String()),
			zap.Any("raw", raw),
			zap.Error(err))
		return false
	}
	u[field] = v
	return true
}

type docKey struct {
	field model.Field
	keys  []string
}

// keyMap assigns document keys to fields; for each field the first key present wins.
type keyMap []docKey

func keys(field model.Field, k ...string) docKey {
	return docKey{field: field, keys: k}
}

func (m keyMap) extract(p *Pass, kind model.DeviceKind, doc model.Document, u Update) {
	for _, entry := range m {
		if u.Has(entry.field) {
			continue
		}
		if raw, _, ok := doc.First(entry.keys...); ok {
			set(p, u, kind, entry.field, raw)
		}
	}
}

// fromDocument builds a strategy that reads fields from the document pick returns.
func fromDocument(name string, kind model.DeviceKind, pick func(p *Pass) (model.Document, error), m keyMap, derive deriver) Strategy {
	return strategy{
		name: name,
		resolve: func(p *Pass) (Update, error) {
			doc, err := pick(p)
			if err != nil {
				return nil, err
			}
			u := Update{}
			m.extract(p, kind, doc, u)
			if len(u) == 0 {
				return nil, failure(NoUsableFields)
			}
			return derive(p, u), nil
		},
	}
}

// overviewEntry picks the identity's entry from the system overview.
func overviewEntry(p *Pass) (model.Document, error) {
	if p.Sources.Overview == nil {
		return nil, failure(SourceUnavailable)
	}
	if !p.Sources.Overview.Records().Has("devices") {
		return nil, failure(MalformedPayload)
	}
	for _, id := range []string{p.Identity.Serial, p.Identity.Identifier} {
		if entry, ok := p.Sources.Overview.FindDevice(id); ok {
			return entry, nil
		}
	}
	return nil, failure(NoMatchingRecords)
}

// deviceDocument picks the primary record of the generic device data document.
func deviceDocument(p *Pass) (model.Document, error) {
	if p.Sources.Device == nil {
		return nil, failure(SourceUnavailable)
	}
	doc := p.Sources.Device.Primary()
	if doc == nil {
		return nil, failure(NoMatchingRecords)
	}
	return doc, nil
}

// deriver adds computed fields to a pass.
type deriver func(p *Pass, u Update) Update

// view reads the value a field will hold once u is merged over the prior state.
type view struct {
	u     Update
	prior State
}

func (v view) Float(f model.Field) float64 {
	if raw, ok := v.u[f]; ok {
		x, _ := model.ToFloat(raw)
		return x
	}
	return v.prior.Float(f)
}

func (v view) Int(f model.Field) int64 {
	if raw, ok := v.u[f]; ok {
		x, _ := model.ToInt(raw)
		return x
	}
	return v.prior.Int(f)
}
