package device

import (
	"time"

	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

func rec(label string, instance int, desc string, value any) model.DiagnosticRecord {
	return model.DiagnosticRecord{
		Kind:        model.KindFromLabel(label),
		Label:       label,
		Instance:    instance,
		Description: desc,
		RawValue:    value,
	}
}

func batch(records ...model.DiagnosticRecord) *model.DiagnosticsBatch {
	return &model.DiagnosticsBatch{Records: records, CapturedAt: time.Unix(1700000000, 0)}
}

func identity(kind model.DeviceKind, instance int, serial string) model.DeviceIdentity {
	return model.DeviceIdentity{
		Kind:       kind,
		Instance:   instance,
		Serial:     serial,
		Identifier: serial,
		Name:       string(kind),
	}
}

func overview(devices ...map[string]any) model.Document {
	list := make([]any, 0, len(devices))
	for _, d := range devices {
		list = append(list, d)
	}
	return model.Document{"success": true, "records": map[string]any{"devices": list}}
}
