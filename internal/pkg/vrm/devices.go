package vrm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

// DeviceDocument builds a device data document from data already fetched.
func DeviceDocument(overview model.Document, batch *model.DiagnosticsBatch, deviceID string) (model.Document, error) {
	if dev, ok := overview.FindDevice(deviceID); ok {
		return model.Document{
			"records": []any{map[string]any(dev)},
			"success": true,
			"source":  model.SourceSystemOverview,
		}, nil
	}
	if batch != nil {
		records := make([]any, 0, batch.Len())
		for _, r := range batch.Records {
			entry := map[string]any{
				"Device":      r.Label,
				"description": r.Description,
				"rawValue":    r.RawValue,
			}
			if r.Instance != model.NoInstance {
				entry["instance"] = float64(r.Instance)
			}
			records = append(records, entry)
		}
		return model.Document{
			"records": records,
			"success": true,
			"source":  model.SourceDiagnostics,
		}, nil
	}
	return nil, fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
}

// KindOf classifies an overview device entry by product code and names.
func KindOf(dev model.Document) model.DeviceKind {
	code := strings.ToLower(dev.String("productCode"))
	product := strings.ToLower(dev.String("productName"))
	name := strings.ToLower(dev.String("name"))
	either := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(product, s) || strings.Contains(name, s) {
				return true
			}
		}
		return false
	}
	switch {
	case code == "c012" || strings.Contains(product, "cerbo") || either("gateway"):
		return model.KindGateway
	case code == "c038" || either("smartshunt", "battery monitor"):
		return model.KindBatteryMonitor
	case code == "a055" || either("mppt", "solar charger"):
		return model.KindSolarCharger
	case strings.Contains(name, "inverter") ||
		strings.Contains(product, "multiplus") ||
		strings.Contains(product, "quattro") ||
		strings.Contains(product, "phoenix"):
		return model.KindInverter
	}
	return model.KindUnknown
}

// Identities lists the recognised devices of a system overview.
func Identities(installationID int64, overview model.Document) []model.DeviceIdentity {
	var ids []model.DeviceIdentity
	for _, dev := range overview.OverviewDevices() {
		kind := KindOf(dev)
		if kind == model.KindUnknown {
			zap.L().Debug("skipping unrecognised device",
				zap.String("product", dev.String("productName")),
				zap.String("code", dev.String("productCode")))
			continue
		}
		serial := dev.String("machineSerialNumber")
		identifier := serial
		if identifier == "" {
			identifier = fmt.Sprintf("%s_%d", kind, installationID)
		}
		productName := dev.String("productName")
		if productName == "" {
			productName = "Unknown Device"
		}
		ids = append(ids, model.DeviceIdentity{
			Kind:        kind,
			Instance:    dev.Instance(),
			Serial:      serial,
			Identifier:  identifier,
			Name:        dev.String("name"),
			ProductName: productName,
			ProductCode: strings.ToLower(dev.String("productCode")),
		})
	}
	return ids
}

// Discover resolves the account's first installation and its devices.
func (c *client) Discover(ctx context.Context) (int64, []model.DeviceIdentity, error) {
	userID, err := c.Me(ctx)
	if err != nil {
		return 0, nil, err
	}
	installations, err := c.Installations(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	if len(installations) == 0 {
		return 0, nil, fmt.Errorf("%w: no installations for user %d", ErrNotFound, userID)
	}
	installationID := installations[0].IDSite
	c.logger.Info("using installation",
		zap.Int64("installation", installationID),
		zap.String("name", installations[0].Name))

	overview, err := c.SystemOverview(ctx, installationID)
	if err != nil {
		return 0, nil, err
	}
	ids := Identities(installationID, overview)
	c.logger.Info("discovered devices", zap.Int("count", len(ids)))
	return installationID, ids, nil
}
