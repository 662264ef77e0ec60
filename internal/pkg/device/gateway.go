package device

import (
	"strings"

	"github.com/samber/lo"

	"github.com/anicoll/vrm-integration/internal/pkg/classifier"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

const mebibyte = 1024 * 1024

// Services status bits.
const (
	ServiceMqttLocal     int64 = 0x01
	ServiceVncInternet   int64 = 0x02
	ServiceRemoteSupport int64 = 0x04
	ServiceSignalK       int64 = 0x08
)

// Relay state bits, set when the relay is closed.
const (
	Relay1Closed int64 = 0x01
	Relay2Closed int64 = 0x02
)

type serviceBit struct {
	field model.Field
	bit   int64
}

var serviceBits = []serviceBit{
	{model.FieldServiceMqttLocal, ServiceMqttLocal},
	{model.FieldServiceVncInternet, ServiceVncInternet},
	{model.FieldServiceRemoteSupport, ServiceRemoteSupport},
	{model.FieldServiceSignalK, ServiceSignalK},
}

var gatewayDocument = keyMap{
	keys(model.FieldFirmwareVersion, "firmware_version", "firmwareVersion", "version"),
}

// NewGateway resolves the GX gateway: the overview enriched with the gateway's
// own diagnostics, then the diagnostics alone, then the device document.
func NewGateway() *Resolver {
	return NewResolver(model.KindGateway,
		strategy{name: "overview", resolve: gatewayOverview},
		fromRecords("diagnostics", classifier.Gateway, byKind, 0, deriveGateway),
		strategy{name: "device_data", resolve: gatewayDeviceData},
	)
}

func gatewayOverview(p *Pass) (Update, error) {
	if p.Sources.Overview == nil {
		return nil, failure(SourceUnavailable)
	}
	records := p.Sources.Overview.Records()
	if !records.Has("devices") {
		return nil, failure(MalformedPayload)
	}
	devices := records.OverviewDevices()

	u := Update{}
	if p.Sources.Diagnostics != nil {
		u = classify(p, classifier.Gateway, byKind(p.Sources.Diagnostics, model.KindGateway, 0))
	}
	entry, ok := lo.Find(devices, func(d model.Document) bool {
		return isGatewayEntry(d, p.Identity)
	})
	if ok {
		gatewayEntry(p, entry, u)
	}
	u[model.FieldConnectedDevices] = int64(len(devices))
	return deriveGateway(p, u), nil
}

func gatewayDeviceData(p *Pass) (Update, error) {
	doc, err := deviceDocument(p)
	if err != nil {
		return nil, err
	}
	u := Update{}
	gatewayEntry(p, doc, u)
	if len(u) == 0 {
		return nil, failure(NoUsableFields)
	}
	return deriveGateway(p, u), nil
}

func isGatewayEntry(d model.Document, id model.DeviceIdentity) bool {
	if d.MatchesDevice(id.Serial) || d.MatchesDevice(id.Identifier) {
		return true
	}
	return d.String("name") == "Gateway" || strings.Contains(strings.ToLower(d.String("identifier")), "gateway")
}

// gatewayEntry reads firmware and alarm count from an overview device entry.
func gatewayEntry(p *Pass, d model.Document, u Update) {
	gatewayDocument.extract(p, model.KindGateway, d, u)
	switch alarms := d["alarms"].(type) {
	case []any:
		u[model.FieldActiveAlarms] = int64(len(alarms))
	case nil:
	default:
		set(p, u, model.KindGateway, model.FieldActiveAlarms, alarms)
	}
}

// deriveGateway folds the raw gateway inputs into their reported forms.
func deriveGateway(p *Pass, u Update) Update {
	v := view{u: u, prior: p.Prior}

	if u.Has(model.FieldFreeDiskSpaceBytes) {
		u[model.FieldFreeDiskSpace] = int64(v.Float(model.FieldFreeDiskSpaceBytes) / mebibyte)
	}
	if fw, ok := u[model.FieldFirmwareVersion].(string); ok {
		u[model.FieldFirmwareVersion] = strings.TrimLeft(fw, "v")
	}

	if lo.SomeBy(serviceBits, func(s serviceBit) bool {
		return u.Has(s.field)
	}) {
		var mask int64
		for _, s := range serviceBits {
			if v.Int(s.field) == 1 {
				mask |= s.bit
			}
		}
		u[model.FieldServicesStatus] = mask
	}

	if u.Has(model.FieldRelay1State) || u.Has(model.FieldRelay2State) {
		var mask int64
		if v.Int(model.FieldRelay1State) == 1 {
			mask |= Relay1Closed
		}
		if v.Int(model.FieldRelay2State) == 1 {
			mask |= Relay2Closed
		}
		u[model.FieldRelayStates] = mask
	}

	if u.Has(model.FieldHungProcesses) || u.Has(model.FieldZombieProcesses) {
		u[model.FieldSystemErrors] = v.Int(model.FieldHungProcesses) + v.Int(model.FieldZombieProcesses)
	}

	u[model.FieldVrmConnected] = int64(1)
	if v.Int(model.FieldActiveAlarms) > 0 {
		u[model.FieldSystemStatus] = int64(2)
	} else {
		u[model.FieldSystemStatus] = int64(1)
	}
	return u
}
