// Package controller drives discovery and the poll cycle: it fetches the
// shared upstream documents once per cycle, runs every device through its
// resolver and hands the projected sensors to the publishers.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/vrm-integration/internal/pkg/device"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
	"github.com/anicoll/vrm-integration/internal/pkg/projection"
	"github.com/anicoll/vrm-integration/internal/pkg/vrm"
)

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrNotDiscovered = errors.New("devices not discovered")
)

// ControllerDevice carries the controller's own connection and cache sensors.
var ControllerDevice = model.Device{
	ID:    "vrm_controller",
	Model: "VRM Controller",
	Name:  "VRM Controller",
}

type tracked struct {
	identity  model.DeviceIdentity
	resolver  *device.Resolver
	state     device.State
	outcome   device.Outcome
	updatedAt time.Time
}

// DeviceView is a read-only snapshot of one tracked device.
type DeviceView struct {
	Identity  model.DeviceIdentity `json:"identity"`
	Address   string               `json:"address"`
	State     device.State         `json:"state"`
	Sensors   []model.DeviceStatus `json:"sensors"`
	Strategy  string               `json:"strategy"`
	Failures  []string             `json:"failures,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

type Controller struct {
	client    VrmClient
	cache     DiagnosticsCache
	publisher Publisher
	store     Store
	recorder  Recorder
	unit      model.TemperatureUnit
	logger    *zap.Logger
	now       func() time.Time

	pollMu sync.Mutex

	mu             sync.RWMutex
	installationID int64
	discovered     bool
	connected      bool
	order          []string
	devices        map[string]*tracked
	polled         bool
	lastPollErr    error
}

type Option func(*Controller)

func WithStore(s Store) Option {
	return func(c *Controller) {
		c.store = s
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

func WithTemperatureUnit(u model.TemperatureUnit) Option {
	return func(c *Controller) {
		c.unit = u
	}
}

func New(client VrmClient, cache DiagnosticsCache, pub Publisher, opts ...Option) *Controller {
	c := &Controller{
		client:    client,
		cache:     cache,
		publisher: pub,
		unit:      model.Celsius,
		logger:    zap.L(),
		now:       time.Now,
		devices:   map[string]*tracked{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Discover finds the installation's devices. Devices already tracked keep
// their state and are republished in full; new devices start from their
// stored state when a store is set.
func (c *Controller) Discover(ctx context.Context) error {
	installationID, ids, err := c.client.Discover(ctx)
	if err != nil {
		c.setConnected(false)
		return fmt.Errorf("discover: %w", err)
	}

	priors := map[string]device.State{}
	if c.store != nil {
		if priors, err = c.store.LoadStates(ctx); err != nil {
			c.logger.Warn("unable to restore device states", zap.Error(err))
			priors = map[string]device.State{}
		}
	}

	var rediscovered []string
	c.mu.Lock()
	c.installationID = installationID
	for _, id := range ids {
		addr := id.Address()
		if t, ok := c.devices[addr]; ok {
			t.identity = id
			rediscovered = append(rediscovered, addr)
			continue
		}
		resolver, err := device.For(id.Kind)
		if err != nil {
			c.logger.Warn("skipping device", zap.String("device", addr), zap.Error(err))
			continue
		}
		state := device.NewState(id.Kind)
		if prior, ok := priors[addr]; ok && prior.Kind() == id.Kind {
			state = prior
		}
		c.devices[addr] = &tracked{identity: id, resolver: resolver, state: state}
		c.order = append(c.order, addr)
	}
	c.discovered = true
	c.connected = true
	c.mu.Unlock()

	for _, addr := range rediscovered {
		c.publisher.Forget(addr)
	}

	if err := c.publisher.RegisterDevice(ctx, &ControllerDevice); err != nil {
		c.logger.Warn("unable to register controller", zap.Error(err))
	}
	for _, id := range ids {
		d := id.Device()
		if err := c.publisher.RegisterDevice(ctx, &d); err != nil {
			c.logger.Warn("unable to register device", zap.String("device", d.ID), zap.Error(err))
		}
	}
	c.logger.Info("devices discovered",
		zap.Int64("installation", installationID),
		zap.Strings("devices", lo.Map(ids, func(id model.DeviceIdentity, _ int) string {
			return id.Kind.String() + ":" + id.Address()
		})))
	return nil
}

// Poll runs one update cycle over every device. Cycles never overlap.
func (c *Controller) Poll(ctx context.Context) (err error) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	start := c.now()
	defer func() {
		c.mu.Lock()
		c.polled = true
		c.lastPollErr = err
		c.mu.Unlock()
		if c.recorder != nil {
			c.recorder.PollCompleted(c.now().Sub(start), err)
		}
	}()

	if !c.isDiscovered() {
		if err := c.Discover(ctx); err != nil {
			c.publishStatus(ctx)
			return err
		}
	}
	installationID := c.installation()

	overview, err := c.client.SystemOverview(ctx, installationID)
	if err != nil {
		c.logger.Warn("system overview unavailable", zap.Error(err))
		overview = nil
	}
	c.refreshInstances(overview)

	batch, err := c.cache.Get(ctx, installationID)
	if err != nil {
		c.setConnected(false)
		c.publishStatus(ctx)
		return fmt.Errorf("poll skipped, diagnostics unavailable: %w", err)
	}
	c.setConnected(true)

	statuses := map[model.Device][]model.DeviceStatus{}
	for _, addr := range c.addresses() {
		view := c.resolve(ctx, addr, overview, batch)
		statuses[view.Identity.Device()] = view.Sensors
	}
	statuses[ControllerDevice] = c.Status()
	if err := c.publisher.PublishData(ctx, statuses); err != nil {
		c.logger.Error("failed to publish", zap.Error(err))
	}
	return nil
}

// Query re-resolves one device against the current upstream data. It waits
// for a running poll to finish.
func (c *Controller) Query(ctx context.Context, address string) (DeviceView, error) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	addr := strings.ToLower(strings.TrimSpace(address))
	c.mu.RLock()
	_, ok := c.devices[addr]
	installationID := c.installationID
	c.mu.RUnlock()
	if !ok {
		return DeviceView{}, fmt.Errorf("%w: %s", ErrUnknownDevice, address)
	}

	overview, err := c.client.SystemOverview(ctx, installationID)
	if err != nil {
		c.logger.Warn("system overview unavailable", zap.Error(err))
		overview = nil
	}
	batch, err := c.cache.Get(ctx, installationID)
	if err != nil {
		c.logger.Warn("diagnostics unavailable for query", zap.String("device", addr), zap.Error(err))
		batch = nil
	}
	view := c.resolve(ctx, addr, overview, batch)
	if err := c.publisher.PublishData(ctx, map[model.Device][]model.DeviceStatus{view.Identity.Device(): view.Sensors}); err != nil {
		c.logger.Error("failed to publish", zap.Error(err))
	}
	return view, nil
}

func (c *Controller) resolve(ctx context.Context, addr string, overview model.Document, batch *model.DiagnosticsBatch) DeviceView {
	c.mu.RLock()
	t := c.devices[addr]
	id, prior, resolver := t.identity, t.state, t.resolver
	c.mu.RUnlock()

	deviceID := id.Serial
	if deviceID == "" {
		deviceID = id.Identifier
	}
	doc, err := vrm.DeviceDocument(overview, batch, deviceID)
	if err != nil {
		doc = nil
	}

	next, outcome := resolver.Update(id, device.Sources{Diagnostics: batch, Overview: overview, Device: doc}, prior)
	if c.recorder != nil {
		c.recorder.Resolved(id.Kind.String(), outcome.Strategy)
	}
	if !outcome.Resolved() {
		c.logger.Warn("device not updated this cycle", zap.String("device", addr), zap.Error(outcome.Err()))
	}

	c.mu.Lock()
	if outcome.Resolved() && !t.identity.HasInstance() && outcome.Identity.HasInstance() {
		c.logger.Info("learned device instance", zap.String("device", addr), zap.Int("instance", outcome.Identity.Instance))
		t.identity = outcome.Identity
	}
	t.state = next
	t.outcome = outcome
	t.updatedAt = c.now()
	view := c.view(t)
	c.mu.Unlock()

	if c.store != nil && outcome.Resolved() {
		if err := c.store.SaveState(ctx, addr, next); err != nil {
			c.logger.Warn("unable to store device state", zap.String("device", addr), zap.Error(err))
		}
	}
	return view
}

// refreshInstances applies instance tags from a fresh overview, matched by serial.
func (c *Controller) refreshInstances(overview model.Document) {
	if overview == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, dev := range overview.OverviewDevices() {
		serial := strings.ToUpper(dev.String("machineSerialNumber"))
		instance := dev.Instance()
		if serial == "" || instance == model.NoInstance {
			continue
		}
		for _, t := range c.devices {
			if strings.ToUpper(t.identity.Serial) == serial && t.identity.Instance != instance {
				c.logger.Debug("device instance changed",
					zap.String("device", t.identity.Address()),
					zap.Int("from", t.identity.Instance),
					zap.Int("to", instance))
				t.identity.Instance = instance
			}
		}
	}
}

func (c *Controller) view(t *tracked) DeviceView {
	return DeviceView{
		Identity: t.identity,
		Address:  t.identity.Address(),
		State:    t.state,
		Sensors:  projection.Project(t.state, c.unit),
		Strategy: t.outcome.Strategy,
		Failures: lo.Map(t.outcome.Failures, func(f device.ResolutionFailure, _ int) string {
			return f.Error()
		}),
		UpdatedAt: t.updatedAt,
	}
}

// Devices lists the tracked devices in discovery order.
func (c *Controller) Devices() []DeviceView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	views := make([]DeviceView, 0, len(c.order))
	for _, addr := range c.order {
		views = append(views, c.view(c.devices[addr]))
	}
	return views
}

// Device returns the last resolved view of one device.
func (c *Controller) Device(address string) (DeviceView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.devices[strings.ToLower(strings.TrimSpace(address))]
	if !ok {
		return DeviceView{}, false
	}
	return c.view(t), true
}

// Status reports the controller's connection and cache sensors.
func (c *Controller) Status() []model.DeviceStatus {
	left := c.CacheRemaining()
	if c.recorder != nil {
		c.recorder.CacheRemaining(left)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return projection.ControllerStatus(c.connected, left)
}

// Widgets returns the installation's raw widgets document.
func (c *Controller) Widgets(ctx context.Context, types ...string) (model.Document, error) {
	if !c.isDiscovered() {
		return nil, ErrNotDiscovered
	}
	return c.client.Widgets(ctx, c.installation(), types...)
}

func (c *Controller) CacheRemaining() time.Duration {
	return c.cache.Remaining(c.installation())
}

func (c *Controller) InvalidateCache() {
	c.cache.Invalidate()
}

// Healthy is false when the last poll failed.
func (c *Controller) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.polled || c.lastPollErr == nil
}

func (c *Controller) publishStatus(ctx context.Context) {
	if err := c.publisher.PublishData(ctx, map[model.Device][]model.DeviceStatus{ControllerDevice: c.Status()}); err != nil {
		c.logger.Error("failed to publish controller status", zap.Error(err))
	}
}

func (c *Controller) addresses() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

func (c *Controller) installation() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.installationID
}

func (c *Controller) isDiscovered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.discovered
}

func (c *Controller) setConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
}
