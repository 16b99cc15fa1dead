package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minehold/minehold/internal/config"
	"github.com/minehold/minehold/internal/console"
	"github.com/minehold/minehold/internal/event"
	"github.com/minehold/minehold/internal/metrics"
	"github.com/minehold/minehold/internal/store"
	"github.com/minehold/minehold/internal/tracing"
)

// CreateParams is the operator-facing input for a new server definition.
type CreateParams struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Dir         string `json:"dir"`
	Jar         string `json:"jar"`
	JavaPath    string `json:"javaPath"`
	HeapMinMB   int    `json:"heapMinMb"`
	HeapMaxMB   int    `json:"heapMaxMb"`
	ExtraArgs   string `json:"extraArgs"`
	Port        int    `json:"port"`
	AutoStart   bool   `json:"autoStart"`
	AutoRestart bool   `json:"autoRestart"`
	MaxPlayers  int    `json:"maxPlayers"`
}

// Registry owns the full set of supervised instances, keyed by server id.
// It is the single place definitions become running processes and the only
// writer to the instance map.
type Registry struct {
	cfg    *config.Config
	store  *store.Store
	bus    *event.Bus
	logger *slog.Logger

	// launch overrides the production launcher when set (tests substitute
	// shell scripts for java here).
	launch Launcher

	mu        sync.RWMutex
	instances map[string]*Instance
}

// Option customizes registry construction.
type Option func(*Registry)

// WithLauncher replaces the production launcher for every instance.
func WithLauncher(l Launcher) Option {
	return func(r *Registry) { r.launch = l }
}

// NewRegistry loads all persisted definitions and builds a stopped instance
// for each. Persisted status is advisory only: after a daemon restart no
// child processes survive, so every definition is forced to stopped and
// dangling player sessions are closed.
func NewRegistry(cfg *config.Config, st *store.Store, bus *event.Bus, logger *slog.Logger, opts ...Option) (*Registry, error) {
	r := &Registry{
		cfg:       cfg,
		store:     st,
		bus:       bus,
		logger:    logger.With("component", "registry"),
		instances: make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(r)
	}

	defs, err := st.ListDefinitions()
	if err != nil {
		return nil, fmt.Errorf("failed to load server definitions: %w", err)
	}

	now := time.Now()
	for _, def := range defs {
		if def.Status != string(StateStopped) || def.PID != 0 {
			if err := st.UpdateStatus(def.ID, string(StateStopped), 0); err != nil {
				r.logger.Warn("Failed to reset persisted status", "server_id", def.ID, "error", err)
			}
		}
		if err := st.CloseAllSessions(def.ID, now); err != nil {
			r.logger.Warn("Failed to close dangling player sessions", "server_id", def.ID, "error", err)
		}

		def.Status = string(StateStopped)
		def.PID = 0
		r.instances[def.ID] = r.buildInstance(def)
	}

	metrics.RegistryServers.Set(float64(len(r.instances)))
	r.logger.Info("Registry loaded", "servers", len(r.instances))
	return r, nil
}

func (r *Registry) buildInstance(def store.Definition) *Instance {
	kind := r.cfg.Kind(def.Kind)

	launch := r.launch
	if launch == nil {
		launch = NewLauncher(kind, r.cfg.Global.JavaPath)
	}

	g := r.cfg.Global
	opts := Options{
		ReadinessTimeout:   time.Duration(g.ReadinessTimeout) * time.Second,
		StopTimeout:        time.Duration(g.StopTimeout) * time.Second,
		KillGrace:          time.Duration(g.KillGrace) * time.Second,
		MaxRestartAttempts: g.MaxRestartAttempts,
		RestartBackoff:     time.Duration(g.RestartBackoff) * time.Second,
		RestartBackoffMax:  time.Duration(g.RestartBackoffMax) * time.Second,
		BufferLines:        g.ConsoleBufferLines,
		StopCommand:        kind.StopCommand,
		Launch:             launch,
	}

	return NewInstance(def, opts, console.NewClassifier(kind.ReadyMarkers), r.bus, r.recordStatus, r.logger)
}

// recordStatus persists state transitions so the definition row stays
// convergent with runtime state across daemon restarts.
func (r *Registry) recordStatus(id string, state State, pid int) {
	if err := r.store.UpdateStatus(id, string(state), pid); err != nil {
		r.logger.Warn("Failed to persist server status",
			"server_id", id,
			"status", state,
			"error", err,
		)
	}
}

// Get returns the instance for a server id.
func (r *Registry) Get(id string) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return inst, nil
}

// Resolve accepts a server id or a unique server name and returns the
// instance, for operator-facing surfaces where names are friendlier.
func (r *Registry) Resolve(ref string) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if inst, ok := r.instances[ref]; ok {
		return inst, nil
	}

	var match *Instance
	for _, inst := range r.instances {
		if strings.EqualFold(inst.Definition().Name, ref) {
			if match != nil {
				return nil, fmt.Errorf("%w: name %q is ambiguous", ErrNotFound, ref)
			}
			match = inst
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return match, nil
}

// Create registers a new server definition and builds its stopped instance.
func (r *Registry) Create(ctx context.Context, params CreateParams) (*store.Definition, error) {
	_, span := tracing.StartRegistrySpan(ctx, "create")
	defer span.End()

	if params.Name == "" {
		err := fmt.Errorf("server name is required")
		tracing.RecordError(span, err, "create rejected")
		return nil, err
	}
	if _, ok := r.cfg.Kinds[params.Kind]; !ok {
		err := fmt.Errorf("unknown server kind: %s", params.Kind)
		tracing.RecordError(span, err, "create rejected")
		return nil, err
	}

	r.mu.RLock()
	for _, inst := range r.instances {
		if strings.EqualFold(inst.Definition().Name, params.Name) {
			r.mu.RUnlock()
			err := fmt.Errorf("server name already in use: %s", params.Name)
			tracing.RecordError(span, err, "create rejected")
			return nil, err
		}
	}
	r.mu.RUnlock()

	dir := params.Dir
	if dir == "" {
		dir = filepath.Join(r.cfg.Global.ServersDir, params.Name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		tracing.RecordError(span, err, "server directory")
		return nil, fmt.Errorf("failed to create server directory: %w", err)
	}

	def := &store.Definition{
		ID:          uuid.NewString(),
		Name:        params.Name,
		Kind:        params.Kind,
		Dir:         dir,
		Jar:         params.Jar,
		JavaPath:    params.JavaPath,
		HeapMinMB:   params.HeapMinMB,
		HeapMaxMB:   params.HeapMaxMB,
		ExtraArgs:   params.ExtraArgs,
		Port:        params.Port,
		AutoStart:   params.AutoStart,
		AutoRestart: params.AutoRestart,
		MaxPlayers:  params.MaxPlayers,
		Status:      string(StateStopped),
	}

	if err := r.store.SaveDefinition(def); err != nil {
		tracing.RecordError(span, err, "persist definition")
		return nil, fmt.Errorf("failed to save server definition: %w", err)
	}

	r.mu.Lock()
	r.instances[def.ID] = r.buildInstance(*def)
	count := len(r.instances)
	r.mu.Unlock()

	metrics.RegistryServers.Set(float64(count))
	r.logger.Info("Server created", "server_id", def.ID, "name", def.Name, "kind", def.Kind)
	tracing.RecordSuccess(span)
	return def, nil
}

// Update edits a definition through the mutator and persists it.
// Launch-affecting fields take effect on the next start.
func (r *Registry) Update(id string, apply func(*store.Definition)) error {
	inst, err := r.Get(id)
	if err != nil {
		return err
	}

	def := inst.Definition()
	apply(&def)
	def.ID = id // immutable

	if err := r.store.UpdateDefinition(&def); err != nil {
		return fmt.Errorf("failed to update server definition: %w", err)
	}
	inst.updateDefinition(def)

	r.logger.Info("Server definition updated", "server_id", id)
	return nil
}

// Delete drives the server to stopped, removes it from the registry and the
// store, and optionally purges its working directory.
func (r *Registry) Delete(ctx context.Context, id string, purgeFiles bool) error {
	_, span := tracing.StartRegistrySpan(ctx, "delete")
	defer span.End()

	inst, err := r.Get(id)
	if err != nil {
		tracing.RecordError(span, err, "lookup")
		return err
	}

	// A live server gets the same graceful stop as a plain stop request,
	// escalating to a kill on timeout. Kill settles the remaining states,
	// including a crashed instance with a restart pending.
	switch st := inst.State(); st {
	case StateStarting, StateRunning:
		if err := inst.Stop(); err != nil && !errors.Is(err, ErrInvalidTransition) {
			tracing.RecordError(span, err, "stop before delete")
			return err
		}
	case StateStopped:
	default:
		if err := inst.Kill(); err != nil && !errors.Is(err, ErrInvalidTransition) {
			tracing.RecordError(span, err, "kill before delete")
			return err
		}
	}

	r.mu.Lock()
	delete(r.instances, id)
	count := len(r.instances)
	r.mu.Unlock()

	if err := r.store.CloseAllSessions(id, time.Now()); err != nil {
		r.logger.Warn("Failed to close player sessions on delete", "server_id", id, "error", err)
	}
	if err := r.store.DeleteDefinition(id); err != nil {
		tracing.RecordError(span, err, "delete definition")
		return fmt.Errorf("failed to delete server definition: %w", err)
	}

	metrics.RegistryServers.Set(float64(count))
	metrics.RemoveServer(id)

	if purgeFiles {
		dir := inst.Definition().Dir
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("Failed to purge server directory", "server_id", id, "dir", dir, "error", err)
		}
	}

	r.logger.Info("Server deleted", "server_id", id, "purged", purgeFiles)
	tracing.RecordSuccess(span)
	return nil
}

// Start starts one server.
func (r *Registry) Start(ctx context.Context, id string) error {
	inst, err := r.Get(id)
	if err != nil {
		return err
	}

	_, span := tracing.StartServerSpan(ctx, id, inst.Definition().Name, "start")
	defer span.End()

	if err := inst.Start(); err != nil {
		tracing.RecordError(span, err, "start failed")
		return err
	}
	tracing.RecordSuccess(span)
	return nil
}

// Stop gracefully stops one server.
func (r *Registry) Stop(ctx context.Context, id string) error {
	inst, err := r.Get(id)
	if err != nil {
		return err
	}

	_, span := tracing.StartServerSpan(ctx, id, inst.Definition().Name, "stop")
	defer span.End()

	if err := inst.Stop(); err != nil {
		tracing.RecordError(span, err, "stop failed")
		return err
	}
	tracing.RecordSuccess(span)
	return nil
}

// Restart restarts one server.
func (r *Registry) Restart(ctx context.Context, id string) error {
	inst, err := r.Get(id)
	if err != nil {
		return err
	}

	_, span := tracing.StartServerSpan(ctx, id, inst.Definition().Name, "restart")
	defer span.End()

	if err := inst.Restart(); err != nil {
		tracing.RecordError(span, err, "restart failed")
		return err
	}
	tracing.RecordSuccess(span)
	return nil
}

// Kill forcefully terminates one server.
func (r *Registry) Kill(ctx context.Context, id string) error {
	inst, err := r.Get(id)
	if err != nil {
		return err
	}

	_, span := tracing.StartServerSpan(ctx, id, inst.Definition().Name, "kill")
	defer span.End()

	if err := inst.Kill(); err != nil {
		tracing.RecordError(span, err, "kill failed")
		return err
	}
	tracing.RecordSuccess(span)
	return nil
}

// SendCommand writes one console command to a server's stdin.
func (r *Registry) SendCommand(ctx context.Context, id, command string) error {
	inst, err := r.Get(id)
	if err != nil {
		return err
	}

	_, span := tracing.StartServerSpan(ctx, id, inst.Definition().Name, "send_command")
	defer span.End()

	if err := inst.SendCommand(command); err != nil {
		tracing.RecordError(span, err, "send failed")
		return err
	}
	tracing.RecordSuccess(span)
	return nil
}

// TailLogs returns the last n console lines of a server.
func (r *Registry) TailLogs(id string, n int) ([]console.Line, error) {
	inst, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return inst.TailLogs(n), nil
}

// Snapshot returns the status surface of one server.
func (r *Registry) Snapshot(id string) (Snapshot, error) {
	inst, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return inst.Snapshot(), nil
}

// Snapshots returns the status of every registered server, ordered by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	snaps := make([]Snapshot, 0, len(r.instances))
	for _, inst := range r.instances {
		snaps = append(snaps, inst.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}

// Count returns the number of registered definitions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// StartAutoStart starts every definition flagged for autostart. Failures
// are logged per server and do not abort the rest.
func (r *Registry) StartAutoStart(ctx context.Context) {
	r.mu.RLock()
	var auto []*Instance
	for _, inst := range r.instances {
		if inst.Definition().AutoStart {
			auto = append(auto, inst)
		}
	}
	r.mu.RUnlock()

	for _, inst := range auto {
		if err := r.Start(ctx, inst.ID()); err != nil {
			r.logger.Error("Autostart failed", "server_id", inst.ID(), "error", err)
		}
	}
}

// SampleTargets returns the live processes the resource sampler should
// measure this tick.
func (r *Registry) SampleTargets() []metrics.SampleTarget {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]metrics.SampleTarget, 0, len(r.instances))
	for _, inst := range r.instances {
		pid := inst.PID()
		if pid == 0 {
			continue
		}
		targets = append(targets, metrics.SampleTarget{
			ServerID: inst.ID(),
			PID:      pid,
			Apply:    inst.SetUsage,
		})
	}
	return targets
}

// Shutdown stops every live server concurrently and settles crashed ones so
// no restart timers survive the daemon. It returns the first stop error, or
// the context error when the deadline passes first.
func (r *Registry) Shutdown(ctx context.Context) error {
	_, span := tracing.StartRegistrySpan(ctx, "shutdown")
	defer span.End()

	began := time.Now()

	r.mu.RLock()
	all := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		all = append(all, inst)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(all))
	for _, inst := range all {
		switch inst.State() {
		case StateStarting, StateRunning:
			wg.Add(1)
			go func(inst *Instance) {
				defer wg.Done()
				if err := inst.Stop(); err != nil {
					errCh <- fmt.Errorf("stop %s: %w", inst.ID(), err)
				}
			}(inst)
		case StateCrashed:
			// Cancels any pending auto-restart.
			if err := inst.Kill(); err != nil {
				r.logger.Warn("Failed to settle crashed server", "server_id", inst.ID(), "error", err)
			}
		}
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-ctx.Done():
		tracing.RecordError(span, ctx.Err(), "shutdown deadline")
		return ctx.Err()
	}

	close(errCh)
	for err := range errCh {
		tracing.RecordError(span, err, "stop during shutdown")
		return err
	}

	metrics.ShutdownDuration.Observe(time.Since(began).Seconds())
	r.logger.Info("All servers stopped", "took", time.Since(began))
	tracing.RecordSuccess(span)
	return nil
}
