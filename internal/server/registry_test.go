package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minehold/minehold/internal/config"
	"github.com/minehold/minehold/internal/event"
	"github.com/minehold/minehold/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Global.DataDir = t.TempDir()
	cfg.Global.ServersDir = t.TempDir()
	cfg.Global.StopTimeout = 2
	cfg.Global.KillGrace = 1
	return cfg
}

func testStore(t *testing.T, cfg *config.Config) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(cfg.Global.DataDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return st
}

func newTestRegistry(t *testing.T, script string) (*Registry, *store.Store, *config.Config) {
	t.Helper()
	cfg := testConfig(t)
	st := testStore(t, cfg)

	bus := event.NewBus(1024, testLogger())
	t.Cleanup(bus.Close)

	r, err := NewRegistry(cfg, st, bus, testLogger(), WithLauncher(shLauncher(script)))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r, st, cfg
}

func TestRegistryCreateAndLookup(t *testing.T) {
	r, st, cfg := newTestRegistry(t, readLoop)
	ctx := context.Background()

	def, err := r.Create(ctx, CreateParams{Name: "lobby", Kind: "paper", AutoRestart: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if def.ID == "" {
		t.Fatal("Create returned empty id")
	}
	if def.Dir != filepath.Join(cfg.Global.ServersDir, "lobby") {
		t.Errorf("Dir = %q, want under servers_dir", def.Dir)
	}
	if _, err := os.Stat(def.Dir); err != nil {
		t.Errorf("working directory not provisioned: %v", err)
	}

	if _, err := r.Get(def.ID); err != nil {
		t.Errorf("Get by id: %v", err)
	}
	inst, err := r.Resolve("LOBBY")
	if err != nil {
		t.Fatalf("Resolve by name: %v", err)
	}
	if inst.ID() != def.ID {
		t.Errorf("Resolve returned %s, want %s", inst.ID(), def.ID)
	}

	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}

	// Persisted.
	stored, err := st.GetDefinition(def.ID)
	if err != nil {
		t.Fatalf("GetDefinition: %v", err)
	}
	if stored.Name != "lobby" || stored.Kind != "paper" {
		t.Errorf("stored definition = %+v", stored)
	}
}

func TestRegistryCreateRejections(t *testing.T) {
	r, _, _ := newTestRegistry(t, readLoop)
	ctx := context.Background()

	if _, err := r.Create(ctx, CreateParams{Kind: "vanilla"}); err == nil {
		t.Error("Create accepted an empty name")
	}
	if _, err := r.Create(ctx, CreateParams{Name: "x", Kind: "doom"}); err == nil {
		t.Error("Create accepted an unknown kind")
	}

	if _, err := r.Create(ctx, CreateParams{Name: "dup", Kind: "vanilla"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Create(ctx, CreateParams{Name: "DUP", Kind: "vanilla"}); err == nil {
		t.Error("Create accepted a duplicate name")
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r, _, _ := newTestRegistry(t, readLoop)

	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
	if err := r.Start(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Start = %v, want ErrNotFound", err)
	}
}

func TestRegistryLifecycle(t *testing.T) {
	r, st, _ := newTestRegistry(t, readyLine+"; "+readLoop)
	ctx := context.Background()

	def, err := r.Create(ctx, CreateParams{Name: "smp", Kind: "vanilla"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := r.Start(ctx, def.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	inst, _ := r.Get(def.ID)
	waitForState(t, inst, StateRunning, 5*time.Second)

	// The sampler sees the live pid.
	targets := r.SampleTargets()
	if len(targets) != 1 || targets[0].PID == 0 {
		t.Errorf("SampleTargets = %+v, want one live target", targets)
	}

	// Status is persisted on transitions.
	stored, _ := st.GetDefinition(def.ID)
	if stored.Status != "running" || stored.PID == 0 {
		t.Errorf("persisted status = %s pid %d, want running with pid", stored.Status, stored.PID)
	}

	if err := r.SendCommand(ctx, def.ID, "list"); err != nil {
		t.Errorf("SendCommand: %v", err)
	}

	lines, err := r.TailLogs(def.ID, 10)
	if err != nil || len(lines) == 0 {
		t.Errorf("TailLogs = %d lines, err %v", len(lines), err)
	}

	if err := r.Stop(ctx, def.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitForState(t, inst, StateStopped, 5*time.Second)

	stored, _ = st.GetDefinition(def.ID)
	if stored.Status != "stopped" || stored.PID != 0 {
		t.Errorf("persisted status = %s pid %d, want stopped/0", stored.Status, stored.PID)
	}
}

func TestRegistrySnapshotsSorted(t *testing.T) {
	r, _, _ := newTestRegistry(t, readLoop)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := r.Create(ctx, CreateParams{Name: name, Kind: "vanilla"}); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}

	snaps := r.Snapshots()
	if len(snaps) != 3 {
		t.Fatalf("Snapshots = %d, want 3", len(snaps))
	}
	if snaps[0].Name != "alpha" || snaps[1].Name != "mid" || snaps[2].Name != "zeta" {
		t.Errorf("snapshot order = %s, %s, %s", snaps[0].Name, snaps[1].Name, snaps[2].Name)
	}
}

func TestRegistryUpdate(t *testing.T) {
	r, st, _ := newTestRegistry(t, readLoop)
	ctx := context.Background()

	def, err := r.Create(ctx, CreateParams{Name: "smp", Kind: "vanilla", HeapMaxMB: 2048})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := r.Update(def.ID, func(d *store.Definition) {
		d.HeapMaxMB = 8192
		d.AutoRestart = true
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stored, _ := st.GetDefinition(def.ID)
	if stored.HeapMaxMB != 8192 || !stored.AutoRestart {
		t.Errorf("stored after update = %+v", stored)
	}

	inst, _ := r.Get(def.ID)
	if inst.Definition().HeapMaxMB != 8192 {
		t.Error("instance definition not refreshed after Update")
	}
}

func TestRegistryDelete(t *testing.T) {
	r, st, _ := newTestRegistry(t, readyLine+"; "+readLoop)
	ctx := context.Background()

	def, err := r.Create(ctx, CreateParams{Name: "smp", Kind: "vanilla"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Start(ctx, def.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	inst, _ := r.Get(def.ID)
	waitForState(t, inst, StateRunning, 5*time.Second)

	if err := r.Delete(ctx, def.ID, true); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := r.Get(def.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if _, err := st.GetDefinition(def.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetDefinition after delete = %v, want store.ErrNotFound", err)
	}
	if _, err := os.Stat(def.Dir); !os.IsNotExist(err) {
		t.Errorf("working directory survived purge: %v", err)
	}
	if r.Count() != 0 {
		t.Errorf("Count = %d, want 0", r.Count())
	}
}

// Deleting a running server must go through the graceful stop path, giving
// a well-behaved server the chance to exit on the stop command instead of
// being killed outright.
func TestRegistryDeleteStopsGracefully(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "stopped-cleanly")
	script := readyLine +
		`; while read line; do if [ "$line" = "stop" ]; then echo ok > ` + marker + `; exit 0; fi; done`
	r, _, _ := newTestRegistry(t, script)
	ctx := context.Background()

	def, err := r.Create(ctx, CreateParams{Name: "smp", Kind: "vanilla"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Start(ctx, def.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	inst, _ := r.Get(def.ID)
	waitForState(t, inst, StateRunning, 5*time.Second)

	if err := r.Delete(ctx, def.ID, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := os.Stat(marker); err != nil {
		t.Errorf("server never saw the stop command before delete: %v", err)
	}
}

func TestRegistryForcesStoppedOnLoad(t *testing.T) {
	cfg := testConfig(t)
	st := testStore(t, cfg)

	// A definition left behind by an unclean daemon exit.
	if err := st.SaveDefinition(&store.Definition{
		ID: "stale-1", Name: "stale", Kind: "vanilla",
		Status: "running", PID: 99999,
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.RecordJoin("stale-1", "Steve", "", time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	bus := event.NewBus(64, testLogger())
	defer bus.Close()
	r, err := NewRegistry(cfg, st, bus, testLogger(), WithLauncher(shLauncher(readLoop)))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	inst, err := r.Get("stale-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inst.State() != StateStopped {
		t.Errorf("state = %s, want stopped", inst.State())
	}

	stored, _ := st.GetDefinition("stale-1")
	if stored.Status != "stopped" || stored.PID != 0 {
		t.Errorf("persisted = %s/%d, want stopped/0", stored.Status, stored.PID)
	}

	sessions, _ := st.OpenSessions("stale-1")
	if len(sessions) != 0 {
		t.Errorf("dangling sessions = %d, want 0", len(sessions))
	}
}

func TestRegistryShutdown(t *testing.T) {
	r, _, _ := newTestRegistry(t, readyLine+"; "+readLoop)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"a", "b"} {
		def, err := r.Create(ctx, CreateParams{Name: name, Kind: "vanilla"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := r.Start(ctx, def.ID); err != nil {
			t.Fatalf("Start: %v", err)
		}
		ids = append(ids, def.ID)
	}
	for _, id := range ids {
		inst, _ := r.Get(id)
		waitForState(t, inst, StateRunning, 5*time.Second)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := r.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	for _, id := range ids {
		inst, _ := r.Get(id)
		if inst.State() != StateStopped {
			t.Errorf("server %s state = %s after shutdown", id, inst.State())
		}
	}
}
