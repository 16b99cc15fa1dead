// Package server implements the process supervisor: one Instance per
// managed OS process and a Registry that owns the collection.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/minehold/minehold/internal/console"
	"github.com/minehold/minehold/internal/event"
	"github.com/minehold/minehold/internal/metrics"
	"github.com/minehold/minehold/internal/store"
)

// Player is one connected identity on a server.
type Player struct {
	UUID     string    `json:"uuid,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Usage is the resource snapshot of a live process. CPU and memory are
// written by the external sampler; the instance never self-samples.
type Usage struct {
	CPUPercent float64 `json:"cpuPercent"`
	MemoryRSS  uint64  `json:"memoryRss"`
	TPS        float64 `json:"tps"`
}

// Snapshot is the status surface of one server.
type Snapshot struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	State         State  `json:"state"`
	PID           int    `json:"pid,omitempty"`
	Port          int    `json:"port"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Players       int    `json:"players"`
	Usage         Usage  `json:"usage"`
}

// StatusRecorder persists the last known state and pid of a server after
// every transition, keeping the durable definition convergent with the
// runtime state.
type StatusRecorder func(id string, state State, pid int)

// Options tunes one instance's supervision behavior.
type Options struct {
	ReadinessTimeout   time.Duration
	StopTimeout        time.Duration
	KillGrace          time.Duration
	MaxRestartAttempts int
	RestartBackoff     time.Duration
	RestartBackoffMax  time.Duration
	BufferLines        int
	StopCommand        string // graceful shutdown console command for the kind
	Launch             Launcher
}

// Instance supervises exactly one OS child process end to end: spawn, stdin
// command channel, console consumption, state machine, crash detection and
// bounded auto-restart.
//
// Control operations (Start/Stop/Restart/Kill) are serialized by an
// operation mutex so a restart in flight cannot be raced by a concurrent
// stop. The console reader goroutines are the only writers to the ring
// buffer and player map.
type Instance struct {
	id         string
	logger     *slog.Logger
	bus        *event.Bus
	record     StatusRecorder
	classifier *console.Classifier
	buffer     *console.Buffer
	opts       Options
	policy     restartPolicy

	opMu    sync.Mutex // serializes control operations
	stdinMu sync.Mutex // serializes stdin writes

	mu            sync.Mutex
	def           store.Definition
	state         State
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	startedAt     time.Time
	restartCount  int
	stopRequested bool
	done          chan struct{} // closed when the current process has exited
	gen           int           // run generation; stale timers check it
	players       map[string]Player
	pendingUUIDs  map[string]string
	usage         Usage
	lastEvent     time.Time
}

// NewInstance builds an instance for a definition. The definition's
// persisted status is not trusted; the instance always begins stopped.
func NewInstance(def store.Definition, opts Options, classifier *console.Classifier, bus *event.Bus, record StatusRecorder, logger *slog.Logger) *Instance {
	return &Instance{
		id:         def.ID,
		logger:     logger.With("component", "instance", "server_id", def.ID, "server", def.Name),
		bus:        bus,
		record:     record,
		classifier: classifier,
		buffer:     console.NewBuffer(opts.BufferLines),
		opts:       opts,
		policy: restartPolicy{
			maxAttempts:    opts.MaxRestartAttempts,
			initialBackoff: opts.RestartBackoff,
			maxBackoff:     opts.RestartBackoffMax,
		},
		def:          def,
		state:        StateStopped,
		players:      make(map[string]Player),
		pendingUUIDs: make(map[string]string),
	}
}

// ID returns the server id.
func (i *Instance) ID() string { return i.id }

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Definition returns a copy of the definition the instance runs from.
func (i *Instance) Definition() store.Definition {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.def
}

// PID returns the OS pid of the live process, 0 when there is none.
func (i *Instance) PID() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pidLocked()
}

func (i *Instance) pidLocked() int {
	if i.cmd != nil && i.cmd.Process != nil {
		return i.cmd.Process.Pid
	}
	return 0
}

// Start spawns the process. Valid from stopped or crashed; a manual start
// resets the crash-restart counter.
func (i *Instance) Start() error {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	i.mu.Lock()
	i.restartCount = 0
	i.mu.Unlock()

	return i.startLocked()
}

// startLocked must be called with opMu held.
func (i *Instance) startLocked() error {
	i.mu.Lock()
	switch i.state {
	case StateStopped, StateCrashed:
	default:
		state := i.state
		i.mu.Unlock()
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidTransition, state)
	}
	def := i.def
	i.mu.Unlock()

	cmd, err := i.opts.Launch(&def)
	if err != nil {
		i.failSpawn(err)
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		i.failSpawn(err)
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		i.failSpawn(err)
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		i.failSpawn(err)
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		i.failSpawn(err)
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	i.mu.Lock()
	i.gen++
	gen := i.gen
	i.cmd = cmd
	i.stdin = stdin
	i.startedAt = time.Now()
	i.stopRequested = false
	i.done = make(chan struct{})
	done := i.done
	i.players = make(map[string]Player)
	i.pendingUUIDs = make(map[string]string)
	i.usage = Usage{}
	i.transitionLocked(StateStarting)
	i.mu.Unlock()

	i.logger.Info("Process started",
		"pid", cmd.Process.Pid,
		"command", cmd.Path,
	)
	metrics.ServerStartTime.WithLabelValues(i.id).Set(float64(time.Now().Unix()))

	var readers sync.WaitGroup
	readers.Add(2)
	go i.readPipe(stdout, "stdout", &readers)
	go i.readPipe(stderr, "stderr", &readers)

	// No readiness marker within the window still counts as up: slow
	// modded servers must not be left in starting forever.
	time.AfterFunc(i.opts.ReadinessTimeout, func() {
		i.promote(gen, "timeout")
	})

	go i.monitor(cmd, done, gen, &readers)

	return nil
}

// failSpawn records a spawn failure: the instance goes crashed and the
// failure is mirrored to asynchronous observers as a crashed event.
func (i *Instance) failSpawn(err error) {
	i.logger.Error("Failed to spawn process", "error", err)

	i.mu.Lock()
	defer i.mu.Unlock()

	i.cmd = nil
	i.stdin = nil
	i.transitionLocked(StateCrashed)
	i.emitLocked(event.Event{Kind: event.KindCrashed, Message: err.Error(), Status: string(StateCrashed)})
	metrics.ServerCrashes.WithLabelValues(i.id).Inc()
}

// promote resolves starting -> running, from a readiness marker or timeout.
func (i *Instance) promote(gen int, reason string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.gen != gen || i.state != StateStarting {
		return
	}
	i.transitionLocked(StateRunning)
	i.logger.Info("Server is up", "reason", reason)
}

// readPipe consumes one output pipe line by line: ring buffer append, then
// classification, then event emission.
func (i *Instance) readPipe(r io.Reader, stream string, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		i.handleLine(stream, scanner.Text())
	}
}

// handleLine is called only from reader goroutines.
func (i *Instance) handleLine(stream, text string) {
	i.buffer.Append(console.Line{Timestamp: time.Now(), Stream: stream, Text: text})

	i.mu.Lock()
	defer i.mu.Unlock()

	i.emitLocked(event.Event{Kind: event.KindLogLine, Message: text})

	cls := i.classifier.Classify(text)
	if cls == nil {
		return
	}

	switch cls.Type {
	case console.MatchReady:
		if i.state == StateStarting {
			i.transitionLocked(StateRunning)
			i.logger.Info("Server is up", "reason", "ready marker")
		}

	case console.MatchPlayerUUID:
		i.pendingUUIDs[cls.Player] = cls.Message

	case console.MatchPlayerJoin:
		uuid := i.pendingUUIDs[cls.Player]
		i.players[cls.Player] = Player{
			UUID:     uuid,
			JoinedAt: time.Now(),
		}
		delete(i.pendingUUIDs, cls.Player)
		metrics.ServerPlayers.WithLabelValues(i.id).Set(float64(len(i.players)))
		i.emitLocked(event.Event{Kind: event.KindPlayerJoin, Player: cls.Player, PlayerUUID: uuid})

	case console.MatchPlayerLeave:
		delete(i.players, cls.Player)
		metrics.ServerPlayers.WithLabelValues(i.id).Set(float64(len(i.players)))
		i.emitLocked(event.Event{Kind: event.KindPlayerLeave, Player: cls.Player})

	case console.MatchChat:
		i.emitLocked(event.Event{Kind: event.KindChat, Player: cls.Player, Message: cls.Message})

	case console.MatchAdvancement:
		i.emitLocked(event.Event{Kind: event.KindAdvancement, Player: cls.Player, Message: cls.Message})

	case console.MatchDeath:
		i.emitLocked(event.Event{Kind: event.KindDeath, Player: cls.Player, Message: cls.Message})
	}
}

// monitor waits for process exit and settles the state machine.
func (i *Instance) monitor(cmd *exec.Cmd, done chan struct{}, gen int, readers *sync.WaitGroup) {
	readers.Wait()
	err := cmd.Wait()

	i.mu.Lock()

	if i.gen != gen {
		i.mu.Unlock()
		close(done)
		return
	}

	requested := i.stopRequested
	i.cmd = nil
	i.stdin = nil
	i.players = make(map[string]Player)
	i.pendingUUIDs = make(map[string]string)
	i.usage = Usage{}
	metrics.ServerPlayers.WithLabelValues(i.id).Set(0)

	if requested {
		i.restartCount = 0
		i.transitionLocked(StateStopped)
		i.mu.Unlock()
		close(done)
		i.logger.Info("Process stopped")
		return
	}

	// Exit the supervisor did not ask for.
	reason := "process exited unexpectedly"
	if err != nil {
		reason = err.Error()
	}
	i.transitionLocked(StateCrashed)
	i.emitLocked(event.Event{Kind: event.KindCrashed, Message: reason, Status: string(StateCrashed)})
	metrics.ServerCrashes.WithLabelValues(i.id).Inc()
	i.logger.Error("Process crashed", "reason", reason, "restart_count", i.restartCount)

	if i.def.AutoRestart {
		if i.policy.shouldRestart(i.restartCount) {
			delay := i.policy.backoffDuration(i.restartCount)
			i.restartCount++
			attempt := i.restartCount
			i.logger.Info("Scheduling restart after crash",
				"attempt", attempt,
				"max_attempts", i.policy.maxAttempts,
				"delay", delay,
			)
			time.AfterFunc(delay, func() {
				i.autoRestart(gen, attempt)
			})
		} else {
			i.logger.Error("Restart attempts exhausted, leaving server crashed",
				"max_attempts", i.policy.maxAttempts,
			)
		}
	}

	i.mu.Unlock()
	close(done)
}

// autoRestart performs one scheduled crash-restart attempt. A manual Start,
// Kill or Delete in the meantime changes the generation and voids it.
func (i *Instance) autoRestart(gen, attempt int) {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	i.mu.Lock()
	if i.state != StateCrashed || i.gen != gen {
		i.mu.Unlock()
		return
	}
	i.mu.Unlock()

	i.logger.Info("Auto-restarting after crash", "attempt", attempt)
	metrics.ServerRestarts.WithLabelValues(i.id, "crash").Inc()

	if err := i.startLocked(); err != nil {
		i.logger.Error("Auto-restart failed", "attempt", attempt, "error", err)
	}
}

// Stop requests a graceful shutdown. Valid from starting or running. On
// stop-timeout it escalates to a forceful kill; the timeout is recovered
// internally and never surfaced as an error.
func (i *Instance) Stop() error {
	i.opMu.Lock()
	defer i.opMu.Unlock()
	return i.stopLocked()
}

// stopLocked must be called with opMu held.
func (i *Instance) stopLocked() error {
	i.mu.Lock()
	switch i.state {
	case StateStarting, StateRunning:
	default:
		state := i.state
		i.mu.Unlock()
		return fmt.Errorf("%w: cannot stop while %s", ErrInvalidTransition, state)
	}
	i.stopRequested = true
	done := i.done
	stdin := i.stdin
	i.transitionLocked(StateStopping)
	i.mu.Unlock()

	i.logger.Info("Stopping server", "command", i.opts.StopCommand)

	i.stdinMu.Lock()
	_, err := io.WriteString(stdin, i.opts.StopCommand+"\n")
	i.stdinMu.Unlock()
	if err != nil {
		i.logger.Warn("Failed to write stop command, force killing", "error", err)
		return i.escalateLocked()
	}

	select {
	case <-done:
		return nil
	case <-time.After(i.opts.StopTimeout):
		i.logger.Warn("Server did not stop gracefully, force killing",
			"timeout", i.opts.StopTimeout,
		)
		return i.escalateLocked()
	}
}

// escalateLocked force-kills on behalf of a graceful stop. The process may
// exit on its own between the stop timeout firing and the kill taking the
// state mutex; that still counts as a successful stop.
func (i *Instance) escalateLocked() error {
	if err := i.killLocked(); err != nil && !errors.Is(err, ErrInvalidTransition) {
		return err
	}
	return nil
}

// Restart is a stop followed by a start under one operation lock.
func (i *Instance) Restart() error {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	i.mu.Lock()
	state := i.state
	i.restartCount = 0
	i.mu.Unlock()

	if state.live() {
		if err := i.stopLocked(); err != nil {
			return err
		}
	}

	metrics.ServerRestarts.WithLabelValues(i.id, "manual").Inc()
	return i.startLocked()
}

// Kill forcefully terminates the process. Valid from any non-stopped state;
// on a crashed instance it cancels any pending auto-restart instead.
func (i *Instance) Kill() error {
	i.opMu.Lock()
	defer i.opMu.Unlock()
	return i.killLocked()
}

// killLocked must be called with opMu held.
func (i *Instance) killLocked() error {
	i.mu.Lock()
	if i.state == StateStopped {
		i.mu.Unlock()
		return fmt.Errorf("%w: cannot kill while stopped", ErrInvalidTransition)
	}

	i.stopRequested = true
	cmd := i.cmd
	done := i.done

	if cmd == nil || cmd.Process == nil {
		// Crashed with no live process: settle to stopped and void any
		// scheduled restart.
		i.gen++
		i.restartCount = 0
		i.transitionLocked(StateStopped)
		i.mu.Unlock()
		return nil
	}
	i.mu.Unlock()

	i.logger.Info("Killing server process", "pid", cmd.Process.Pid)
	_ = cmd.Process.Kill()

	select {
	case <-done:
	case <-time.After(i.opts.KillGrace):
		// Treated as terminated regardless.
		i.mu.Lock()
		if i.state != StateStopped {
			i.transitionLocked(StateStopped)
		}
		i.mu.Unlock()
	}
	return nil
}

// SendCommand writes one console command to the process's stdin. Valid only
// while a live stdin channel exists (starting, running, stopping).
func (i *Instance) SendCommand(text string) error {
	i.mu.Lock()
	if !i.state.live() || i.stdin == nil {
		state := i.state
		i.mu.Unlock()
		return fmt.Errorf("%w: server is %s", ErrNoProcess, state)
	}
	stdin := i.stdin
	i.mu.Unlock()

	i.stdinMu.Lock()
	defer i.stdinMu.Unlock()
	_, err := io.WriteString(stdin, text+"\n")
	return err
}

// TailLogs returns the last n console lines in chronological order.
func (i *Instance) TailLogs(n int) []console.Line {
	return i.buffer.Tail(n)
}

// Players returns a copy of the currently connected identities.
func (i *Instance) Players() map[string]Player {
	i.mu.Lock()
	defer i.mu.Unlock()

	players := make(map[string]Player, len(i.players))
	for name, p := range i.players {
		players[name] = p
	}
	return players
}

// SetUsage writes a resource measurement into the snapshot. Called by the
// external sampler.
func (i *Instance) SetUsage(cpuPercent float64, memoryRSS uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.usage.CPUPercent = cpuPercent
	i.usage.MemoryRSS = memoryRSS
}

// Snapshot returns the status surface of this server.
func (i *Instance) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()

	var uptime int64
	if i.state.live() && !i.startedAt.IsZero() {
		uptime = int64(time.Since(i.startedAt).Seconds())
	}

	return Snapshot{
		ID:            i.id,
		Name:          i.def.Name,
		Kind:          i.def.Kind,
		State:         i.state,
		PID:           i.pidLocked(),
		Port:          i.def.Port,
		UptimeSeconds: uptime,
		Players:       len(i.players),
		Usage:         i.usage,
	}
}

// updateDefinition swaps in an edited definition. Launch-affecting fields
// take effect on the next start.
func (i *Instance) updateDefinition(def store.Definition) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.def = def
}

// transitionLocked moves the state machine, persists the new status and
// emits status_changed. Must be called with mu held.
func (i *Instance) transitionLocked(s State) {
	if i.state == s {
		return
	}
	i.state = s

	if s == StateRunning {
		i.restartCount = 0
		if i.usage.TPS == 0 {
			i.usage.TPS = 20
		}
		metrics.ServerUp.WithLabelValues(i.id).Set(1)
	} else {
		metrics.ServerUp.WithLabelValues(i.id).Set(0)
	}

	if i.record != nil {
		i.record(i.id, s, i.pidLocked())
	}

	i.emitLocked(event.Event{Kind: event.KindStatusChanged, Status: string(s)})
}

// emitLocked publishes an event with a per-instance monotonically
// non-decreasing timestamp. Must be called with mu held.
func (i *Instance) emitLocked(e event.Event) {
	ts := time.Now()
	if ts.Before(i.lastEvent) {
		ts = i.lastEvent
	}
	i.lastEvent = ts

	e.ServerID = i.id
	e.Timestamp = ts
	metrics.EventsPublished.WithLabelValues(string(e.Kind)).Inc()
	i.bus.Publish(e)
}
