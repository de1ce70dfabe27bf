// Package runtime wires the control plane together: storage, tenant
// spaces, the LLM collaborators, and one cycle loop per active stream.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/chatloop/internal/actions"
	"github.com/haasonsaas/chatloop/internal/agents"
	"github.com/haasonsaas/chatloop/internal/config"
	"github.com/haasonsaas/chatloop/internal/isolation"
	"github.com/haasonsaas/chatloop/internal/llm"
	"github.com/haasonsaas/chatloop/internal/loop"
	"github.com/haasonsaas/chatloop/internal/observability"
	"github.com/haasonsaas/chatloop/internal/planner"
	"github.com/haasonsaas/chatloop/internal/storage"
	"github.com/haasonsaas/chatloop/pkg/models"
)

// spaceSweepIdle is how long an unreferenced tenant space survives between
// sweeps.
const spaceSweepIdle = 30 * time.Minute

// Cron schedules for the background jobs. Autosave matches the ancestor
// system's five-minute stream flush.
const (
	autosaveSchedule = "@every 5m"
	sweepSchedule    = "@every 10m"
)

// Option customizes a Runtime.
type Option func(*Runtime)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}

// WithMetrics registers runtime metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Runtime) { r.metrics = observability.NewMetrics(reg) }
}

// WithGenerator replaces the OpenAI-backed generator, for embedding custom
// model clients and for tests.
func WithGenerator(gen llm.Generator) Option {
	return func(r *Runtime) { r.gen = gen }
}

// WithReplyer replaces the default reply generator.
func WithReplyer(replyer llm.Replyer) Option {
	return func(r *Runtime) { r.replyer = replyer }
}

// WithSender sets the outbound delivery collaborator.
func WithSender(sender loop.Sender) Option {
	return func(r *Runtime) { r.sender = sender }
}

// WithCatalog sets the action catalog shared by all loops.
func WithCatalog(catalog *actions.Catalog) Option {
	return func(r *Runtime) { r.catalog = catalog }
}

// Runtime is the assembled control plane.
type Runtime struct {
	cfg     *config.Config
	stores  storage.StoreSet
	gen     llm.Generator
	replyer llm.Replyer
	sender  loop.Sender
	catalog *actions.Catalog
	spaces  *isolation.TenantSpaces
	freq    *loop.FrequencyControl
	logger  *slog.Logger
	metrics *observability.Metrics
	cron    *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	loops map[string]*loop.Loop
}

// loopKey scopes a loop to its tenant; two tenants carrying the same
// conversation identity get separate loops.
func loopKey(tenantID, streamID string) string {
	return tenantID + "/" + streamID
}

// New builds a runtime from cfg. Call Start to launch the background jobs
// and Shutdown to wind everything down.
func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runtime{
		cfg:     cfg,
		catalog: actions.NewCatalog(),
		logger:  slog.Default(),
		loops:   map[string]*loop.Loop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observability.NopMetrics()
	}

	var err error
	r.stores, err = openStores(cfg.Storage)
	if err != nil {
		return nil, err
	}

	if r.gen == nil {
		r.gen = llm.NewClient(cfg.LLM, r.logger)
	}
	if r.replyer == nil {
		r.replyer = llm.NewReplyer(r.gen, cfg, r.logger)
	}
	r.spaces = isolation.NewTenantSpaces(r.stores.Streams, r.logger)
	r.freq = loop.NewFrequencyControl(cfg.Chat.Frequency, r.gen, cfg.LLM.UtilityModel, r.logger)
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r, nil
}

func openStores(cfg config.StorageConfig) (storage.StoreSet, error) {
	switch cfg.Driver {
	case "memory":
		return storage.NewMemoryStores(), nil
	case "sqlite":
		return storage.NewSQLiteStores(cfg.Path)
	default:
		return storage.StoreSet{}, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Start launches the cron jobs and, when configured, the agent definition
// loading and watching.
func (r *Runtime) Start() error {
	if dir := r.cfg.Agents.Directory; dir != "" {
		if err := r.syncAgents(); err != nil {
			r.logger.Warn("initial agent definition load failed", "error", err)
		}
		if r.cfg.Agents.Watch {
			watcher := agents.NewWatcher(dir, r.syncAgents, r.logger)
			if err := watcher.Start(r.ctx); err != nil {
				r.logger.Warn("agents directory watch unavailable", "error", err)
			}
		}
	}

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(autosaveSchedule, r.autosave); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc(sweepSchedule, r.sweep); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("runtime started",
		"storage", r.cfg.Storage.Driver, "agents_dir", r.cfg.Agents.Directory)
	return nil
}

// syncAgents loads the definitions directory and routes each agent into
// its tenant's registry.
func (r *Runtime) syncAgents() error {
	loader := agents.NewLoader(r.cfg.Agents.Directory, r.logger)
	defs, err := loader.Load()
	if err != nil {
		return err
	}
	for _, agent := range defs {
		tenantID := agent.TenantID
		if tenantID == "" {
			tenantID = models.DefaultTenant
		}
		space := r.spaces.Acquire(tenantID)
		if err := space.Agents.Register(agent, true); err != nil {
			r.logger.Warn("agent definition rejected",
				"agent_id", agent.AgentID, "tenant_id", tenantID, "error", err)
		}
		r.spaces.Release(tenantID)
	}
	return nil
}

// HandleMessage is the ingestion entry point. It resolves the message's
// scope, registers it with the stream registry, makes sure a loop is
// running for the stream, and persists the message.
func (r *Runtime) HandleMessage(ctx context.Context, msg *models.Message) (*models.ChatStream, error) {
	if msg == nil {
		return nil, fmt.Errorf("runtime: nil message")
	}
	scope := isolation.ScopeFor(msg)

	space := r.spaces.Acquire(scope.TenantID)
	defer r.spaces.Release(scope.TenantID)

	effective := space.Agents.ResolveConfig(scope.AgentID, r.cfg)

	stream, err := space.Streams.GetOrCreate(ctx, scope.AgentID, msg.Platform, &msg.Sender, msg.Group, msg)
	if err != nil {
		return nil, err
	}
	msg.StreamID = stream.StreamID
	msg.TenantID = scope.TenantID

	// The loop must be watching before the message lands in the store,
	// otherwise the triggering message predates the loop's read mark.
	r.ensureLoop(stream, effective)

	if err := r.stores.Messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	space.Streams.RegisterMessage(stream.StreamID, msg)
	return stream, nil
}

func (r *Runtime) ensureLoop(stream *models.ChatStream, effective *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := loopKey(stream.TenantID, stream.StreamID)
	if existing, ok := r.loops[key]; ok && existing.Running() {
		// An agent re-registration may have produced a fresh effective
		// config; the running loop keeps planning with the new one.
		existing.UpdateConfig(effective)
		return
	}

	pl := planner.New(effective, r.gen, r.catalog, r.stores.Messages, r.logger, r.metrics)
	l := loop.New(loop.Deps{
		Config:    effective,
		Stream:    stream,
		Planner:   pl,
		Replyer:   r.replyer,
		Sender:    r.sender,
		Catalog:   r.catalog,
		Messages:  r.stores.Messages,
		Actions:   r.stores.Actions,
		Frequency: r.freq,
		Logger:    r.logger,
		Metrics:   r.metrics,
	})
	r.loops[key] = l
	l.Start(r.ctx)
}

// Loop returns the loop serving the tenant's stream, if any.
func (r *Runtime) Loop(tenantID, streamID string) (*loop.Loop, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loops[loopKey(tenantID, streamID)]
	return l, ok
}

// autosave flushes every resident space's unsaved streams.
func (r *Runtime) autosave() {
	ctx, cancel := context.WithTimeout(r.ctx, time.Minute)
	defer cancel()
	r.spaces.SaveAll(ctx)
	r.logger.Debug("stream autosave pass finished")
}

// sweep evicts idle tenant spaces and refreshes the space gauge.
func (r *Runtime) sweep() {
	evicted := r.spaces.Sweep(spaceSweepIdle)
	r.metrics.TenantSpaces.Set(float64(r.spaces.Len()))
	if evicted > 0 {
		r.logger.Info("tenant space sweep", "evicted", evicted)
	}
}

// Shutdown stops the loops, the cron jobs, and the stores. Streams are
// flushed before the stores close.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r.cron != nil {
		cronCtx := r.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}
	r.cancel()

	r.mu.Lock()
	loops := make([]*loop.Loop, 0, len(r.loops))
	for _, l := range r.loops {
		loops = append(loops, l)
	}
	r.mu.Unlock()
	for _, l := range loops {
		l.Stop()
	}

	r.spaces.SaveAll(ctx)
	return r.stores.Close()
}
