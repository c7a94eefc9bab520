// Package channelmesh assembles a conversational agent from configuration.
//
// A Mesh owns the logger, model backends, event bus, conversation store and
// the runtime hosting one channel per conversation. Transports feed it
// messages through Dispatch and deliver what arrives on Responses.
//
//	cfg, _ := config.Load("channelmesh.yaml")
//	mesh, err := channelmesh.New(cfg)
//	...
//	go func() {
//	    for env := range mesh.Responses() { deliver(env) }
//	}()
//	mesh.Dispatch(ctx, core.NewTextMessage("console", "local", "me", "hello"))
package channelmesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/channelmesh/bus"
	"github.com/hupe1980/channelmesh/channel"
	"github.com/hupe1980/channelmesh/config"
	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/logging"
	"github.com/hupe1980/channelmesh/model"
	"github.com/hupe1980/channelmesh/model/anthropic"
	"github.com/hupe1980/channelmesh/model/openai"
	"github.com/hupe1980/channelmesh/prompt"
	"github.com/hupe1980/channelmesh/runtime"
	"github.com/hupe1980/channelmesh/store"
	"github.com/hupe1980/channelmesh/tool"
)

// Version is the release version reported by the CLI.
var Version = "dev"

// Options configures a Mesh beyond what the file configuration covers.
type Options struct {
	// Tools are added to the shared registry visible to every process.
	Tools []tool.Tool

	// Models overrides the router built from cfg.Models.
	Models model.Router

	// Store overrides the store built from cfg.Store.
	Store store.Store

	// Logger overrides the logger built from cfg.Logging.
	Logger logging.Logger

	// LogOutput is where the built logger writes. Defaults to stderr.
	LogOutput io.Writer
}

// Mesh is a running agent.
type Mesh struct {
	cfg     *config.Config
	logger  logging.Logger
	tools   *tool.Registry
	store   store.Store
	runtime *runtime.Runtime
}

// New builds a Mesh from cfg. A nil cfg uses config.Default.
func New(cfg *config.Config, optFns ...func(o *Options)) (*Mesh, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := Options{LogOutput: os.Stderr}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		if logger, err = newLogger(cfg.Logging, opts.LogOutput); err != nil {
			return nil, err
		}
	}

	router := opts.Models
	if router == nil {
		var err error
		if router, err = NewRouter(cfg.Models); err != nil {
			return nil, err
		}
	}

	prompts, err := renderPrompts(cfg)
	if err != nil {
		return nil, err
	}

	tools := tool.NewRegistry(nil)
	if err := tools.Add(opts.Tools...); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	st := opts.Store
	if st == nil {
		if st, err = NewStore(cfg.Store, logger); err != nil {
			return nil, err
		}
	}

	events := bus.New(func(o *bus.Options) {
		o.Capacity = cfg.Bus.Capacity
		o.Logger = logger
	})

	rt, err := runtime.New(channel.Deps{
		AgentID: cfg.Agent.ID,
		Models:  router,
		Tools:   tools,
		Events:  events,
		Store:   st,
		Logger:  logger,
	}, func(o *runtime.Options) {
		o.ChannelConfig = ChannelConfig(cfg)
		o.Prompts = prompts
		o.Logger = logger
	})
	if err != nil {
		events.Close()
		_ = st.Close()
		return nil, err
	}

	logger.Info("mesh.started", "agent", cfg.Agent.ID, "store", cfg.Store.Driver)

	return &Mesh{cfg: cfg, logger: logger, tools: tools, store: st, runtime: rt}, nil
}

// Dispatch routes an inbound message to its conversation's channel.
func (m *Mesh) Dispatch(ctx context.Context, msg core.InboundMessage) error {
	if msg.AgentID == "" {
		msg.AgentID = m.cfg.Agent.ID
	}
	return m.runtime.Dispatch(ctx, msg)
}

// Responses is the merged outbound stream of every channel.
func (m *Mesh) Responses() <-chan runtime.Envelope { return m.runtime.Responses() }

// Runtime exposes the channel host.
func (m *Mesh) Runtime() *runtime.Runtime { return m.runtime }

// Tools is the shared registry. Tools added after New are visible to
// subsequent turns.
func (m *Mesh) Tools() *tool.Registry { return m.tools }

// Logger returns the mesh logger.
func (m *Mesh) Logger() logging.Logger { return m.logger }

// Close stops every channel and closes the store. See runtime.Runtime.Close
// for the meaning of ctx.
func (m *Mesh) Close(ctx context.Context) error {
	err := m.runtime.Close(ctx)
	if cerr := m.store.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("failed to close store: %w", cerr))
	}
	m.logger.Info("mesh.stopped")
	return err
}

// ChannelConfig maps the file configuration onto channel limits.
func ChannelConfig(cfg *config.Config) channel.Config {
	c := channel.DefaultConfig()
	c.MaxConcurrentBranches = cfg.Channel.MaxConcurrentBranches
	c.MaxConcurrentWorkers = cfg.Channel.MaxConcurrentWorkers
	c.MaxTurns = cfg.Channel.MaxTurns
	c.BranchMaxTurns = cfg.Channel.BranchMaxTurns
	c.WorkerMaxTurns = cfg.Channel.WorkerMaxTurns
	c.InboxCapacity = cfg.Channel.InboxCapacity
	c.HistoryBackfill = cfg.Channel.HistoryBackfill
	if cfg.Worker.InteractiveIdleTimeout > 0 {
		c.InteractiveIdleTimeout = cfg.Worker.InteractiveIdleTimeout
	}
	return c
}

// NewRouter builds one backend per configured process type. Branch and
// worker fall back to the channel model.
func NewRouter(cfg config.ModelsConfig) (*model.StaticRouter, error) {
	channelModel, err := NewModel(cfg.Channel)
	if err != nil {
		return nil, fmt.Errorf("channel model: %w", err)
	}

	router := &model.StaticRouter{Default: channelModel, ByType: map[core.ProcessType]model.Model{}}
	for pt, mc := range map[core.ProcessType]config.ModelConfig{
		core.ProcessTypeBranch: cfg.Branch,
		core.ProcessTypeWorker: cfg.Worker,
	} {
		if mc.IsZero() {
			continue
		}
		m, err := NewModel(mc)
		if err != nil {
			return nil, fmt.Errorf("%s model: %w", pt, err)
		}
		router.ByType[pt] = m
	}
	return router, nil
}

// NewModel constructs the backend named by mc.Provider.
func NewModel(mc config.ModelConfig) (model.Model, error) {
	switch mc.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if mc.Model != "" {
				o.Model = mc.Model
			}
			if mc.Temperature > 0 {
				o.Temperature = mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(mc.MaxTokens)
			}
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if mc.Model != "" {
				o.Model = anthropicsdk.Model(mc.Model)
			}
			if mc.Temperature > 0 {
				o.Temperature = mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxTokens = int64(mc.MaxTokens)
			}
			o.APIKey = mc.APIKey
		}), nil
	case config.ProviderMock:
		name := mc.Model
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", mc.Provider)
	}
}

// NewStore opens the configured conversation store.
func NewStore(cfg config.StoreConfig, logger logging.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "", config.DriverMemory:
		return store.NewInMemoryStore(), nil
	case config.DriverSQLite:
		s, err := store.NewSQLiteStore(cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newLogger(cfg config.LoggingConfig, out io.Writer) (logging.Logger, error) {
	level := logging.LogLevelInfo
	if cfg.Level != "" {
		var err error
		if level, err = logging.ParseLevel(cfg.Level); err != nil {
			return nil, err
		}
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Format,
		Output:    out,
		Component: "channelmesh",
	}), nil
}

func renderPrompts(cfg *config.Config) (channel.Prompts, error) {
	engine, err := prompt.NewEngine(cfg.Prompts.Dir)
	if err != nil {
		return channel.Prompts{}, fmt.Errorf("failed to load prompts: %w", err)
	}

	data := map[string]any{"AgentName": cfg.Agent.Name, "AgentID": cfg.Agent.ID}

	var p channel.Prompts
	for name, dst := range map[string]*string{
		prompt.Identity: &p.Identity,
		prompt.Channel:  &p.System,
		prompt.Branch:   &p.Branch,
		prompt.Worker:   &p.Worker,
	} {
		text, err := engine.Render(name, data)
		if err != nil {
			return channel.Prompts{}, fmt.Errorf("failed to render %s prompt: %w", name, err)
		}
		*dst = text
	}
	return p, nil
}
