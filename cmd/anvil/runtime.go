package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anvilworks/anvil/internal/agent"
	convo "github.com/anvilworks/anvil/internal/agent/context"
	"github.com/anvilworks/anvil/internal/agent/providers"
	"github.com/anvilworks/anvil/internal/audit"
	"github.com/anvilworks/anvil/internal/cache"
	"github.com/anvilworks/anvil/internal/config"
	"github.com/anvilworks/anvil/internal/crew"
	"github.com/anvilworks/anvil/internal/mcp"
	"github.com/anvilworks/anvil/internal/plugins"
	"github.com/anvilworks/anvil/internal/ratelimit"
	"github.com/anvilworks/anvil/internal/safety"
	"github.com/anvilworks/anvil/internal/tools/codebase"
	"github.com/anvilworks/anvil/internal/tools/files"
	"github.com/anvilworks/anvil/internal/tools/gitops"
	"github.com/anvilworks/anvil/internal/tools/shell"
)

// runtime bundles everything an agent invocation needs.
type runtime struct {
	cfg      *config.Config
	client   *agent.Client
	registry *agent.ToolRegistry
	auditLog *audit.Logger
	limiters *ratelimit.Classes
	mcpMgr   *mcp.Manager
	plugReg  *plugins.Registry
	agentCfg config.AgentConfig
	modelCfg config.ModelConfig
}

// newRuntime assembles the provider client, the tool registry with every
// built-in, plugin, and MCP skill, and the ambient services.
func newRuntime(ctx context.Context, cfg *config.Config, agentName string) (*runtime, error) {
	auditLog, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		return nil, err
	}

	agentCfg, err := resolveAgent(cfg, agentName)
	if err != nil {
		return nil, err
	}
	modelCfg, err := cfg.Model(agentCfg.Model)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(modelCfg)
	if err != nil {
		return nil, err
	}

	limiters := buildLimiters(cfg)
	client := agent.NewClient(provider, agent.ClientOptions{
		Cache:   cache.New(cache.Options{TTL: 15 * time.Minute, MaxEntries: 256}),
		Limiter: limiters.LLM,
	})

	workDir, err := filepath.Abs(flags.workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}

	registry := agent.NewToolRegistry(slog.Default())
	registerBuiltins(registry, cfg, workDir, limiters, auditLog)

	plugReg, err := plugins.NewRegistry(config.DataDir(), slog.Default(), auditLog)
	if err != nil {
		return nil, err
	}
	if diags := plugReg.Discover(cfg.PluginDirs); len(diags) > 0 {
		for _, diag := range diags {
			slog.Warn("plugin skipped", "dir", diag.PluginDir, "reason", diag.Message)
		}
	}
	for _, diag := range plugReg.InitAll(ctx) {
		slog.Warn("plugin init failed", "dir", diag.PluginDir, "reason", diag.Message)
	}
	plugReg.RegisterSkills(registry)

	mcpMgr := mcp.NewManager(slog.Default(), auditLog)
	for i := range cfg.MCPServers {
		serverCfg := cfg.MCPServers[i]
		if err := mcpMgr.Connect(ctx, &serverCfg); err != nil {
			slog.Warn("mcp server unavailable", "server", serverCfg.Name, "error", err)
		}
	}
	mcpMgr.RegisterAll(registry)

	return &runtime{
		cfg:      cfg,
		client:   client,
		registry: registry,
		auditLog: auditLog,
		limiters: limiters,
		mcpMgr:   mcpMgr,
		plugReg:  plugReg,
		agentCfg: agentCfg,
		modelCfg: modelCfg,
	}, nil
}

// close releases child processes and plugin runtimes.
func (r *runtime) close(ctx context.Context) {
	r.mcpMgr.Close()
	r.plugReg.Close(ctx)
	r.auditLog.Close()
}

// resolveAgent prefers an active crew persona over the configured agent
// when no explicit name is given.
func resolveAgent(cfg *config.Config, agentName string) (config.AgentConfig, error) {
	if agentName == "" {
		manager := crew.NewManager(config.DataDir())
		if persona, err := manager.Active(); err == nil && persona != nil {
			return config.AgentConfig{
				Name:         persona.Name,
				Description:  persona.Description,
				SystemPrompt: persona.SystemPrompt,
				Model:        persona.Model,
				Skills:       persona.Skills,
			}, nil
		}
	}
	return cfg.Agent(agentName)
}

func buildProvider(modelCfg config.ModelConfig) (agent.LLMProvider, error) {
	switch modelCfg.Provider {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       modelCfg.ResolveAPIKey(),
			BaseURL:      modelCfg.BaseURL,
			DefaultModel: modelCfg.Model,
		})
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       modelCfg.ResolveAPIKey(),
			BaseURL:      modelCfg.BaseURL,
			DefaultModel: modelCfg.Model,
		})
	case "ollama":
		baseURL := modelCfg.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_HOST")
		}
		return providers.NewOllamaProvider(providers.OllamaConfig{
			BaseURL:      baseURL,
			DefaultModel: modelCfg.Model,
		}), nil
	case "gateway":
		baseURL := modelCfg.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("ANVIL_GATEWAY_URL")
		}
		return providers.NewGatewayProvider(providers.GatewayConfig{
			APIKey:       modelCfg.ResolveAPIKey(),
			BaseURL:      baseURL,
			DefaultModel: modelCfg.Model,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", modelCfg.Provider)
	}
}

func buildLimiters(cfg *config.Config) *ratelimit.Classes {
	classes := ratelimit.DefaultClasses()
	for name, limiterCfg := range cfg.RateLimit {
		limiter := ratelimit.NewLimiter(limiterCfg)
		switch name {
		case "api":
			classes.API = limiter
		case "llm":
			classes.LLM = limiter
		case "file":
			classes.FileOps = limiter
		case "command":
			classes.Commands = limiter
		}
	}
	return classes
}

func registerBuiltins(registry *agent.ToolRegistry, cfg *config.Config, workDir string, limiters *ratelimit.Classes, auditLog *audit.Logger) {
	policy := safety.PathPolicy{
		Workspace:    workDir,
		AllowGlobal:  cfg.Safety.AllowGlobalAccess,
		BlockedPaths: cfg.Safety.BlockedPaths,
	}

	fileCfg := files.Config{Policy: policy}
	registry.Register(files.NewReadTool(fileCfg))
	registry.Register(files.NewWriteTool(fileCfg))
	registry.Register(files.NewEditTool(fileCfg))
	registry.Register(files.NewListTool(fileCfg))
	registry.Register(files.NewSearchTool(fileCfg))

	registry.Register(shell.NewExecuteTool(shell.Config{
		WorkDir:         workDir,
		BlockedCommands: cfg.Safety.BlockedCommands,
		Limiter:         limiters.Commands,
		Audit:           auditLog,
	}))

	for _, tool := range gitops.All(gitops.Config{WorkDir: workDir}) {
		registry.Register(tool)
	}
	for _, tool := range codebase.All(codebase.Config{Policy: policy}) {
		registry.Register(tool)
	}
}

// newLoop builds the agentic loop for the assembled runtime.
func (r *runtime) newLoop(maxIterations int, yolo bool) *agent.AgenticLoop {
	if maxIterations <= 0 {
		maxIterations = r.cfg.MaxIterations
	}
	autoApprove := flags.auto ||
		(!r.cfg.Safety.ConfirmFileWrite && !r.cfg.Safety.ConfirmShellExecute)

	window := convo.NewWindow(convo.DefaultOptions())
	return agent.NewAgenticLoop(r.client, r.registry, window, agent.LoopConfig{
		MaxIterations: maxIterations,
		MaxTokens:     r.modelCfg.MaxTokens,
		SystemPrompt:  r.agentCfg.SystemPrompt,
		Model:         r.modelCfg.Model,
		AutoApprove:   autoApprove,
		YOLO:          yolo,
		Confirmer:     terminalConfirmer,
		Audit:         r.auditLog,
	})
}

// terminalConfirmer asks the user before a confirmation-required tool runs.
func terminalConfirmer(toolName, arguments string) bool {
	preview := arguments
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	fmt.Printf("\n[WARN] %s wants to run with %s\nProceed? [y/N] ", toolName, preview)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// streamPrinter writes deltas straight to stdout.
func streamPrinter(delta string) {
	fmt.Print(delta)
}
