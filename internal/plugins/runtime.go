package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// State is a plugin lifecycle state.
type State string

const (
	StateLoaded    State = "loaded"
	StateReady     State = "ready"
	StateExecuting State = "executing"
	StateError     State = "error"
	StateUnloaded  State = "unloaded"
)

// PluginError wraps a plugin-side failure; it surfaces to the model as
// tool-result text and never aborts the loop.
type PluginError struct {
	PluginID string
	Action   string
	Cause    error
}

func (e *PluginError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("plugin %s action %s: %v", e.PluginID, e.Action, e.Cause)
	}
	return fmt.Sprintf("plugin %s: %v", e.PluginID, e.Cause)
}

func (e *PluginError) Unwrap() error {
	return e.Cause
}

// ExecuteInput is one plugin invocation: the action names both the skill
// and the exported function to call.
type ExecuteInput struct {
	Action string          `json:"action"`
	Input  json.RawMessage `json:"input,omitempty"`
}

// Plugin is one loaded plugin instance. The compiled WASM module is shared
// read-only across invocations; a fresh instance is created per call and
// dropped after.
type Plugin struct {
	manifest *Manifest
	dir      string

	mu       sync.Mutex
	state    State
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	instSeq  int
}

// NewPlugin wraps a discovered manifest. The plugin starts in Loaded and
// must be initialized before executing.
func NewPlugin(manifest *Manifest, dir string) *Plugin {
	return &Plugin{manifest: manifest, dir: dir, state: StateLoaded}
}

// Manifest returns the plugin manifest.
func (p *Plugin) Manifest() *Manifest {
	return p.manifest
}

// State returns the current lifecycle state.
func (p *Plugin) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Init compiles the plugin artifact and moves Loaded → Ready. Only the
// wasm type executes; native and script plugins validate their entry point
// and stay inert.
func (p *Plugin) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateLoaded {
		return &PluginError{PluginID: p.manifest.ID, Cause: fmt.Errorf("init from state %s", p.state)}
	}

	entry := filepath.Join(p.dir, p.manifest.EntryPoint)
	if _, err := os.Stat(entry); err != nil {
		p.state = StateError
		return &PluginError{PluginID: p.manifest.ID, Cause: fmt.Errorf("entry point missing: %w", err)}
	}

	if p.manifest.PluginType == TypeWasm {
		wasmBytes, err := os.ReadFile(entry)
		if err != nil {
			p.state = StateError
			return &PluginError{PluginID: p.manifest.ID, Cause: err}
		}
		// The runtime gets an empty host module set: plugins import
		// nothing from the host.
		runtime := wazero.NewRuntime(ctx)
		compiled, err := runtime.CompileModule(ctx, wasmBytes)
		if err != nil {
			runtime.Close(ctx)
			p.state = StateError
			return &PluginError{PluginID: p.manifest.ID, Cause: fmt.Errorf("compile wasm: %w", err)}
		}
		p.runtime = runtime
		p.compiled = compiled
	}

	p.state = StateReady
	return nil
}

// Execute requires Ready, resolves the skill named by the action, checks
// its declared permissions, and invokes the matching export on a fresh
// instance. A returned i32 becomes {"result": n}.
func (p *Plugin) Execute(ctx context.Context, input ExecuteInput) (json.RawMessage, error) {
	p.mu.Lock()
	if p.state != StateReady {
		state := p.state
		p.mu.Unlock()
		return nil, &PluginError{PluginID: p.manifest.ID, Action: input.Action, Cause: fmt.Errorf("execute from state %s", state)}
	}
	p.state = StateExecuting
	p.instSeq++
	seq := p.instSeq
	p.mu.Unlock()

	result, err := p.execute(ctx, input, seq)

	p.mu.Lock()
	if p.state == StateExecuting {
		p.state = StateReady
	}
	p.mu.Unlock()
	return result, err
}

func (p *Plugin) execute(ctx context.Context, input ExecuteInput, seq int) (json.RawMessage, error) {
	skill, ok := p.manifest.Skill(input.Action)
	if !ok {
		return nil, &PluginError{PluginID: p.manifest.ID, Action: input.Action, Cause: fmt.Errorf("no such skill")}
	}
	for _, perm := range skill.Requires {
		if !p.manifest.Granted(perm) {
			return nil, &PluginError{
				PluginID: p.manifest.ID,
				Action:   input.Action,
				Cause:    fmt.Errorf("permission %s not declared by plugin", perm),
			}
		}
	}

	if p.manifest.PluginType != TypeWasm {
		return nil, &PluginError{PluginID: p.manifest.ID, Action: input.Action,
			Cause: fmt.Errorf("plugin type %s is not executable by this host", p.manifest.PluginType)}
	}

	// Fresh instance per call; dropped on return.
	config := wazero.NewModuleConfig().WithName(fmt.Sprintf("%s-%d", p.manifest.ID, seq))
	instance, err := p.runtime.InstantiateModule(ctx, p.compiled, config)
	if err != nil {
		return nil, &PluginError{PluginID: p.manifest.ID, Action: input.Action, Cause: fmt.Errorf("instantiate: %w", err)}
	}
	defer instance.Close(ctx)

	fn := instance.ExportedFunction(input.Action)
	if fn == nil {
		return nil, &PluginError{PluginID: p.manifest.ID, Action: input.Action, Cause: fmt.Errorf("exported function not found")}
	}

	params, err := p.marshalParams(ctx, instance, fn, input.Input)
	if err != nil {
		return nil, &PluginError{PluginID: p.manifest.ID, Action: input.Action, Cause: err}
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, &PluginError{PluginID: p.manifest.ID, Action: input.Action, Cause: fmt.Errorf("call: %w", err)}
	}

	if len(results) == 0 {
		return json.RawMessage(`{"result":null}`), nil
	}
	return json.RawMessage(fmt.Sprintf(`{"result":%d}`, int32(results[0]))), nil
}

// marshalParams prepares the call arguments. The no-argument export is the
// guaranteed contract; a (ptr, len) pair is supported as an extension when
// the module exports linear memory and an alloc function.
func (p *Plugin) marshalParams(ctx context.Context, instance api.Module, fn api.Function, input json.RawMessage) ([]uint64, error) {
	paramTypes := fn.Definition().ParamTypes()
	switch len(paramTypes) {
	case 0:
		return nil, nil
	case 2:
		memory := instance.Memory()
		alloc := instance.ExportedFunction("alloc")
		if memory == nil || alloc == nil {
			return nil, fmt.Errorf("ptr+len convention needs exported memory and alloc")
		}
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		allocated, err := alloc.Call(ctx, uint64(len(input)))
		if err != nil || len(allocated) == 0 {
			return nil, fmt.Errorf("alloc failed: %w", err)
		}
		ptr := uint32(allocated[0])
		if !memory.Write(ptr, input) {
			return nil, fmt.Errorf("write input to guest memory at %d", ptr)
		}
		return []uint64{uint64(ptr), uint64(len(input))}, nil
	default:
		return nil, fmt.Errorf("unsupported export signature with %d params", len(paramTypes))
	}
}

// Cleanup drops compiled artifacts and moves to Unloaded.
func (p *Plugin) Cleanup(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runtime != nil {
		p.runtime.Close(ctx)
		p.runtime = nil
		p.compiled = nil
	}
	p.state = StateUnloaded
}
