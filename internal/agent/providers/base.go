package providers

import (
	"encoding/json"
	"strings"

	"github.com/anvilworks/anvil/internal/agent"
)

// emptyArgs is the argument object substituted when a model emits argument
// JSON that does not parse. The parse failure surfaces at execution time as
// a tool-side error, not a provider error.
var emptyArgs = json.RawMessage(`{}`)

// normalizeArguments validates assembled tool-call argument JSON, replacing
// anything unparseable with an empty object.
func normalizeArguments(raw string) json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return emptyArgs
	}
	if !json.Valid([]byte(trimmed)) {
		return emptyArgs
	}
	return json.RawMessage(trimmed)
}

// splitSystem separates the single system message from the rest. Providers
// that carry the system prompt out of band use this; an explicit
// req.System wins over an embedded system message.
func splitSystem(req *agent.CompletionRequest) (string, []agent.Message) {
	system := req.System
	rest := make([]agent.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if system == "" {
				system = msg.Content
			}
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}
