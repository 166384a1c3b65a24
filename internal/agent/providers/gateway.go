package providers

import (
	"errors"
	"net/http"
	"time"
)

// GatewayConfig configures the first-party Anvil gateway provider. The
// gateway speaks the OpenAI-compatible wire format behind its own base URL
// and attribution headers.
type GatewayConfig struct {
	// APIKey is the gateway key, resolved from ANVIL_API_KEY.
	APIKey string

	// BaseURL is the gateway endpoint, resolved from ANVIL_GATEWAY_URL.
	BaseURL string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// Timeout bounds each HTTP call.
	Timeout time.Duration
}

// NewGatewayProvider creates the gateway provider. It reuses the OpenAI
// stream machinery wholesale; only the identity and headers differ.
func NewGatewayProvider(cfg GatewayConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gateway: API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway: base URL is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anvil-large"
	}
	return NewOpenAIProvider(OpenAIConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		DefaultModel: cfg.DefaultModel,
		Timeout:      cfg.Timeout,
		providerName: "gateway",
		extraHeaders: map[string]string{
			"X-Anvil-Client": "anvil-cli",
		},
	})
}

// headerTransport attaches fixed headers to every request.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	return base.RoundTrip(clone)
}
