package config

import (
	"strings"
	"time"

	"github.com/martinemde/codebuddy/agentloop"
	"github.com/martinemde/codebuddy/gateway"
	"github.com/martinemde/codebuddy/logger"
	"github.com/martinemde/codebuddy/tools"
)

// NewClientFromConfig builds a gateway client for the configured provider,
// with retry and logging middleware installed. The openai provider uses the
// native Chat Completions adapter; every other provider goes through gollm.
func NewClientFromConfig(cfg Config) (*gateway.Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Model.Provider))
	model := cfg.Model.Model
	if model == "" {
		model = gateway.DefaultModel(provider)
	}

	var adapter gateway.ProviderAdapter
	switch provider {
	case "openai":
		a, err := gateway.NewOpenAIAdapter(gateway.OpenAIConfig{
			APIKey:  cfg.Model.APIKey,
			BaseURL: cfg.Model.BaseURL,
			Model:   model,
		})
		if err != nil {
			return nil, err
		}
		adapter = a
	default:
		a, err := gateway.NewGollmAdapter(gateway.GollmConfig{
			Provider:    provider,
			Model:       model,
			APIKey:      cfg.Model.APIKey,
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
		})
		if err != nil {
			return nil, err
		}
		adapter = a
	}

	policy := gateway.DefaultRetryPolicy()
	policy.MaxRetries = cfg.Model.MaxRetries
	log := logger.Named("gateway")
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		log.WithError(err).WithField("attempt", attempt).WithField("delay", delay).Warn("retrying model request")
	}

	return gateway.NewClient(
		gateway.WithProvider(provider, adapter),
		gateway.WithDefaultProvider(provider),
		gateway.WithDefaultModel(model),
		gateway.WithSampling(cfg.Model.Temperature, cfg.Model.MaxTokens),
		gateway.WithMiddleware(gateway.LoggingMiddleware(log), gateway.RetryMiddleware(policy)),
		gateway.WithStreamMiddleware(gateway.LoggingStreamMiddleware(log), gateway.RetryStreamMiddleware(policy)),
	), nil
}

// WorkspaceOptions converts the tool limits into tools.Options.
func (c Config) WorkspaceOptions() tools.Options {
	return tools.Options{
		MaxFileSize:        c.Tools.MaxFileSize,
		MaxDepth:           c.Tools.MaxDepth,
		MaxSearchResults:   c.Tools.MaxSearchResults,
		CommandTimeout:     time.Duration(c.Tools.CommandTimeout) * time.Second,
		MaxCommandTimeout:  time.Duration(c.Tools.MaxCommandTimeout) * time.Second,
		HTTPTimeout:        time.Duration(c.Tools.HTTPTimeout) * time.Second,
		AllowedGitCommands: c.Tools.AllowedGitCommands,
	}
}

// SessionConfig converts the agent settings into an agentloop.SessionConfig
// rooted at workingDir.
func (c Config) SessionConfig(workingDir string) agentloop.SessionConfig {
	sc := agentloop.DefaultSessionConfig()
	sc.MaxIterations = c.Agent.MaxIterations
	sc.SystemPrompt = c.Agent.SystemPrompt
	sc.WorkingDir = workingDir
	sc.Model = c.Model.Model
	if sc.Model == "" {
		sc.Model = gateway.DefaultModel(strings.ToLower(c.Model.Provider))
	}
	sc.EnableLoopDetection = c.Agent.LoopDetection
	if c.Agent.LoopDetectionWindow > 0 {
		sc.LoopDetectionWindow = c.Agent.LoopDetectionWindow
	}
	if len(c.Tools.TruncationLimits) > 0 {
		sc.ToolOutputLimits = c.Tools.TruncationLimits
	}
	return sc
}
