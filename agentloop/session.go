package agentloop

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/martinemde/codebuddy/gateway"
	"github.com/martinemde/codebuddy/logger"
	"github.com/sirupsen/logrus"
)

// SessionState is the orchestrator's position in a task.
type SessionState string

const (
	StateReady            SessionState = "READY"
	StateAwaitingModel    SessionState = "AWAITING_MODEL"
	StateDispatchingTools SessionState = "DISPATCHING_TOOLS"
	StateComplete         SessionState = "COMPLETE"
	StateExhausted        SessionState = "EXHAUSTED"
)

// OutcomeStatus distinguishes a finished task from one that ran out of
// iterations.
type OutcomeStatus int

const (
	OutcomeComplete OutcomeStatus = iota
	OutcomeExhausted
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeComplete:
		return "complete"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("OutcomeStatus(%d)", int(s))
	}
}

// ExhaustedResponse is the outcome text when the iteration cap is reached.
const ExhaustedResponse = "Max iterations reached without completing the task."

// DefaultMaxIterations bounds model/tool round trips per request.
const DefaultMaxIterations = 10

// Outcome is the terminal result of one request.
type Outcome struct {
	Status     OutcomeStatus `json:"status"`
	Response   string        `json:"response"`
	Iterations int           `json:"iterations"`
}

// Complete reports whether the model finished with a final answer.
func (o *Outcome) Complete() bool { return o != nil && o.Status == OutcomeComplete }

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	MaxIterations int `json:"max_iterations"`
	// SystemPrompt replaces DefaultSystemPrompt when non-empty.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// WorkingDir enables the environment, git and project-doc prompt sections.
	WorkingDir          string         `json:"working_dir,omitempty"`
	Model               string         `json:"model,omitempty"`
	EnableLoopDetection bool           `json:"enable_loop_detection"`
	LoopDetectionWindow int            `json:"loop_detection_window"`
	ToolOutputLimits    map[string]int `json:"tool_output_limits,omitempty"`
	ValidateArguments   bool           `json:"validate_arguments"`
	// ContextWindow overrides the catalog's context size for Model.
	ContextWindow int `json:"context_window,omitempty"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxIterations:       DefaultMaxIterations,
		EnableLoopDetection: true,
		LoopDetectionWindow: DefaultLoopWindow,
		ValidateArguments:   true,
	}
}

// Session drives one conversation: model turns, tool dispatch and the
// iteration bound. Requests on one Session run one at a time.
type Session struct {
	id         string
	gw         gateway.Gateway
	registry   *Registry
	dispatcher *Dispatcher
	conv       *Conversation
	emitter    *EventEmitter
	config     SessionConfig
	log        *logrus.Entry

	run   sync.Mutex // held for the whole of Run, Chat and ChatStream
	mu    sync.Mutex
	state SessionState
}

// NewSession creates a session. A nil cfg uses DefaultSessionConfig.
func NewSession(gw gateway.Gateway, reg *Registry, cfg *SessionConfig) *Session {
	id := uuid.New().String()

	config := DefaultSessionConfig()
	if cfg != nil {
		config = *cfg
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultMaxIterations
	}
	if config.LoopDetectionWindow <= 0 {
		config.LoopDetectionWindow = DefaultLoopWindow
	}
	if reg == nil {
		reg, _ = NewRegistry()
	}

	emitter := NewEventEmitter(id, 256)
	log := logger.Named("agentloop").WithField("session", id[:8])
	return &Session{
		id:       id,
		gw:       gw,
		registry: reg,
		dispatcher: NewDispatcher(reg,
			WithEmitter(emitter),
			WithCharLimits(config.ToolOutputLimits),
			WithSchemaValidation(config.ValidateArguments),
		),
		conv:    NewConversation(),
		emitter: emitter,
		config:  config,
		log:     log,
		state:   StateReady,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Registry returns the tools available to the model.
func (s *Session) Registry() *Registry { return s.registry }

// Messages returns a copy of the conversation log.
func (s *Session) Messages() []gateway.Message { return s.conv.Messages() }

// Iteration returns the round trips completed by the current request.
func (s *Session) Iteration() int { return s.conv.Iteration() }

// Events returns the event channel.
func (s *Session) Events() <-chan Event { return s.emitter.Events() }

// Reset clears the conversation and returns to READY.
func (s *Session) Reset() {
	s.run.Lock()
	defer s.run.Unlock()
	s.conv.Reset()
	s.setState(StateReady)
}

// Close closes the event channel. The session must not be used afterwards.
func (s *Session) Close() {
	s.emitter.Close()
}

// Run starts a fresh task: the conversation is reset, then the system prompt
// and task are appended and the loop runs to completion or exhaustion.
func (s *Session) Run(ctx context.Context, task string) (*Outcome, error) {
	s.run.Lock()
	defer s.run.Unlock()
	s.conv.Reset()
	s.begin(task)
	return s.loop(ctx, nil)
}

// Chat continues the conversation with another user message.
func (s *Session) Chat(ctx context.Context, input string) (*Outcome, error) {
	s.run.Lock()
	defer s.run.Unlock()
	s.begin(input)
	return s.loop(ctx, nil)
}

// ChatStream is Chat with the final answer streamed. Tool-bearing turns are
// blocking; once a turn has no tool calls, the answer is requested again as
// a stream and each fragment is passed to onFragment. If the stream is cut
// short, the text received so far is still appended to the log.
func (s *Session) ChatStream(ctx context.Context, input string, onFragment func(string)) (*Outcome, error) {
	s.run.Lock()
	defer s.run.Unlock()
	if onFragment == nil {
		onFragment = func(string) {}
	}
	s.begin(input)
	return s.loop(ctx, onFragment)
}

func (s *Session) begin(input string) {
	s.conv.ResetIteration()
	if s.conv.Len() == 0 {
		s.conv.Append(gateway.RoleSystem, s.systemPrompt())
	}
	s.conv.Append(gateway.RoleUser, input)
	s.setState(StateReady)
	s.emitter.Emit(EventUserInput, map[string]any{"content": input})
	s.log.WithField("input", logger.Truncate(input, 120)).Info("task started")
}

func (s *Session) systemPrompt() string {
	return BuildSystemPrompt(PromptOptions{
		Base:       s.config.SystemPrompt,
		WorkingDir: s.config.WorkingDir,
		Model:      s.config.Model,
		ToolNames:  s.registry.Names(),
	})
}

func (s *Session) loop(ctx context.Context, onFragment func(string)) (*Outcome, error) {
	for {
		if err := ctx.Err(); err != nil {
			s.setState(StateReady)
			s.emitter.Emit(EventError, map[string]any{"error": err.Error()})
			return nil, err
		}

		s.setState(StateAwaitingModel)
		s.emitter.Emit(EventModelRequest, map[string]any{"iteration": s.conv.Iteration()})
		resp, err := s.gw.Chat(ctx, s.conv.Messages(), s.registry.Definitions())
		if err != nil {
			return nil, s.fail(err)
		}
		s.checkContextUsage()

		if !resp.HasToolCalls() {
			text := resp.Content
			if onFragment != nil {
				if text, err = s.streamFinal(ctx, onFragment); err != nil {
					return nil, s.fail(err)
				}
			} else {
				s.conv.Append(gateway.RoleAssistant, text)
			}
			return s.finish(OutcomeComplete, text), nil
		}

		s.conv.AppendAssistant(resp.Content, resp.ToolCalls)
		s.emitter.Emit(EventAssistantText, map[string]any{
			"text":       resp.Content,
			"tool_calls": len(resp.ToolCalls),
		})

		s.setState(StateDispatchingTools)
		for _, res := range s.dispatcher.ExecuteAll(ctx, resp.ToolCalls) {
			s.conv.AppendToolResult(res)
		}
		n := s.conv.IncrementIteration()

		// An abort during the batch wins over the iteration cap.
		if err := ctx.Err(); err != nil {
			s.setState(StateReady)
			s.emitter.Emit(EventError, map[string]any{"error": err.Error()})
			return nil, err
		}

		if n >= s.config.MaxIterations {
			s.emitter.Emit(EventIterationCap, map[string]any{"iterations": n})
			s.log.WithField("iterations", n).Warn("iteration cap reached")
			return s.finish(OutcomeExhausted, ExhaustedResponse), nil
		}

		if s.config.EnableLoopDetection {
			window := s.config.LoopDetectionWindow
			if DetectLoop(s.conv.Messages(), window) {
				note := loopWarning(window)
				s.conv.Append(gateway.RoleUser, note)
				s.emitter.Emit(EventLoopDetection, map[string]any{"message": note})
				s.log.WithField("window", window).Warn("tool call loop detected")
			}
		}
	}
}

// streamFinal requests the final answer as a stream and appends it to the
// log. On cancellation or a stream error the partial text is appended before
// the error is returned.
func (s *Session) streamFinal(ctx context.Context, onFragment func(string)) (string, error) {
	events, err := s.gw.ChatStream(ctx, s.conv.Messages())
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	keepPartial := func() {
		if sb.Len() > 0 {
			s.conv.Append(gateway.RoleAssistant, sb.String())
		}
	}
	for {
		select {
		case <-ctx.Done():
			keepPartial()
			return "", ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := ctx.Err(); err != nil {
					keepPartial()
					return "", err
				}
				text := sb.String()
				s.conv.Append(gateway.RoleAssistant, text)
				return text, nil
			}
			switch ev.Type {
			case gateway.StreamTextDelta:
				if ev.Delta == "" {
					continue
				}
				sb.WriteString(ev.Delta)
				onFragment(ev.Delta)
				s.emitter.Emit(EventTextFragment, map[string]any{"delta": ev.Delta})
			case gateway.StreamError:
				keepPartial()
				if ev.Err == nil {
					return "", fmt.Errorf("stream ended with an error")
				}
				return "", ev.Err
			}
		}
	}
}

func (s *Session) finish(status OutcomeStatus, response string) *Outcome {
	out := &Outcome{Status: status, Response: response, Iterations: s.conv.Iteration()}
	if status == OutcomeComplete {
		s.conv.MarkComplete(response)
		s.setState(StateComplete)
	} else {
		s.setState(StateExhausted)
	}
	s.emitter.Emit(EventTaskEnd, map[string]any{
		"status":     status.String(),
		"iterations": out.Iterations,
	})
	s.log.WithFields(logrus.Fields{
		"status":     status.String(),
		"iterations": out.Iterations,
	}).Info("task finished")
	return out
}

// fail reports a gateway error and returns the session to READY.
func (s *Session) fail(err error) error {
	s.setState(StateReady)
	s.emitter.Emit(EventError, map[string]any{"error": err.Error()})
	s.log.WithError(err).Error("model call failed")
	return fmt.Errorf("model gateway: %w", err)
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()
	if prev != state {
		s.emitter.Emit(EventStateChange, map[string]any{"from": string(prev), "to": string(state)})
	}
}

// checkContextUsage warns when the log approaches the model's context window.
func (s *Session) checkContextUsage() {
	window := s.config.ContextWindow
	if window <= 0 {
		if info := gateway.GetModelInfo(s.config.Model); info != nil {
			window = info.ContextWindow
		}
	}
	if window <= 0 {
		return
	}

	approxTokens := s.conv.contentChars() / 4
	if approxTokens > window*8/10 {
		pct := approxTokens * 100 / window
		msg := fmt.Sprintf("Context usage at ~%d%% of context window", pct)
		s.emitter.Emit(EventWarning, map[string]any{"message": msg})
		s.log.WithField("approx_tokens", approxTokens).Warn(msg)
	}
}
