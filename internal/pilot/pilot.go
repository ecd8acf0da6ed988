// Package pilot turns player chat into model-generated actions.
package pilot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voxelpilot.ai/internal/action"
	"voxelpilot.ai/internal/agent"
	"voxelpilot.ai/internal/convo"
	"voxelpilot.ai/internal/extract"
	"voxelpilot.ai/internal/logging"
	"voxelpilot.ai/internal/metrics"
	"voxelpilot.ai/internal/model"
	"voxelpilot.ai/internal/prompt"
)

const ModelUnavailableNotice = "I could not reach the model, try again."

// Session is the part of the agent session the pipeline consumes.
type Session interface {
	Events() <-chan agent.Event
	Chat(ctx context.Context, text string) error
}

type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Executor interface {
	Execute(ctx context.Context, block string, inv action.Invocation) error
}

type Config struct {
	Session   Session
	Model     Model
	Sandbox   Executor
	Store     *convo.Store
	Builder   *prompt.Builder
	Extractor *extract.Extractor

	// Responses older than this, measured from the chat event, are dropped.
	MaxResponseAge time.Duration

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

type Pilot struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time
}

func New(cfg Config) *Pilot {
	if cfg.Builder == nil {
		cfg.Builder = prompt.NewBuilder(nil)
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.New(extract.DefaultOpen, extract.DefaultClose, true)
	}
	return &Pilot{
		cfg: cfg,
		log: logging.Component(cfg.Logger, "pilot"),
		now: time.Now,
	}
}

// Run consumes session events until ctx is done or the event stream closes.
// Chat events are handled one at a time in arrival order.
func (p *Pilot) Run(ctx context.Context) error {
	events := p.cfg.Session.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ctx, ev)
		}
	}
}

func (p *Pilot) handleEvent(ctx context.Context, ev agent.Event) {
	switch ev.Kind {
	case agent.EventLogin:
		p.log.Info().Msg("pilot joined the world")
	case agent.EventSpawn:
		p.log.Info().Msg("pilot spawned")
	case agent.EventKicked:
		p.log.Warn().Str("reason", ev.Reason).Msg("kicked from the world")
	case agent.EventError:
		p.log.Error().Err(ev.Err).Msg("session error")
	case agent.EventChat:
		p.cfg.Metrics.Chat()
		p.HandleChat(ctx, ev)
	}
}

// HandleChat runs the whole pipeline for one chat message. Failures are
// reported to the player and logged; none of them stop the pilot.
func (p *Pilot) HandleChat(ctx context.Context, ev agent.Event) {
	input := strings.TrimSpace(ev.Text)
	if input == "" {
		return
	}
	if ev.At.IsZero() {
		ev.At = p.now()
	}
	if p.handleCommand(ctx, ev.Username, input) {
		p.cfg.Metrics.Run("command")
		return
	}

	runID := uuid.NewString()
	log := p.log.With().Str("run_id", runID).Str("user", ev.Username).Logger()

	active := p.cfg.Store.Current()
	log.Debug().Str("input", input).Str("context", active.Name).Int("exchanges", len(active.Exchanges)).Msg("chat received")

	text := p.cfg.Builder.Build(input, active.Text())
	response, err := p.cfg.Model.Generate(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("model request failed")
		p.cfg.Metrics.Run("model_error")
		if errors.Is(err, model.ErrModelUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			p.say(ctx, log, ModelUnavailableNotice)
		}
		return
	}
	if p.cfg.MaxResponseAge > 0 {
		if age := p.now().Sub(ev.At); age > p.cfg.MaxResponseAge {
			log.Warn().Dur("age", age).Msg("dropping stale model response")
			p.cfg.Metrics.Run("stale")
			return
		}
	}
	if strings.TrimSpace(response) == "" {
		log.Info().Msg("model response was empty; ignoring")
		p.cfg.Metrics.Run("empty")
		return
	}
	log.Debug().Str("response", response).Msg("model response")

	block := p.cfg.Extractor.Extract(response)
	err = p.cfg.Sandbox.Execute(ctx, block, action.Invocation{
		RunID:   runID,
		User:    ev.Username,
		Message: input,
	})
	if err != nil {
		p.cfg.Metrics.Run("action_error")
		return
	}
	if strings.TrimSpace(block) == "" {
		p.cfg.Metrics.Run("no_action")
		return
	}
	p.cfg.Store.Update(input, response)
	p.cfg.Metrics.Run("ok")
}

// handleCommand answers the reserved context commands and reports whether
// input was one of them.
func (p *Pilot) handleCommand(ctx context.Context, user, input string) bool {
	log := p.log.With().Str("user", user).Logger()
	switch {
	case strings.HasPrefix(input, "load context"):
		name := strings.TrimSpace(strings.TrimPrefix(input, "load context"))
		if name == "" {
			return false
		}
		if _, err := p.cfg.Store.Load(name); err != nil {
			log.Warn().Err(err).Str("context", name).Msg("load context failed")
			if errors.Is(err, convo.ErrContextNotFound) {
				p.say(ctx, log, "error: context "+name+" not found")
			} else {
				p.say(ctx, log, "error: "+err.Error())
			}
			return true
		}
		log.Info().Str("context", name).Msg("context loaded")
		p.say(ctx, log, "Loaded context "+name)
		return true

	case strings.HasPrefix(input, "reset context"):
		p.cfg.Store.Clear()
		log.Info().Msg("context cleared")
		p.say(ctx, log, "Cleared context")
		return true

	case strings.HasPrefix(input, "save context"):
		name := strings.TrimSpace(strings.TrimPrefix(input, "save context"))
		if name == "" {
			return false
		}
		if err := p.cfg.Store.Save(name); err != nil {
			log.Warn().Err(err).Str("context", name).Msg("save context failed")
			p.say(ctx, log, "error: "+err.Error())
			return true
		}
		log.Info().Str("context", name).Msg("context saved")
		p.say(ctx, log, "Saved context "+name)
		return true
	}
	return false
}

func (p *Pilot) say(ctx context.Context, log zerolog.Logger, text string) {
	if err := p.cfg.Session.Chat(ctx, text); err != nil {
		log.Warn().Err(err).Msg("chat failed")
	}
}
