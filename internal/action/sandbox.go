// Package action parses and runs action blocks against an allow-list of agent
// capabilities.
package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voxelpilot.ai/internal/audit"
	"voxelpilot.ai/internal/logging"
	"voxelpilot.ai/internal/metrics"
)

var ErrActionExecutionFailed = errors.New("action execution failed")

// NoActionNotice is sent when a block holds no calls.
const NoActionNotice = "I am sorry, I don't understand."

type State string

const (
	StateIdle      State = "idle"
	StateParsing   State = "parsing"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Invocation identifies one block run.
type Invocation struct {
	RunID   string
	User    string // player whose chat triggered the run
	Message string
}

type Config struct {
	Agent   Agent
	Logger  zerolog.Logger
	Audit   *audit.Logger
	Metrics *metrics.Metrics
}

type Sandbox struct {
	agent   Agent
	log     zerolog.Logger
	audit   *audit.Logger
	metrics *metrics.Metrics

	runMu sync.Mutex

	mu    sync.Mutex
	state State
}

func New(cfg Config) *Sandbox {
	return &Sandbox{
		agent:   cfg.Agent,
		log:     logging.Component(cfg.Logger, "sandbox"),
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
		state:   StateIdle,
	}
}

func (s *Sandbox) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sandbox) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Execute runs block for inv. Every call is parsed and validated before the
// first one runs; a runtime failure skips the rest of the block. Failures are
// echoed to chat and returned wrapped in ErrActionExecutionFailed.
func (s *Sandbox) Execute(ctx context.Context, block string, inv Invocation) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	defer s.setState(StateIdle)

	if inv.RunID == "" {
		inv.RunID = uuid.NewString()
	}
	log := s.log.With().Str("run_id", inv.RunID).Str("user", inv.User).Logger()
	entry := audit.Entry{
		RunID:   inv.RunID,
		Time:    time.Now().UTC(),
		User:    inv.User,
		Message: inv.Message,
		Block:   block,
	}

	s.setState(StateParsing)
	calls, err := s.prepare(block)
	if err != nil {
		return s.fail(ctx, log, &entry, err.Error())
	}
	if len(calls) == 0 {
		s.setState(StateCompleted)
		entry.State = string(StateCompleted)
		s.record(log, entry)
		log.Info().Msg("empty action block")
		if err := s.agent.Chat(ctx, NoActionNotice); err != nil {
			log.Warn().Err(err).Msg("chat notice failed")
		}
		return nil
	}

	s.setState(StateExecuting)
	entry.Calls = make([]audit.Call, len(calls))
	for i, pc := range calls {
		entry.Calls[i] = audit.Call{Verb: pc.call.Verb, Args: pc.call.Args, Result: "skipped"}
	}
	for i, pc := range calls {
		log.Debug().Int("line", pc.call.Line).Str("call", pc.call.String()).Msg("executing")
		if err := s.invoke(ctx, pc, inv); err != nil {
			entry.Calls[i].Result = "failed"
			entry.Calls[i].Error = err.Error()
			s.metrics.Action(pc.call.Verb, "failed")
			return s.fail(ctx, log, &entry, fmt.Sprintf("%s: %v", pc.call.Verb, err))
		}
		entry.Calls[i].Result = "ok"
		s.metrics.Action(pc.call.Verb, "ok")
	}

	s.setState(StateCompleted)
	entry.State = string(StateCompleted)
	s.record(log, entry)
	log.Info().Int("calls", len(calls)).Msg("action block completed")
	return nil
}

type preparedCall struct {
	call Call
	capb capability
}

func (s *Sandbox) prepare(block string) ([]preparedCall, error) {
	calls, err := Parse(block)
	if err != nil {
		return nil, err
	}
	out := make([]preparedCall, 0, len(calls))
	for _, c := range calls {
		capb, err := validate(c)
		if err != nil {
			verb := c.Verb
			if _, ok := capabilities[verb]; !ok {
				verb = "unknown"
			}
			s.metrics.Action(verb, "rejected")
			return nil, err
		}
		out = append(out, preparedCall{call: c, capb: capb})
	}
	return out, nil
}

// invoke runs one capability, turning a panic into an error.
func (s *Sandbox) invoke(ctx context.Context, pc preparedCall, inv Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return pc.capb.run(ctx, s.agent, inv, pc.call.Args)
}

func (s *Sandbox) fail(ctx context.Context, log zerolog.Logger, entry *audit.Entry, msg string) error {
	s.setState(StateFailed)
	entry.State = string(StateFailed)
	entry.Error = msg
	s.record(log, *entry)
	log.Warn().Str("error", msg).Msg("action block failed")
	if err := s.agent.Chat(ctx, "error: "+firstLine(msg)); err != nil {
		log.Warn().Err(err).Msg("chat error echo failed")
	}
	return fmt.Errorf("%w: %s", ErrActionExecutionFailed, msg)
}

func (s *Sandbox) record(log zerolog.Logger, e audit.Entry) {
	if err := s.audit.WriteEntry(e); err != nil {
		log.Warn().Err(err).Msg("audit write failed")
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
