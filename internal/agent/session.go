package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"voxelpilot.ai/internal/logging"
	"voxelpilot.ai/internal/protocol"
)

type SessionConfig struct {
	WorldWSURL  string
	Name        string
	ResumeToken string

	// Outbound chat budget; the world rate-limits SAY per agent.
	ChatPerSecond float64
	ChatBurst     int

	// RateLimitBackoff pauses outbound chat after the world reports E_RATE_LIMIT.
	RateLimitBackoff time.Duration

	EventBuffer int
	Logger      zerolog.Logger

	// OnConnected is called with the new connection state.
	OnConnected func(bool)
}

type Session struct {
	cfg SessionConfig
	log zerolog.Logger

	mu sync.RWMutex

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	connected bool
	spawned   bool
	lastErr   string

	conn    *websocket.Conn
	writeMu sync.Mutex

	agentID     string
	resumeToken string

	lastObsTick uint64
	lastObs     protocol.ObsMsg
	yaw         int

	obsNotify chan struct{}
	events    chan Event

	chatLimiter   *rate.Limiter
	chatHeldUntil time.Time
	seq           uint64
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Name == "" {
		cfg.Name = "pilot"
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.ChatPerSecond <= 0 {
		cfg.ChatPerSecond = 1
	}
	if cfg.ChatBurst <= 0 {
		cfg.ChatBurst = 1
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = 2 * time.Second
	}
	return &Session{
		cfg:         cfg,
		log:         logging.Component(cfg.Logger, "session").With().Str("agent", cfg.Name).Logger(),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		resumeToken: cfg.ResumeToken,
		obsNotify:   make(chan struct{}, 1),
		events:      make(chan Event, cfg.EventBuffer),
		chatLimiter: rate.NewLimiter(rate.Limit(cfg.ChatPerSecond), cfg.ChatBurst),
	}
}

// Events delivers login, spawn, chat, kicked and error events. The channel is
// closed after Close returns.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		// Wake a blocking ReadMessage.
		s.Disconnect()
		s.startOnce.Do(func() { close(s.done) })
		<-s.done
		close(s.events)
	})
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	wasConnected := s.connected
	s.connected = false
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
	if wasConnected && s.cfg.OnConnected != nil {
		s.cfg.OnConnected(false)
	}
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Connected:   s.connected,
		AgentID:     s.agentID,
		Name:        s.cfg.Name,
		WorldURL:    s.cfg.WorldWSURL,
		LastObsTick: s.lastObsTick,
		Pos:         Pos(s.lastObs.Self.Pos),
		Yaw:         s.yaw,
		LastError:   s.lastErr,
	}
}

func (s *Session) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case <-s.stop:
		return
	default:
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Str("event", string(ev.Kind)).Msg("event buffer full; dropping event")
	}
}

func (s *Session) run() {
	defer close(s.done)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-s.stop:
			s.Disconnect()
			return
		default:
		}

		err := s.connectAndReadLoop()
		if err == nil {
			// Clean exit.
			return
		}
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.Disconnect()

		var ce *websocket.CloseError
		if errors.As(err, &ce) && ce.Text != "" {
			s.log.Warn().Int("code", ce.Code).Str("reason", ce.Text).Msg("kicked")
			s.emit(Event{Kind: EventKicked, Reason: ce.Text})
		} else {
			s.log.Warn().Err(err).Dur("backoff", backoff).Msg("session error")
			s.emit(Event{Kind: EventError, Err: err})
		}

		select {
		case <-s.stop:
			return
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
		}
	}
}

func (s *Session) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(s.cfg.WorldWSURL, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hello := protocol.HelloMsg{
		Type:              protocol.TypeHello,
		ProtocolVersion:   protocol.Version,
		SupportedVersions: []string{protocol.Version},
		AgentName:         s.cfg.Name,
		Capabilities:      protocol.HelloCapabilities{MaxQueue: 8},
	}
	s.mu.RLock()
	rt := strings.TrimSpace(s.resumeToken)
	s.mu.RUnlock()
	if rt != "" {
		hello.Auth = &protocol.HelloAuth{Token: rt}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.spawned = false
	s.mu.Unlock()

	for {
		select {
		case <-s.stop:
			_ = conn.Close()
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			select {
			case <-s.stop:
				return nil
			default:
			}
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if !protocol.IsSupportedVersion(base.ProtocolVersion) {
			s.log.Debug().Str("version", base.ProtocolVersion).Str("type", base.Type).Msg("unsupported version; skipping")
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			s.mu.Lock()
			s.agentID = w.AgentID
			s.resumeToken = w.ResumeToken
			s.connected = true
			s.lastErr = ""
			s.mu.Unlock()
			if s.cfg.OnConnected != nil {
				s.cfg.OnConnected(true)
			}
			s.log.Info().Str("agent_id", w.AgentID).Int("tick_rate", w.WorldParams.TickRateHz).Msg("joined the world")
			s.emit(Event{Kind: EventLogin})

		case protocol.TypeObs:
			var o protocol.ObsMsg
			if err := json.Unmarshal(msg, &o); err != nil {
				continue
			}
			s.handleObs(o)

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			if !a.Accepted {
				s.log.Warn().Str("ack_for", a.AckFor).Str("code", a.Code).Str("message", a.Message).Msg("act rejected")
				if a.Code == protocol.ErrRateLimit {
					s.holdChat()
				}
			}
		}
	}
}

func (s *Session) handleObs(o protocol.ObsMsg) {
	s.mu.Lock()
	s.lastObsTick = o.Tick
	s.lastObs = o
	if o.AgentID != "" {
		s.agentID = o.AgentID
	}
	self := s.agentID
	first := !s.spawned
	s.spawned = true
	s.mu.Unlock()

	select {
	case s.obsNotify <- struct{}{}:
	default:
	}

	if first {
		s.log.Info().Uint64("tick", o.Tick).Ints("pos", o.Self.Pos[:]).Msg("spawned")
		s.emit(Event{Kind: EventSpawn})
	}
	for _, e := range o.Events {
		if c, ok := e.Chat(); ok {
			if c.From == self || c.From == s.cfg.Name {
				continue
			}
			s.emit(Event{Kind: EventChat, Username: c.From, Text: c.Text})
			continue
		}
		if r, ok := e.ActionResult(); ok && !r.OK {
			s.log.Warn().Str("ref", r.Ref).Str("code", r.Code).Str("message", r.Message).Msg("action failed in world")
			if r.Code == protocol.ErrRateLimit {
				s.holdChat()
			}
		}
	}
}

// holdChat pushes back the next outbound chat by the rate limit backoff.
func (s *Session) holdChat() {
	until := time.Now().Add(s.cfg.RateLimitBackoff)
	s.mu.Lock()
	if until.After(s.chatHeldUntil) {
		s.chatHeldUntil = until
	}
	s.mu.Unlock()
	s.log.Info().Dur("backoff", s.cfg.RateLimitBackoff).Msg("world rate limited us; holding chat")
}

func (s *Session) waitChatHold(ctx context.Context) error {
	s.mu.RLock()
	d := time.Until(s.chatHeldUntil)
	s.mu.RUnlock()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Session) latestObs() (uint64, protocol.ObsMsg, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastObsTick, s.lastObs, s.agentID
}

func (s *Session) waitForFirstObs(ctx context.Context, timeout time.Duration) (uint64, string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		t, _, aid := s.latestObs()
		if t != 0 {
			return t, aid, nil
		}
		select {
		case <-ctx.Done():
			return 0, "", ctx.Err()
		case <-deadline.C:
			if t, _, aid := s.latestObs(); t != 0 {
				return t, aid, nil
			}
			return 0, "", fmt.Errorf("timeout waiting for obs")
		case <-s.obsNotify:
		}
	}
}

func (s *Session) nextID(prefix string) string {
	s.mu.Lock()
	s.seq++
	n := s.seq
	s.mu.Unlock()
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixMilli(), n)
}

// act sends one ACT frame stamped with the latest observed tick.
func (s *Session) act(ctx context.Context, instants []protocol.InstantReq, tasks []protocol.TaskReq, cancel []string) error {
	tick, agentID, err := s.waitForFirstObs(ctx, 2*time.Second)
	if err != nil {
		return err
	}
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		AgentID:         agentID,
		Instants:        instants,
		Tasks:           tasks,
		Cancel:          cancel,
	}
	b, err := json.Marshal(act)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
