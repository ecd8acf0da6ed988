// Package agent is the live websocket session of the pilot in the world.
package agent

import (
	"fmt"
	"strings"
	"time"
)

type Pos [3]int

func (p Pos) String() string { return fmt.Sprintf("%d,%d,%d", p[0], p[1], p[2]) }

// Target is either a player (by agent id) or a block position.
type Target struct {
	Player string
	Pos    Pos
}

func PlayerTarget(name string) Target { return Target{Player: strings.TrimSpace(name)} }
func PosTarget(p Pos) Target          { return Target{Pos: p} }

func (t Target) IsPlayer() bool { return t.Player != "" }

func (t Target) String() string {
	if t.IsPlayer() {
		return t.Player
	}
	return t.Pos.String()
}

type EventKind string

const (
	EventLogin  EventKind = "login"
	EventSpawn  EventKind = "spawn"
	EventChat   EventKind = "chat"
	EventKicked EventKind = "kicked"
	EventError  EventKind = "error"
)

// Event is delivered on Session.Events in arrival order.
type Event struct {
	Kind     EventKind
	At       time.Time
	Username string // chat sender
	Text     string // chat text
	Reason   string // kick reason
	Err      error
}

// Status is a point-in-time view of the session.
type Status struct {
	Connected   bool   `json:"connected"`
	AgentID     string `json:"agent_id,omitempty"`
	Name        string `json:"name"`
	WorldURL    string `json:"world_url"`
	LastObsTick uint64 `json:"last_obs_tick"`
	Pos         Pos    `json:"pos"`
	Yaw         int    `json:"yaw"`
	LastError   string `json:"last_error,omitempty"`
}
