package agent

import (
	"context"
	"fmt"
	"math"
	"strings"

	"voxelpilot.ai/internal/protocol"
)

const maxChatLen = 256

// resolve turns a target into a block position using the latest observation.
func (s *Session) resolve(t Target) (Pos, error) {
	if !t.IsPlayer() {
		return t.Pos, nil
	}
	_, obs, _ := s.latestObs()
	for _, e := range obs.Entities {
		if e.Type == "AGENT" && strings.EqualFold(e.ID, t.Player) {
			return Pos(e.Pos), nil
		}
	}
	return Pos{}, fmt.Errorf("player %s is not in view", t.Player)
}

func (s *Session) MoveTo(ctx context.Context, t Target) error {
	p, err := s.resolve(t)
	if err != nil {
		return err
	}
	return s.act(ctx, nil, []protocol.TaskReq{{
		ID:        s.nextID("K_move"),
		Type:      protocol.TaskMoveTo,
		Target:    p,
		Tolerance: 1.2,
	}}, nil)
}

func (s *Session) Follow(ctx context.Context, player string) error {
	if strings.TrimSpace(player) == "" {
		return fmt.Errorf("follow: empty player")
	}
	return s.act(ctx, nil, []protocol.TaskReq{{
		ID:       s.nextID("K_follow"),
		Type:     protocol.TaskFollow,
		TargetID: player,
		Distance: 2.0,
	}}, nil)
}

// LookAt turns the agent toward t. Facing is tracked by the pilot; the world
// protocol has no look instant.
func (s *Session) LookAt(ctx context.Context, t Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(t)
	if err != nil {
		return err
	}
	_, obs, _ := s.latestObs()
	yaw := yawToward(Pos(obs.Self.Pos), p)
	s.mu.Lock()
	s.yaw = yaw
	s.mu.Unlock()
	return nil
}

// yawToward returns degrees in [0,360), 0 facing +z, 90 facing -x.
func yawToward(from, to Pos) int {
	dx := float64(to[0] - from[0])
	dz := float64(to[2] - from[2])
	if dx == 0 && dz == 0 {
		return 0
	}
	deg := math.Atan2(-dx, dz) * 180 / math.Pi
	y := int(math.Round(deg))
	return ((y % 360) + 360) % 360
}

// CollectBlock gathers a visible dropped item of the given type, or mines the
// block at *at when a position is given.
func (s *Session) CollectBlock(ctx context.Context, blockType string, at *Pos) error {
	item := strings.ToUpper(strings.TrimSpace(blockType))
	if item == "" {
		return fmt.Errorf("collectBlock: empty block type")
	}
	if at != nil {
		return s.act(ctx, nil, []protocol.TaskReq{{
			ID:       s.nextID("K_mine"),
			Type:     protocol.TaskMine,
			BlockPos: *at,
		}}, nil)
	}

	_, obs, _ := s.latestObs()
	self := Pos(obs.Self.Pos)
	best, bestDist := "", math.MaxInt
	for _, e := range obs.Entities {
		if e.Type != "ITEM" || !strings.EqualFold(e.Item, item) {
			continue
		}
		if d := manhattan(self, Pos(e.Pos)); d < bestDist {
			best, bestDist = e.ID, d
		}
	}
	if best == "" {
		return fmt.Errorf("no %s in view", strings.ToLower(item))
	}
	return s.act(ctx, nil, []protocol.TaskReq{{
		ID:       s.nextID("K_gather"),
		Type:     protocol.TaskGather,
		TargetID: best,
	}}, nil)
}

func manhattan(a, b Pos) int {
	d := 0
	for i := range a {
		v := a[i] - b[i]
		if v < 0 {
			v = -v
		}
		d += v
	}
	return d
}

// Give offers item to player as a one-sided trade.
func (s *Session) Give(ctx context.Context, player, item string, count int) error {
	item = strings.ToUpper(strings.TrimSpace(item))
	if player == "" || item == "" {
		return fmt.Errorf("give: missing player or item")
	}
	if count <= 0 {
		count = 1
	}
	_, obs, _ := s.latestObs()
	have := 0
	for _, st := range obs.Inventory {
		if strings.EqualFold(st.Item, item) {
			have += st.Count
		}
	}
	if have < count {
		return fmt.Errorf("not enough %s (have %d, need %d)", strings.ToLower(item), have, count)
	}
	return s.act(ctx, []protocol.InstantReq{{
		ID:      s.nextID("I_give"),
		Type:    protocol.InstantOfferTrade,
		To:      player,
		Offer:   [][]interface{}{{item, count}},
		Request: [][]interface{}{},
	}}, nil, nil)
}

// Chat says text on the local channel, waiting for the outbound chat budget.
func (s *Session) Chat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if r := []rune(text); len(r) > maxChatLen {
		text = string(r[:maxChatLen])
	}
	if err := s.waitChatHold(ctx); err != nil {
		return err
	}
	if err := s.chatLimiter.Wait(ctx); err != nil {
		return err
	}
	return s.act(ctx, []protocol.InstantReq{{
		ID:      s.nextID("I_say"),
		Type:    protocol.InstantSay,
		Channel: "LOCAL",
		Text:    text,
	}}, nil, nil)
}

// Stop cancels every task the world reports as running.
func (s *Session) Stop(ctx context.Context) error {
	_, obs, _ := s.latestObs()
	if len(obs.Tasks) == 0 {
		return nil
	}
	ids := make([]string, 0, len(obs.Tasks))
	for _, t := range obs.Tasks {
		ids = append(ids, t.TaskID)
	}
	return s.act(ctx, nil, nil, ids)
}
