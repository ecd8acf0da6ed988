package protocol

type ObsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AgentID         string `json:"agent_id"`
	WorldID         string `json:"world_id,omitempty"`

	Self      SelfObs     `json:"self"`
	Inventory []ItemStack `json:"inventory"`

	Entities []EntityObs `json:"entities"`
	Events   []Event     `json:"events"`
	Tasks    []TaskObs   `json:"tasks"`
}

type SelfObs struct {
	Pos     [3]int   `json:"pos"`
	Yaw     int      `json:"yaw"`
	HP      int      `json:"hp"`
	Hunger  int      `json:"hunger"`
	Stamina float64  `json:"stamina"`
	Status  []string `json:"status"`
}

type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type EntityObs struct {
	ID   string   `json:"id"`
	Type string   `json:"type"` // "AGENT", "CHEST", "ITEM", ...
	Pos  [3]int   `json:"pos"`
	Tags []string `json:"tags,omitempty"`

	// Set for "ITEM" entities.
	Item  string `json:"item,omitempty"`
	Count int    `json:"count,omitempty"`
}

type TaskObs struct {
	TaskID   string  `json:"task_id"`
	Kind     string  `json:"kind"`
	Progress float64 `json:"progress"`
	Target   [3]int  `json:"target,omitempty"`
	EtaTicks int     `json:"eta_ticks,omitempty"`
}

// ACT (client -> server)
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	AgentID         string       `json:"agent_id"`
	Instants        []InstantReq `json:"instants,omitempty"`
	Tasks           []TaskReq    `json:"tasks,omitempty"`
	Cancel          []string     `json:"cancel,omitempty"`
}

type InstantReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	Channel string `json:"channel,omitempty"`
	Text    string `json:"text,omitempty"`
	To      string `json:"to,omitempty"`

	Offer   [][]interface{} `json:"offer,omitempty"`   // [["PLANK",10], ...]
	Request [][]interface{} `json:"request,omitempty"` // same shape
}

type TaskReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	Target    [3]int  `json:"target,omitempty"`
	Tolerance float64 `json:"tolerance,omitempty"`
	Distance  float64 `json:"distance,omitempty"`

	TargetID string `json:"target_id,omitempty"`
	BlockPos [3]int `json:"block_pos,omitempty"`
}

// Instant and task kinds sent by the pilot.
const (
	InstantSay        = "SAY"
	InstantOfferTrade = "OFFER_TRADE"

	TaskMoveTo = "MOVE_TO"
	TaskFollow = "FOLLOW"
	TaskGather = "GATHER"
	TaskMine   = "MINE"
)
