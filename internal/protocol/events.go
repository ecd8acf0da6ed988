package protocol

type Event map[string]interface{}

// Event kinds the pilot reacts to.
const (
	EventChat         = "CHAT"
	EventActionResult = "ACTION_RESULT"
)

// ErrRateLimit is the failure code the world attaches to throttled actions.
const ErrRateLimit = "E_RATE_LIMIT"

func (e Event) Kind() string {
	s, _ := e["type"].(string)
	return s
}

func (e Event) str(key string) string {
	s, _ := e[key].(string)
	return s
}

// ChatEvent is the typed view of a CHAT event.
type ChatEvent struct {
	From    string
	Channel string
	Text    string
}

func (e Event) Chat() (ChatEvent, bool) {
	if e.Kind() != EventChat {
		return ChatEvent{}, false
	}
	c := ChatEvent{From: e.str("from"), Channel: e.str("channel"), Text: e.str("text")}
	if c.From == "" {
		return ChatEvent{}, false
	}
	return c, true
}

// ActionResult is the typed view of an ACTION_RESULT event.
type ActionResult struct {
	Ref     string
	OK      bool
	Code    string
	Message string
}

func (e Event) ActionResult() (ActionResult, bool) {
	if e.Kind() != EventActionResult {
		return ActionResult{}, false
	}
	ok, _ := e["ok"].(bool)
	return ActionResult{Ref: e.str("ref"), OK: ok, Code: e.str("code"), Message: e.str("message")}, true
}
