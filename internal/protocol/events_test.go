package protocol

import (
	"encoding/json"
	"testing"
)

func TestEventChat(t *testing.T) {
	var obs ObsMsg
	raw := `{"type":"OBS","protocol_version":"0.9","tick":12,"agent_id":"A1",
	  "self":{"pos":[1,0,2],"yaw":0,"hp":20,"hunger":20,"stamina":1,"status":[]},
	  "inventory":[{"item":"PLANK","count":3}],
	  "entities":[],"tasks":[],
	  "events":[
	    {"t":12,"type":"CHAT","from":"steve","channel":"LOCAL","text":"come here"},
	    {"t":12,"type":"ACTION_RESULT","ref":"K_1","ok":false,"code":"E_BLOCKED","message":"path blocked"},
	    {"t":12,"type":"CHAT","channel":"LOCAL","text":"no sender"}
	  ]}`
	if err := json.Unmarshal([]byte(raw), &obs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(obs.Events) != 3 {
		t.Fatalf("events: got %d", len(obs.Events))
	}

	c, ok := obs.Events[0].Chat()
	if !ok || c.From != "steve" || c.Channel != "LOCAL" || c.Text != "come here" {
		t.Fatalf("chat: %+v ok=%v", c, ok)
	}
	if _, ok := obs.Events[1].Chat(); ok {
		t.Fatalf("action result decoded as chat")
	}
	if _, ok := obs.Events[2].Chat(); ok {
		t.Fatalf("chat without sender accepted")
	}

	ar, ok := obs.Events[1].ActionResult()
	if !ok || ar.OK || ar.Ref != "K_1" || ar.Code != "E_BLOCKED" || ar.Message != "path blocked" {
		t.Fatalf("action result: %+v ok=%v", ar, ok)
	}
}

func TestIsSupportedVersion(t *testing.T) {
	for _, v := range []string{"", Version, "1.0"} {
		if !IsSupportedVersion(v) {
			t.Fatalf("expected %q supported", v)
		}
	}
	if IsSupportedVersion("0.1") {
		t.Fatalf("expected 0.1 rejected")
	}
}
