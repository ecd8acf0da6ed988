package protocol

import "encoding/json"

const Version = "0.9"

var supportedVersions = map[string]struct{}{
	"0.9": {},
	"1.0": {},
}

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeObs     = "OBS"
	TypeAct     = "ACT"
	TypeAck     = "ACK"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// IsSupportedVersion reports whether a server message version can be consumed.
// An empty version is accepted; older servers omit it on some frames.
func IsSupportedVersion(v string) bool {
	if v == "" {
		return true
	}
	_, ok := supportedVersions[v]
	return ok
}
