// Package prompt renders the completion prompt sent to the model.
package prompt

import "strings"

const (
	MessageTag = "[[MESSAGE]]"

	HumanMarker     = "Human"
	AssistantMarker = "Assistant"
	StopMarker      = "//"
	EOL             = "\n"
)

// ReplaceMessageTag substitutes the first MessageTag in s with msg.
func ReplaceMessageTag(s, msg string) string {
	return strings.Replace(s, MessageTag, msg, 1)
}

type Builder struct {
	// StopSequences are escaped out of user messages before rendering.
	StopSequences []string
}

func NewBuilder(stops []string) *Builder {
	return &Builder{StopSequences: append([]string(nil), stops...)}
}

// Build renders "Human: <ctx>\n//<msg>\n\nAssistant:".
func (b *Builder) Build(newMessage, activeContext string) string {
	msg := b.EscapeStop(newMessage)
	var sb strings.Builder
	sb.Grow(len(activeContext) + len(msg) + 32)
	sb.WriteString(HumanMarker)
	sb.WriteString(": ")
	sb.WriteString(ReplaceMessageTag(activeContext, msg))
	sb.WriteString(EOL)
	sb.WriteString(StopMarker)
	sb.WriteString(msg)
	sb.WriteString(EOL + EOL)
	sb.WriteString(AssistantMarker)
	sb.WriteString(":")
	return sb.String()
}

// EscapeStop rewrites every stop sequence found in msg so the user cannot end
// generation early. Stops that start with blank lines lose one newline; other
// stops get a zero-width joiner after their first rune.
func (b *Builder) EscapeStop(msg string) string {
	for _, stop := range b.StopSequences {
		if strings.TrimSpace(stop) == "" {
			// Whitespace-only stops cannot be escaped without rewriting the text.
			continue
		}
		trimmed := strings.TrimPrefix(stop, EOL)
		if trimmed != stop && trimmed != "" {
			// Shrinks on every pass, so this terminates.
			for strings.Contains(msg, stop) {
				msg = strings.ReplaceAll(msg, stop, trimmed)
			}
			continue
		}
		msg = strings.ReplaceAll(msg, stop, joined(stop))
	}
	return msg
}

func joined(stop string) string {
	for i := range stop {
		if i > 0 {
			return stop[:i] + "\u200d" + stop[i:]
		}
	}
	return stop + "\u200d"
}
