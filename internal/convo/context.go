// Package convo holds the rolling conversation context fed to the model.
package convo

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrContextNotFound = errors.New("context not found")

type Exchange struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// ConversationContext is the preamble of a named context plus the exchanges
// appended since it was loaded.
type ConversationContext struct {
	Name      string     `json:"name,omitempty"`
	Preamble  string     `json:"preamble,omitempty"`
	Exchanges []Exchange `json:"exchanges,omitempty"`
}

func (c ConversationContext) IsEmpty() bool {
	return c.Preamble == "" && len(c.Exchanges) == 0
}

// Text renders the context as the single blob placed after "Human: ". With no
// preamble the first exchange rides on that leading turn marker.
func (c ConversationContext) Text() string {
	var sb strings.Builder
	sb.WriteString(c.Preamble)
	for _, ex := range c.Exchanges {
		if sb.Len() > 0 {
			sb.WriteString("\n\nHuman: ")
		}
		sb.WriteString(ex.User)
		sb.WriteString("\n\nAssistant: ")
		sb.WriteString(ex.Assistant)
	}
	return sb.String()
}

func (c ConversationContext) clone() ConversationContext {
	c.Exchanges = append([]Exchange(nil), c.Exchanges...)
	return c
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidName reports whether name can address a stored context.
func ValidName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("invalid context name %q", name)
	}
	return nil
}
