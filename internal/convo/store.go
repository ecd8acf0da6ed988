package convo

import (
	"fmt"
	"strings"
	"sync"
)

// Library resolves named contexts.
type Library interface {
	Get(name string) (ConversationContext, error)
	Put(c ConversationContext) error
	Names() ([]string, error)
	Close() error
}

// Store owns the single active context.
type Store struct {
	lib          Library
	maxExchanges int

	mu     sync.Mutex
	active ConversationContext
}

func NewStore(lib Library, maxExchanges int) *Store {
	return &Store{lib: lib, maxExchanges: maxExchanges}
}

func (s *Store) Current() ConversationContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.clone()
}

// Update appends one exchange, dropping the oldest beyond the bound.
func (s *Store) Update(userMessage, modelResponse string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active.Exchanges = append(s.active.Exchanges, Exchange{
		User:      strings.TrimSpace(userMessage),
		Assistant: strings.TrimSpace(modelResponse),
	})
	if s.maxExchanges > 0 && len(s.active.Exchanges) > s.maxExchanges {
		drop := len(s.active.Exchanges) - s.maxExchanges
		s.active.Exchanges = append([]Exchange(nil), s.active.Exchanges[drop:]...)
	}
}

// Load replaces the active context with a named one. On error the active
// context is left as it was.
func (s *Store) Load(name string) (ConversationContext, error) {
	name = strings.TrimSpace(name)
	if err := ValidName(name); err != nil {
		return ConversationContext{}, fmt.Errorf("%w: %v", ErrContextNotFound, err)
	}
	if s.lib == nil {
		return ConversationContext{}, fmt.Errorf("%w: %s", ErrContextNotFound, name)
	}
	c, err := s.lib.Get(name)
	if err != nil {
		return ConversationContext{}, err
	}
	c.Name = name

	s.mu.Lock()
	s.active = c.clone()
	s.mu.Unlock()
	return c, nil
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.active = ConversationContext{}
	s.mu.Unlock()
}

// Save stores the active context under name.
func (s *Store) Save(name string) error {
	name = strings.TrimSpace(name)
	if err := ValidName(name); err != nil {
		return err
	}
	if s.lib == nil {
		return fmt.Errorf("no context library configured")
	}
	c := s.Current()
	c.Name = name
	if err := s.lib.Put(c); err != nil {
		return err
	}
	s.mu.Lock()
	s.active.Name = name
	s.mu.Unlock()
	return nil
}

func (s *Store) Names() ([]string, error) {
	if s.lib == nil {
		return nil, nil
	}
	return s.lib.Names()
}
