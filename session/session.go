// Package session holds in-process conversation state. Conversations live
// for the lifetime of the process; there is no disk persistence.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/averau/parley/llm"
)

// Conversation accumulates the message history of one chat. A conversation
// is used by one goroutine at a time; the registry serializes handout.
type Conversation struct {
	ID       string
	messages []llm.Message
}

// Append adds messages to the history.
func (c *Conversation) Append(msgs ...llm.Message) {
	c.messages = append(c.messages, msgs...)
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []llm.Message {
	return append([]llm.Message(nil), c.messages...)
}

// Len reports the number of messages in the history.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Registry hands out conversations by id.
type Registry struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	counter       int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conversations: make(map[string]*Conversation)}
}

// New creates a conversation under a fresh id and registers it.
func (r *Registry) New() *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	conv := &Conversation{ID: fmt.Sprintf("sess_%d_%d", r.counter, time.Now().Unix())}
	r.conversations[conv.ID] = conv
	return conv
}

// Get looks a conversation up by id.
func (r *Registry) Get(id string) (*Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	return conv, ok
}
