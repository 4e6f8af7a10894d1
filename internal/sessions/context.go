package sessions

import (
	"sync"
	"time"

	"github.com/haasonsaas/axon/pkg/models"
)

// Context holds the in-memory state of one conversation: identity,
// classification, and the ordered message history for the current
// process lifetime.
type Context struct {
	ID         string
	Channel    models.ChannelType
	SenderID   string
	SenderName string
	Workspace  string
	Type       models.SessionType
	CreatedAt  time.Time

	mu       sync.RWMutex
	messages []models.Message
	metadata map[string]any
}

// NewContext creates a session context with an empty history.
func NewContext(id string, channel models.ChannelType, senderID, senderName string, sessionType models.SessionType) *Context {
	return &Context{
		ID:         id,
		Channel:    channel,
		SenderID:   senderID,
		SenderName: senderName,
		Type:       sessionType,
		CreatedAt:  time.Now().UTC(),
		metadata:   map[string]any{},
	}
}

// Append adds a message to the in-memory history.
func (c *Context) Append(msg models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the message history.
func (c *Context) Messages() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the history.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Rehydrate replaces the history with messages loaded from the store.
func (c *Context) Rehydrate(msgs []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make([]models.Message, len(msgs))
	copy(c.messages, msgs)
}

// SetMeta stores an arbitrary metadata value on the session.
func (c *Context) SetMeta(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metadata == nil {
		c.metadata = map[string]any{}
	}
	c.metadata[key] = value
}

// Meta retrieves a metadata value.
func (c *Context) Meta(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.metadata[key]
	return v, ok
}
