package memoria

import (
	"context"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/records"
)

// messageTopicPrefix distinguishes messaging-façade memories from ordinary
// ones, letting SubscribeMessages filter on memory_type alone.
const messageTopicPrefix = "msg:"

// Message is one unit published through the embedded messaging façade.
type Message struct {
	ID         string
	Topic      string
	Namespace  string
	Sender     string
	Recipients []string
	Content    string
	Tags       []string
	Timestamp  int64
	ExpiresAt  *int64
}

// PublishMessage stores msg as a memory whose memory_type carries the
// topic, so ordinary search/graph/versioning machinery applies to messages
// for free. Properties are built incrementally with sjson rather
// than marshaled from a struct; every property key is always written, and
// an unset recipients or expires_at is stored as JSON null.
func (m *Manager) PublishMessage(ctx context.Context, msg Message) (*Message, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = nowMillis()
	}

	props := []byte("{}")
	var err error
	for _, set := range []struct {
		path string
		val  any
	}{
		{"message_id", msg.ID},
		{"topic", msg.Topic},
		{"namespace", msg.Namespace},
		{"recipients", msg.Recipients},
		{"timestamp", msg.Timestamp},
		{"expires_at", msg.ExpiresAt},
	} {
		if props, err = sjson.SetBytes(props, set.path, set.val); err != nil {
			return nil, err
		}
	}

	opts := MemoryOptions{
		MemoryType: records.MemoryType(messageTopicPrefix + msg.Topic),
		Priority:   records.PriorityNormal,
		Tags:       msg.Tags,
		Source:     msg.Sender,
		ExpiresAt:  msg.ExpiresAt,
		Properties: props,
	}
	mem := &records.Memory{
		ID:         msg.ID,
		Content:    msg.Content,
		MemoryType: opts.MemoryType,
		Priority:   opts.Priority,
		Tags:       opts.Tags,
		Source:     opts.Source,
		ExpiresAt:  opts.ExpiresAt,
		Properties: opts.Properties,
		CreatedAt:  msg.Timestamp,
	}
	if err := m.kernel.CreateMemory(mem); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MessageFilter narrows SubscribeMessages' delivery to a topic, sender,
// time range, or tag set.
type MessageFilter struct {
	Topic         string
	Sender        string
	Tags          []string
	CreatedAfter  *int64
	CreatedBefore *int64
}

func (f MessageFilter) matches(m *records.Memory) bool {
	topic, ok := messageTopic(m.MemoryType)
	if !ok {
		return false
	}
	if f.Topic != "" && topic != f.Topic {
		return false
	}
	if f.Sender != "" && m.Source != f.Sender {
		return false
	}
	if f.CreatedAfter != nil && m.CreatedAt <= *f.CreatedAfter {
		return false
	}
	if f.CreatedBefore != nil && m.CreatedAt >= *f.CreatedBefore {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, got := range m.Tags {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func messageTopic(t records.MemoryType) (string, bool) {
	s := string(t)
	if len(s) <= len(messageTopicPrefix) || s[:len(messageTopicPrefix)] != messageTopicPrefix {
		return "", false
	}
	return s[len(messageTopicPrefix):], true
}

// MessageSubscription delivers messages matching a MessageFilter, built on
// top of the change stream.
type MessageSubscription struct {
	sub    *changestream.Subscription
	filter MessageFilter
}

// SubscribeMessages opens a live, filtered stream of published messages.
// Callers must call Close when done.
func (m *Manager) SubscribeMessages(filter MessageFilter) *MessageSubscription {
	return &MessageSubscription{sub: m.bus.Subscribe(changestream.TableMemory), filter: filter}
}

// Recv blocks for the next message matching the subscription's filter or
// ctx cancellation. The underlying subscription's lag flag is not
// surfaced: messages dropped because the buffer was full are skipped
// without notice to the caller.
func (s *MessageSubscription) Recv(ctx context.Context) (*Message, error) {
	for {
		evt, _, err := s.sub.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if evt.Action != changestream.ActionCreate {
			continue
		}
		mem, ok := evt.Record.(*records.Memory)
		if !ok || mem == nil {
			continue
		}
		topic, ok := messageTopic(mem.MemoryType)
		if !ok || !s.filter.matches(mem) {
			continue
		}

		parsed := gjson.ParseBytes(mem.Properties)
		var recipients []string
		for _, r := range parsed.Get("recipients").Array() {
			recipients = append(recipients, r.String())
		}
		return &Message{
			ID:         mem.ID,
			Topic:      topic,
			Namespace:  parsed.Get("namespace").String(),
			Sender:     mem.Source,
			Recipients: recipients,
			Content:    mem.Content,
			Tags:       mem.Tags,
			Timestamp:  mem.CreatedAt,
			ExpiresAt:  mem.ExpiresAt,
		}, nil
	}
}

// Close releases the underlying change-stream subscription.
func (s *MessageSubscription) Close() { s.sub.Close() }
