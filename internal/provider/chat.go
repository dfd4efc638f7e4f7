package provider

import "encoding/json"

// chatContext is the conversation handle for chat-completion backends: a
// plain growing transcript of role/content pairs. The adapter owns it and
// appends both sides of an exchange only after the exchange fully succeeds,
// so a failed turn leaves the transcript untouched.
type chatContext struct {
	kind Kind
	msgs []Message
}

func newChatContext(kind Kind) *chatContext {
	return &chatContext{
		kind: kind,
		msgs: []Message{{Role: "system", Content: systemInstruction}},
	}
}

func (c *chatContext) Provider() Kind {
	return c.kind
}

func (c *chatContext) Serialize() (json.RawMessage, error) {
	return json.Marshal(c.msgs)
}

func (c *chatContext) append(role, content string) {
	c.msgs = append(c.msgs, Message{Role: role, Content: content})
}

func rehydrateChatContext(kind Kind, saved json.RawMessage) (*chatContext, error) {
	var msgs []Message
	if err := json.Unmarshal(saved, &msgs); err != nil {
		return nil, &Error{Provider: kind, Err: err}
	}
	return &chatContext{kind: kind, msgs: msgs}, nil
}
