package models

import "time"

// TranslatingPlaceholder is the displayed text of a message between the
// optimistic write and translation completion.
const TranslatingPlaceholder = "Translating..."

// VariantCount is the fixed number of translation variant slots.
const VariantCount = 3

// Message is one entry in a two-party conversation. MessageOG never
// changes after creation; Message holds what is currently displayed:
// the placeholder, the original (translation fallback) or one of the
// variants, with DisplayedVariant tagging which slot is active.
type Message struct {
	MessageID        string    `db:"message_id" json:"message_id"`
	ConversationID   string    `db:"conversation_id" json:"conversation_id"`
	SenderID         string    `db:"sender_id" json:"sender_id"`
	Message          string    `db:"message" json:"message"`
	MessageOG        string    `db:"message_og" json:"message_og"`
	MessageVar1      string    `db:"message_var1" json:"message_var1,omitempty"`
	MessageVar2      string    `db:"message_var2" json:"message_var2,omitempty"`
	MessageVar3      string    `db:"message_var3" json:"message_var3,omitempty"`
	DisplayedVariant int       `db:"displayed_variant" json:"displayed_variant"`
	Read             bool      `db:"read" json:"read"`
	ReplyToID        *string   `db:"reply_to_id" json:"reply_to_id,omitempty"`
	ReplyToMessage   *string   `db:"reply_to_message" json:"reply_to_message,omitempty"`
	ReplyToSender    *string   `db:"reply_to_sender" json:"reply_to_sender,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// ReplyRef is the snapshot of a quoted message taken at send time.
type ReplyRef struct {
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
	SenderID  string `json:"sender_id"`
}

// ReplyRef returns the quoted-message snapshot, or nil when the message
// is not a reply.
func (m Message) ReplyRef() *ReplyRef {
	if m.ReplyToID == nil {
		return nil
	}
	ref := ReplyRef{MessageID: *m.ReplyToID}
	if m.ReplyToMessage != nil {
		ref.Message = *m.ReplyToMessage
	}
	if m.ReplyToSender != nil {
		ref.SenderID = *m.ReplyToSender
	}
	return &ref
}

// VariantText returns the text stored in variant slot i (0-based).
func (m Message) VariantText(i int) string {
	switch i {
	case 0:
		return m.MessageVar1
	case 1:
		return m.MessageVar2
	case 2:
		return m.MessageVar3
	}
	return ""
}

// HasAlternates reports whether the message can be cycled: translation
// produced at least a second phrasing.
func (m Message) HasAlternates() bool {
	return m.MessageVar2 != ""
}

// NextVariant advances the var1 -> var2 -> var3 -> var1 ring from the
// currently displayed slot, skipping empty slots. An out-of-range stored
// index re-enters the ring at var1. ok is false when the message has no
// second variant to cycle to.
func (m Message) NextVariant() (index int, text string, ok bool) {
	if !m.HasAlternates() {
		return 0, "", false
	}
	current := m.DisplayedVariant
	if current < 0 || current >= VariantCount {
		return 0, m.MessageVar1, true
	}
	for step := 1; step <= VariantCount; step++ {
		next := (current + step) % VariantCount
		if t := m.VariantText(next); t != "" {
			return next, t, true
		}
	}
	return 0, m.MessageVar1, true
}

// ChatEvent is broadcast through websockets. The sync layer republishes
// the full ordered conversation on every change.
type ChatEvent struct {
	Type     string    `json:"type"`
	Messages []Message `json:"messages,omitempty"`
}
