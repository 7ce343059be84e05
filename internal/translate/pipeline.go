package translate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatify-service/internal/conversation"
	"chatify-service/internal/feed"
	"chatify-service/internal/ids"
	"chatify-service/internal/logger"
	"chatify-service/internal/models"
	"chatify-service/internal/observability"
	"chatify-service/internal/repositories"
)

var (
	// ErrEmptyMessage rejects blank or whitespace-only sends.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSendInFlight rejects a second send for a conversation while
	// the previous one has not finished translating.
	ErrSendInFlight = errors.New("a send is already in flight for this conversation")
)

// Pipeline drives a message from optimistic placeholder to translated
// (or fallback) state. The placeholder write happens synchronously so
// the sender sees the message immediately; translation runs as a
// detached task that is allowed to finish even if the sender navigates
// away.
type Pipeline struct {
	messages   repositories.MessageRepository
	translator Translator
	feed       *feed.Feed
	timeout    time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
	tasks    sync.WaitGroup
}

// NewPipeline constructs a Pipeline.
func NewPipeline(messages repositories.MessageRepository, translator Translator, f *feed.Feed, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Pipeline{
		messages:   messages,
		translator: translator,
		feed:       f,
		timeout:    timeout,
		inFlight:   make(map[string]bool),
	}
}

// Send persists the placeholder and schedules translation into the
// recipient's language. The returned message is the placeholder row;
// the final text arrives through the feed.
func (p *Pipeline) Send(ctx context.Context, senderID string, recipient models.User, text string, replyTo *models.ReplyRef) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyMessage
	}

	conversationID := conversation.DeriveID(senderID, recipient.ID)

	p.mu.Lock()
	if p.inFlight[conversationID] {
		p.mu.Unlock()
		return models.Message{}, ErrSendInFlight
	}
	p.inFlight[conversationID] = true
	p.mu.Unlock()

	msg := models.Message{
		MessageID:      ids.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Message:        models.TranslatingPlaceholder,
		MessageOG:      text,
	}
	if replyTo != nil {
		msg.ReplyToID = &replyTo.MessageID
		msg.ReplyToMessage = &replyTo.Message
		msg.ReplyToSender = &replyTo.SenderID
	}

	msg, err := p.messages.AppendPlaceholder(ctx, msg)
	if err != nil {
		p.release(conversationID)
		return models.Message{}, err
	}
	if err := p.feed.Invalidate(ctx, conversationID); err != nil {
		logger.Warn("feed invalidate after placeholder", zap.String("conversation", conversationID), zap.Error(err))
	}

	p.tasks.Add(1)
	go p.finish(msg, recipient)

	return msg, nil
}

// finish runs detached from the request context: eventual consistency
// is acceptable, the result lands even when nobody is looking.
func (p *Pipeline) finish(msg models.Message, recipient models.User) {
	defer p.tasks.Done()
	defer p.release(msg.ConversationID)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if !recipient.HasLanguage() {
		p.fallback(ctx, msg, errors.New("recipient language not set"))
		return
	}

	raw, err := p.translator.Translate(ctx, msg.MessageOG, *recipient.Language)
	if err != nil {
		p.fallback(ctx, msg, err)
		return
	}

	variants := ParseVariants(raw, msg.MessageOG)
	if err := p.messages.FinalizeTranslation(ctx, msg.MessageID, variants); err != nil {
		logger.Error("finalize translation", zap.String("message_id", msg.MessageID), zap.Error(err))
		observability.IncTranslation("error")
		return
	}
	observability.IncTranslation("translated")

	if err := p.feed.Invalidate(ctx, msg.ConversationID); err != nil {
		logger.Warn("feed invalidate after translation", zap.String("conversation", msg.ConversationID), zap.Error(err))
	}
}

// fallback is the recoverable degradation path: the recipient sees the
// sender's original text instead of a translation.
func (p *Pipeline) fallback(ctx context.Context, msg models.Message, cause error) {
	logger.Warn("translation fallback", zap.String("message_id", msg.MessageID), zap.Error(cause))
	observability.IncTranslation("fallback")

	if err := p.messages.FallbackToOriginal(ctx, msg.MessageID); err != nil {
		logger.Error("fallback write", zap.String("message_id", msg.MessageID), zap.Error(err))
		return
	}
	if err := p.feed.Invalidate(ctx, msg.ConversationID); err != nil {
		logger.Warn("feed invalidate after fallback", zap.String("conversation", msg.ConversationID), zap.Error(err))
	}
}

func (p *Pipeline) release(conversationID string) {
	p.mu.Lock()
	delete(p.inFlight, conversationID)
	p.mu.Unlock()
}

// Wait blocks until all scheduled translation tasks finished.
func (p *Pipeline) Wait() {
	p.tasks.Wait()
}
