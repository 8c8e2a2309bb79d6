package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/dto"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/events"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
)

const consumerModule = "Service.Consumer"

type IConsumerService interface {
	// Consume subscribes and processes messages in the background until ctx is done.
	Consume(ctx context.Context) error
}

// Pruner is satisfied by *history.Store.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	events     nats.EventPublisher
	pruner     Pruner
	interval   time.Duration
	logger     logger.ILogger
	now        func() time.Time

	mu        sync.Mutex
	lastPrune time.Time
}

// NewConsumerService accepts a nil event publisher (NATS unreachable) and a nil pruner.
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	eventPublisher nats.EventPublisher,
	pruner Pruner,
	pruneInterval time.Duration,
	log logger.ILogger,
) IConsumerService {
	if pruneInterval <= 0 {
		pruneInterval = time.Hour
	}
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		events:     eventPublisher,
		pruner:     pruner,
		interval:   pruneInterval,
		logger:     log,
		now:        time.Now,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishConversationMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error(consumerModule, "Failed to unmarshal conversation message", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack()
		return
	}

	if cs.events != nil {
		event := events.ConversationAnswered(
			payload.SessionId, payload.Username, payload.Email, payload.Role, payload.State,
			payload.NeedsComputation, payload.Sources, payload.AnsweredAt,
		)
		if err := cs.events.Publish(ctx, event); err != nil {
			cs.logger.Warn(consumerModule, "Failed to forward conversation event", map[string]interface{}{
				"session_id": payload.SessionId,
				"error":      err.Error(),
			})
		}
	}

	cs.maybePrune(ctx)
	msg.Ack()
}

// maybePrune runs the retention prune at most once per interval.
func (cs *consumerService) maybePrune(ctx context.Context) {
	if cs.pruner == nil {
		return
	}

	cs.mu.Lock()
	now := cs.now()
	if !cs.lastPrune.IsZero() && now.Sub(cs.lastPrune) < cs.interval {
		cs.mu.Unlock()
		return
	}
	cs.lastPrune = now
	cs.mu.Unlock()

	deleted, err := cs.pruner.Prune(ctx, 0)
	if err != nil {
		cs.logger.Error(consumerModule, "Retention prune failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if deleted > 0 && cs.events != nil {
		_ = cs.events.Publish(ctx, events.HistoryPruned(deleted, now))
	}
}
