package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codehub/internal/common/mq"
	"codehub/internal/submission/model"
)

// DefaultFinishedTopic carries one event per submission leaving RUNNING.
const DefaultFinishedTopic = "submission.finished"

// FinishedEvent is published after write-back.
type FinishedEvent struct {
	SubmissionID  string       `json:"submission_id"`
	UserID        int64        `json:"user_id"`
	ProblemID     int64        `json:"problem_id"`
	LanguageID    int          `json:"language_id"`
	Status        model.Status `json:"status"`
	Time          *float64     `json:"time,omitempty"`
	Memory        *int64       `json:"memory,omitempty"`
	TestCasesRun  int          `json:"test_cases_run"`
	PointsAwarded bool         `json:"points_awarded"`
	FinishedAt    time.Time    `json:"finished_at"`
}

// EventPublisher announces finished submissions.
type EventPublisher interface {
	PublishFinished(ctx context.Context, event FinishedEvent) error
}

// MQEventPublisher publishes finished events on a message queue topic.
type MQEventPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQEventPublisher creates a publisher; an empty topic uses DefaultFinishedTopic.
func NewMQEventPublisher(producer mq.Producer, topic string) *MQEventPublisher {
	if topic == "" {
		topic = DefaultFinishedTopic
	}
	return &MQEventPublisher{producer: producer, topic: topic}
}

// PublishFinished encodes event as JSON keyed by submission id.
func (p *MQEventPublisher) PublishFinished(ctx context.Context, event FinishedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode finished event failed: %w", err)
	}
	msg := mq.NewMessage(body)
	msg.ID = event.SubmissionID
	msg.Timestamp = event.FinishedAt
	msg.SetHeader("event", "submission.finished")
	msg.SetHeader("status", string(event.Status))
	return p.producer.Publish(ctx, p.topic, msg)
}
