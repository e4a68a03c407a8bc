package mq

import (
	"context"
	"testing"
	"time"
)

func TestToKafkaMessage(t *testing.T) {
	msg := NewMessage([]byte(`{"status":"ACCEPTED"}`))
	msg.ID = "sub-1"
	msg.SetHeader("event", "submission.finished")

	kmsg := toKafkaMessage("submission.finished", msg)
	if kmsg.Topic != "submission.finished" {
		t.Fatalf("unexpected topic %s", kmsg.Topic)
	}
	if string(kmsg.Key) != "sub-1" {
		t.Fatalf("expected message id as key, got %s", string(kmsg.Key))
	}
	headers := map[string]string{}
	for _, h := range kmsg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event"] != "submission.finished" {
		t.Fatalf("expected custom header to be kept")
	}
	if headers[headerID] != "sub-1" {
		t.Fatalf("expected id header")
	}
	if _, err := time.Parse(time.RFC3339Nano, headers[headerTimestamp]); err != nil {
		t.Fatalf("expected timestamp header, got %q", headers[headerTimestamp])
	}
}

func TestToKafkaMessageFillsTimestamp(t *testing.T) {
	msg := &Message{Body: []byte("x")}
	kmsg := toKafkaMessage("t", msg)
	if kmsg.Time.IsZero() || msg.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be filled")
	}
}

func TestKafkaProducerValidation(t *testing.T) {
	if _, err := NewKafkaProducer(KafkaConfig{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
	producer, err := NewKafkaProducer(KafkaConfig{Brokers: []string{"127.0.0.1:1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = producer.Close() }()

	if err := producer.Publish(context.Background(), "", NewMessage(nil)); err == nil {
		t.Fatalf("expected error for empty topic")
	}
	if err := producer.Publish(context.Background(), "t", nil); err == nil {
		t.Fatalf("expected error for nil message")
	}
	if err := producer.PublishBatch(context.Background(), "t", nil); err == nil {
		t.Fatalf("expected error for empty batch")
	}
}
