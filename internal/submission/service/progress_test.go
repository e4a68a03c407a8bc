package service_test

import (
	"testing"
	"time"

	"codehub/internal/submission/model"
	"codehub/internal/submission/service"
)

func TestProgressHubDeliversAndCloses(t *testing.T) {
	hub := service.NewProgressHub(time.Minute)
	hub.Open("s1")

	replay, ch, cancel, ok := hub.Subscribe("s1")
	defer cancel()
	if !ok || len(replay) != 0 || ch == nil {
		t.Fatalf("expected live subscription without replay")
	}

	hub.Publish(service.ProgressEvent{Type: service.ProgressTestCase, SubmissionID: "s1", Result: &model.TestCaseResult{TestCaseID: 1}})
	hub.Publish(service.ProgressEvent{Type: service.ProgressFinished, SubmissionID: "s1", Status: model.StatusAccepted})

	var got []service.ProgressEvent
	for ev := range ch {
		got = append(got, ev)
	}
	if len(got) != 2 || got[1].Status != model.StatusAccepted {
		t.Fatalf("unexpected events: %+v", got)
	}

	// publishing after finish is ignored
	hub.Publish(service.ProgressEvent{Type: service.ProgressTestCase, SubmissionID: "s1"})
	replay, ch, _, ok = hub.Subscribe("s1")
	if !ok || ch != nil || len(replay) != 2 {
		t.Fatalf("expected finished replay of 2 events, got %d", len(replay))
	}
}

func TestProgressHubUnknownAndExpired(t *testing.T) {
	hub := service.NewProgressHub(10 * time.Millisecond)
	if _, _, _, ok := hub.Subscribe("missing"); ok {
		t.Fatalf("expected unknown submission")
	}

	hub.Open("s2")
	hub.Publish(service.ProgressEvent{Type: service.ProgressFinished, SubmissionID: "s2"})
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, _, _, ok := hub.Subscribe("s2"); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected finished topic to expire")
}

func TestProgressHubCancel(t *testing.T) {
	hub := service.NewProgressHub(time.Minute)
	hub.Open("s3")
	_, ch, cancel, _ := hub.Subscribe("s3")
	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Fatalf("expected channel closed after cancel")
	}
	hub.Publish(service.ProgressEvent{Type: service.ProgressTestCase, SubmissionID: "s3"})
}
