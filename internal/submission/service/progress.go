package service

import (
	"sync"
	"time"

	"codehub/internal/submission/model"
)

const (
	ProgressTestCase = "test_case"
	ProgressFinished = "finished"

	defaultProgressRetention = time.Minute
	progressBuffer           = 64
)

// ProgressEvent is pushed to stream subscribers while a submission runs.
type ProgressEvent struct {
	Type          string                `json:"type"`
	SubmissionID  string                `json:"submission_id"`
	Result        *model.TestCaseResult `json:"result,omitempty"`
	Status        model.Status          `json:"status,omitempty"`
	Time          *float64              `json:"time,omitempty"`
	Memory        *int64                `json:"memory,omitempty"`
	PointsAwarded bool                  `json:"points_awarded,omitempty"`
}

type progressTopic struct {
	events   []ProgressEvent
	subs     map[chan ProgressEvent]struct{}
	finished bool
}

// ProgressHub fans evaluation progress out to subscribers and keeps the
// events of recent submissions so late subscribers can catch up.
type ProgressHub struct {
	mu        sync.Mutex
	topics    map[string]*progressTopic
	retention time.Duration
}

// NewProgressHub creates a hub that forgets finished submissions after retention.
func NewProgressHub(retention time.Duration) *ProgressHub {
	if retention <= 0 {
		retention = defaultProgressRetention
	}
	return &ProgressHub{topics: make(map[string]*progressTopic), retention: retention}
}

func (h *ProgressHub) topic(id string) *progressTopic {
	t, ok := h.topics[id]
	if !ok {
		t = &progressTopic{subs: make(map[chan ProgressEvent]struct{})}
		h.topics[id] = t
	}
	return t
}

// Open registers a submission so subscribers can attach before its first event.
func (h *ProgressHub) Open(submissionID string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.topic(submissionID)
	h.mu.Unlock()
}

// Publish records ev and delivers it. A finished event closes every subscriber.
func (h *ProgressHub) Publish(ev ProgressEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.topic(ev.SubmissionID)
	if t.finished {
		return
	}
	t.events = append(t.events, ev)
	for ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber: drop it rather than block evaluation
			delete(t.subs, ch)
			close(ch)
		}
	}
	if ev.Type != ProgressFinished {
		return
	}
	t.finished = true
	for ch := range t.subs {
		close(ch)
	}
	t.subs = nil
	id := ev.SubmissionID
	time.AfterFunc(h.retention, func() {
		h.mu.Lock()
		delete(h.topics, id)
		h.mu.Unlock()
	})
}

// Subscribe returns the events seen so far and a channel for the rest. The
// channel is nil when the submission already finished. ok is false when the
// hub knows nothing about the submission.
func (h *ProgressHub) Subscribe(submissionID string) (replay []ProgressEvent, ch <-chan ProgressEvent, cancel func(), ok bool) {
	noop := func() {}
	if h == nil {
		return nil, nil, noop, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	t, exists := h.topics[submissionID]
	if !exists {
		return nil, nil, noop, false
	}
	replay = append([]ProgressEvent(nil), t.events...)
	if t.finished {
		return replay, nil, noop, true
	}
	c := make(chan ProgressEvent, progressBuffer)
	t.subs[c] = struct{}{}
	cancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, live := t.subs[c]; live {
			delete(t.subs, c)
			close(c)
		}
	}
	return replay, c, cancel, true
}
