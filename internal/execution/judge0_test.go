package execution_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"codehub/internal/execution"
)

type fakeJudge0 struct {
	mu        sync.Mutex
	payloads  []map[string]interface{}
	headers   http.Header
	queries   []string
	pollCount int
	// statuses is consumed one per poll; the last entry repeats.
	statuses   []int
	submitCode int
	pollCode   int
}

func (f *fakeJudge0) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.headers = r.Header.Clone()
		f.queries = append(f.queries, r.URL.RawQuery)
		if f.submitCode != 0 {
			w.WriteHeader(f.submitCode)
			_, _ = w.Write([]byte(`{"error":"bad"}`))
			return
		}
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		f.payloads = append(f.payloads, payload)
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"token":"tok-%d"}`, len(f.payloads))
	})
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.queries = append(f.queries, r.URL.RawQuery)
		if f.pollCode != 0 {
			w.WriteHeader(f.pollCode)
			return
		}
		idx := f.pollCount
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		f.pollCount++
		status := f.statuses[idx]
		desc := map[int]string{1: "In Queue", 2: "Processing", 3: "Accepted", 4: "Wrong Answer"}[status]
		if status == 1 || status == 2 {
			_, _ = fmt.Fprintf(w, `{"status":{"id":%d,"description":%q},"stdout":null,"time":null,"memory":null}`, status, desc)
			return
		}
		_, _ = fmt.Fprintf(w, `{"status":{"id":%d,"description":%q},"stdout":"42\n","time":"0.015","memory":3312}`, status, desc)
	})
	return mux
}

func newClient(t *testing.T, fake *fakeJudge0) *execution.Judge0Client {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	client, err := execution.NewJudge0Client(execution.Judge0Config{
		BaseURL: server.URL,
		APIHost: "judge0-ce.p.rapidapi.com",
		APIKey:  "key-1",
	}, nil)
	if err != nil {
		t.Fatalf("create client failed: %v", err)
	}
	return client
}

var fastPoll = execution.PollPolicy{MaxAttempts: 5, Interval: time.Millisecond}

func TestJudge0SubmitSendsPayload(t *testing.T) {
	fake := &fakeJudge0{statuses: []int{3}}
	client := newClient(t, fake)

	token, err := client.Submit(context.Background(), execution.RunRequest{
		SourceCode:     "print(42)",
		LanguageID:     71,
		Stdin:          "",
		ExpectedOutput: "42",
		TimeLimit:      1.5,
		MemoryLimit:    130000,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if token != "tok-1" {
		t.Fatalf("unexpected token %s", token)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	payload := fake.payloads[0]
	if payload["source_code"] != "print(42)" || payload["language_id"].(float64) != 71 {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["cpu_time_limit"].(float64) != 1.5 || payload["memory_limit"].(float64) != 130000 {
		t.Fatalf("expected problem limits in payload, got %v", payload)
	}
	if fake.headers.Get("X-RapidAPI-Key") != "key-1" || fake.headers.Get("X-RapidAPI-Host") == "" {
		t.Fatalf("expected rapidapi headers")
	}
	if fake.queries[0] != "base64_encoded=false&wait=false" {
		t.Fatalf("unexpected query %s", fake.queries[0])
	}
}

func TestJudge0SubmitDefaultsLimits(t *testing.T) {
	fake := &fakeJudge0{statuses: []int{3}}
	client := newClient(t, fake)
	if _, err := client.Submit(context.Background(), execution.RunRequest{SourceCode: "x", LanguageID: 54}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.payloads[0]["cpu_time_limit"].(float64) != 2 || fake.payloads[0]["memory_limit"].(float64) != 141000 {
		t.Fatalf("expected default limits, got %v", fake.payloads[0])
	}
}

func TestJudge0SubmitServiceError(t *testing.T) {
	fake := &fakeJudge0{submitCode: http.StatusUnprocessableEntity}
	client := newClient(t, fake)
	_, err := client.Submit(context.Background(), execution.RunRequest{SourceCode: "x", LanguageID: 1})
	var serviceErr *execution.ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestJudge0SubmitTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	client, err := execution.NewJudge0Client(execution.Judge0Config{BaseURL: url}, nil)
	if err != nil {
		t.Fatalf("create client failed: %v", err)
	}
	_, err = client.Submit(context.Background(), execution.RunRequest{SourceCode: "x", LanguageID: 1})
	var transportErr *execution.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestJudge0PollWaitsForTerminalStatus(t *testing.T) {
	fake := &fakeJudge0{statuses: []int{1, 2, 2, 3}}
	client := newClient(t, fake)

	result, err := client.PollResult(context.Background(), "tok-1", fastPoll)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if result.Description != "Accepted" || result.StatusID != execution.StatusAccepted {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Stdout != "42\n" || result.Time != 0.015 || result.Memory != 3312 {
		t.Fatalf("unexpected metrics %+v", result)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.pollCount != 4 {
		t.Fatalf("expected 4 polls, got %d", fake.pollCount)
	}
}

func TestJudge0PollReturnsFailureImmediately(t *testing.T) {
	fake := &fakeJudge0{statuses: []int{4}}
	client := newClient(t, fake)
	result, err := client.PollResult(context.Background(), "tok-1", fastPoll)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if result.Description != "Wrong Answer" {
		t.Fatalf("unexpected description %s", result.Description)
	}
}

func TestJudge0PollTimeout(t *testing.T) {
	fake := &fakeJudge0{statuses: []int{2}}
	client := newClient(t, fake)
	_, err := client.PollResult(context.Background(), "tok-1", fastPoll)
	if !errors.Is(err, execution.ErrPollTimeout) {
		t.Fatalf("expected poll timeout, got %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.pollCount != fastPoll.MaxAttempts {
		t.Fatalf("expected %d polls, got %d", fastPoll.MaxAttempts, fake.pollCount)
	}
}

func TestJudge0PollClientErrorIsPermanent(t *testing.T) {
	fake := &fakeJudge0{statuses: []int{3}, pollCode: http.StatusNotFound}
	client := newClient(t, fake)
	_, err := client.PollResult(context.Background(), "missing", fastPoll)
	var serviceErr *execution.ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 service error, got %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.queries) != 1 {
		t.Fatalf("expected a single poll, got %d", len(fake.queries))
	}
}

func TestJudge0PollServerErrorExhaustsBudget(t *testing.T) {
	fake := &fakeJudge0{statuses: []int{3}, pollCode: http.StatusBadGateway}
	client := newClient(t, fake)
	_, err := client.PollResult(context.Background(), "tok", fastPoll)
	var serviceErr *execution.ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 service error, got %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.queries) != fastPoll.MaxAttempts {
		t.Fatalf("expected %d polls, got %d", fastPoll.MaxAttempts, len(fake.queries))
	}
}

func TestJudge0RequiresBaseURL(t *testing.T) {
	if _, err := execution.NewJudge0Client(execution.Judge0Config{}, nil); err == nil {
		t.Fatalf("expected error without base url")
	}
}
