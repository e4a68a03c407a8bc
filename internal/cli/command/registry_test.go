package command_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codehub/internal/cli/command"
)

func TestBindPositionalAndOptions(t *testing.T) {
	cmd := command.Registry()["submit"]
	params, err := command.Bind(cmd, []string{"4", "cpp", "main.cpp", "mode=async"})
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if params.Get("id") != "4" || params.Get("language") != "cpp" || params.Get("source_file") != "main.cpp" || params.Get("mode") != "async" {
		t.Fatalf("unexpected params: %v", params)
	}

	if _, err := command.Bind(command.Registry()["problems"], []string{"extra"}); err == nil {
		t.Fatalf("expected error for unexpected argument")
	}
}

func TestBindAliases(t *testing.T) {
	cmd := command.Registry()["submit"]
	params, err := command.Bind(cmd, []string{"problem=9", "lang=java", "file=Main.java"})
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if params.Get("id") != "9" || params.Get("language") != "java" || params.Get("source_file") != "Main.java" {
		t.Fatalf("aliases not canonicalized: %v", params)
	}
}

func TestBuildSubmitRequest(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "main.py")
	if err := os.WriteFile(sourcePath, []byte("print(input())"), 0o600); err != nil {
		t.Fatalf("write temp source failed: %v", err)
	}

	cmd := command.Registry()["submit"]
	params, err := command.Bind(cmd, []string{"12", "python", sourcePath, "mode=async"})
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Method != "POST" || req.Path != "/api/v1/problems/12/submissions?mode=async" {
		t.Fatalf("unexpected request line: %s %s", req.Method, req.Path)
	}
	var payload struct {
		LanguageID int    `json:"language_id"`
		SourceCode string `json:"source_code"`
	}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		t.Fatalf("unmarshal body failed: %v", err)
	}
	if payload.LanguageID != 71 || payload.SourceCode != "print(input())" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestBuildRequestValidation(t *testing.T) {
	registry := command.Registry()

	params, _ := command.Bind(registry["problem"], nil)
	if _, err := command.BuildRequest(registry["problem"], params); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected missing argument error, got %v", err)
	}

	params, _ = command.Bind(registry["problem"], []string{"abc"})
	if _, err := command.BuildRequest(registry["problem"], params); err == nil {
		t.Fatalf("expected invalid id error")
	}

	params, _ = command.Bind(registry["leaderboard"], []string{"limit=ten"})
	if _, err := command.BuildRequest(registry["leaderboard"], params); err == nil {
		t.Fatalf("expected invalid limit error")
	}

	params, _ = command.Bind(registry["submit"], []string{"1", "cobol", "x.cob"})
	if _, err := command.BuildRequest(registry["submit"], params); err == nil {
		t.Fatalf("expected unknown language error")
	}
}

func TestBuildQueryAndPath(t *testing.T) {
	registry := command.Registry()
	cases := []struct {
		name   string
		tokens []string
		path   string
	}{
		{"history", []string{"3", "limit=5"}, "/api/v1/problems/3/submissions?limit=5"},
		{"history", []string{"3"}, "/api/v1/problems/3/submissions"},
		{"submission", []string{"0b7c5d1e-2f3a-4b5c-8d9e-0f1a2b3c4d5e"}, "/api/v1/submissions/0b7c5d1e-2f3a-4b5c-8d9e-0f1a2b3c4d5e"},
		{"leaderboard", nil, "/api/v1/leaderboard"},
		{"languages", nil, "/api/v1/languages"},
		{"problems", nil, "/api/v1/problems"},
		{"problems", []string{"q=two sum"}, "/api/v1/problems?q=two+sum"},
	}
	for _, tc := range cases {
		cmd := registry[tc.name]
		params, err := command.Bind(cmd, tc.tokens)
		if err != nil {
			t.Fatalf("%s: bind failed: %v", tc.name, err)
		}
		req, err := command.BuildRequest(cmd, params)
		if err != nil {
			t.Fatalf("%s: build failed: %v", tc.name, err)
		}
		if req.Path != tc.path || len(req.Body) != 0 {
			t.Fatalf("%s: expected %s without body, got %s (%d bytes)", tc.name, tc.path, req.Path, len(req.Body))
		}
	}
}

func TestParseLanguage(t *testing.T) {
	cases := map[string]int{
		"python":   71,
		"Python 3": 71,
		"C++":      54,
		"cpp":      54,
		"JAVA":     62,
		"50":       50,
	}
	for input, want := range cases {
		got, err := command.ParseLanguage(input)
		if err != nil || got != want {
			t.Fatalf("ParseLanguage(%q) = %d, %v; want %d", input, got, err, want)
		}
	}
}
