package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Registry returns all CLI commands keyed by name.
func Registry() map[string]Command {
	commands := []Command{
		{
			Name:         "problems",
			Usage:        "problems [q=words]",
			Method:       "GET",
			PathTemplate: "/api/v1/problems",
			Options: []Field{
				{Name: "q", Aliases: []string{"search"}, Prompt: "search", Type: FieldString, Query: true},
			},
		},
		{
			Name:         "problem",
			Usage:        "problem <id>",
			Method:       "GET",
			PathTemplate: "/api/v1/problems/:id",
			Args: []Field{
				{Name: "id", Prompt: "problem_id", Type: FieldInt64, Required: true},
			},
		},
		{
			Name:         "submit",
			Usage:        "submit <problem> <language> <file> [mode=async]",
			Method:       "POST",
			PathTemplate: "/api/v1/problems/:id/submissions",
			RequiresAuth: true,
			Args: []Field{
				{Name: "id", Aliases: []string{"problem", "problem_id"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
				{Name: "language", Aliases: []string{"language_id", "lang"}, Prompt: "language (python|cpp|java|id)", Type: FieldLanguage, Required: true},
				{Name: "source_file", Aliases: []string{"file"}, Prompt: "source_file", Type: FieldFile, Required: true},
			},
			Options: []Field{
				{Name: "mode", Prompt: "mode", Type: FieldString, Query: true},
			},
		},
		{
			Name:         "history",
			Usage:        "history <problem> [limit=N]",
			Method:       "GET",
			PathTemplate: "/api/v1/problems/:id/submissions",
			RequiresAuth: true,
			Args: []Field{
				{Name: "id", Aliases: []string{"problem", "problem_id"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
			},
			Options: []Field{
				{Name: "limit", Prompt: "limit", Type: FieldInt, Query: true},
			},
		},
		{
			Name:         "submission",
			Usage:        "submission <id>",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id",
			RequiresAuth: true,
			Args: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Name:         "leaderboard",
			Usage:        "leaderboard [limit=N]",
			Method:       "GET",
			PathTemplate: "/api/v1/leaderboard",
			Options: []Field{
				{Name: "limit", Prompt: "limit", Type: FieldInt, Query: true},
			},
		},
		{
			Name:         "languages",
			Usage:        "languages",
			Method:       "GET",
			PathTemplate: "/api/v1/languages",
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Name] = cmd
	}
	return result
}

// Bind parses command tokens into params: bare tokens fill Args in order and
// key=value tokens are taken as named.
func Bind(cmd Command, tokens []string) (Params, error) {
	params := Params{}
	next := 0
	for _, token := range tokens {
		if key, value, ok := strings.Cut(token, "="); ok && key != "" {
			params.Set(key, value)
			continue
		}
		if next >= len(cmd.Args) {
			return nil, fmt.Errorf("unexpected argument %q, usage: %s", token, cmd.Usage)
		}
		params.Set(cmd.Args[next].Name, token)
		next++
	}
	params.Canonicalize(cmd.Fields())
	return params, nil
}

// Missing returns required fields that have no value yet.
func Missing(cmd Command, params Params) []Field {
	var missing []Field
	for _, field := range cmd.Fields() {
		if field.Required && strings.TrimSpace(params.Get(field.Name)) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields())
	if missing := Missing(cmd, params); len(missing) > 0 {
		return RequestSpec{}, fmt.Errorf("missing %s, usage: %s", missing[0].Prompt, cmd.Usage)
	}
	path, err := buildPath(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func buildPath(cmd Command, params Params) (string, error) {
	path := cmd.PathTemplate
	if strings.Contains(path, ":id") {
		value := params.Get("id")
		for _, field := range cmd.Args {
			if field.Name == "id" && field.Type == FieldInt64 {
				if _, err := ParseInt64(value); err != nil {
					return "", fmt.Errorf("invalid %s: %q", field.Prompt, value)
				}
			}
		}
		path = strings.ReplaceAll(path, ":id", url.PathEscape(value))
	}

	query := url.Values{}
	for _, field := range cmd.Options {
		value := params.Get(field.Name)
		if !field.Query || value == "" {
			continue
		}
		if field.Type == FieldInt {
			if _, err := ParseInt(value); err != nil {
				return "", fmt.Errorf("invalid %s: %q", field.Name, value)
			}
		}
		query.Set(field.Name, value)
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Name {
	case "submit":
		return buildSubmitPayload(params)
	}
	return nil, nil
}

func buildSubmitPayload(params Params) (interface{}, error) {
	languageID, err := ParseLanguage(params.Get("language"))
	if err != nil {
		return nil, err
	}
	sourceCode, err := ReadFile(params.Get("source_file"))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(sourceCode) == "" {
		return nil, fmt.Errorf("source file is empty")
	}
	return map[string]interface{}{
		"language_id": languageID,
		"source_code": sourceCode,
	}, nil
}
