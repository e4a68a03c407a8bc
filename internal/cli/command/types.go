package command

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"codehub/internal/submission/model"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldInt64
	FieldLanguage
	FieldFile
)

// Field defines a CLI input field.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
	// Query fields are sent as URL query parameters.
	Query bool
}

// Command defines a CLI command binding. Args are taken positionally, then
// any remaining key=value pairs fill Options.
type Command struct {
	Name         string
	Usage        string
	Method       string
	PathTemplate string
	RequiresAuth bool
	Args         []Field
	Options      []Field
}

// Fields returns positional args followed by options.
func (c Command) Fields() []Field {
	out := make([]Field, 0, len(c.Args)+len(c.Options))
	out = append(out, c.Args...)
	return append(out, c.Options...)
}

// RequestSpec is the built HTTP request.
type RequestSpec struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// Params holds parsed input params.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

func ParseInt64(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func ParseInt(value string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	return int(n), err
}

var languageAliases = map[string]int{
	"python":  71,
	"python3": 71,
	"py":      71,
	"cpp":     54,
	"c++":     54,
	"java":    62,
}

// ParseLanguage accepts a numeric language id or a short name like "cpp".
func ParseLanguage(value string) (int, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if id, ok := languageAliases[value]; ok {
		return id, nil
	}
	for _, lang := range model.Languages() {
		if strings.ToLower(lang.Name) == value {
			return lang.ID, nil
		}
	}
	id, err := ParseInt(value)
	if err != nil {
		return 0, fmt.Errorf("unknown language %q", value)
	}
	return id, nil
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file failed: %w", err)
	}
	return string(data), nil
}
