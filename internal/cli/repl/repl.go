package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/gorilla/websocket"

	"codehub/internal/cli/command"
	httpclient "codehub/internal/cli/http"
	"codehub/internal/cli/state"
)

// ErrQuit is returned by Execute for exit and quit.
var ErrQuit = errors.New("quit")

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	state      *state.State
	statePath  string
	prettyJSON bool
	out        io.Writer
	// prompt asks for a missing required value. Nil means fail instead.
	prompt func(label string) (string, error)
}

func New(client *httpclient.Client, commands map[string]command.Command, st *state.State, statePath string, prettyJSON bool, out io.Writer) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		state:      st,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		out:        out,
	}
}

// Completer offers command names and set/show subcommands.
func Completer(commands map[string]command.Command) *readline.PrefixCompleter {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	items := make([]readline.PrefixCompleterInterface, 0, len(names)+6)
	for _, name := range names {
		items = append(items, readline.PcItem(name))
	}
	items = append(items,
		readline.PcItem("watch"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("token"), readline.PcItem("user"), readline.PcItem("timeout")),
		readline.PcItem("show", readline.PcItem("identity"), readline.PcItem("config")),
		readline.PcItem("logout"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
	return readline.NewPrefixCompleter(items...)
}

// Run reads lines from rl until EOF or exit.
func (s *Session) Run(ctx context.Context, rl *readline.Instance) {
	s.prompt = func(label string) (string, error) {
		rl.SetPrompt(label + ": ")
		defer rl.SetPrompt("codehub> ")
		line, err := rl.Readline()
		if err != nil {
			return "", fmt.Errorf("read input failed: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return
			}
			continue
		}
		if err != nil {
			return
		}
		if err := s.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrQuit) {
				s.printLine("bye")
				return
			}
			s.printLine("error: %v", err)
		}
	}
}

// Execute runs one input line.
func (s *Session) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	switch tokens[0] {
	case "exit", "quit":
		return ErrQuit
	case "help":
		s.printHelp()
		return nil
	case "set":
		return s.handleSet(tokens[1:])
	case "show":
		s.handleShow(tokens[1:])
		return nil
	case "logout":
		*s.state = state.State{BaseURL: s.state.BaseURL}
		s.printLine("identity cleared")
		return state.Save(s.statePath, *s.state)
	case "watch":
		if len(tokens) != 2 {
			return fmt.Errorf("usage: watch <submission_id>")
		}
		return s.watch(ctx, tokens[1])
	}
	return s.handleCommand(ctx, tokens)
}

func (s *Session) handleSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set base|token|user|timeout <value>")
	}
	switch args[0] {
	case "base":
		s.client.SetBaseURL(strings.TrimRight(args[1], "/"))
		s.state.BaseURL = s.client.BaseURL()
		s.printLine("base set to %s", s.state.BaseURL)
	case "timeout":
		dur, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
		return nil
	case "token":
		s.state.AccessToken = args[1]
		s.printLine("token updated")
	case "user":
		id, err := command.ParseInt64(args[1])
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid user id %q", args[1])
		}
		s.state.UserID = id
		s.printLine("user set to %d", id)
	default:
		return fmt.Errorf("unknown set command %q", args[0])
	}
	if err := state.Save(s.statePath, *s.state); err != nil {
		return fmt.Errorf("save state failed: %w", err)
	}
	return nil
}

func (s *Session) handleShow(args []string) {
	what := ""
	if len(args) > 0 {
		what = args[0]
	}
	switch what {
	case "identity":
		token := s.state.AccessToken
		if token == "" {
			token = "<empty>"
		} else if len(token) > 12 {
			token = token[:6] + "..." + token[len(token)-4:]
		}
		s.printLine("token: %s", token)
		if s.state.UserID > 0 {
			s.printLine("user: %d", s.state.UserID)
		} else {
			s.printLine("user: <empty>")
		}
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("statePath: %s", s.statePath)
	default:
		s.printLine("usage: show identity|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, tokens []string) error {
	cmd, ok := s.commands[tokens[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s (try help)", tokens[0])
	}
	params, err := command.Bind(cmd, tokens[1:])
	if err != nil {
		return err
	}
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	if cmd.RequiresAuth && s.state.AccessToken == "" && s.state.UserID <= 0 {
		return fmt.Errorf("%s requires an identity, use set token or set user", cmd.Name)
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	if s.prompt == nil {
		return nil
	}
	for _, field := range command.Missing(cmd, params) {
		value, err := s.prompt(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration.Round(time.Millisecond))
	if len(resp.Body) == 0 {
		return
	}
	s.printJSON(resp.Body)
}

func (s *Session) printJSON(body []byte) {
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(body))
}

// watch follows the progress stream of a submission until the server closes it.
func (s *Session) watch(ctx context.Context, submissionID string) error {
	wsURL, err := streamURL(s.client.BaseURL(), submissionID)
	if err != nil {
		return err
	}
	header := http.Header{}
	if s.state.AccessToken != "" {
		header.Set("Authorization", "Bearer "+s.state.AccessToken)
	}
	if s.state.UserID > 0 {
		header.Set("X-User-Id", strconv.FormatInt(s.state.UserID, 10))
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("open stream failed: HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("open stream failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("stream interrupted: %w", err)
		}
		s.printJSON(data)
	}
}

func streamURL(base, submissionID string) (string, error) {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "", fmt.Errorf("unsupported base url %q", base)
	}
	return fmt.Sprintf("%s/api/v1/submissions/%s/stream", base, submissionID), nil
}

func (s *Session) printHelp() {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	s.printLine("commands:")
	for _, name := range names {
		s.printLine("  %s", s.commands[name].Usage)
	}
	s.printLine("  watch <submission_id>")
	s.printLine("system: help | exit | logout | set base|token|user|timeout | show identity|config")
	s.printLine("examples:")
	s.printLine("  set user 7")
	s.printLine("  submit 1 cpp ./main.cpp")
	s.printLine("  submit 1 python ./sol.py mode=async")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
