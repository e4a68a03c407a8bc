package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"codehub/internal/cli/command"
	"codehub/internal/cli/config"
	httpclient "codehub/internal/cli/http"
	"codehub/internal/cli/repl"
	"codehub/internal/cli/state"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	token := flag.String("token", "", "Override access token")
	userID := flag.Int64("user", 0, "Override user id sent as X-User-Id")
	statePath := flag.String("state", "", "Override state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	st, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load state failed: %v\n", err)
		return
	}
	if st.BaseURL != "" {
		cfg.BaseURL = st.BaseURL
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *token != "" {
		st.AccessToken = *token
	}
	if *userID > 0 {
		st.UserID = *userID
	}

	client := httpclient.New(strings.TrimRight(cfg.BaseURL, "/"), cfg.Timeout, func() httpclient.Identity {
		return httpclient.Identity{AccessToken: st.AccessToken, UserID: st.UserID}
	})

	commands := command.Registry()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "codehub> ",
		HistoryFile:     cfg.HistoryPath,
		AutoComplete:    repl.Completer(commands),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init readline failed: %v\n", err)
		return
	}
	defer func() {
		_ = rl.Close()
	}()

	session := repl.New(client, commands, &st, cfg.StatePath, cfg.PrettyJSON != nil && *cfg.PrettyJSON, rl.Stdout())
	session.Run(context.Background(), rl)
}
