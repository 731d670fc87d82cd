package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/namikmesic/claude-tether/internal/api"
	"github.com/namikmesic/claude-tether/internal/config"
	"github.com/namikmesic/claude-tether/internal/engine"
	"github.com/namikmesic/claude-tether/internal/protocol"
	"github.com/namikmesic/claude-tether/internal/toolcall"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	client := api.New(cfg.BaseURL, api.DefaultHTTPClient(), api.WithAPIKey(cfg.APIKey))

	sessionID := ""
	var history []protocol.Message
	if len(os.Args) > 1 {
		sessionID = os.Args[1]
		history, err = client.FetchTranscript(context.Background(), sessionID)
		if err != nil {
			log.Fatal().Err(err).Str("session_id", sessionID).Msg("failed to load session")
		}
	}

	session := engine.NewSession(client, engine.OptionsFromConfig(cfg), sessionID, history)

	printed := make(map[string]int)
	session.Subscribe(engine.Callbacks{
		OnMessage: func(m protocol.Message) {
			if m.Role != protocol.RoleAssistant {
				return
			}
			text := m.Text()
			if n := printed[m.ID]; len(text) > n {
				fmt.Print(text[n:])
				printed[m.ID] = len(text)
			}
		},
		OnToolCall: func(st toolcall.State) {
			if st.Status == toolcall.StatusActive {
				fmt.Printf("\n[tool %s running]\n", st.Name)
			} else {
				fmt.Printf("\n[tool %s %s in %s]\n", st.Name, st.Result.Status, st.Duration)
			}
		},
		OnStatus: func(st engine.Status) {
			switch st {
			case engine.StatusConnecting, engine.StatusReconciling:
				fmt.Print("\n[reconnecting...]\n")
			case engine.StatusFailed:
				fmt.Printf("\n[error: %v]\n", session.Err())
			}
		},
		OnWarning: func(err error) {
			log.Warn().Err(err).Msg("session warning")
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	session.Start(ctx)

	go func() {
		<-ctx.Done()
		session.Cancel()
	}()

	for _, m := range history {
		fmt.Printf("%s: %s\n", m.Role, m.Text())
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := session.SendText(line); err != nil {
			log.Error().Err(err).Msg("send failed")
			break
		}
		select {
		case <-session.Wait():
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		fmt.Println()
	}

	session.Cancel()
	log.Info().Str("session_id", session.ID()).Msg("goodbye")
}
