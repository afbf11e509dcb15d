package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/lunarhue/sidekick/internal/agent"
	"github.com/lunarhue/sidekick/internal/config"
	"github.com/lunarhue/sidekick/internal/format"
	"github.com/lunarhue/sidekick/internal/prefs"
	"github.com/lunarhue/sidekick/internal/providers"
	"github.com/lunarhue/sidekick/internal/session"
	"github.com/lunarhue/sidekick/internal/slackapi"
	"github.com/lunarhue/sidekick/internal/store"
	"github.com/lunarhue/sidekick/internal/tools"
)

func chatCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant (interactive REPL, or one-shot with -m)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(message)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send one message and exit")
	return cmd
}

func runChat(message string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := newSlackClient(ctx, cfg)
	if err != nil {
		return err
	}

	provider, err := providers.New(cfg)
	if err != nil {
		return err
	}

	sessions := session.NewStorage(config.ExpandHome(cfg.Storage.SessionsDir))
	state, resumed, err := sessions.GetOrCreate()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	loop := buildLoop(cfg, st, client, provider, sessions, state, resumed)

	if message != "" {
		result, err := loop.Run(ctx, message)
		if err != nil {
			return err
		}
		fmt.Println(result.Content)
		return sessions.Save(state)
	}

	printBanner(provider, state, resumed)

	opening, err := loop.StartSession(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
	} else {
		fmt.Printf("\n%s\n\n", opening.Content)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "\nGoodbye!")
			return sessions.Save(state)
		default:
		}

		fmt.Fprint(os.Stderr, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(os.Stderr, "\nGoodbye!")
			return sessions.Save(state)
		}
		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "exit" || input == "quit":
			fmt.Fprintln(os.Stderr, "Goodbye!")
			return sessions.Save(state)
		case input == "/new":
			if _, err := sessions.Archive(state); err != nil {
				fmt.Fprintf(os.Stderr, "Error archiving session: %v\n\n", err)
				continue
			}
			state = session.NewState()
			if err := sessions.Save(state); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
				continue
			}
			loop = buildLoop(cfg, st, client, provider, sessions, state, false)
			fmt.Fprintf(os.Stderr, "New session: %s\n\n", state.SessionID)
			continue
		case input == "/status":
			input = agent.InitialStatusPrompt
		}

		result, err := loop.Run(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			continue
		}
		fmt.Printf("\n%s\n\n", result.Content)
	}
}

// buildLoop assembles the tool set and the conversation loop around
// one session state.
func buildLoop(cfg *config.Config, st store.Store, client *slackapi.Client, provider providers.Provider, sessions *session.Storage, state *session.State, resumed bool) *agent.Loop {
	resolver := format.NewResolver(st, entityCacheTTL(cfg))
	prefStore := prefs.NewStorage(config.ExpandHome(cfg.Storage.PreferencesDir))
	linkHost := cfg.Slack.LinkHost

	deps := &tools.Deps{
		Store:    st,
		Slack:    client,
		Resolver: resolver,
		Prefs:    prefStore,
		Sessions: sessions,
		State:    state,
		Status:   tools.NewStatusService(st, resolver, prefStore, client.UserID(), linkHost),
		UserID:   client.UserID(),
		LinkHost: linkHost,
	}
	if embedClient := newEmbedClient(cfg); embedClient != nil {
		deps.Embedder = embedClient
	}

	registry := tools.NewRegistry()
	tools.RegisterAll(registry, deps)

	return agent.NewLoop(agent.LoopConfig{
		Provider:           provider,
		Registry:           registry,
		Prefs:              prefStore,
		State:              state,
		Resumed:            resumed,
		UserID:             client.UserID(),
		MaxIterations:      cfg.Agent.MaxToolIterations,
		MaxRecentTurns:     cfg.Agent.MaxRecentTurns,
		SummarizeThreshold: cfg.Agent.SummarizeThreshold,
		MaxSummaryTokens:   cfg.Agent.MaxSummaryTokens,
	})
}

func printBanner(provider providers.Provider, state *session.State, resumed bool) {
	fmt.Fprintln(os.Stderr, "\nsidekick — personal Slack assistant")
	fmt.Fprintf(os.Stderr, "Provider: %s | Model: %s\n", provider.Name(), provider.DefaultModel())
	mode := "new"
	if resumed {
		mode = "resumed"
	}
	fmt.Fprintf(os.Stderr, "Session: %s (%s)\n", state.SessionID, mode)
	if resumed && state.ConversationSummary != nil {
		fmt.Fprintf(os.Stderr, "Context: %s\n", runewidth.Truncate(state.SummaryText(), 100, "..."))
	}
	fmt.Fprintln(os.Stderr, "Type \"exit\" to quit, \"/new\" for a fresh session, \"/status\" for a status check")
}
