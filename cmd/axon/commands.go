package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/axon/internal/agent"
	"github.com/haasonsaas/axon/internal/agent/providers"
	"github.com/haasonsaas/axon/internal/approvals"
	"github.com/haasonsaas/axon/internal/audit"
	"github.com/haasonsaas/axon/internal/config"
	"github.com/haasonsaas/axon/internal/observability"
	"github.com/haasonsaas/axon/internal/sessions"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "axon",
		Short:         "Axon multi-model assistant runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(newChatCmd(&configPath))
	root.AddCommand(newSessionsCmd(&configPath))
	root.AddCommand(newApprovalsCmd(&configPath))
	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// consoleNotifier prints approval prompts to the terminal so they can
// be answered with /approve or /deny in the chat loop.
type consoleNotifier struct{}

func (consoleNotifier) Send(ctx context.Context, recipientID, content string) error {
	fmt.Printf("\n[approval] %s\n", content)
	return nil
}

type runtimeHandles struct {
	runtime *agent.Runtime
	audit   *audit.Store
}

func (h *runtimeHandles) close() {
	if h.audit != nil {
		h.audit.Close()
	}
}

func buildRuntime(cfg *config.Config) (*runtimeHandles, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(logger)

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	var store *sessions.TranscriptStore
	if cfg.Storage.Enabled {
		var err error
		store, err = sessions.NewTranscriptStore(cfg.Storage.SessionsDir, logger)
		if err != nil {
			return nil, err
		}
	}

	handles := &runtimeHandles{}
	var toolEvents agent.ToolEventStore
	if cfg.Audit.Enabled {
		auditStore, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		handles.audit = auditStore
		toolEvents = auditStore
	}

	factory := func(model string) (agent.ModelAdapter, error) {
		mc, ok := cfg.Models[model]
		if !ok {
			return nil, fmt.Errorf("model %q is not configured", model)
		}
		switch mc.Provider {
		case "anthropic":
			return providers.NewAnthropicAdapter(providers.AnthropicConfig{
				APIKey:       mc.APIKey,
				BaseURL:      mc.BaseURL,
				DefaultModel: model,
			})
		case "openai":
			return providers.NewOpenAIAdapter(providers.OpenAIConfig{
				APIKey:       mc.APIKey,
				BaseURL:      mc.BaseURL,
				DefaultModel: model,
			})
		case "local":
			return providers.NewLocalAdapter(providers.LocalConfig{
				BaseURL:      mc.BaseURL,
				DefaultModel: model,
			}), nil
		default:
			return nil, fmt.Errorf("unknown provider %q for model %q", mc.Provider, model)
		}
	}

	runtime, err := agent.NewRuntime(agent.RuntimeOptions{
		DefaultModel:    cfg.Agent.DefaultModel,
		Workspace:       cfg.Agent.Workspace,
		SystemPrompt:    cfg.Agent.SystemPrompt,
		MaxTokens:       cfg.Agent.MaxTokens,
		MaxHistory:      cfg.Storage.MaxMessages,
		ApprovalTimeout: cfg.Approval.DefaultTimeout,
		Factory:         factory,
		Store:           store,
		ToolEvents:      toolEvents,
		Notifier:        consoleNotifier{},
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	handles.runtime = runtime

	registerTools(runtime, cfg)
	return handles, nil
}

func registerTools(runtime *agent.Runtime, cfg *config.Config) {
	tools := []agent.Tool{&agent.EchoTool{}, &agent.ShellTool{}}
	for _, tool := range tools {
		if override, ok := cfg.Tools[tool.Name()]; ok {
			tool = agent.WithPolicyOverride(tool, agent.PolicyOverride{
				AllowedSessionTypes: override.AllowedSessionTypes,
				RequiresApproval:    override.RequiresApproval,
				SandboxRequired:     override.SandboxRequired,
				MaxExecutionTime:    override.MaxExecutionTime,
			})
		}
		runtime.RegisterTool(tool)
	}
}

func newChatCmd(configPath *string) *cobra.Command {
	var sessionName string
	var model string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			handles, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer handles.close()
			return runChatLoop(cmd.Context(), handles.runtime, sessionName, model)
		},
	}
	cmd.Flags().StringVar(&sessionName, "session", "cli", "session name")
	cmd.Flags().StringVar(&model, "model", "", "model override for this session")
	return cmd
}

// runChatLoop reads user lines and runs turns. Turns run in a
// goroutine so /approve and /deny stay responsive while a gated tool
// waits for its decision.
func runChatLoop(ctx context.Context, runtime *agent.Runtime, sessionName, model string) error {
	fmt.Println("axon chat. /approve <id>, /deny <id>, /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	replies := make(chan string, 1)
	turnActive := false

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit" || line == "/exit":
			return nil

		case strings.HasPrefix(line, "/approve ") || strings.HasPrefix(line, "/deny "):
			decision := approvals.DecisionApprove
			id := strings.TrimSpace(strings.TrimPrefix(line, "/approve "))
			if strings.HasPrefix(line, "/deny ") {
				decision = approvals.DecisionDeny
				id = strings.TrimSpace(strings.TrimPrefix(line, "/deny "))
			}
			if runtime.ResolveApproval(id, decision, "operator") {
				fmt.Printf("recorded %s for %s\n", decision, id)
			} else {
				fmt.Printf("no pending approval %s\n", id)
			}

		default:
			if turnActive {
				select {
				case reply := <-replies:
					fmt.Println(reply)
					turnActive = false
				default:
					fmt.Println("a turn is still running; /approve or /deny pending approvals first")
					continue
				}
			}
			turnActive = true
			text := line
			go func() {
				reply, err := runtime.Chat(ctx, agent.TurnRequest{
					Channel:    "cli",
					ChatID:     sessionName,
					SenderID:   "operator",
					SenderName: "operator",
					Text:       text,
					Model:      model,
				})
				if err != nil {
					replies <- fmt.Sprintf("error: %v", err)
					return
				}
				replies <- reply
			}()
			// Wait briefly; if the turn needs an approval the prompt
			// comes back so the operator can answer it.
			select {
			case reply := <-replies:
				fmt.Println(reply)
				turnActive = false
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
}

func newSessionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List known sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			handles, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer handles.close()
			for _, id := range handles.runtime.ListSessions() {
				fmt.Println(id)
			}
			return nil
		},
	}
	return cmd
}

func newApprovalsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "Inspect pending approvals",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pending approvals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			handles, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer handles.close()
			for _, rec := range handles.runtime.PendingApprovals() {
				fmt.Printf("%s  %-12s  session=%s  expires=%s\n",
					rec.ID, rec.Request.ToolName, rec.Request.SessionKey,
					rec.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.AddCommand(list)
	return cmd
}
