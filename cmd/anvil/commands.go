package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anvilworks/anvil/internal/agent"
	"github.com/anvilworks/anvil/internal/config"
	"github.com/anvilworks/anvil/internal/crew"
	"github.com/anvilworks/anvil/internal/sessions"
)

// =============================================================================
// Chat and autonomous run
// =============================================================================

func buildChatCmd() *cobra.Command {
	var agentName string
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the agent (interactive REPL without a message)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := ""
			if len(args) == 1 {
				message = args[0]
			}
			return runChat(cmd.Context(), agentName, message)
		},
	}
	cmd.Flags().StringVar(&agentName, "agent", "", "Agent persona to use")
	return cmd
}

func runChat(ctx context.Context, agentName, message string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg, agentName)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	loop := rt.newLoop(flags.maxIterations, false)

	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	session := &sessions.Session{
		ID:    uuid.NewString(),
		Agent: rt.agentCfg.Name,
		Model: rt.modelCfg.Model,
	}
	if err := store.CreateSession(ctx, session); err != nil {
		return err
	}
	rt.auditLog.SetSessionID(session.ID)

	if message != "" {
		return chatOnce(ctx, loop, store, session.ID, message)
	}
	return chatRepl(ctx, rt, loop, store, session.ID)
}

func chatOnce(ctx context.Context, loop *agent.AgenticLoop, store sessions.Store, sessionID, message string) error {
	persist(ctx, store, sessionID, "user", message)
	content, err := loop.ChatTurn(ctx, message, streamPrinter)
	fmt.Println()
	if err != nil {
		return err
	}
	persist(ctx, store, sessionID, "assistant", content)
	return nil
}

func chatRepl(ctx context.Context, rt *runtime, loop *agent.AgenticLoop, store sessions.Store, sessionID string) error {
	fmt.Printf("[INFO] interactive mode — model %s, agent %s. Type 'exit' to quit.\n",
		rt.modelCfg.Model, rt.agentCfg.Name)
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("\n> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "exit", "quit", "q":
			fmt.Println("[INFO] goodbye")
			return nil
		case "clear", "reset":
			loop.Window().Clear()
			fmt.Println("[INFO] context cleared")
			continue
		case "skills":
			printSkills(rt.registry)
			continue
		case "history":
			for i, msg := range loop.Window().Snapshot() {
				preview := msg.Content
				if len(preview) > 100 {
					preview = preview[:100] + "..."
				}
				fmt.Printf("  %d. [%s] %s\n", i+1, strings.ToUpper(msg.Role), preview)
			}
			continue
		case "help", "?":
			fmt.Println("  exit|quit|q    leave the REPL")
			fmt.Println("  clear|reset    clear the conversation context")
			fmt.Println("  skills         list available skills")
			fmt.Println("  history        show the conversation so far")
			continue
		}

		if err := chatOnce(ctx, loop, store, sessionID, input); err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		}
	}
}

func persist(ctx context.Context, store sessions.Store, sessionID, role, content string) {
	err := store.AppendMessage(ctx, &sessions.TranscriptMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	})
	if err != nil {
		slog.Warn("failed to persist transcript message",
			"session_id", sessionID,
			"role", role,
			"error", err)
	}
}

func openSessionStore() (sessions.Store, error) {
	return sessions.NewSQLiteStore(config.DataDir() + "/sessions.db")
}

func buildRunCmd() *cobra.Command {
	var (
		agentName string
		yolo      bool
	)
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a task autonomously until TASK_COMPLETE or the iteration cap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), agentName, args[0], yolo)
		},
	}
	cmd.Flags().StringVar(&agentName, "agent", "", "Agent persona to use")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Keep looping through provider errors")
	return cmd
}

func runTask(ctx context.Context, agentName, task string, yolo bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg, agentName)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	// Cooperative cancellation: the first interrupt stops the loop
	// between iterations; a second kills the process.
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-runCtx.Done()
		stop()
	}()

	loop := rt.newLoop(flags.maxIterations, yolo)

	fmt.Printf("[INFO] task: %s\n", task)
	enhanced := task + "\n\nIMPORTANT: You are running in autonomous mode. " +
		"Work step by step until the task is FULLY complete. " +
		"When finished, respond with 'TASK_COMPLETE' on a new line."

	started := time.Now()
	result, err := loop.Run(runCtx, enhanced, streamPrinter)
	fmt.Println()
	if err != nil {
		if errors.Is(err, agent.ErrMaxIterations) {
			fmt.Printf("[WARN] max iterations reached after %d turns (%s)\n",
				result.Iterations, time.Since(started).Round(time.Second))
			return nil
		}
		return err
	}
	fmt.Printf("[OK] task completed in %d iteration(s) (%s)\n",
		result.Iterations, time.Since(started).Round(time.Second))
	return nil
}

// =============================================================================
// Agents, skills, config
// =============================================================================

func buildAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List configured agents and crew personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			names := make([]string, 0, len(cfg.Agents))
			for name := range cfg.Agents {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Println("Configured agents:")
			for _, name := range names {
				agentCfg := cfg.Agents[name]
				marker := " "
				if name == cfg.DefaultAgent {
					marker = "*"
				}
				fmt.Printf("  %s %-12s %s\n", marker, name, agentCfg.Description)
			}

			manager := crew.NewManager(config.DataDir())
			personas, err := manager.List()
			if err != nil {
				return err
			}
			if len(personas) > 0 {
				active, _ := manager.Active()
				fmt.Println("Crew personas:")
				for _, name := range personas {
					marker := " "
					if active != nil && active.Name == name {
						marker = "*"
					}
					fmt.Printf("  %s %s\n", marker, name)
				}
			}
			return nil
		},
	}
}

func buildSkillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List the skills available to the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), cfg, "")
			if err != nil {
				return err
			}
			defer rt.close(cmd.Context())
			printSkills(rt.registry)
			return nil
		},
	}
}

func printSkills(registry *agent.ToolRegistry) {
	for _, def := range registry.Definitions() {
		confirm := ""
		if tool, ok := registry.Get(def.Name); ok && agent.RequiresConfirmation(tool) {
			confirm = " (confirm)"
		}
		fmt.Printf("  %-24s%s %s\n", def.Name, confirm, def.Description)
	}
}

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Run: func(cmd *cobra.Command, args []string) {
				path := flags.configPath
				if path == "" {
					path = config.DefaultPath()
				}
				fmt.Println(path)
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				fmt.Printf("default_model = %q\n", cfg.DefaultModel)
				fmt.Printf("default_agent = %q\n", cfg.DefaultAgent)
				fmt.Printf("max_iterations = %d\n", cfg.MaxIterations)
				names := make([]string, 0, len(cfg.Models))
				for name := range cfg.Models {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					model := cfg.Models[name]
					fmt.Printf("models.%s: provider=%s model=%s\n", name, model.Provider, model.Model)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write the default configuration file",
			RunE: func(cmd *cobra.Command, args []string) error {
				path := flags.configPath
				if path == "" {
					path = config.DefaultPath()
				}
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config already exists at %s", path)
				}
				if err := config.Save(config.Default(), path); err != nil {
					return err
				}
				fmt.Printf("[OK] wrote %s\n", path)
				return nil
			},
		},
	)
	return cmd
}
