// Command anvil is an autonomous command-line coding agent.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/anvilworks/anvil/internal/config"
)

// Version is stamped by the build.
var Version = "0.4.0"

type globalFlags struct {
	configPath    string
	workDir       string
	verbose       bool
	auto          bool
	maxIterations int
}

var flags globalFlags

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "anvil",
		Short:         "Autonomous coding agent for your terminal",
		Long:          "Anvil is an autonomous coding agent: it plans with an LLM, executes tools against your workspace, and iterates until the task is done.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(flags.verbose)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the TOML configuration file")
	cmd.PersistentFlags().StringVarP(&flags.workDir, "workdir", "d", ".", "Workspace directory the agent operates in")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&flags.auto, "auto", false, "Skip confirmation prompts for write-side tools")
	cmd.PersistentFlags().IntVar(&flags.maxIterations, "max-iterations", 0, "Override the loop iteration cap")

	cmd.AddCommand(
		buildChatCmd(),
		buildRunCmd(),
		buildAgentsCmd(),
		buildSkillsCmd(),
		buildConfigCmd(),
		buildMcpCmd(),
		buildPluginCmd(),
		buildIndexCmd(),
		buildSearchCmd(),
		buildScanCmd(),
		buildTuiCmd(),
		buildDoctorCmd(),
		buildUpdateCmd(),
		buildVersionCmd(),
	)
	return cmd
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	if env := os.Getenv("ANVIL_LOG"); env != "" {
		switch env {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func loadConfig() (*config.Config, error) {
	return config.Load(flags.configPath)
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the anvil version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("anvil %s\n", Version)
		},
	}
}

func buildTuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Launch the terminal UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("[INFO] the terminal UI is not bundled in this build; use 'anvil chat' instead")
			return nil
		},
	}
}

func buildUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update anvil to the latest release",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("[INFO] automatic updates are not bundled in this build; install the latest release from your package source")
			return nil
		},
	}
}
