package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/anvilworks/anvil/internal/config"
)

// =============================================================================
// Doctor
// =============================================================================

func buildDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the local environment and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok := true
			report := func(good bool, label, detail string) {
				status := "[OK]  "
				if !good {
					status = "[WARN]"
					ok = false
				}
				fmt.Printf("%s %-24s %s\n", status, label, detail)
			}

			configPath := flags.configPath
			if configPath == "" {
				configPath = config.DefaultPath()
			}
			if _, err := os.Stat(configPath); err == nil {
				report(true, "config file", configPath)
			} else {
				report(false, "config file", "missing, defaults in effect ('anvil config init' to create)")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for name, model := range cfg.Models {
				if model.Provider == "ollama" {
					report(true, "model "+name, "local, no key needed")
					continue
				}
				if model.ResolveAPIKey() != "" {
					report(true, "model "+name, "API key resolved")
				} else {
					report(false, "model "+name, "no API key (set "+model.APIKeyEnv+")")
				}
			}

			if _, err := exec.LookPath("git"); err == nil {
				report(true, "git", "on PATH")
			} else {
				report(false, "git", "not found, git skills unavailable")
			}

			dataDir := config.DataDir()
			if _, err := os.Stat(dataDir); err == nil {
				report(true, "data dir", dataDir)
			} else {
				report(true, "data dir", dataDir+" (will be created on demand)")
			}

			if len(cfg.MCPServers) > 0 {
				for _, server := range cfg.MCPServers {
					if _, err := exec.LookPath(server.Command); err == nil {
						report(true, "mcp "+server.Name, server.Command+" on PATH")
					} else {
						report(false, "mcp "+server.Name, server.Command+" not found")
					}
				}
			}

			if !ok {
				fmt.Println("\nsome checks need attention")
			}
			return nil
		},
	}
}
