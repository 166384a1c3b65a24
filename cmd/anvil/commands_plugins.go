package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anvilworks/anvil/internal/config"
	"github.com/anvilworks/anvil/internal/plugins"
)

// =============================================================================
// Plugin commands
// =============================================================================

func buildPluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Manage WASM plugins",
	}
	cmd.AddCommand(
		buildPluginListCmd(),
		buildPluginInstallCmd(),
		buildPluginUninstallCmd(),
		buildPluginEnableCmd(true),
		buildPluginEnableCmd(false),
		buildPluginInfoCmd(),
	)
	return cmd
}

func openPluginRegistry() (*plugins.Registry, error) {
	registry, err := plugins.NewRegistry(config.DataDir(), slog.Default(), nil)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	registry.Discover(cfg.PluginDirs)
	return registry, nil
}

func buildPluginListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openPluginRegistry()
			if err != nil {
				return err
			}
			installed := registry.List()
			if len(installed) == 0 {
				fmt.Println("no plugins installed")
				return nil
			}
			for _, plugin := range installed {
				status := "enabled"
				if !plugin.Enabled {
					status = "disabled"
				}
				fmt.Printf("  %-16s %-8s %-10s %s\n", plugin.ID, plugin.Version, status, plugin.Name)
			}
			return nil
		},
	}
}

func buildPluginInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install <path>",
		Short: "Install a plugin from a local directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openPluginRegistry()
			if err != nil {
				return err
			}
			installed, err := registry.InstallLocal(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("[OK] installed %s %s\n", installed.ID, installed.Version)
			return nil
		},
	}
}

func buildPluginUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <id>",
		Short: "Remove an installed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openPluginRegistry()
			if err != nil {
				return err
			}
			if err := registry.Uninstall(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("[OK] uninstalled %s\n", args[0])
			return nil
		},
	}
}

func buildPluginEnableCmd(enable bool) *cobra.Command {
	use, verb, short := "enable <id>", "enabled", "Enable a plugin"
	if !enable {
		use, verb, short = "disable <id>", "disabled", "Disable a plugin"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openPluginRegistry()
			if err != nil {
				return err
			}
			if err := registry.SetEnabled(args[0], enable); err != nil {
				return err
			}
			fmt.Printf("[OK] %s %s\n", verb, args[0])
			return nil
		},
	}
}

func buildPluginInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <id>",
		Short: "Show plugin details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openPluginRegistry()
			if err != nil {
				return err
			}
			plugin, ok := registry.Get(args[0])
			if !ok {
				return fmt.Errorf("plugin %q is not installed", args[0])
			}
			manifest := plugin.Manifest()
			fmt.Printf("id:          %s\n", manifest.ID)
			fmt.Printf("name:        %s\n", manifest.Name)
			fmt.Printf("version:     %s\n", manifest.Version)
			fmt.Printf("type:        %s\n", manifest.PluginType)
			fmt.Printf("entry point: %s\n", manifest.EntryPoint)
			if len(manifest.Permissions) > 0 {
				perms := make([]string, len(manifest.Permissions))
				for i, p := range manifest.Permissions {
					perms[i] = string(p)
				}
				fmt.Printf("permissions: %s\n", strings.Join(perms, ", "))
			}
			fmt.Println("skills:")
			for _, skill := range manifest.Skills {
				fmt.Printf("  %-16s %s\n", skill.Name, skill.Description)
			}
			return nil
		},
	}
}
