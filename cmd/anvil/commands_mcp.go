package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anvilworks/anvil/internal/mcp"
)

// =============================================================================
// MCP commands
// =============================================================================

func buildMcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Manage MCP tool servers",
		Long: `Manage MCP tool servers configured in [[mcp_servers]].

Use "anvil mcp list" to see configured servers and "anvil mcp call" to
invoke a tool directly.`,
	}
	cmd.AddCommand(
		buildMcpServeCmd(),
		buildMcpListCmd(),
		buildMcpConnectCmd(),
		buildMcpDisconnectCmd(),
		buildMcpToolsCmd(),
		buildMcpCallCmd(),
	)
	return cmd
}

func buildMcpServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose anvil's skills as an MCP server on stdio",
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

			server := mcp.NewServer(rt.registry, "anvil", Version, nil)
			return server.Serve(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}

func buildMcpListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured MCP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.MCPServers) == 0 {
				fmt.Println("no MCP servers configured")
				return nil
			}
			for _, server := range cfg.MCPServers {
				fmt.Printf("  %-16s %s %s\n", server.Name, server.Command, strings.Join(server.Args, " "))
			}
			return nil
		},
	}
}

func buildMcpConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <server>",
		Short: "Connect to a configured MCP server and verify its handshake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := connectServer(cmd, args[0])
			if err != nil {
				return err
			}
			defer manager.Close()

			client, _ := manager.Client(args[0])
			info := client.ServerInfo()
			fmt.Printf("[OK] connected to %s (%s %s), %d tool(s)\n",
				args[0], info.Name, info.Version, len(client.Tools()))
			return nil
		},
	}
}

func buildMcpDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <server>",
		Short: "Verify a server can be cleanly shut down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := connectServer(cmd, args[0])
			if err != nil {
				return err
			}
			if err := manager.Disconnect(args[0]); err != nil {
				return err
			}
			fmt.Printf("[OK] disconnected %s\n", args[0])
			return nil
		},
	}
}

func buildMcpToolsCmd() *cobra.Command {
	var serverName string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List tools advertised by configured MCP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			manager := mcp.NewManager(nil, nil)
			defer manager.Close()

			for i := range cfg.MCPServers {
				server := cfg.MCPServers[i]
				if serverName != "" && server.Name != serverName {
					continue
				}
				if err := manager.Connect(cmd.Context(), &server); err != nil {
					fmt.Printf("[WARN] %s: %v\n", server.Name, err)
				}
			}

			tools := manager.Tools()
			names := make([]string, 0, len(tools))
			for name := range tools {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				owner, _ := manager.Route(name)
				fmt.Printf("  %-24s [%s] %s\n", name, owner, tools[name].Description)
			}
			if len(names) == 0 {
				fmt.Println("no tools available")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serverName, "server", "", "Only this server")
	return cmd
}

func buildMcpCallCmd() *cobra.Command {
	var rawArgs []string
	cmd := &cobra.Command{
		Use:   "call <server> <tool>",
		Short: "Call an MCP tool directly",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := connectServer(cmd, args[0])
			if err != nil {
				return err
			}
			defer manager.Close()

			arguments := map[string]any{}
			for _, pair := range rawArgs {
				key, value, found := strings.Cut(pair, "=")
				if !found {
					return fmt.Errorf("argument %q is not key=value", pair)
				}
				arguments[key] = value
			}
			payload, err := json.Marshal(arguments)
			if err != nil {
				return err
			}

			result, err := manager.CallTool(cmd.Context(), args[1], payload)
			if err != nil {
				return err
			}
			if result.IsError {
				return fmt.Errorf("tool error: %s", result.Text())
			}
			fmt.Println(result.Text())
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&rawArgs, "arg", nil, "Tool argument (key=value)")
	return cmd
}

// connectServer connects a single configured server into a fresh manager.
func connectServer(cmd *cobra.Command, name string) (*mcp.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	serverCfg, ok := cfg.MCPServer(name)
	if !ok {
		return nil, fmt.Errorf("server %q is not configured (see [[mcp_servers]])", name)
	}
	manager := mcp.NewManager(nil, nil)
	if err := manager.Connect(cmd.Context(), serverCfg); err != nil {
		manager.Close()
		return nil, err
	}
	return manager, nil
}
