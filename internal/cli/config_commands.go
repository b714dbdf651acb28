package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/proptour/proptour-cli/internal/auth"
	"github.com/proptour/proptour-cli/internal/config"
	"github.com/proptour/proptour-cli/internal/session"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage proptour configuration",
		Long: `Configuration management commands.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test backend credentials
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup.

The configuration is saved to ~/.config/proptour/config

Use --force to overwrite an existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}

			if !force {
				if _, err := os.Stat(configPath); err == nil {
					fmt.Printf("Configuration already exists at: %s\n", configPath)
					fmt.Println("Use --force to overwrite or run 'config show' to view the current config.")
					return nil
				}
			}

			cfg := config.New()
			reader := bufio.NewReader(cmd.InOrStdin())

			fmt.Println("Proptour Configuration Setup")
			fmt.Println("============================")
			fmt.Println()

			fmt.Printf("Backend URL [%s]: ", cfg.Backend.BaseURL)
			if v := readLine(reader); v != "" {
				cfg.Backend.BaseURL = v
			}

			fmt.Println()
			fmt.Println("Authentication (press Enter to skip)")
			fmt.Println("------------------------------------")

			fmt.Print("Auth domain: ")
			cfg.Auth.Domain = readLine(reader)

			if cfg.Auth.Domain != "" {
				fmt.Print("Client ID: ")
				cfg.Auth.ClientID = readLine(reader)

				fmt.Print("Client secret: ")
				cfg.Auth.ClientSecret = readSecret(reader)

				fmt.Print("Audience: ")
				cfg.Auth.Audience = readLine(reader)
			}

			fmt.Println()
			fmt.Println("Generation Defaults (press Enter for defaults)")
			fmt.Println("----------------------------------------------")

			fmt.Printf("Context (single/multi) [%s]: ", cfg.Generation.Context)
			if v := readLine(reader); v != "" {
				cfg.Generation.Context = v
			}

			fmt.Printf("Global prompt [%s]: ", cfg.Generation.GlobalPrompt)
			if v := readLine(reader); v != "" {
				cfg.Generation.GlobalPrompt = v
			}

			fmt.Printf("Weight (0-1) [%g]: ", cfg.Generation.Weight)
			if v := readLine(reader); v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					cfg.Generation.Weight = f
				}
			}

			fmt.Printf("Duration seconds (1-60) [%d]: ", cfg.Generation.DurationSeconds)
			if v := readLine(reader); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					cfg.Generation.DurationSeconds = n
				}
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := config.Save(cfg, configPath); err != nil {
				return err
			}

			// The identity just changed: a batch tracked under the old
			// credentials must not carry over to the new ones.
			if sessPath, err := config.DefaultSessionPath(); err == nil {
				if err := session.NewStore(sessPath).Purge(); err != nil {
					GetLogger().Warn().Err(err).Msg("Failed to forget tracked batch")
				}
			}

			fmt.Println()
			fmt.Printf("Configuration saved to: %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			fmt.Println("Current configuration:")
			fmt.Println()
			fmt.Printf("  Backend URL:     %s\n", cfg.Backend.BaseURL)
			fmt.Printf("  Auth domain:     %s\n", valueOrUnset(cfg.Auth.Domain))
			fmt.Printf("  Client ID:       %s\n", valueOrUnset(cfg.Auth.ClientID))
			fmt.Printf("  Client secret:   %s\n", maskSecret(cfg.Auth.ClientSecret))
			fmt.Printf("  Audience:        %s\n", valueOrUnset(cfg.Auth.Audience))
			fmt.Println()
			fmt.Printf("  Context:         %s\n", cfg.Generation.Context)
			fmt.Printf("  Uniform prompts: %t\n", cfg.Generation.UniformPrompts)
			fmt.Printf("  Global prompt:   %s\n", cfg.Generation.GlobalPrompt)
			fmt.Printf("  Weight:          %g\n", cfg.Generation.Weight)
			fmt.Printf("  Duration:        %ds\n", cfg.Generation.DurationSeconds)
			fmt.Printf("  Max files:       %d\n", cfg.Generation.MaxFiles)
			fmt.Println()
			fmt.Printf("  Notifications:   %t\n", cfg.Notifications.Enabled)

			return nil
		},
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test backend credentials",
		Long:  `Perform one token exchange against the configured identity provider.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := cfg.ValidateForAuth(); err != nil {
				return err
			}

			tokens := auth.NewClientCredentials(cfg)
			if _, err := tokens.Token(ctx); err != nil {
				return fmt.Errorf("credential check failed: %w", err)
			}

			fmt.Println("Credentials OK.")
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				var err error
				path, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}
			fmt.Println(path)
			return nil
		},
	}
}

func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// readSecret reads without echo when stdin is a terminal, falling back to a
// plain read when it is piped.
func readSecret(reader *bufio.Reader) string {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret))
		}
	}
	return readLine(reader)
}

func valueOrUnset(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}

func maskSecret(v string) string {
	if v == "" {
		return "(not set)"
	}
	return "********"
}
