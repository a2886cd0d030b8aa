package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and edit config.toml",
	Long: `Reads and writes the TOML configuration. Keys use dots for nesting,
for example pipeline.max_concurrent or detectors.price_outlier.z_threshold.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show [prefix]",
	Short: "Print every key, optionally only those under a prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a single value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value",
	Long: `Sets a value and writes config.toml. Values that parse as booleans,
integers or decimals are stored with that type; anything else is a string.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key>",
	Short: "Set a value read from the terminal without echo",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigSetSecret,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}
	keys := configStore.Keys(prefix)
	if len(keys) == 0 {
		cmd.Printf("No settings in %s.\n", configStore.Path())
		return nil
	}
	for _, key := range keys {
		value, _ := configStore.Get(key)
		cmd.Printf("%s = %s\n", key, maskSetting(key, fmt.Sprint(value)))
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	value, ok := configStore.Get(args[0])
	if !ok {
		return fmt.Errorf("key %s is not set", args[0])
	}
	cmd.Println(fmt.Sprint(value))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	if err := configStore.Set(args[0], parseConfigValue(args[1])); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	cmd.Printf("%s updated.\n", args[0])
	return nil
}

func runConfigSetSecret(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	cmd.Printf("Value for %s: ", args[0])
	secret := readPassword()
	cmd.Println()
	if secret == "" {
		return errors.New("value is required")
	}
	if err := configStore.Set(args[0], secret); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	cmd.Printf("%s updated.\n", args[0])
	return nil
}

// parseConfigValue keeps TOML types for values typed on the command line.
func parseConfigValue(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func readPassword() string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}
