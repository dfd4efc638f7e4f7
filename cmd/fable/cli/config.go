package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/fable/internal/credential"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value (API keys are encrypted at rest)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key, value := args[0], args[1]

		s := getStore()
		defer s.Close()

		if isSecretKey(key) {
			if err := getVault(s).Put(key, value); err != nil {
				fmt.Printf("Failed to store credential: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Credential saved: %s = %s\n", key, credential.Mask(value))
			return
		}

		if err := s.SetConfig(key, value); err != nil {
			fmt.Printf("Failed to set config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration saved: %s\n", key)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]

		s := getStore()
		defer s.Close()

		val, err := s.GetConfig(key)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		switch {
		case val == "":
			fmt.Println("(not set)")
		case credential.IsSealed(val):
			secret, err := getVault(s).Unseal(val)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(credential.Mask(secret))
		default:
			fmt.Println(val)
		}
	},
}

// isSecretKey marks configuration keys whose values must never be stored in
// plaintext.
func isSecretKey(key string) bool {
	return strings.HasSuffix(key, ".api_key") || strings.HasSuffix(key, ".token")
}

func init() {
	RootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}
