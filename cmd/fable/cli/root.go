package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/fable/internal/image"
	"github.com/felixgeelhaar/fable/internal/observe"
	"github.com/felixgeelhaar/fable/internal/provider"
	"github.com/felixgeelhaar/fable/internal/scenario"
	"github.com/felixgeelhaar/fable/internal/session"
	"github.com/felixgeelhaar/fable/internal/ui/tui"
)

var (
	verbose       bool
	ciMode        bool
	providerType  string
	modelName     string
	endpoint      string
	imageType     string
	imageModel    string
	imageEndpoint string
	scenarioDir   string
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "fable",
	Short: "AI-narrated interactive fiction in your terminal",
	Long: `Fable runs turn-based text adventures against a language model of your
choice: Google Gemini, a local LM Studio server, or Ollama. Adventures are
illustrated, saved locally, and resumable.`,
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Start or resume an adventure",
	Run: func(cmd *cobra.Command, args []string) {
		play()
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.AddCommand(playCmd)
	playCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	playCmd.Flags().BoolVar(&ciMode, "ci", false, "JSON log output, for non-interactive runs")
	playCmd.Flags().StringVarP(&providerType, "provider", "p", "gemini", "Text backend (gemini, lmstudio, ollama, stub)")
	playCmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name (default depends on backend)")
	playCmd.Flags().StringVar(&endpoint, "endpoint", "", "Text backend endpoint override")
	playCmd.Flags().StringVar(&imageType, "image-provider", "none", "Image backend (dalle, comfyui, none)")
	playCmd.Flags().StringVar(&imageModel, "image-model", "", "Image model name")
	playCmd.Flags().StringVar(&imageEndpoint, "image-endpoint", "", "Image backend endpoint override")
	playCmd.Flags().StringVar(&scenarioDir, "scenarios", "", "Directory of additional scenario templates")
}

func play() {
	var obs *observe.Observer
	if ciMode {
		obs = observe.NewJSON(os.Stderr, verbose)
	} else {
		obs = observe.New(os.Stderr, verbose)
	}

	storeLayer := getStore()
	defer storeLayer.Close()
	vault := getVault(storeLayer)

	// Flags win; persisted configuration fills whatever they leave blank.
	if modelName == "" {
		modelName, _ = storeLayer.GetConfig(providerType + ".model")
	}
	if endpoint == "" {
		endpoint, _ = storeLayer.GetConfig(providerType + ".endpoint")
	}
	if imageModel == "" {
		imageModel, _ = storeLayer.GetConfig(imageType + ".model")
	}
	if imageEndpoint == "" {
		imageEndpoint, _ = storeLayer.GetConfig(imageType + ".endpoint")
	}

	textCfg := provider.Config{
		Kind:     provider.Kind(providerType),
		Model:    modelName,
		Endpoint: endpoint,
	}
	textCfg.APIKey = resolveTextKey(vault, textCfg.Kind)

	imageCfg := image.Config{
		Kind:     image.Kind(imageType),
		Model:    imageModel,
		Endpoint: imageEndpoint,
	}
	imageCfg.APIKey = resolveImageKey(vault, imageCfg.Kind)

	scenarios, err := scenario.Builtin()
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to load built-in scenarios")
	}
	if scenarioDir != "" {
		extra, err := scenario.LoadDir(scenarioDir)
		if err != nil {
			obs.Log().Fatal().Err(err).Str("dir", scenarioDir).Msg("Failed to load scenarios")
		}
		scenarios = append(scenarios, extra...)
	}

	eng := session.New(storeLayer, obs)
	eng.ResolveCredential = func(kind provider.Kind) string { return resolveTextKey(vault, kind) }
	eng.ResolveImageCredential = func(kind image.Kind) string { return resolveImageKey(vault, kind) }

	if err := tui.Run(eng, textCfg, imageCfg, scenarios); err != nil {
		fmt.Printf("Alas, there's been an error: %v\n", err)
		os.Exit(1)
	}
}
