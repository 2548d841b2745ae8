package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/pkg/cliui"
	"github.com/quarryhq/quarry/pkg/config"
)

const setLongDesc string = `Set a configuration value.

Sets the given key to the provided value in the config.toml file
stored in the .quarry/ directory. Keys use dotted notation matching
the TOML section structure.

Valid keys:
  storage.sqlite_path, api.listen, client.api_target,
  vector_store.provider, vector_store.target, vector_store.api_key,
  vector_store.use_tls, vector_store.collection,
  embedding.provider, embedding.target, embedding.model,
  embedding.api_key, embedding.dimensions,
  chunking.size, chunking.overlap, agent.max_steps,
  events.enabled, events.brokers, events.topic, ingest.watch_dir

Examples:
  quarry config set embedding.model nomic-embed-text
  quarry config set embedding.dimensions 768
  quarry config set events.brokers localhost:9092,localhost:9093`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: setShortDesc,
		Long:  setLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runSet(args[0], args[1], configDir)
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	return cmd
}

func runSet(key, value, configDir string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	target := cfger.GetTarget()
	if target != "" {
		fmt.Printf("\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}

	err = cfger.SetConfigValue(key, value)
	if err != nil {
		return err
	}

	fmt.Printf("  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(value),
	)
	return nil
}
