// Package statuscmder provides the status command for checking the health
// and inventory of a running quarry API server.
package statuscmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/pkg/cliui"
	"github.com/quarryhq/quarry/pkg/config"
)

type statusCommander struct {
	collection string
	apiTarget  string
}

// Stats mirrors the server's stats response.
type Stats struct {
	Collection string `json:"collection"`
	Documents  int    `json:"documents"`
	Chunks     int    `json:"chunks"`
}

const statusLongDesc string = `Show the status of a running quarry API server.

Checks the server's health endpoint and reports how many documents and
chunks are stored in the collection.

Examples:
  quarry status
  quarry status --collection handbook
  quarry status --api-target http://localhost:8081`

const statusShortDesc string = "Show API server status"

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}
			if !cmd.Flags().Changed("collection") {
				cmder.collection = cfg.VectorStore.Collection
			}
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Quarry API server URL")
	cmd.Flags().StringVarP(&cmder.collection, "collection", "c", defaults.VectorStore.Collection, "Collection to report on")

	return cmd
}

func (c *statusCommander) run() error {
	ctx := context.Background()

	if err := checkHealth(ctx, c.apiTarget); err != nil {
		fmt.Printf("\n  %s %s %s\n\n",
			cliui.FailMark,
			cliui.KeyStyle.Render("Server:"),
			cliui.DimStyle.Render(c.apiTarget),
		)
		return err
	}

	fmt.Printf("\n  %s %s %s\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render("Server:   "),
		cliui.ValueStyle.Render(c.apiTarget),
	)

	stats, err := StatsAPI(ctx, c.apiTarget, c.collection)
	if err != nil {
		return err
	}

	fmt.Printf("  %s %s\n",
		cliui.KeyStyle.Render("  Collection:"),
		cliui.ValueStyle.Render(stats.Collection),
	)
	fmt.Printf("  %s %s\n",
		cliui.KeyStyle.Render("  Documents: "),
		cliui.ValueStyle.Render(strconv.Itoa(stats.Documents)),
	)
	fmt.Printf("  %s %s\n\n",
		cliui.KeyStyle.Render("  Chunks:    "),
		cliui.ValueStyle.Render(strconv.Itoa(stats.Chunks)),
	)

	return nil
}

func checkHealth(ctx context.Context, apiTarget string) error {
	healthURL, err := url.Parse(apiTarget)
	if err != nil {
		return fmt.Errorf("invalid API target URL: %w", err)
	}
	healthURL.Path = "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to quarry API at %s: %w", apiTarget, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed (HTTP %d)", resp.StatusCode)
	}

	return nil
}

// StatsAPI fetches document and chunk counts from the quarry API.
func StatsAPI(ctx context.Context, apiTarget, collection string) (*Stats, error) {
	statsURL, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	statsURL.Path = "/stats"
	if collection != "" {
		q := statsURL.Query()
		q.Set("collection", collection)
		statsURL.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating stats request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to quarry API at %s: %w", apiTarget, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats request failed (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var stats Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("failed to parse stats response: %w", err)
	}

	return &stats, nil
}
