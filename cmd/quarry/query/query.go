// Package querycmder provides the query command for retrieving documents
// from a running quarry API server.
package querycmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/cliui"
	"github.com/quarryhq/quarry/pkg/config"
	"github.com/quarryhq/quarry/pkg/logger"
	"github.com/quarryhq/quarry/pkg/query"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	toolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

type queryCommander struct {
	query       string
	collections []string
	topK        int
	agentic     bool
	quiet       bool

	apiTarget string

	debug  bool
	logger *zap.Logger
}

const queryLongDesc string = `Query documents via the quarry API.

Runs a semantic search over stored document chunks, returning the most
relevant passages ranked by similarity. With --agentic, the server's
retrieval agent plans tool calls (search, filter, count, list) and
synthesizes an answer from the gathered evidence.

Use --quiet to output only file IDs, one per line, for piping into
other commands.

Examples:
  quarry query "how do refunds work"
  quarry query "error handling" --collection handbook --top 10
  quarry query "how many documents mention pricing" --agentic
  quarry query "onboarding" --quiet | xargs -n1 echo`

const queryShortDesc string = "Query stored documents"

func NewQueryCmd() *cobra.Command {
	cmder := &queryCommander{}

	cmd := &cobra.Command{
		Use:   "query <query>",
		Short: queryShortDesc,
		Long:  queryLongDesc,
		Args:  cobra.ExactArgs(1),
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
				cmder.collections = []string{cfg.VectorStore.Collection}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().IntVarP(&cmder.topK, "top", "k", int(query.DefaultTopK), "Number of results to return")
	cmd.Flags().BoolVarP(&cmder.agentic, "agentic", "a", false, "Use agentic retrieval instead of plain semantic search")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only file IDs, one per line (for piping)")
	cmd.Flags().StringSliceVarP(&cmder.collections, "collection", "c", []string{defaults.VectorStore.Collection}, "Collection(s) to query")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Quarry API server URL")

	return cmd
}

func (c *queryCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	mode := query.ModeSemantic
	if c.agentic {
		mode = query.ModeAgentic
	}

	resp, err := QueryAPI(context.Background(), c.apiTarget, query.Request{
		Query:       c.query,
		Mode:        mode,
		Collections: c.collections,
		TopK:        c.topK,
	})
	if err != nil {
		return err
	}

	if c.agentic {
		return c.printAgentic(resp)
	}
	return c.printHits(resp)
}

func (c *queryCommander) printHits(resp *query.Response) error {
	if c.quiet {
		seen := make(map[string]bool)
		for _, hit := range resp.Hits {
			if !seen[hit.FileID] {
				seen[hit.FileID] = true
				fmt.Println(hit.FileID)
			}
		}
		return nil
	}

	if len(resp.Hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("\n%s %s\n\n",
		headerStyle.Render("Results for:"),
		idStyle.Render(fmt.Sprintf("%q", c.query)),
	)

	for i, hit := range resp.Hits {
		preview := strings.ReplaceAll(hit.Text, "\n", " ")
		if len(preview) > 160 {
			preview = preview[:157] + "..."
		}

		fmt.Printf("  %s  %s  %s\n",
			rankStyle.Render(fmt.Sprintf("#%d", i+1)),
			scoreStyle.Render(fmt.Sprintf("score: %.4f", hit.Score)),
			idStyle.Render(fmt.Sprintf("%s[%d]", hit.FileID, hit.ChunkIndex)),
		)
		fmt.Printf("  %s\n\n", previewStyle.Render(preview))
	}

	return nil
}

func (c *queryCommander) printAgentic(resp *query.Response) error {
	if resp.Agentic == nil {
		fmt.Println("No answer produced.")
		return nil
	}

	if !c.quiet {
		for i, step := range resp.Agentic.Steps {
			fmt.Printf("  %s %s %s\n",
				scoreStyle.Render(fmt.Sprintf("step %d:", i+1)),
				toolStyle.Render(step.Tool),
				scoreStyle.Render(step.Input),
			)
		}
		if resp.Agentic.Truncated {
			fmt.Printf("  %s\n", scoreStyle.Render("(step budget reached)"))
		}
	}

	rendered, err := cliui.RenderMarkdown(resp.Agentic.Answer)
	if err != nil {
		// Fall back to plain text if the terminal renderer fails.
		fmt.Println(resp.Agentic.Answer)
		return nil
	}

	fmt.Print(rendered)
	return nil
}

// QueryAPI posts a query request to the quarry API and returns the parsed
// response. Exported so other commands can reuse it.
func QueryAPI(ctx context.Context, apiTarget string, request query.Request) (*query.Response, error) {
	queryURL, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	queryURL.Path = "/query"

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encoding query request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, queryURL.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
		return nil, fmt.Errorf("query request failed (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var output query.Response
	if err := json.Unmarshal(body, &output); err != nil {
		return nil, fmt.Errorf("failed to parse query response: %w", err)
	}

	return &output, nil
}
