// Package ingestcmder provides the ingest command for uploading documents
// to a running quarry API server.
package ingestcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/cliui"
	"github.com/quarryhq/quarry/pkg/config"
	"github.com/quarryhq/quarry/pkg/ingest"
	"github.com/quarryhq/quarry/pkg/logger"
)

type ingestCommander struct {
	paths      []string
	fileID     string
	collection string

	apiTarget string

	debug  bool
	logger *zap.Logger
}

const ingestLongDesc string = `Upload documents to a running quarry API server.

Each file is sent as multipart form data to the server's upload endpoint,
where it is extracted, chunked, embedded, and stored. Supported formats
include plain text, markdown, PDF, docx, pptx, and xlsx.

By default the document ID is derived from the file content, so uploading
the same file twice replaces the stored document instead of duplicating it.
Use --file-id to pin a stable ID regardless of content.

Examples:
  quarry ingest report.pdf
  quarry ingest docs/*.md --collection handbook
  quarry ingest notes.txt --file-id onboarding-notes`

const ingestShortDesc string = "Upload documents to the API server"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.MinimumNArgs(1),
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
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.paths = args

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			if cmder.fileID != "" && len(args) > 1 {
				return fmt.Errorf("--file-id can only be used with a single file")
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Quarry API server URL")
	cmd.Flags().StringVarP(&cmder.collection, "collection", "c", defaults.VectorStore.Collection, "Collection to ingest into")
	cmd.Flags().StringVar(&cmder.fileID, "file-id", "", "Override the content-derived document ID")

	return cmd
}

func (c *ingestCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	var failed int
	for _, path := range c.paths {
		var result *ingest.Result

		err := cliui.Step(os.Stdout, filepath.Base(path), func() error {
			var uploadErr error
			result, uploadErr = UploadAPI(context.Background(), c.apiTarget, c.collection, path, c.fileID)
			return uploadErr
		})
		if err != nil {
			failed++
			fmt.Printf("    %s\n", cliui.DimStyle.Render(err.Error()))
			continue
		}

		fmt.Printf("    %s %s  %s %d chunks\n",
			cliui.KeyStyle.Render("id:"),
			cliui.ValueStyle.Render(result.FileID),
			cliui.DimStyle.Render("stored"),
			result.ChunkCount,
		)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(c.paths))
	}
	return nil
}

// UploadAPI uploads a single file to the quarry API and returns the
// ingestion result. Exported so other commands (e.g. watch) can reuse it.
func UploadAPI(ctx context.Context, apiTarget, collection, path, fileID string) (*ingest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	uploadURL, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	uploadURL.Path = "/upload"
	if collection != "" {
		q := uploadURL.Query()
		q.Set("collection", collection)
		uploadURL.RawQuery = q.Encode()
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := filePart(writer, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("creating multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("creating multipart body: %w", err)
	}

	if fileID != "" {
		if err := writer.WriteField("file_id", fileID); err != nil {
			return nil, fmt.Errorf("creating multipart body: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("creating multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL.String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to quarry API at %s: %w", apiTarget, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload failed (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result ingest.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}

	return &result, nil
}

// filePart creates the "file" form part with a content type guessed from the
// filename extension, so the server can pick the right extractor.
func filePart(writer *multipart.Writer, filename string) (io.Writer, error) {
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)

	return writer.CreatePart(header)
}
