// Package watchcmder provides the watch command that ingests files into a
// running quarry API server as they appear in a directory.
package watchcmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	ingestcmder "github.com/quarryhq/quarry/cmd/quarry/ingest"
	"github.com/quarryhq/quarry/pkg/config"
	"github.com/quarryhq/quarry/pkg/logger"
)

// settleDelay is how long a file must be quiet after its last write event
// before it is uploaded. Editors and copies emit bursts of writes; uploading
// on the first one would ship a half-written file.
const settleDelay = 500 * time.Millisecond

type watchCommander struct {
	dir        string
	collection string

	apiTarget string

	debug  bool
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

const watchLongDesc string = `Watch a directory and ingest files as they appear.

Uploads every file created or modified under the watched directory to a
running quarry API server. Document IDs are derived from file content, so
re-saving an unchanged file is a no-op and edits replace the stored
document in place.

Hidden files and subdirectories are ignored. The directory defaults to
ingest.watch_dir from config.toml when no argument is given.

Examples:
  quarry watch ./inbox
  quarry watch ./docs --collection handbook
  quarry config set ingest.watch_dir ./inbox && quarry watch`

const watchShortDesc string = "Ingest files as they appear in a directory"

func NewWatchCmd() *cobra.Command {
	cmder := &watchCommander{
		pending: make(map[string]*time.Timer),
	}

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
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

			if len(args) > 0 {
				cmder.dir = args[0]
			} else {
				cmder.dir = cfg.Ingest.WatchDir
			}
			if cmder.dir == "" {
				return fmt.Errorf("no directory given and ingest.watch_dir is not set")
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Quarry API server URL")
	cmd.Flags().StringVarP(&cmder.collection, "collection", "c", defaults.VectorStore.Collection, "Collection to ingest into")

	return cmd
}

func (c *watchCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	info, err := os.Stat(c.dir)
	if err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch target %s is not a directory", c.dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("watching %s: %w", c.dir, err)
	}

	fmt.Printf("Watching %s (collection %q)\n", c.dir, c.collection)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			c.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watch error", zap.Error(err))

		case sig := <-sigChan:
			c.logger.Info("received signal, stopping watch", zap.String("signal", sig.String()))
			return nil
		}
	}
}

func (c *watchCommander) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return
	}

	c.schedule(event.Name)
}

// schedule arms (or re-arms) the settle timer for a path. The upload fires
// only after the path has seen no events for settleDelay.
func (c *watchCommander) schedule(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if timer, ok := c.pending[path]; ok {
		timer.Reset(settleDelay)
		return
	}

	c.pending[path] = time.AfterFunc(settleDelay, func() {
		c.mu.Lock()
		delete(c.pending, path)
		c.mu.Unlock()

		c.upload(path)
	})
}

func (c *watchCommander) upload(path string) {
	result, err := ingestcmder.UploadAPI(context.Background(), c.apiTarget, c.collection, path, "")
	if err != nil {
		c.logger.Warn("upload failed",
			zap.String("path", path),
			zap.Error(err),
		)
		fmt.Printf("  failed  %s: %v\n", filepath.Base(path), err)
		return
	}

	fmt.Printf("  stored  %s  id=%s chunks=%d\n", filepath.Base(path), result.FileID, result.ChunkCount)
}
