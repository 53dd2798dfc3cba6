package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/phaseguide/internal/log"
	"github.com/zjrosen/phaseguide/internal/mcp"
	"github.com/zjrosen/phaseguide/internal/paths"
	"github.com/zjrosen/phaseguide/internal/watcher"
)

var noWatchFlag bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the guide as MCP tools over stdio",
	Long: `Serve the guide operations as Model Context Protocol tools over stdio.

Register it with an MCP client, for example:
  {"command": "phaseguide", "args": ["serve", "--project", "/path/to/project"]}

Tool calls that omit project_path use the --project directory. Edits to
.phaseguide/workflows are picked up without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noWatchFlag, "no-watch", false, "do not watch .phaseguide/workflows for changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(context.Background()); closeErr != nil {
			log.ErrorErr(log.CatMCP, "closing runtime", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !noWatchFlag {
		startWorkflowWatcher(ctx, rt)
	}

	server := mcp.NewServer("phaseguide", version,
		mcp.WithInstructions(mcp.ServerInstructions),
		mcp.WithTracer(rt.tracing.Tracer()),
	)
	mcp.RegisterGuideTools(server, rt.guide, rt.project)

	log.Info(log.CatMCP, "serving MCP over stdio", "project", rt.project)
	if err := server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serving MCP: %w", err)
	}
	return nil
}

// startWorkflowWatcher invalidates the workflow cache when project-local
// workflow documents change. A missing directory disables watching.
func startWorkflowWatcher(ctx context.Context, rt *runtime) {
	dir := paths.WorkflowsDir(rt.project)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		log.Debug(log.CatWatcher, "no project workflow directory, not watching", "dir", dir)
		return
	}

	w, err := watcher.New(watcher.DefaultConfig(dir))
	if err != nil {
		log.ErrorErr(log.CatWatcher, "creating watcher", err)
		return
	}
	changes, err := w.Start()
	if err != nil {
		log.ErrorErr(log.CatWatcher, "starting watcher", err, "dir", dir)
		_ = w.Stop()
		return
	}

	go func() {
		watcher.InvalidateOnChange(ctx, changes, rt.catalog)
		_ = w.Stop()
	}()
	log.Info(log.CatWatcher, "watching project workflows", "dir", dir)
}
