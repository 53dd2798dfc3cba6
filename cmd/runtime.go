package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjrosen/phaseguide/internal/config"
	"github.com/zjrosen/phaseguide/internal/conversation"
	"github.com/zjrosen/phaseguide/internal/git"
	"github.com/zjrosen/phaseguide/internal/guide"
	"github.com/zjrosen/phaseguide/internal/infrastructure/sqlite"
	"github.com/zjrosen/phaseguide/internal/instructions"
	"github.com/zjrosen/phaseguide/internal/log"
	"github.com/zjrosen/phaseguide/internal/paths"
	"github.com/zjrosen/phaseguide/internal/planfile"
	"github.com/zjrosen/phaseguide/internal/tracing"
	"github.com/zjrosen/phaseguide/internal/transition"
	"github.com/zjrosen/phaseguide/internal/workflow"
)

// runtime holds the collaborators of one command invocation.
type runtime struct {
	project string
	db      *sqlite.DB
	catalog *workflow.Catalog
	tracing *tracing.Provider
	guide   *guide.Service
}

// projectPath resolves the configured project directory to the absolute root
// of its checkout.
func projectPath(c config.Config) (string, error) {
	project := c.ProjectPath
	if project == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting working directory: %w", err)
		}
		project = wd
	}
	abs, err := filepath.Abs(paths.ProjectRoot(project))
	if err != nil {
		return "", fmt.Errorf("resolving project path: %w", err)
	}
	return git.RepoRoot(abs), nil
}

// newCatalog builds the workflow catalog from configuration.
func newCatalog(c config.Config) *workflow.Catalog {
	opts := []workflow.CatalogOption{
		workflow.WithDomains(c.Workflows.Domains),
		workflow.WithResourceDir(c.Workflows.ResourceDir),
	}
	if c.Workflows.CacheTTL > 0 {
		opts = append(opts, workflow.WithCacheTTL(c.Workflows.CacheTTL))
	}
	return workflow.NewCatalog(opts...)
}

// tracingConfig maps the config section onto the tracing package.
func tracingConfig(c config.TracingConfig) tracing.Config {
	return tracing.Config{
		Enabled:      c.Enabled,
		Exporter:     c.Exporter,
		FilePath:     c.FilePath,
		OTLPEndpoint: c.OTLPEndpoint,
		SampleRate:   c.SampleRate,
		ServiceName:  c.ServiceName,
	}
}

// newRuntime opens the conversation database and wires the guide service.
func newRuntime(c config.Config) (*runtime, error) {
	if err := config.Validate(c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	project, err := projectPath(c)
	if err != nil {
		return nil, err
	}

	dbPath := c.Database.Path
	if dbPath == "" {
		dbPath = paths.DatabasePath(project)
	}
	db, err := sqlite.NewDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening conversation database: %w", err)
	}

	tp, err := tracing.NewProvider(tracingConfig(c.Tracing))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	catalog := newCatalog(c)
	plans := planfile.NewManager()
	store := conversation.NewStore(db.ConversationRepository(), db.InteractionRepository(), catalog, plans, c.DefaultWorkflow)

	svc := guide.NewService(guide.Deps{
		Catalog: catalog,
		Store:   store,
		Engine:  transition.NewEngine(catalog, store),
		Generator: instructions.NewGenerator(instructions.Layout{
			Architecture: c.Documents.Architecture,
			Requirements: c.Documents.Requirements,
			Design:       c.Documents.Design,
		}),
		Plans:           plans,
		Branches:        git.RealBranchResolver,
		Roots:           git.RealRootResolver,
		Tracer:          tp.Tracer(),
		DefaultWorkflow: c.DefaultWorkflow,
	})

	log.Info(log.CatConfig, "runtime ready", "project", project, "db", dbPath, "tracing", tp.Enabled())
	return &runtime{
		project: project,
		db:      db,
		catalog: catalog,
		tracing: tp,
		guide:   svc,
	}, nil
}

// Close flushes traces and closes the database.
func (r *runtime) Close(ctx context.Context) error {
	return errors.Join(r.tracing.Shutdown(ctx), r.db.Close())
}
