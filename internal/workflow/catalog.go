package workflow

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/zjrosen/phaseguide/internal/cachemanager"
	"github.com/zjrosen/phaseguide/internal/log"
	"github.com/zjrosen/phaseguide/internal/paths"
)

// documentPattern matches workflow documents in a search location.
const documentPattern = "*.{yaml,yml}"

// DefaultCacheTTL bounds how long a parsed document stays cached. Entries are
// keyed by content hash so an edit never serves a stale parse.
const DefaultCacheTTL = 10 * time.Minute

// Catalog discovers bundled and project-local workflows and resolves names
// to loaded definitions.
type Catalog struct {
	resourceDir string
	domains     []string
	embedded    fs.FS
	executable  func() (string, error)
	ttl         time.Duration
	docs        *cachemanager.ReadThroughCache[string, *Workflow, rawDocument]
}

// CatalogOption configures a Catalog.
type CatalogOption func(*catalogOptions)

type catalogOptions struct {
	resourceDir string
	domains     []string
	embedded    fs.FS
	executable  func() (string, error)
	cache       cachemanager.CacheManager[string, *Workflow]
	ttl         time.Duration
}

// WithResourceDir sets an explicit bundled workflow directory, searched before
// any install-relative location.
func WithResourceDir(dir string) CatalogOption {
	return func(o *catalogOptions) { o.resourceDir = dir }
}

// WithDomains restricts bundled workflows to those whose metadata.domain is
// in the allow-list. An empty list disables filtering.
func WithDomains(domains []string) CatalogOption {
	return func(o *catalogOptions) { o.domains = domains }
}

// WithEmbedded replaces the embedded fallback location.
func WithEmbedded(fsys fs.FS) CatalogOption {
	return func(o *catalogOptions) { o.embedded = fsys }
}

// WithCache sets the cache that holds parsed documents.
func WithCache(cache cachemanager.CacheManager[string, *Workflow]) CatalogOption {
	return func(o *catalogOptions) { o.cache = cache }
}

// WithCacheTTL sets the lifetime of cached documents.
func WithCacheTTL(ttl time.Duration) CatalogOption {
	return func(o *catalogOptions) { o.ttl = ttl }
}

// withExecutable overrides os.Executable for tests.
func withExecutable(fn func() (string, error)) CatalogOption {
	return func(o *catalogOptions) { o.executable = fn }
}

// NewCatalog creates a catalog. Without options it serves the embedded
// workflows with no domain filter.
func NewCatalog(opts ...CatalogOption) *Catalog {
	o := catalogOptions{
		embedded:   BundledFS(),
		executable: os.Executable,
		ttl:        DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cache == nil {
		o.cache = cachemanager.NewInMemoryCacheManager[string, *Workflow](
			"workflow-documents", o.ttl, cachemanager.DefaultCleanupInterval)
	}

	var domains []string
	for _, d := range o.domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}

	return &Catalog{
		resourceDir: o.resourceDir,
		domains:     domains,
		embedded:    o.embedded,
		executable:  o.executable,
		ttl:         o.ttl,
		docs:        cachemanager.NewReadThroughCache(o.cache, parseDocument, false),
	}
}

// rawDocument is an unparsed workflow document and where it came from.
type rawDocument struct {
	Data   []byte
	Path   string
	Source Source
}

func (d rawDocument) cacheKey() string {
	return fmt.Sprintf("%s:%s:%x", d.Source, d.Path, sha256.Sum256(d.Data))
}

// stem is the file name without extension, used to attribute load errors
// to a workflow name.
func (d rawDocument) stem() string {
	base := filepath.Base(d.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func parseDocument(_ context.Context, doc rawDocument) (*Workflow, error) {
	wf, err := Load(doc.Data, doc.Path)
	if err != nil {
		return nil, err
	}
	log.Debug(log.CatWorkflow, "parsed workflow", "name", wf.Name, "source", doc.Source, "path", doc.Path)
	return wf.withOrigin(doc.Source, doc.Path), nil
}

func (c *Catalog) load(ctx context.Context, doc rawDocument) (*Workflow, error) {
	return c.docs.Get(ctx, doc.cacheKey(), doc, c.ttl)
}

// Invalidate drops every cached document.
func (c *Catalog) Invalidate(ctx context.Context) error {
	log.Debug(log.CatWorkflow, "workflow cache invalidated")
	return c.docs.Invalidate(ctx)
}

// ListAvailable returns bundled workflows (after domain filtering) followed by
// project-local workflows, each group sorted by name. A local workflow that
// shadows a bundled name appears in both groups. Malformed local documents are
// logged and skipped.
func (c *Catalog) ListAvailable(ctx context.Context, projectPath string) ([]Summary, error) {
	bundled, err := c.bundled(ctx)
	if err != nil {
		return nil, err
	}

	local, err := c.local(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(bundled)+len(local.workflows))
	for _, wf := range bundled {
		summaries = append(summaries, wf.Summary())
	}
	for _, wf := range local.workflows {
		summaries = append(summaries, wf.Summary())
	}
	return summaries, nil
}

// Names returns the distinct workflow names available for projectPath, sorted.
func (c *Catalog) Names(ctx context.Context, projectPath string) []string {
	summaries, err := c.ListAvailable(ctx, projectPath)
	if err != nil {
		log.ErrorErr(log.CatWorkflow, "listing workflows", err)
		return nil
	}
	names := make([]string, 0, len(summaries))
	for _, s := range summaries {
		names = append(names, s.Name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Resolve returns the workflow named name. A project-local workflow takes
// priority over a bundled one with the same name.
func (c *Catalog) Resolve(ctx context.Context, name, projectPath string) (*Workflow, error) {
	local, err := c.local(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	for _, wf := range local.workflows {
		if wf.Name == name {
			return wf, nil
		}
	}
	if loadErr, ok := local.failures[name]; ok {
		return nil, loadErr
	}

	bundled, err := c.bundled(ctx)
	if err != nil {
		return nil, err
	}
	for _, wf := range bundled {
		if wf.Name == name {
			return wf, nil
		}
	}

	return nil, &UnknownWorkflowError{Name: name, Available: c.Names(ctx, projectPath)}
}

// IsValidName reports whether name resolves for projectPath.
func (c *Catalog) IsValidName(ctx context.Context, name, projectPath string) bool {
	_, err := c.Resolve(ctx, name, projectPath)
	return err == nil
}

// bundled loads the bundled workflows from the first search location that
// has any, applying the domain filter. A malformed bundled document is a
// hard error.
func (c *Catalog) bundled(ctx context.Context) ([]*Workflow, error) {
	docs, err := c.bundledDocuments()
	if err != nil {
		return nil, err
	}

	var workflows []*Workflow
	for _, doc := range docs {
		wf, err := c.load(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("bundled workflow: %w", err)
		}
		if !c.domainAllowed(wf) {
			continue
		}
		workflows = append(workflows, wf)
	}
	sortByName(workflows)
	return workflows, nil
}

func (c *Catalog) domainAllowed(wf *Workflow) bool {
	if len(c.domains) == 0 {
		return true
	}
	return slices.Contains(c.domains, strings.ToLower(wf.Metadata.Domain))
}

// location is one place bundled workflows may be installed.
type location struct {
	label string
	dir   string // empty for the embedded location
	fsys  fs.FS
}

func (c *Catalog) bundledLocations() []location {
	var locs []location
	if c.resourceDir != "" {
		locs = append(locs, dirLocation("resource_dir", c.resourceDir))
	}
	if c.executable != nil {
		if exe, err := c.executable(); err == nil {
			if resolved, err := filepath.EvalSymlinks(exe); err == nil {
				exe = resolved
			}
			exeDir := filepath.Dir(exe)
			locs = append(locs,
				dirLocation("executable", filepath.Join(exeDir, "workflows")),
				dirLocation("share", filepath.Join(exeDir, "..", "share", "phaseguide", "workflows")),
			)
		}
	}
	if c.embedded != nil {
		locs = append(locs, location{label: "embedded", fsys: c.embedded})
	}
	return locs
}

func dirLocation(label, dir string) location {
	return location{label: label, dir: dir, fsys: os.DirFS(dir)}
}

func (c *Catalog) bundledDocuments() ([]rawDocument, error) {
	for _, loc := range c.bundledLocations() {
		if loc.dir != "" && !isDir(loc.dir) {
			continue
		}
		docs, err := readDocuments(loc, SourceBundled)
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			log.Debug(log.CatWorkflow, "bundled workflows located", "location", loc.label, "count", len(docs))
			return docs, nil
		}
	}
	return nil, errors.New("no bundled workflows found")
}

type localWorkflows struct {
	workflows []*Workflow
	failures  map[string]error // keyed by file stem
}

func (c *Catalog) local(ctx context.Context, projectPath string) (localWorkflows, error) {
	result := localWorkflows{failures: map[string]error{}}

	dir := paths.WorkflowsDir(projectPath)
	if !isDir(dir) {
		return result, nil
	}

	docs, err := readDocuments(dirLocation("project", dir), SourceProject)
	if err != nil {
		return result, err
	}

	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		wf, err := c.load(ctx, doc)
		if err != nil {
			log.Warn(log.CatWorkflow, "skipping malformed project workflow", "path", doc.Path, "error", err.Error())
			result.failures[doc.stem()] = err
			continue
		}
		if seen[wf.Name] {
			log.Warn(log.CatWorkflow, "duplicate project workflow name ignored", "name", wf.Name, "path", doc.Path)
			continue
		}
		seen[wf.Name] = true
		result.workflows = append(result.workflows, wf)
	}
	sortByName(result.workflows)
	return result, nil
}

func readDocuments(loc location, source Source) ([]rawDocument, error) {
	matches, err := doublestar.Glob(loc.fsys, documentPattern)
	if err != nil {
		return nil, fmt.Errorf("scanning %s workflows: %w", loc.label, err)
	}
	slices.Sort(matches)

	docs := make([]rawDocument, 0, len(matches))
	for _, match := range matches {
		data, err := fs.ReadFile(loc.fsys, match)
		if err != nil {
			return nil, fmt.Errorf("reading workflow %s: %w", match, err)
		}
		docPath := path.Clean(match)
		if loc.dir != "" {
			docPath = filepath.Join(loc.dir, filepath.FromSlash(match))
		}
		docs = append(docs, rawDocument{Data: data, Path: docPath, Source: source})
	}
	return docs, nil
}

func isDir(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

func sortByName(workflows []*Workflow) {
	slices.SortFunc(workflows, func(a, b *Workflow) int {
		return strings.Compare(a.Name, b.Name)
	})
}
