package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/storage"
)

// Default commit messages and settings.
const (
	DefaultRemote       = "origin"
	DefaultBranch       = "main"
	DefaultBatchDelay   = time.Second
	DefaultBatchMessage = "📚 Actualización masiva de blogs"
	commitPrefix        = "📝 Nuevo blog: "
	recentCommits       = 5
)

// Records is the slice of the store the orchestrator needs.
type Records interface {
	Locate(ctx context.Context, slug string) (*storage.Location, error)
	SetPublication(ctx context.Context, slug string, status models.Status, at time.Time) error
}

// ImageDirs exposes per-record image directories.
type ImageDirs interface {
	Dir(owner string) string
	HasImages(owner string) bool
}

// Config locates the working copy and the remote to push to.
type Config struct {
	// RepoRoot is resolved to an absolute path by New.
	RepoRoot   string
	Remote     string
	Branch     string
	BatchDelay time.Duration
	// IndexFile is the path of the canonical index.json.
	IndexFile string
}

// Result is one deploy outcome.
type Result struct {
	Slug           string       `json:"slug"`
	Title          string       `json:"title"`
	Commit         string       `json:"commit,omitempty"`
	Message        string       `json:"message"`
	Pushed         bool         `json:"pushed"`
	Skipped        bool         `json:"skipped"`
	Shape          models.Shape `json:"structure"`
	Paths          []string     `json:"paths"`
	ImagesIncluded bool         `json:"imagesIncluded"`
}

// BatchItem is the outcome for one slug of a batch.
type BatchItem struct {
	Slug   string  `json:"slug"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
	Stage  string  `json:"stage,omitempty"`
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BatchResult is the outcome of DeployBatch.
type BatchResult struct {
	Results []BatchItem  `json:"results"`
	Summary BatchSummary `json:"summary"`
}

// Orchestrator stages, commits and pushes record changes. Every operation
// that touches the working copy holds mu.
type Orchestrator struct {
	git     Git
	records Records
	images  ImageDirs
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger

	mu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the publish timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator. images may be nil.
func New(git Git, records Records, images ImageDirs, cfg Config, opts ...Option) *Orchestrator {
	if cfg.Remote == "" {
		cfg.Remote = DefaultRemote
	}
	if cfg.Branch == "" {
		cfg.Branch = DefaultBranch
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}
	cfg.RepoRoot = absPath(cfg.RepoRoot)
	if cfg.IndexFile != "" {
		cfg.IndexFile = absPath(cfg.IndexFile)
	}
	o := &Orchestrator{
		git:     git,
		records: records,
		images:  images,
		cfg:     cfg,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// absPath resolves p against the working directory. Store locations are
// absolute, so a relative repo root would never contain them.
func absPath(p string) string {
	if p == "" {
		p = "."
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// relPath converts abs into a slash-separated path relative to the repo root.
func (o *Orchestrator) relPath(abs string) (string, error) {
	rel, err := filepath.Rel(o.cfg.RepoRoot, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the repository %s", abs, o.cfg.RepoRoot)
	}
	return filepath.ToSlash(rel), nil
}

// changePaths lists the repository paths a deploy of loc must stage.
func (o *Orchestrator) changePaths(loc *storage.Location) (paths []string, withImages bool, err error) {
	add := func(abs string) error {
		rel, err := o.relPath(abs)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	}

	if loc.Shape == models.ShapeOrganized {
		if err := add(loc.Dir); err != nil {
			return nil, false, err
		}
		if o.images != nil && o.images.HasImages(loc.Slug) {
			if err := add(o.images.Dir(loc.Slug)); err != nil {
				return nil, false, err
			}
			withImages = true
		}
	} else if err := add(loc.File); err != nil {
		return nil, false, err
	}

	if o.cfg.IndexFile != "" {
		if _, statErr := os.Stat(o.cfg.IndexFile); statErr == nil {
			if err := add(o.cfg.IndexFile); err != nil {
				return nil, false, err
			}
		}
	}
	return paths, withImages, nil
}

// Deploy publishes one record: verify, mark published, stage, commit, push.
// The publish mark lands in the same commit as the content. An unchanged
// record is reported as skipped, unless an earlier commit of it never
// reached the remote, in which case only the push is retried.
func (o *Orchestrator) Deploy(ctx context.Context, slug, message string) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deployLocked(ctx, slug, message)
}

func (o *Orchestrator) deployLocked(ctx context.Context, slug, message string) (*Result, error) {
	fail := func(stage apperr.DeployStage, err error) error {
		o.logger.Error("deploy failed",
			slog.String("slug", slug), slog.String("stage", string(stage)), slog.String("error", err.Error()))
		return &apperr.DeployError{Stage: stage, Slug: slug, Err: err}
	}

	loc, err := o.records.Locate(ctx, slug)
	if err != nil {
		return nil, fail(apperr.StageVerify, err)
	}

	paths, withImages, err := o.changePaths(loc)
	if err != nil {
		return nil, fail(apperr.StageStage, err)
	}
	res := &Result{
		Slug:           slug,
		Title:          loc.Record.Title,
		Shape:          loc.Shape,
		Paths:          paths,
		ImagesIncluded: withImages,
	}

	changes, err := o.git.Run(ctx, append([]string{"status", "--porcelain", "--"}, paths...)...)
	if err != nil {
		return nil, fail(apperr.StageStage, err)
	}
	if strings.TrimSpace(changes) == "" {
		if o.unpushed(ctx) == 0 {
			res.Skipped = true
			res.Message = "no changes to deploy"
			o.logger.Info("deploy skipped, nothing changed", slog.String("slug", slug))
			return res, nil
		}
		return o.pushOnly(ctx, res)
	}

	marked := loc.Shape == models.ShapeOrganized && loc.Record.Status != models.StatusPublished
	if marked {
		if err := o.records.SetPublication(ctx, slug, models.StatusPublished, o.now()); err != nil {
			return nil, fail(apperr.StageStage, err)
		}
		// The mark may have created the index file.
		if paths, withImages, err = o.changePaths(loc); err != nil {
			o.unmark(ctx, loc)
			return nil, fail(apperr.StageStage, err)
		}
		res.Paths, res.ImagesIncluded = paths, withImages
	}
	rollback := func(stage apperr.DeployStage, err error) error {
		if marked {
			o.unmark(ctx, loc)
		}
		return fail(stage, err)
	}

	if _, err := o.git.Run(ctx, append([]string{"add", "--"}, paths...)...); err != nil {
		return nil, rollback(apperr.StageStage, err)
	}
	if message == "" {
		message = commitPrefix + loc.Record.Title
	}
	res.Message = message
	if _, err := o.git.Run(ctx, append([]string{"commit", "-m", message, "--"}, paths...)...); err != nil {
		return nil, rollback(apperr.StageCommit, err)
	}
	head, err := o.git.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, fail(apperr.StageCommit, err)
	}
	res.Commit = strings.TrimSpace(head)

	if _, err := o.git.Run(ctx, "push", o.cfg.Remote, o.cfg.Branch); err != nil {
		o.logger.Error("deploy push failed, local commit kept",
			slog.String("slug", slug), slog.String("commit", res.Commit), slog.String("error", err.Error()))
		return nil, &apperr.DeployError{Stage: apperr.StagePush, Slug: slug, Committed: true, Commit: res.Commit, Err: err}
	}
	res.Pushed = true

	o.logger.Info("record deployed",
		slog.String("slug", slug), slog.String("commit", res.Commit), slog.Int("paths", len(paths)))
	return res, nil
}

// unpushed counts local commits the remote branch does not have. Any
// failure, such as a missing remote-tracking ref, counts as none.
func (o *Orchestrator) unpushed(ctx context.Context) int {
	out, err := o.git.Run(ctx, "rev-list", "--count", o.cfg.Remote+"/"+o.cfg.Branch+"..HEAD")
	if err != nil {
		o.logger.Debug("deploy: ahead count unavailable", slog.String("error", err.Error()))
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0
	}
	return n
}

// pushOnly retries the push of commits left behind by an earlier failed push.
func (o *Orchestrator) pushOnly(ctx context.Context, res *Result) (*Result, error) {
	head, err := o.git.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, &apperr.DeployError{Stage: apperr.StageCommit, Slug: res.Slug, Err: err}
	}
	res.Commit = strings.TrimSpace(head)
	res.Message = "pushed pending commits"
	if _, err := o.git.Run(ctx, "push", o.cfg.Remote, o.cfg.Branch); err != nil {
		o.logger.Error("deploy push failed, local commit kept",
			slog.String("slug", res.Slug), slog.String("commit", res.Commit), slog.String("error", err.Error()))
		return nil, &apperr.DeployError{Stage: apperr.StagePush, Slug: res.Slug, Committed: true, Commit: res.Commit, Err: err}
	}
	res.Pushed = true
	o.logger.Info("pending commits pushed", slog.String("slug", res.Slug), slog.String("commit", res.Commit))
	return res, nil
}

// unmark restores the publication state loc was read with.
func (o *Orchestrator) unmark(ctx context.Context, loc *storage.Location) {
	if err := o.records.SetPublication(ctx, loc.Slug, loc.Record.Status, loc.Record.PublishedAt); err != nil {
		o.logger.Warn("deploy: restore publication state failed",
			slog.String("slug", loc.Slug), slog.String("error", err.Error()))
	}
}

// DeployBatch deploys slugs one after another, paced to one attempt per
// BatchDelay, and keeps going past failures.
func (o *Orchestrator) DeployBatch(ctx context.Context, slugs []string, message string) *BatchResult {
	if message == "" {
		message = DefaultBatchMessage
	}
	limiter := rate.NewLimiter(rate.Every(o.cfg.BatchDelay), 1)
	out := &BatchResult{Results: make([]BatchItem, 0, len(slugs))}
	out.Summary.Total = len(slugs)

	for _, slug := range slugs {
		item := BatchItem{Slug: slug}
		if err := limiter.Wait(ctx); err != nil {
			item.Error = err.Error()
			out.Results = append(out.Results, item)
			out.Summary.Failed++
			continue
		}
		res, err := o.Deploy(ctx, slug, message)
		if err != nil {
			item.Error = err.Error()
			var derr *apperr.DeployError
			if errors.As(err, &derr) {
				item.Stage = string(derr.Stage)
			}
			out.Summary.Failed++
		} else {
			item.Result = res
			out.Summary.Successful++
		}
		out.Results = append(out.Results, item)
	}

	o.logger.Info("batch deploy finished",
		slog.Int("total", out.Summary.Total),
		slog.Int("successful", out.Summary.Successful),
		slog.Int("failed", out.Summary.Failed))
	return out
}

// Status reports the working-copy status.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	out, err := o.git.Run(ctx, "status", "--porcelain", "--branch")
	if err != nil {
		return nil, fmt.Errorf("deploy: status: %w", err)
	}
	return ParseStatus(out), nil
}

// Remote is one configured git remote.
type Remote struct {
	Name  string `json:"name"`
	Fetch string `json:"fetch,omitempty"`
	Push  string `json:"push,omitempty"`
}

// Commit is one log entry.
type Commit struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Message string `json:"message"`
}

// RepositoryInfo bundles status, remotes and recent history.
type RepositoryInfo struct {
	Status        *Status  `json:"status"`
	Remotes       []Remote `json:"remotes"`
	RecentCommits []Commit `json:"recentCommits"`
}

// RepositoryInfo returns status, remotes and the last few commits.
func (o *Orchestrator) RepositoryInfo(ctx context.Context) (*RepositoryInfo, error) {
	st, err := o.Status(ctx)
	if err != nil {
		return nil, err
	}
	info := &RepositoryInfo{Status: st, Remotes: []Remote{}, RecentCommits: []Commit{}}

	remotes, err := o.git.Run(ctx, "remote", "-v")
	if err != nil {
		return nil, fmt.Errorf("deploy: remotes: %w", err)
	}
	info.Remotes = parseRemotes(remotes)

	log, err := o.git.Run(ctx, "log", fmt.Sprintf("-%d", recentCommits), "--pretty=format:%H|%an|%aI|%s")
	if err != nil {
		// A repository without commits has no log.
		o.logger.Debug("deploy: log unavailable", slog.String("error", err.Error()))
		return info, nil
	}
	info.RecentCommits = parseLog(log)
	return info, nil
}

func parseRemotes(out string) []Remote {
	var remotes []Remote
	index := map[string]int{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		i, ok := index[fields[0]]
		if !ok {
			i = len(remotes)
			index[fields[0]] = i
			remotes = append(remotes, Remote{Name: fields[0]})
		}
		switch fields[2] {
		case "(fetch)":
			remotes[i].Fetch = fields[1]
		case "(push)":
			remotes[i].Push = fields[1]
		}
	}
	if remotes == nil {
		remotes = []Remote{}
	}
	return remotes
}

func parseLog(out string) []Commit {
	commits := []Commit{}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), "|", 4)
		if len(parts) != 4 {
			continue
		}
		commits = append(commits, Commit{Hash: parts[0], Author: parts[1], Date: parts[2], Message: parts[3]})
	}
	return commits
}

// Sync pulls the configured branch from the remote.
func (o *Orchestrator) Sync(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out, err := o.git.Run(ctx, "pull", o.cfg.Remote, o.cfg.Branch)
	if err != nil {
		return "", fmt.Errorf("deploy: sync: %w", err)
	}
	o.logger.Info("working copy synced", slog.String("remote", o.cfg.Remote), slog.String("branch", o.cfg.Branch))
	return strings.TrimSpace(out), nil
}

// Connectivity is the outcome of TestConnectivity.
type Connectivity struct {
	Connected   bool     `json:"connected"`
	Remote      string   `json:"remote"`
	Error       string   `json:"error,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// TestConnectivity fetches from the remote without merging.
func (o *Orchestrator) TestConnectivity(ctx context.Context) *Connectivity {
	c := &Connectivity{Remote: o.cfg.Remote}
	if _, err := o.git.Run(ctx, "fetch", o.cfg.Remote); err != nil {
		c.Error = err.Error()
		c.Suggestions = []string{
			"check the network connection to the git host",
			"check the git credentials (SSH key or access token)",
			"check that the account has push permission on the repository",
		}
		return c
	}
	c.Connected = true
	return c
}

// CheckRepo verifies that RepoRoot is inside a git working tree.
func (o *Orchestrator) CheckRepo(ctx context.Context) error {
	out, err := o.git.Run(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return fmt.Errorf("deploy: %s is not a git working copy: %w", o.cfg.RepoRoot, err)
	}
	if strings.TrimSpace(out) != "true" {
		return fmt.Errorf("deploy: %s is not a git working copy", o.cfg.RepoRoot)
	}
	return nil
}
