// Package backend assembles the workspace, command layer and change bridge
// from a Config. Both the desktop app and the headless server start here.
package backend

import (
	"context"
	"errors"
	"log"

	"commitkit/internal/config"
	"commitkit/internal/gitpanel"
	"commitkit/internal/repository"
)

// Backend owns the long-lived services of one process.
type Backend struct {
	Config    *config.Config
	Workspace *repository.Workspace
	Service   *gitpanel.Service
	Bridge    *gitpanel.Bridge
}

// Option configures New.
type Option func(*repository.WorkspaceOptions)

// WithEmitter receives write-command diagnostics.
func WithEmitter(emit repository.EventEmitter) Option {
	return func(opts *repository.WorkspaceOptions) {
		opts.Emitter = emit
	}
}

// WithoutWatcher disables filesystem change events.
func WithoutWatcher() Option {
	return func(opts *repository.WorkspaceOptions) {
		opts.DisableWatch = true
	}
}

// New builds the services.
func New(cfg *config.Config, opts ...Option) *Backend {
	if cfg == nil {
		cfg = config.Default()
	}
	workspaceOpts := repository.WorkspaceOptions{
		GitPath:       cfg.GitPath,
		EventName:     config.EventCommandResult,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		PushTimeout:   cfg.PushTimeout,
		ShowIgnored:   cfg.ShowIgnored,
		WatchDebounce: cfg.WatchDebounce,
		WatchMaxDirs:  cfg.WatchMaxDirs,
	}
	for _, opt := range opts {
		opt(&workspaceOpts)
	}
	workspace := repository.NewWorkspace(workspaceOpts)
	differ := repository.NewDiffRunner(repository.NewExecRunner(cfg.GitPath), cfg.ReadTimeout)
	return &Backend{
		Config:    cfg,
		Workspace: workspace,
		Service:   gitpanel.NewService(workspace, differ, gitpanel.WithMaxDiffBytes(cfg.MaxDiffBytes)),
		Bridge:    gitpanel.NewBridge(workspace),
	}
}

// OpenConfigured opens the configured workspace directory. A directory
// outside any repository is not an error; the panel then reports that no
// repository is open.
func (b *Backend) OpenConfigured(ctx context.Context) error {
	path, err := b.Config.ResolveWorkspace()
	if err != nil {
		return err
	}
	if err := b.Open(ctx, path); err != nil {
		if errors.Is(err, repository.ErrNoRepository) {
			log.Printf("[CommitKit] No repository at %s", path)
			return nil
		}
		return err
	}
	return nil
}

// Open makes the repository containing path the primary one and closes every
// other repository. On failure the current repositories stay open.
func (b *Backend) Open(ctx context.Context, path string) error {
	opened, err := b.Workspace.Open(ctx, path)
	if err != nil {
		return err
	}

	for _, repo := range b.Workspace.Repositories() {
		if repo == opened {
			continue
		}
		if err := b.Workspace.Close(ctx, repo.Root()); err != nil {
			log.Printf("[CommitKit] Error closing %s: %v", repo.Root(), err)
		}
	}
	return nil
}

// Close releases the bridge and every repository.
func (b *Backend) Close(ctx context.Context) error {
	b.Bridge.Dispose()
	return b.Workspace.Dispose(ctx)
}
