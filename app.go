package main

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"commitkit/internal/backend"
	"commitkit/internal/config"
	gp "commitkit/internal/gitpanel"
	"commitkit/internal/panel"
	"commitkit/internal/repository"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

const shutdownTimeout = 3 * time.Second

// HydrationPayload é o payload enviado ao frontend no DOM ready
type HydrationPayload struct {
	Version   string  `json:"version"`
	Workspace string  `json:"workspace"`
	RepoRoot  *string `json:"repoRoot,omitempty"`
}

// App struct: ponto central do Wails, conecta backend e painel ao runtime
type App struct {
	ctx       context.Context
	cfg       *config.Config
	backend   *backend.Backend
	transport *panel.WailsTransport
	panel     *panel.Panel
	mu        sync.RWMutex
}

// NewApp creates a new App application struct
func NewApp(cfg *config.Config) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	return &App{cfg: cfg}
}

// Startup is called when the app starts
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx
	log.Println("[CommitKit] Starting up...")

	a.transport = panel.NewWailsTransport(ctx)
	a.start(ctx, a.transport, a.emitRuntimeEvent,
		panel.WithNotifier(panel.NewWailsNotifier(ctx)),
		panel.WithOpener(panel.NewWailsOpener(ctx)),
	)
}

// start wires the backend and the panel to transport.
func (a *App) start(ctx context.Context, transport panel.Transport, emit repository.EventEmitter, opts ...panel.Option) {
	b := backend.New(a.cfg, backend.WithEmitter(emit))
	if err := b.OpenConfigured(ctx); err != nil {
		log.Printf("[CommitKit] Error opening workspace: %v", err)
	}
	p := panel.New(ctx, b.Service, b.Bridge, transport, opts...)

	a.mu.Lock()
	a.backend = b
	a.panel = p
	a.mu.Unlock()
	log.Println("[CommitKit] Panel initialized")
}

func (a *App) emitRuntimeEvent(eventName string, data interface{}) {
	if a.ctx == nil || strings.TrimSpace(eventName) == "" {
		return
	}
	runtime.EventsEmit(a.ctx, eventName, data)
}

// DomReady is called when the frontend DOM is ready
func (a *App) DomReady(ctx context.Context) {
	log.Println("[CommitKit] DOM Ready")
	a.emitRuntimeEvent("commitkit:hydrated", a.Hydration())
}

// Shutdown is called when the app is shutting down
func (a *App) Shutdown(ctx context.Context) {
	log.Println("[CommitKit] Shutting down...")

	a.mu.Lock()
	p, b := a.panel, a.backend
	a.panel, a.backend = nil, nil
	a.mu.Unlock()

	if p != nil {
		p.Dispose()
	}
	if a.transport != nil {
		a.transport.Close()
	}
	if b != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := b.Close(shutdownCtx); err != nil {
			log.Printf("[CommitKit] Error closing backend: %v", err)
		}
		cancel()
	}
}

// Hydration returns the state the frontend needs before its first request.
func (a *App) Hydration() HydrationPayload {
	payload := HydrationPayload{Version: config.AppVersion}
	if workspace, err := a.cfg.ResolveWorkspace(); err == nil {
		payload.Workspace = workspace
	}

	b, err := a.requireBackend()
	if err != nil {
		return payload
	}
	if repo, err := repository.Primary(b.Workspace); err == nil {
		root := repo.Root()
		payload.RepoRoot = &root
	}
	return payload
}

// OpenRepository makes the repository containing path the active one.
func (a *App) OpenRepository(path string) error {
	b, err := a.requireBackend()
	if err != nil {
		return err
	}

	directory := resolveExistingDirectory(path)
	if directory == "" {
		return gp.NewBindingError(gp.CodeInvalidPath, "Directory does not exist.", strings.TrimSpace(path))
	}
	if err := b.Open(a.context(), directory); err != nil {
		return gp.NormalizeBindingError(err)
	}
	return nil
}

// PickRepository asks for a directory and opens the repository containing it.
// An empty result means the dialog was canceled.
func (a *App) PickRepository(defaultPath string) (string, error) {
	if a.ctx == nil {
		return "", gp.NewBindingError(
			gp.CodeServiceUnavailable,
			"Window unavailable for directory selection.",
			"Runtime context not initialized yet.",
		)
	}

	options := runtime.OpenDialogOptions{
		Title:                "Select Git repository",
		ShowHiddenFiles:      true,
		CanCreateDirectories: false,
	}
	if defaultDirectory := resolveExistingDirectory(defaultPath); defaultDirectory != "" {
		options.DefaultDirectory = defaultDirectory
	}

	selectedPath, err := runtime.OpenDirectoryDialog(a.ctx, options)
	if err != nil {
		return "", gp.NewBindingError(gp.CodeCommandFailed, "Failed to open directory picker.", strings.TrimSpace(err.Error()))
	}
	selectedPath = strings.TrimSpace(selectedPath)
	if selectedPath == "" {
		return "", nil
	}
	if err := a.OpenRepository(selectedPath); err != nil {
		return "", err
	}
	return selectedPath, nil
}

// Refresh re-publishes the status of every open repository.
func (a *App) Refresh() error {
	b, err := a.requireBackend()
	if err != nil {
		return err
	}
	b.Workspace.Refresh()
	return nil
}

// Version returns the application version.
func (a *App) Version() string {
	return config.AppVersion
}

func (a *App) requireBackend() (*backend.Backend, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.backend == nil {
		return nil, gp.NewBindingError(gp.CodeServiceUnavailable, "CommitKit is not ready yet.", "")
	}
	return a.backend, nil
}

func (a *App) context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func resolveExistingDirectory(rawPath string) string {
	trimmed := strings.TrimSpace(rawPath)
	if trimmed == "" {
		return ""
	}

	cleaned := filepath.Clean(trimmed)
	info, err := os.Stat(cleaned)
	if err == nil {
		if info.IsDir() {
			return cleaned
		}
		return existingDir(filepath.Dir(cleaned))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return ""
	}

	parent := filepath.Dir(cleaned)
	if parent == "" || parent == "." {
		return ""
	}
	return existingDir(parent)
}

func existingDir(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return ""
}
