package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"commitkit/frontend"
	"commitkit/internal/backend"
	"commitkit/internal/config"
	"commitkit/internal/panel"
	"commitkit/internal/repository"
)

const shutdownTimeout = 3 * time.Second

// CLI represents the command-line interface structure
type CLI struct {
	Version   kong.VersionFlag `help:"Show version information"`
	Config    string           `help:"Path to config.yaml (default: user config dir)" type:"path" env:"COMMITKIT_CONFIG"`
	Workspace string           `help:"Directory inside the repository to open (default: current directory)" type:"path" short:"w"`

	Serve  ServeCmd  `cmd:"" help:"Serve the panel over WebSocket (default)" default:"1"`
	Status StatusCmd `cmd:"status" help:"Print one status snapshot as JSON"`

	cfg *config.Config `kong:"-"`
	out io.Writer      `kong:"-"`
}

// AfterApply loads the configuration once flags are parsed. Flags win over
// the file and the environment.
func (c *CLI) AfterApply() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.Workspace != "" {
		cfg.Workspace = c.Workspace
	}
	c.cfg = cfg
	if c.out == nil {
		c.out = os.Stdout
	}
	return nil
}

// ServeCmd serves the panel until interrupted.
type ServeCmd struct {
	Listen string `help:"Address to listen on (overrides listen_addr)"`
}

// Run executes the serve command
func (s *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cli.cfg.ListenAddr
	if s.Listen != "" {
		addr = s.Listen
	}

	b := backend.New(cli.cfg, backend.WithEmitter(logCommandResult))
	if err := b.OpenConfigured(ctx); err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}

	transport := panel.NewWebSocketTransport()
	p := panel.New(ctx, b.Service, b.Bridge, transport, panel.WithOpener(panel.EditorOpener{Command: cli.cfg.Editor}))
	srv := panel.NewServer(addr, transport, frontend.Dist())
	if err := srv.Start(); err != nil {
		p.Dispose()
		_ = b.Close(context.Background())
		return err
	}
	fmt.Fprintf(cli.out, "%s listening on http://%s\n", config.AppName, srv.Addr())

	<-ctx.Done()
	log.Println("[CommitKit] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Printf("[CommitKit] Error stopping server: %v", err)
	}
	p.Dispose()
	return b.Close(shutdownCtx)
}

// StatusCmd prints one snapshot of the configured workspace.
type StatusCmd struct {
	Timeout time.Duration `help:"Overall timeout" default:"30s"`
}

// Run executes the status command
func (s *StatusCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()

	b := backend.New(cli.cfg, backend.WithoutWatcher())
	defer b.Close(context.Background())

	if err := b.OpenConfigured(ctx); err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}
	snapshot, err := b.Service.Snapshot(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cli.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snapshot)
}

func logCommandResult(_ string, data interface{}) {
	result, ok := data.(repository.CommandResult)
	if !ok || result.Status != repository.CommandStatusFailed {
		return
	}
	log.Printf("[CommitKit] %s failed in %s (exit %d): %s", result.Action, result.RepoPath, result.ExitCode, result.Error)
}
