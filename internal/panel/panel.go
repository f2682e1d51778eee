package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"commitkit/internal/gitpanel"
	"commitkit/internal/repository"
)

const (
	MessageCommitCreated   = "Commit created successfully."
	MessagePushFailedAfter = "Commit created, but push failed: "
)

// Transport moves messages between the panel and one UI surface.
type Transport interface {
	Post(Notification) error
	OnMessage(handler func(Request))
}

// Notifier shows host-level alerts next to the in-panel messages.
type Notifier interface {
	Error(message string)
	Info(message string)
}

type noopNotifier struct{}

func (noopNotifier) Error(string) {}
func (noopNotifier) Info(string)  {}

// Option configures a Panel.
type Option func(*Panel)

// WithNotifier sets the host alert sink.
func WithNotifier(n Notifier) Option {
	return func(p *Panel) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithOpener sets how openFile opens files.
func WithOpener(o Opener) Option {
	return func(p *Panel) {
		if o != nil {
			p.opener = o
		}
	}
}

// Panel dispatches UI requests to the command layer and publishes the
// resulting notifications. Every mutating command is followed by exactly
// one statusUpdated or statusError.
type Panel struct {
	service   *gitpanel.Service
	transport Transport
	notifier  Notifier
	opener    Opener

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	disposed  bool
	bridgeSub repository.Disposable
	inflight  sync.WaitGroup
}

// New wires a panel to transport. When bridge is non-nil, every change it
// reports publishes a fresh status.
func New(ctx context.Context, service *gitpanel.Service, bridge *gitpanel.Bridge, transport Transport, opts ...Option) *Panel {
	if ctx == nil {
		ctx = context.Background()
	}
	panelCtx, cancel := context.WithCancel(ctx)
	p := &Panel{
		service:   service,
		transport: transport,
		notifier:  noopNotifier{},
		opener:    EditorOpener{},
		ctx:       panelCtx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	transport.OnMessage(p.Handle)
	if bridge != nil {
		p.bridgeSub = bridge.OnDidChange(p.refreshAsync)
	}
	return p
}

// Handle dispatches req on its own goroutine.
func (p *Panel) Handle(req Request) {
	if !p.track() {
		return
	}
	go func() {
		defer p.inflight.Done()
		p.Dispatch(p.ctx, req)
	}()
}

func (p *Panel) refreshAsync() {
	if !p.track() {
		return
	}
	go func() {
		defer p.inflight.Done()
		p.postStatus(p.ctx)
	}()
}

func (p *Panel) track() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return false
	}
	p.inflight.Add(1)
	return true
}

// Dispatch handles req and returns once every notification it causes has
// been posted.
func (p *Panel) Dispatch(ctx context.Context, req Request) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[CommitKit][Panel] Recovered from panic handling %q: %v", req.Command, r)
			p.notifyError((&internalError{command: req.Command}).Error())
		}
	}()

	switch req.Command {
	case CommandReady, CommandRefreshStatus:
		p.postStatus(ctx)
	case CommandStage:
		p.runWithStatusUpdate(ctx, req.Command, func(ctx context.Context) error {
			return p.service.Stage(ctx, req.URI)
		})
	case CommandUnstage:
		p.runWithStatusUpdate(ctx, req.Command, func(ctx context.Context) error {
			return p.service.Unstage(ctx, req.URI)
		})
	case CommandStageAll:
		p.runWithStatusUpdate(ctx, req.Command, p.service.StageAll)
	case CommandUnstageAll:
		p.runWithStatusUpdate(ctx, req.Command, p.service.UnstageAll)
	case CommandDiscard:
		p.runWithStatusUpdate(ctx, req.Command, func(ctx context.Context) error {
			return p.service.DiscardChanges(ctx, req.URI)
		})
	case CommandOpenFile:
		p.runSafely(ctx, req.Command, func(ctx context.Context) error {
			return p.openFile(ctx, req.URI)
		})
	case CommandUpdateCommitMessage:
		p.runSafely(ctx, req.Command, func(ctx context.Context) error {
			var message gitpanel.CommitMessage
			if err := decodePayload(req, &message); err != nil {
				return err
			}
			return p.service.UpdateCommitMessage(ctx, message)
		})
	case CommandCommit:
		p.commit(ctx, req)
	case CommandSelectChange:
		p.runSafely(ctx, req.Command, func(ctx context.Context) error {
			return p.loadDiff(ctx, req)
		})
	default:
		log.Printf("[CommitKit][Panel] Ignoring unknown command %q", req.Command)
	}
}

func (p *Panel) runWithStatusUpdate(ctx context.Context, command string, action func(context.Context) error) {
	p.runSafely(ctx, command, action)
	p.postStatus(ctx)
}

func (p *Panel) runSafely(ctx context.Context, command string, action func(context.Context) error) {
	if err := callRecovering(ctx, command, action); err != nil {
		p.notifyError(gitpanel.ErrorMessage(err))
	}
}

// internalError replaces a panic raised while executing a command.
type internalError struct {
	command string
}

func (e *internalError) Error() string {
	return fmt.Sprintf("Internal error while handling %s.", e.command)
}

// callRecovering runs action and turns a panic into an error, so the status
// update owed after a mutating command is still published.
func callRecovering(ctx context.Context, command string, action func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[CommitKit][Panel] Recovered from panic handling %q: %v", command, r)
			err = &internalError{command: command}
		}
	}()
	return action(ctx)
}

func (p *Panel) commit(ctx context.Context, req Request) {
	var payload CommitPayload
	if err := decodePayload(req, &payload); err != nil {
		p.notifyError(gitpanel.ErrorMessage(err))
		p.postStatus(ctx)
		return
	}

	err := callRecovering(ctx, CommandCommit, func(ctx context.Context) error {
		return p.service.Commit(ctx, payload.Message, payload.Options)
	})
	var pushErr *gitpanel.PushError
	switch {
	case err == nil:
		p.post(commitComplete())
		p.postStatus(ctx)
		p.notifyInfo(MessageCommitCreated)
	case errors.As(err, &pushErr):
		p.post(commitComplete())
		p.notifyError(MessagePushFailedAfter + gitpanel.ErrorMessage(pushErr))
		p.postStatus(ctx)
	default:
		p.notifyError(gitpanel.ErrorMessage(err))
		p.postStatus(ctx)
	}
}

func (p *Panel) loadDiff(ctx context.Context, req Request) error {
	var payload SelectChangePayload
	if err := decodePayload(req, &payload); err != nil {
		return err
	}

	diff, err := p.service.GetDiff(ctx, gitpanel.DiffContext{
		URI:         payload.URI,
		PreviousURI: payload.PreviousURI,
		Staged:      payload.Staged,
		Status:      payload.Status,
	})
	if err != nil {
		return err
	}
	p.post(diffLoaded(payload.URI, payload.Staged, diff))
	return nil
}

func (p *Panel) openFile(ctx context.Context, uri string) error {
	repo, err := p.service.Repository(ctx)
	if err != nil {
		return err
	}
	target, err := gitpanel.PathFromURI(uri)
	if err != nil {
		return err
	}
	rel, err := repository.RelativeToRoot(repo.Root(), target)
	if err != nil {
		return err
	}
	return p.opener.Open(ctx, filepath.Join(repo.Root(), filepath.FromSlash(rel)))
}

func (p *Panel) postStatus(ctx context.Context) {
	snapshot, err := p.service.Snapshot(ctx)
	if err != nil {
		p.post(statusError(gitpanel.ErrorMessage(err)))
		return
	}
	p.post(statusUpdated(snapshot))
}

func (p *Panel) notifyError(message string) {
	p.post(errorNotification(message))
	p.notifier.Error(message)
}

func (p *Panel) notifyInfo(message string) {
	p.post(infoNotification(message))
	p.notifier.Info(message)
}

func (p *Panel) post(n Notification) {
	if err := p.transport.Post(n); err != nil {
		log.Printf("[CommitKit][Panel] Failed to post %s: %v", n.Command, err)
	}
}

// Dispose stops listening for changes, cancels in-flight commands and waits
// for their handlers to return.
func (p *Panel) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	sub := p.bridgeSub
	p.bridgeSub = nil
	p.mu.Unlock()

	if sub != nil {
		sub.Dispose()
	}
	p.cancel()
	p.inflight.Wait()
}

func decodePayload(req Request, target interface{}) error {
	if len(req.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", req.Command)
	}
	if err := json.Unmarshal(req.Payload, target); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", req.Command, err)
	}
	return nil
}
