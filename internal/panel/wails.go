package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"commitkit/internal/config"
	"commitkit/internal/gitpanel"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

type (
	emitFunc func(ctx context.Context, eventName string, optionalData ...interface{})
	onFunc   func(ctx context.Context, eventName string, callback func(optionalData ...interface{})) func()
)

// WailsTransport carries the protocol over Wails runtime events: requests
// arrive on config.EventRequest, notifications leave on
// config.EventNotification.
type WailsTransport struct {
	ctx  context.Context
	emit emitFunc
	on   onFunc

	mu     sync.Mutex
	cancel func()
}

func NewWailsTransport(ctx context.Context) *WailsTransport {
	return &WailsTransport{
		ctx:  ctx,
		emit: runtime.EventsEmit,
		on:   runtime.EventsOn,
	}
}

func (t *WailsTransport) Post(n Notification) error {
	if t.ctx == nil {
		return fmt.Errorf("wails transport not started")
	}
	t.emit(t.ctx, config.EventNotification, n)
	return nil
}

func (t *WailsTransport) OnMessage(handler func(Request)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	t.cancel = t.on(t.ctx, config.EventRequest, func(optionalData ...interface{}) {
		if len(optionalData) == 0 {
			return
		}
		req, err := decodeEventRequest(optionalData[0])
		if err != nil {
			log.Printf("[CommitKit][Panel] Invalid request event: %v", err)
			return
		}
		handler(req)
	})
}

// Close stops listening for requests.
func (t *WailsTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// decodeEventRequest accepts either a JSON string or the generic value the
// runtime decodes from the frontend.
func decodeEventRequest(data interface{}) (Request, error) {
	var raw []byte
	switch v := data.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return Request{}, err
		}
		raw = encoded
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	if req.Command == "" {
		return Request{}, fmt.Errorf("missing command")
	}
	return req, nil
}

// WailsNotifier shows alerts as native message dialogs.
type WailsNotifier struct {
	ctx context.Context
}

func NewWailsNotifier(ctx context.Context) *WailsNotifier {
	return &WailsNotifier{ctx: ctx}
}

func (n *WailsNotifier) Error(message string) {
	n.show(runtime.ErrorDialog, message)
}

func (n *WailsNotifier) Info(message string) {
	n.show(runtime.InfoDialog, message)
}

func (n *WailsNotifier) show(kind runtime.DialogType, message string) {
	if n.ctx == nil || message == "" {
		return
	}
	// Dialogs block until dismissed.
	go func() {
		_, err := runtime.MessageDialog(n.ctx, runtime.MessageDialogOptions{
			Type:    kind,
			Title:   config.AppName,
			Message: message,
		})
		if err != nil {
			log.Printf("[CommitKit][Panel] Message dialog failed: %v", err)
		}
	}()
}

// WailsOpener opens files through the system handler for file:// URLs.
type WailsOpener struct {
	ctx context.Context
}

func NewWailsOpener(ctx context.Context) *WailsOpener {
	return &WailsOpener{ctx: ctx}
}

func (o *WailsOpener) Open(_ context.Context, path string) error {
	if o.ctx == nil {
		return fmt.Errorf("wails runtime not started")
	}
	runtime.BrowserOpenURL(o.ctx, gitpanel.FileURI(path))
	return nil
}
