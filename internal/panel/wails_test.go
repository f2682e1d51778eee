package panel

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commitkit/internal/config"
)

type fakeEvents struct {
	emitted   map[string][]interface{}
	callbacks map[string]func(optionalData ...interface{})
	cancelled int
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{
		emitted:   make(map[string][]interface{}),
		callbacks: make(map[string]func(optionalData ...interface{})),
	}
}

func (f *fakeEvents) transport() *WailsTransport {
	return &WailsTransport{
		ctx: context.Background(),
		emit: func(_ context.Context, eventName string, optionalData ...interface{}) {
			f.emitted[eventName] = append(f.emitted[eventName], optionalData...)
		},
		on: func(_ context.Context, eventName string, callback func(optionalData ...interface{})) func() {
			f.callbacks[eventName] = callback
			return func() { f.cancelled++ }
		},
	}
}

func TestWailsTransportPostEmitsNotificationEvent(t *testing.T) {
	events := newFakeEvents()
	transport := events.transport()

	require.NoError(t, transport.Post(infoNotification("done")))
	assert.Equal(t, []interface{}{Notification{Command: NotifyInfo, Message: "done"}}, events.emitted[config.EventNotification])
}

func TestWailsTransportDecodesRequestEvents(t *testing.T) {
	events := newFakeEvents()
	transport := events.transport()

	var got []Request
	transport.OnMessage(func(req Request) { got = append(got, req) })
	callback := events.callbacks[config.EventRequest]
	require.NotNil(t, callback)

	callback(map[string]interface{}{"command": "stage", "uri": "file:///r/a.txt"})
	callback(`{"command":"commit","payload":{"message":{"subject":"feat","body":""},"options":{}}}`)
	callback(map[string]interface{}{"uri": "missing command"})
	callback()

	require.Len(t, got, 2)
	assert.Equal(t, Request{Command: CommandStage, URI: "file:///r/a.txt"}, got[0])
	assert.Equal(t, CommandCommit, got[1].Command)
	assert.JSONEq(t, `{"message":{"subject":"feat","body":""},"options":{}}`, string(got[1].Payload))

	transport.OnMessage(func(Request) {})
	assert.Equal(t, 1, events.cancelled, "re-registering replaces the previous listener")
	transport.Close()
	transport.Close()
	assert.Equal(t, 2, events.cancelled)
}

func TestWailsTransportWithoutRuntimeContext(t *testing.T) {
	transport := &WailsTransport{}
	assert.Error(t, transport.Post(commitComplete()))
	assert.Error(t, (&WailsOpener{}).Open(context.Background(), "/tmp/a"))
}

func TestEditorOpenerResolvesCommand(t *testing.T) {
	t.Setenv("VISUAL", "")
	t.Setenv("EDITOR", "vim -p")

	var started []string
	opener := EditorOpener{start: func(cmd *exec.Cmd) error {
		started = cmd.Args
		return nil
	}}
	require.NoError(t, opener.Open(context.Background(), "/work/repo/a.go"))
	assert.Equal(t, []string{"vim", "-p", "/work/repo/a.go"}, started)

	opener.Command = "nvim"
	require.NoError(t, opener.Open(context.Background(), "/work/repo/b.go"))
	assert.Equal(t, []string{"nvim", "/work/repo/b.go"}, started)

	t.Setenv("EDITOR", "")
	opener.Command = ""
	require.NoError(t, opener.Open(context.Background(), "/work/repo/c.go"))
	assert.Equal(t, []string{"code", "/work/repo/c.go"}, started)
}
