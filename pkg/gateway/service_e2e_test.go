package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"simplebot/pkg/bus"
	"simplebot/pkg/channel"
	"simplebot/pkg/config"
	"simplebot/pkg/plugin"
	"simplebot/pkg/registry"

	"github.com/stretchr/testify/require"
)

type scriptedAdapter struct {
	name    string
	inbound []*bus.InboundMessage

	mu      sync.Mutex
	sent    []bus.OutboundMessage
	deleted []string
	seen    []string
	done    chan struct{}
}

func newScriptedAdapter(name string, inbound ...*bus.InboundMessage) *scriptedAdapter {
	return &scriptedAdapter{name: name, inbound: inbound, done: make(chan struct{})}
}

func (a *scriptedAdapter) Name() string {
	return a.name
}

func (a *scriptedAdapter) Run(ctx context.Context, sink channel.Sink) error {
	for _, item := range a.inbound {
		if !sink(ctx, item) {
			return nil
		}
	}

	close(a.done)

	<-ctx.Done()
	return nil
}

func (a *scriptedAdapter) Send(_ context.Context, msg bus.OutboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, msg)
	return nil
}

func (a *scriptedAdapter) Delete(_ context.Context, item *bus.InboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, item.MessageID)
	return nil
}

func (a *scriptedAdapter) MarkSeen(_ context.Context, item *bus.InboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, item.MessageID)
	return nil
}

func (a *scriptedAdapter) snapshot() (sent []bus.OutboundMessage, deleted []string, seen []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.sent), slices.Clone(a.deleted), slices.Clone(a.seen)
}

// pingPlugin answers /ping, greets "hello" and vetoes "spam".
type pingPlugin struct {
	activateErr error
	deactivated atomic.Int32
}

func (p *pingPlugin) Info() plugin.Info {
	return plugin.Info{Name: "ping", Version: "1.0"}
}

func (p *pingPlugin) Activate(_ context.Context, host plugin.Host) error {
	if p.activateErr != nil {
		return p.activateErr
	}

	host.AddCommand(&registry.Command{Name: "/ping", Fn: func(ctx context.Context, item *bus.InboundMessage, _ string) error {
		return host.Reply(ctx, item, "pong")
	}})
	host.AddDetectedListener(registry.KindMessage, &registry.DetectedListener{Name: "no-spam", Fn: func(_ context.Context, _ *bus.InboundMessage, text string) (string, error) {
		if strings.Contains(text, "spam") {
			return "", registry.ErrReject
		}
		return text, nil
	}})
	host.AddFilter(&registry.Filter{Name: "greet", Fn: func(ctx context.Context, item *bus.InboundMessage, text string) (bool, error) {
		if text != "hello" {
			return false, nil
		}
		return true, host.Reply(ctx, item, "hi there")
	}})
	return nil
}

func (p *pingPlugin) Deactivate(context.Context) error {
	p.deactivated.Add(1)
	return nil
}

func chatItem(id, text string) *bus.InboundMessage {
	return &bus.InboundMessage{
		Channel:   "console",
		SenderID:  "tester",
		ChatID:    "local",
		MessageID: id,
		Content:   text,
		Metadata:  map[string]string{bus.MetadataChatVersion: "1.0"},
	}
}

func testConfig(t *testing.T, port int) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	cfg.Dispatch.Workers = 2
	cfg.Gateway.Host = "127.0.0.1"
	cfg.Gateway.Port = port
	return &cfg
}

func TestGatewayServiceRunE2EDispatchesThroughPlugins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port := freeTCPPort(t)
	foreign := chatItem("4", "newsletter")
	foreign.Metadata = nil

	adapter := newScriptedAdapter("console",
		chatItem("1", "/ping"),
		chatItem("2", "hello"),
		chatItem("3", "buy spam now"),
		foreign,
	)
	ping := &pingPlugin{}

	svc, err := NewService(testConfig(t, port), []channel.Adapter{adapter}, []plugin.Plugin{ping}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	select {
	case <-adapter.done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for adapter scripted messages")
	}

	require.Eventually(t, func() bool {
		sent, deleted, seen := adapter.snapshot()
		return len(sent) == 2 && len(deleted) == 2 && len(seen) == 2
	}, 3*time.Second, 10*time.Millisecond)

	sent, deleted, seen := adapter.snapshot()
	contents := []string{sent[0].Content, sent[1].Content}
	slices.Sort(contents)
	require.Equal(t, []string{"hi there", "pong"}, contents)
	for _, msg := range sent {
		require.Equal(t, "console", msg.Channel)
		require.Equal(t, "local", msg.ChatID)
	}

	slices.Sort(deleted)
	slices.Sort(seen)
	require.Equal(t, []string{"3", "4"}, deleted)
	require.Equal(t, []string{"1", "2"}, seen)

	var status statusResponse
	require.Eventually(t, func() bool {
		status = fetchStatus(t, fmt.Sprintf("http://127.0.0.1:%d/status", port))
		return status.Events[bus.EventItemProcessed] == 2 && status.Events[bus.EventItemRejected] == 2
	}, 3*time.Second, 25*time.Millisecond)

	require.Equal(t, "ok", status.Status)
	require.True(t, status.Channels["console"].Running)
	require.Len(t, status.Plugins, 1)
	require.Equal(t, plugin.StateActive, status.Plugins[0].State)
	require.Equal(t, 1, status.Registry.Commands)
	require.Equal(t, 1, status.Registry.Filters)

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}

	require.Equal(t, int32(1), ping.deactivated.Load())
	require.Equal(t, registry.Stats{}, svc.registry.Stats(), "deactivation must empty the registry")
}

func TestGatewayServiceRunAbortsOnActivationFailure(t *testing.T) {
	adapter := newScriptedAdapter("console")
	healthy := &pingPlugin{}
	broken := &namedFailingPlugin{name: "broken"}

	svc, err := NewService(testConfig(t, 0), []channel.Adapter{adapter}, []plugin.Plugin{healthy, broken}, slog.New(slog.DiscardHandler), WithoutStatusServer())
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.ErrorContains(t, err, `activate plugin "broken"`)
	require.Equal(t, int32(1), healthy.deactivated.Load(), "plugins activated before the failure are deactivated")

	select {
	case <-adapter.done:
		t.Fatal("adapters must not start when activation aborts")
	default:
	}
}

func TestGatewayServiceRunSkipsFailedPluginsWhenConfigured(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port := freeTCPPort(t)
	cfg := testConfig(t, port)
	cfg.Plugins.SkipFailed = true

	adapter := newScriptedAdapter("console", chatItem("1", "/ping"))
	svc, err := NewService(cfg, []channel.Adapter{adapter}, []plugin.Plugin{&namedFailingPlugin{name: "broken"}, &pingPlugin{}}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	require.Equal(t, http.StatusOK, waitHTTPStatus(t, fmt.Sprintf("http://127.0.0.1:%d/readyz", port), 3*time.Second))
	require.Eventually(t, func() bool {
		sent, _, _ := adapter.snapshot()
		return len(sent) == 1 && sent[0].Content == "pong"
	}, 3*time.Second, 10*time.Millisecond)

	states := map[string]plugin.State{}
	for _, status := range svc.plugins.Plugins() {
		states[status.Name] = status.State
	}
	require.Equal(t, plugin.StateFailed, states["broken"])
	require.Equal(t, plugin.StateActive, states["ping"])

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func TestGatewayServiceRunReturnsChannelFailure(t *testing.T) {
	adapter := &failingAdapter{scriptedAdapter: newScriptedAdapter("telegram")}

	svc, err := NewService(testConfig(t, 0), []channel.Adapter{adapter}, nil, slog.New(slog.DiscardHandler), WithoutStatusServer())
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.ErrorContains(t, err, "run telegram channel: connection refused")
}

type namedFailingPlugin struct {
	name string
}

func (p *namedFailingPlugin) Info() plugin.Info {
	return plugin.Info{Name: p.name}
}

func (p *namedFailingPlugin) Activate(context.Context, plugin.Host) error {
	return errors.New("missing credentials")
}

func (p *namedFailingPlugin) Deactivate(context.Context) error {
	return nil
}

type failingAdapter struct {
	*scriptedAdapter
}

func (a *failingAdapter) Run(context.Context, channel.Sink) error {
	return errors.New("connection refused")
}

func fetchStatus(t *testing.T, url string) statusResponse {
	t.Helper()

	response, err := http.Get(url)
	if err != nil {
		return statusResponse{}
	}
	defer response.Body.Close()

	var status statusResponse
	require.NoError(t, json.NewDecoder(response.Body).Decode(&status))
	return status
}

func waitHTTPStatus(t *testing.T, url string, timeout time.Duration) int {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		response, err := http.Get(url)
		if err == nil {
			statusCode := response.StatusCode
			require.NoError(t, response.Body.Close())
			if statusCode == http.StatusOK || time.Now().After(deadline) {
				return statusCode
			}
		} else if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %v", url, err)
		}

		time.Sleep(25 * time.Millisecond)
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}
