package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"simplebot/pkg/config"
	"simplebot/pkg/plugin"
	"simplebot/pkg/plugin/plugintest"

	"github.com/stretchr/testify/require"
)

type scriptedResponder struct {
	mu        sync.Mutex
	previous  []string
	prompts   []string
	err       error
	responses int
}

func (r *scriptedResponder) Respond(_ context.Context, previousID string, prompt string) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return "", "", r.err
	}
	r.previous = append(r.previous, previousID)
	r.prompts = append(r.prompts, prompt)
	r.responses++
	return "answer: " + prompt, fmt.Sprintf("resp_%d", r.responses), nil
}

func TestAssistantAnswersAndContinuesThread(t *testing.T) {
	responder := &scriptedResponder{}
	h := plugintest.New(t, newPlugin(responder))

	first := h.Send("alice", "what is go?")
	require.True(t, first.Processed)
	second := h.Send("alice", "and channels?")
	require.True(t, second.Processed)

	replies := h.Replies()
	require.Len(t, replies, 2)
	require.Equal(t, "answer: what is go?", replies[0].Content)
	require.Equal(t, []string{"", "resp_1"}, responder.previous)
}

func TestAssistantResetStartsNewThread(t *testing.T) {
	responder := &scriptedResponder{}
	h := plugintest.New(t, newPlugin(responder))

	h.Send("alice", "one")
	h.Send("alice", "/reset")
	h.Send("alice", "two")

	replies := h.Replies()
	require.Len(t, replies, 3)
	require.Equal(t, "Conversation reset.", replies[1].Content)
	require.Equal(t, []string{"", ""}, responder.previous)
}

func TestAssistantFailureCountsAsNotProcessed(t *testing.T) {
	h := plugintest.New(t, newPlugin(&scriptedResponder{err: errors.New("rate limited")}))

	result := h.Send("alice", "hello")
	require.False(t, result.Processed)
	require.Empty(t, h.Replies())
}

func TestAssistantIgnoresCommandsOtherThanReset(t *testing.T) {
	responder := &scriptedResponder{}
	h := plugintest.New(t, newPlugin(responder))

	result := h.Send("alice", "/unknown")
	require.False(t, result.Processed)
	require.Empty(t, responder.prompts)
}

func TestFactorySkipsWithoutAPIKey(t *testing.T) {
	cfg := config.Default()
	_, err := factory(&cfg)
	require.ErrorIs(t, err, plugin.ErrSkip)
}

func TestFactoryBuildsWithAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.Assistant.APIKey = "sk-test"

	p, err := factory(&cfg)
	require.NoError(t, err)
	require.Equal(t, name, p.Info().Name)
}

func TestNewOpenAIResponderRequiresModel(t *testing.T) {
	_, err := newOpenAIResponder(config.AssistantConfig{APIKey: "sk-test"}, nil)
	require.ErrorContains(t, err, "assistant.model is required")
}
