package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/faqchat/internal/ai"
	"github.com/xxxsen/faqchat/internal/corpus"
	"github.com/xxxsen/faqchat/internal/model"
	appErr "github.com/xxxsen/faqchat/internal/pkg/errors"
	"github.com/xxxsen/faqchat/internal/retrieval"
	"github.com/xxxsen/faqchat/internal/session"
)

type staticGenerator struct {
	text string
	err  error
	last *ai.GenerateRequest
}

func (g *staticGenerator) Generate(ctx context.Context, req *ai.GenerateRequest) (string, error) {
	g.last = req
	return g.text, g.err
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(ctx context.Context, query string, k int) (*model.RetrievalResult, error) {
	return nil, retrieval.ErrRetrievalUnavailable
}

func newScenarioService(t *testing.T, gen ai.IGenerator) (*Service, *session.Manager) {
	t.Helper()
	p, err := ai.NewEmbedProvider("local", nil)
	require.NoError(t, err)
	engine := retrieval.NewEngine(corpus.NewStaticLoader([][2]string{
		{"printer not printing", "check cable and driver"},
		{"wifi not connecting", "reset router"},
	}), ai.NewEmbedder(p, "hash-256", 0, 0), nil)
	sessions := session.NewManager()
	orch := NewOrchestrator(gen, 2, time.Millisecond, time.Millisecond)
	svc := NewService(engine, sessions, NewAssembler("be helpful", 10, 4000, 350, 0.7), orch, 1, 0.25, 10)
	return svc, sessions
}

func TestAnswer_BackendOutageFallsBackToTopEntry(t *testing.T) {
	svc, _ := newScenarioService(t, &staticGenerator{err: ai.ErrServiceError})
	ans, err := svc.Answer(context.Background(), "s1", "my wifi is down")
	require.NoError(t, err)
	require.Equal(t, "reset router", ans.Response)
	require.Equal(t, model.TurnFallbackAnswered, ans.State)
	require.True(t, ans.Provenance.Fallback)
	require.Equal(t, model.FallbackNote, ans.Provenance.Note)
	require.Equal(t, []int{1}, ans.Provenance.EntryIDs)

	history, err := svc.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "my wifi is down", history[0].Content)
	require.Equal(t, "reset router", history[1].Content)
	require.True(t, history[1].FAQMatched)
}

func TestAnswer_NoBackendConfigured(t *testing.T) {
	svc, _ := newScenarioService(t, nil)
	ans, err := svc.Answer(context.Background(), "", "wifi not connecting")
	require.NoError(t, err)
	require.NotEmpty(t, ans.SessionID)
	require.Equal(t, "reset router", ans.Response)
	require.Equal(t, model.TurnFallbackAnswered, ans.State)
}

func TestAnswer_Success(t *testing.T) {
	gen := &staticGenerator{text: "Try resetting your router."}
	svc, _ := newScenarioService(t, gen)
	ans, err := svc.Answer(context.Background(), "s1", "my wifi is down")
	require.NoError(t, err)
	require.Equal(t, model.TurnAnswered, ans.State)
	require.Equal(t, "Try resetting your router.", ans.Response)
	require.Equal(t, []int{1}, ans.Provenance.EntryIDs)
	require.False(t, ans.Provenance.Fallback)
	require.NotEmpty(t, ans.Provenance.IndexFingerprint)
	require.Contains(t, gen.last.System, "Q: wifi not connecting\nA: reset router")

	_, err = svc.Answer(context.Background(), "s1", "thanks")
	require.NoError(t, err)
	require.Len(t, gen.last.Messages, 3)
	require.Equal(t, "my wifi is down", gen.last.Messages[0].Content)
}

func TestAnswer_IrrelevantQueryHasEmptyProvenance(t *testing.T) {
	gen := &staticGenerator{text: "general help"}
	svc, sessions := newScenarioService(t, gen)
	ans, err := svc.Answer(context.Background(), "s1", "what is this")
	require.NoError(t, err)
	require.Empty(t, ans.Provenance.EntryIDs)
	require.Contains(t, gen.last.System, noFAQContext)
	msgs, err := sessions.History(context.Background(), "s1")
	require.NoError(t, err)
	require.False(t, msgs[1].FAQMatched)
}

func TestAnswer_OutageFallsBackToTopEntryBelowThreshold(t *testing.T) {
	svc, _ := newScenarioService(t, &staticGenerator{err: ai.ErrFatal})
	ans, err := svc.Answer(context.Background(), "s1", "what is this")
	require.NoError(t, err)
	require.Equal(t, "check cable and driver", ans.Response)
	require.Equal(t, model.TurnFallbackAnswered, ans.State)
	require.True(t, ans.Provenance.Fallback)
	require.Equal(t, []int{0}, ans.Provenance.EntryIDs)
}

func TestAnswer_OutageWithoutEntriesApologises(t *testing.T) {
	p, err := ai.NewEmbedProvider("local", nil)
	require.NoError(t, err)
	empty := retrieval.NewEngine(corpus.NewStaticLoader(nil), ai.NewEmbedder(p, "hash-256", 0, 0), nil)
	failing := &staticGenerator{err: ai.ErrServiceError}

	for name, retriever := range map[string]Retriever{"empty": empty, "degraded": failingRetriever{}} {
		t.Run(name, func(t *testing.T) {
			svc := NewService(retriever, session.NewManager(), NewAssembler("x", 10, 100, 0, 0),
				NewOrchestrator(failing, 0, 0, 0), 3, 0.25, 10)
			ans, err := svc.Answer(context.Background(), "s", "my wifi is down")
			require.NoError(t, err)
			require.Equal(t, ApologyAnswer, ans.Response)
			require.Equal(t, model.TurnFallbackAnswered, ans.State)
			require.Empty(t, ans.Provenance.EntryIDs)
		})
	}
}

func TestAnswer_RetrievalDegraded(t *testing.T) {
	gen := &staticGenerator{text: "generic answer"}
	svc := NewService(failingRetriever{}, session.NewManager(), NewAssembler("x", 10, 100, 0, 0),
		NewOrchestrator(gen, 0, 0, 0), 3, 0.25, 10)
	ans, err := svc.Answer(context.Background(), "s", "wifi")
	require.NoError(t, err)
	require.Equal(t, model.TurnAnswered, ans.State)
	require.True(t, ans.Provenance.RetrievalDegraded)
	require.Empty(t, ans.Provenance.EntryIDs)
}

func TestAnswer_CancelledTurnDoesNotAppend(t *testing.T) {
	svc, sessions := newScenarioService(t, &staticGenerator{err: ai.ErrTimeout})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Answer(ctx, "s1", "my wifi is down")
	require.True(t, errors.Is(err, context.Canceled))
	_, err = sessions.History(context.Background(), "s1")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestAnswer_EmptyMessage(t *testing.T) {
	svc, _ := newScenarioService(t, nil)
	_, err := svc.Answer(context.Background(), "s1", "   ")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestDeleteSession_Twice(t *testing.T) {
	svc, _ := newScenarioService(t, nil)
	_, err := svc.Answer(context.Background(), "s1", "wifi")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteSession(context.Background(), "s1"))
	require.ErrorIs(t, svc.DeleteSession(context.Background(), "s1"), appErr.ErrNotFound)
	require.Empty(t, svc.Sessions(context.Background()))
}
