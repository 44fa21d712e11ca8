package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/faqchat/internal/model"
	appErr "github.com/xxxsen/faqchat/internal/pkg/errors"
	"github.com/xxxsen/faqchat/internal/session"
)

const ApologyAnswer = "I apologize, but I'm having trouble processing your request right now. Please try again later."

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (*model.RetrievalResult, error)
}

type SessionStore interface {
	Recent(ctx context.Context, id string, limit int) ([]model.ChatMessage, error)
	History(ctx context.Context, id string) ([]model.ChatMessage, error)
	Append(ctx context.Context, id string, msgs ...model.ChatMessage) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) []model.ChatSessionSummary
}

type Service struct {
	retriever       Retriever
	sessions        SessionStore
	assembler       *Assembler
	orchestrator    *Orchestrator
	topK            int
	minScore        float32
	historyMessages int
	now             func() time.Time
}

func NewService(retriever Retriever, sessions SessionStore, assembler *Assembler, orchestrator *Orchestrator, topK int, minScore float64, historyMessages int) *Service {
	return &Service{
		retriever:       retriever,
		sessions:        sessions,
		assembler:       assembler,
		orchestrator:    orchestrator,
		topK:            topK,
		minScore:        float32(minScore),
		historyMessages: historyMessages,
		now:             time.Now,
	}
}

// Answer runs one conversation turn. Retrieval failures degrade to an
// empty knowledge context and backend failures to the fallback answer, so
// only invalid input and caller cancellation return an error. The session
// is written once the turn reached a terminal state.
func (s *Service) Answer(ctx context.Context, sessionID string, text string) (*model.Answer, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message is required", appErr.ErrInvalid)
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sessionID))
	state := model.TurnReceived
	transition := func(next model.TurnState) {
		logger.Debug("turn state", zap.String("from", string(state)), zap.String("to", string(next)))
		state = next
	}
	prov := model.Provenance{EntryIDs: []int{}}

	transition(model.TurnRetrieving)
	var relevant []model.Match
	var top *model.Match
	res, err := s.retriever.Retrieve(ctx, text, s.topK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("retrieval degraded", zap.Error(err))
		prov.RetrievalDegraded = true
		transition(model.TurnRetrievalDegraded)
	} else {
		prov.IndexFingerprint = res.Fingerprint
		relevant = s.filterRelevant(res.Matches)
		if len(res.Matches) > 0 {
			top = &res.Matches[0]
		}
		transition(model.TurnRetrieved)
	}

	transition(model.TurnComposing)
	history, err := s.sessions.Recent(ctx, sessionID, s.historyMessages)
	if err != nil && !appErr.IsNotFound(err) {
		logger.Warn("load history failed", zap.Error(err))
	}
	req := s.assembler.Assemble(relevant, history, text)

	transition(model.TurnCompleting)
	response, attempts, err := s.orchestrator.Complete(ctx, req)
	switch {
	case err == nil:
		for _, m := range relevant {
			prov.EntryIDs = append(prov.EntryIDs, m.Entry.ID)
		}
		transition(model.TurnAnswered)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		logger.Warn("completion failed, use fallback answer", zap.Int("attempts", attempts), zap.Error(err))
		prov.Fallback = true
		prov.Note = model.FallbackNote
		response = ApologyAnswer
		if top != nil {
			response = top.Entry.Answer
			prov.EntryIDs = append(prov.EntryIDs, top.Entry.ID)
		}
		transition(model.TurnFallbackAnswered)
	}

	now := s.now().Unix()
	err = s.sessions.Append(ctx, sessionID,
		model.ChatMessage{Role: model.RoleUser, Content: text, Timestamp: now},
		model.ChatMessage{Role: model.RoleAssistant, Content: response, Timestamp: now, FAQMatched: len(prov.EntryIDs) > 0},
	)
	if err != nil {
		logger.Error("append session failed", zap.Error(err))
	}
	logger.Info("turn finished",
		zap.String("state", string(state)),
		zap.Ints("entry_ids", prov.EntryIDs),
		zap.Bool("fallback", prov.Fallback),
		zap.Bool("retrieval_degraded", prov.RetrievalDegraded),
	)
	return &model.Answer{
		SessionID:  sessionID,
		Response:   response,
		Provenance: prov,
		State:      state,
		Timestamp:  now,
	}, nil
}

func (s *Service) filterRelevant(matches []model.Match) []model.Match {
	out := make([]model.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= s.minScore {
			out = append(out, m)
		}
	}
	return out
}

// History returns the ordered messages of a session, empty with
// errors.ErrNotFound when it does not exist.
func (s *Service) History(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	return s.sessions.History(ctx, sessionID)
}

// DeleteSession reports errors.ErrNotFound for an unknown or already
// deleted session.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}

func (s *Service) Sessions(ctx context.Context) []model.ChatSessionSummary {
	return s.sessions.List(ctx)
}
