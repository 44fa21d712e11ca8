package job

import (
	"context"
)

type SessionPruner interface {
	Prune(ctx context.Context) (int, int)
}

type SessionPruneJob struct {
	sessions SessionPruner
}

func NewSessionPruneJob(sessions SessionPruner) *SessionPruneJob {
	return &SessionPruneJob{sessions: sessions}
}

func (j *SessionPruneJob) Name() string {
	return "session_prune"
}

func (j *SessionPruneJob) Run(ctx context.Context) error {
	if j.sessions == nil {
		return nil
	}
	j.sessions.Prune(ctx)
	return nil
}
