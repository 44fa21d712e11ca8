package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/faqchat/internal/retrieval"
)

type Reloader interface {
	Reload(ctx context.Context) (retrieval.Status, error)
}

type CorpusReloadJob struct {
	engine Reloader
}

func NewCorpusReloadJob(engine Reloader) *CorpusReloadJob {
	return &CorpusReloadJob{engine: engine}
}

func (j *CorpusReloadJob) Name() string {
	return "corpus_reload"
}

func (j *CorpusReloadJob) Run(ctx context.Context) error {
	st, err := j.engine.Reload(ctx)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("corpus generation serving",
		zap.Uint64("generation", st.Generation),
		zap.Int("entries", st.Entries),
		zap.String("fingerprint", st.Fingerprint),
	)
	return nil
}
