package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/faqchat/internal/model"
	appErr "github.com/xxxsen/faqchat/internal/pkg/errors"
)

// Loader supplies the ordered question/answer rows of the knowledge base.
// It is called on every retrieval, implementations are expected to be cheap
// when the source did not change.
type Loader interface {
	Load(ctx context.Context) (*model.Corpus, error)
}

type row struct {
	line     int
	question string
	answer   string
}

type FileLoader struct {
	path   string
	format string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	cached  *model.Corpus
}

// NewFileLoader reads csv, yaml or json FAQ files. An empty format is
// detected from the file extension.
func NewFileLoader(path string, format string) (*FileLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: corpus path is required", appErr.ErrInvalid)
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = detectFormat(path)
	}
	switch format {
	case "csv", "yaml", "json":
	default:
		return nil, fmt.Errorf("%w: unsupported corpus format %q", appErr.ErrInvalid, format)
	}
	return &FileLoader{path: path, format: format}, nil
}

func (l *FileLoader) Path() string {
	return l.path
}

func (l *FileLoader) Load(ctx context.Context) (*model.Corpus, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("stat corpus: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached != nil && info.ModTime().Equal(l.modTime) && info.Size() == l.size {
		return l.cached, nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	var rows []row
	switch l.format {
	case "csv":
		rows, err = parseCSV(data)
	default:
		rows, err = parseStructured(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", l.path, err)
	}
	c := buildCorpus(ctx, l.path, rows)
	logutil.GetLogger(ctx).Info("corpus loaded",
		zap.String("path", l.path),
		zap.Int("entries", c.Len()),
		zap.String("digest", c.Digest),
	)
	l.cached = c
	l.modTime = info.ModTime()
	l.size = info.Size()
	return c, nil
}

// buildCorpus keeps the rows that carry both a question and an answer. IDs
// are assigned in file order over the kept rows only.
func buildCorpus(ctx context.Context, source string, rows []row) *model.Corpus {
	logger := logutil.GetLogger(ctx)
	hash := sha256.New()
	entries := make([]model.KnowledgeEntry, 0, len(rows))
	for _, r := range rows {
		question := strings.TrimSpace(r.question)
		answer := strings.TrimSpace(r.answer)
		if question == "" || answer == "" {
			reason := "empty question"
			if question != "" {
				reason = "empty answer"
			}
			logger.Warn("skip corpus row", zap.String("source", source), zap.Int("line", r.line), zap.String("reason", reason))
			continue
		}
		entries = append(entries, model.KnowledgeEntry{ID: len(entries), Question: question, Answer: answer})
		_, _ = hash.Write([]byte(question))
		_, _ = hash.Write([]byte{0})
		_, _ = hash.Write([]byte(answer))
		_, _ = hash.Write([]byte{0x1e})
	}
	return &model.Corpus{
		Source:  source,
		Digest:  hex.EncodeToString(hash.Sum(nil)),
		Entries: entries,
	}
}

// StaticLoader serves a fixed corpus, used by tests and the one shot cli.
type StaticLoader struct {
	mu     sync.RWMutex
	corpus *model.Corpus
}

func NewStaticLoader(pairs [][2]string) *StaticLoader {
	l := &StaticLoader{}
	l.Set(pairs)
	return l
}

func (l *StaticLoader) Set(pairs [][2]string) {
	rows := make([]row, 0, len(pairs))
	for i, p := range pairs {
		rows = append(rows, row{line: i + 1, question: p[0], answer: p[1]})
	}
	c := buildCorpus(context.Background(), "static", rows)
	l.mu.Lock()
	l.corpus = c
	l.mu.Unlock()
}

func (l *StaticLoader) Load(ctx context.Context) (*model.Corpus, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.corpus, nil
}

func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return "csv"
	}
}
