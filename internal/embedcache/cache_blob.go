package embedcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/faqchat/internal/filestore"
	"github.com/xxxsen/faqchat/internal/model"
	appErr "github.com/xxxsen/faqchat/internal/pkg/errors"
)

const (
	blobPrefix      = "faq-embeddings/"
	artifactVersion = 1
	maxArtifactSize = 512 << 20
)

type artifact struct {
	Version     int               `json:"version"`
	Fingerprint model.Fingerprint `json:"fingerprint"`
	Dimension   int               `json:"dimension"`
	Questions   []string          `json:"questions"`
	Vectors     [][]float32       `json:"vectors"`
	Checksum    string            `json:"checksum"`
	Ctime       int64             `json:"ctime"`
}

type blobCache struct {
	store filestore.Store
}

// NewBlobCache keeps one json artifact per fingerprint in the file store.
func NewBlobCache(store filestore.Store) Cache {
	return &blobCache{store: store}
}

func blobKey(fp model.Fingerprint) string {
	return blobPrefix + fp.Key() + ".json"
}

func (c *blobCache) Load(ctx context.Context, fp model.Fingerprint) (*Snapshot, bool) {
	logger := logutil.GetLogger(ctx).With(zap.String("fingerprint", fp.Key()))
	rc, err := c.store.Open(ctx, blobKey(fp))
	if err != nil {
		if !appErr.IsNotFound(err) {
			logger.Warn("open embedding artifact failed", zap.Error(err))
		}
		return nil, false
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxArtifactSize))
	if err != nil {
		logger.Warn("read embedding artifact failed", zap.Error(err))
		return nil, false
	}
	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		logger.Warn("embedding artifact is corrupt", zap.Error(err))
		return nil, false
	}
	if err := checkArtifact(fp, &art); err != nil {
		logger.Warn("embedding artifact rejected", zap.Error(err))
		return nil, false
	}
	logger.Debug("embedding cache hit (blob)", zap.Int("rows", len(art.Vectors)))
	return &Snapshot{Vectors: art.Vectors, Questions: art.Questions}, true
}

func checkArtifact(fp model.Fingerprint, art *artifact) error {
	if art.Version != artifactVersion {
		return fmt.Errorf("artifact version %d", art.Version)
	}
	if art.Fingerprint != fp {
		return fmt.Errorf("artifact fingerprint %s differs", art.Fingerprint.Key())
	}
	if err := validate(fp, art.Vectors, art.Questions); err != nil {
		return err
	}
	if len(art.Vectors) > 0 && len(art.Vectors[0]) != art.Dimension {
		return fmt.Errorf("artifact dimension %d differs from vectors", art.Dimension)
	}
	if art.Checksum != checksum(art.Questions, art.Vectors) {
		return fmt.Errorf("artifact checksum mismatch")
	}
	return nil
}

func (c *blobCache) Store(ctx context.Context, fp model.Fingerprint, vectors [][]float32, questions []string) error {
	if err := validate(fp, vectors, questions); err != nil {
		return fmt.Errorf("store embeddings: %w", err)
	}
	art := artifact{
		Version:     artifactVersion,
		Fingerprint: fp,
		Questions:   questions,
		Vectors:     vectors,
		Checksum:    checksum(questions, vectors),
		Ctime:       time.Now().Unix(),
	}
	if len(vectors) > 0 {
		art.Dimension = len(vectors[0])
	}
	data, err := json.Marshal(&art)
	if err != nil {
		return fmt.Errorf("encode embedding artifact: %w", err)
	}
	if err := c.store.Save(ctx, blobKey(fp), bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("save embedding artifact: %w", err)
	}
	return nil
}

func (c *blobCache) Prune(ctx context.Context, keep model.Fingerprint, before time.Time) (int, error) {
	items, err := c.store.List(ctx, blobPrefix)
	if err != nil {
		return 0, err
	}
	keepKey := blobKey(keep)
	removed := 0
	for _, item := range items {
		if item.Key == keepKey || !strings.HasSuffix(item.Key, ".json") || !item.ModTime.Before(before) {
			continue
		}
		if err := c.store.Delete(ctx, item.Key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func checksum(questions []string, vectors [][]float32) string {
	h := sha256.New()
	var buf [4]byte
	for i, q := range questions {
		_, _ = h.Write([]byte(q))
		_, _ = h.Write([]byte{0})
		for _, f := range vectors[i] {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
			_, _ = h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
