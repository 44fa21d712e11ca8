package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// KnowledgeEntry is one question/answer row of the FAQ corpus. ID is the
// row position inside the corpus and is stable for a corpus generation.
type KnowledgeEntry struct {
	ID       int    `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Corpus struct {
	Source  string           `json:"source"`
	Digest  string           `json:"digest"`
	Entries []KnowledgeEntry `json:"entries"`
}

func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Entries)
}

func (c *Corpus) Questions() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.Entries))
	for i, item := range c.Entries {
		out[i] = item.Question
	}
	return out
}

// Fingerprint identifies one generation of embeddings: the corpus content
// plus the embedding model that produced the vectors.
type Fingerprint struct {
	Rows   int    `json:"rows"`
	Digest string `json:"digest"`
	Model  string `json:"model"`
}

func NewFingerprint(c *Corpus, modelName string) Fingerprint {
	fp := Fingerprint{Model: modelName}
	if c != nil {
		fp.Rows = len(c.Entries)
		fp.Digest = c.Digest
	}
	return fp
}

func (f Fingerprint) Key() string {
	hash := sha256.Sum256([]byte(f.Model + "\x00" + strconv.Itoa(f.Rows) + "\x00" + f.Digest))
	return hex.EncodeToString(hash[:])
}

func (f Fingerprint) IsZero() bool {
	return f.Rows == 0 && f.Digest == "" && f.Model == ""
}

type Match struct {
	Entry KnowledgeEntry `json:"entry"`
	Score float32        `json:"score"`
}

type RetrievalResult struct {
	Fingerprint string  `json:"fingerprint"`
	Matches     []Match `json:"matches"`
}

func (r *RetrievalResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Matches)
}
