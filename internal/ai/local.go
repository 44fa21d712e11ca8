package ai

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const defaultLocalDimension = 256

type localConfig struct {
	Dimension int `json:"dimension"`
}

// localEmbedProvider is an offline feature hashing embedder. Every token is
// hashed into a fixed number of buckets with a sign bit and the result is L2
// normalised, so texts that share words score a positive cosine.
type localEmbedProvider struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func newLocalEmbedProvider(dimension int) *localEmbedProvider {
	if dimension <= 0 {
		dimension = defaultLocalDimension
	}
	return &localEmbedProvider{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

func (p *localEmbedProvider) Name() string {
	return "local"
}

func (p *localEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, p.dimension)
	for _, tok := range p.tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		idx := int(sum % uint32(p.dimension))
		if sum&0x80000000 != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, p.dimension)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (p *localEmbedProvider) EmbedBatch(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	res := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := p.Embed(ctx, model, text, taskType)
		if err != nil {
			return nil, err
		}
		res[i] = emb
	}
	return res, nil
}

func (p *localEmbedProvider) tokenize(text string) []string {
	raw := p.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := p.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now", "my", "i", "me", "do", "does", "how", "what",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func init() {
	RegisterEmbed("local", func(args interface{}) (IEmbedProvider, error) {
		cfg := &localConfig{}
		if args != nil {
			if err := decodeConfig(args, cfg); err != nil {
				return nil, err
			}
		}
		return newLocalEmbedProvider(cfg.Dimension), nil
	})
}
