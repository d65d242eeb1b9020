package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/nucleus/homegraph/internal/config"
	"github.com/nucleus/homegraph/internal/fault"
)

// Stats summarizes the embedding pass for the run report.
type Stats struct {
	Batches   int64
	Texts     int64
	CacheHits int64
	Retries   int64
}

// Batcher drives a provider in fixed-size batches with request pacing,
// bounded retries on transient failures, dimension validation and
// fingerprint deduplication. The cache lives for one run only.
type Batcher struct {
	provider   Provider
	dimension  int
	batchSize  int
	maxRetries int
	limiter    *rate.Limiter
	cache      map[string][]float32
	stats      Stats
}

// NewBatcher builds a batcher for one run.
func NewBatcher(provider Provider, cfg config.Embedding) *Batcher {
	return &Batcher{
		provider:   provider,
		dimension:  cfg.Dimension,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		// Providers rate-limit per minute; a small steady request rate with
		// burst headroom stays under the common tiers.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		cache:   make(map[string][]float32),
	}
}

// Stats returns the counters accumulated so far.
func (b *Batcher) Stats() Stats { return b.stats }

// EmbedAll returns one vector per text, in order. Identical texts are
// embedded once per run; every returned vector has the configured
// dimension or the run fails with E_EMBEDDING.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// Collect texts whose fingerprint has not been embedded yet.
	var pending []string
	var pendingKeys []string
	seen := make(map[string]bool)
	for _, text := range texts {
		key := fingerprint(text)
		if _, ok := b.cache[key]; ok || seen[key] {
			continue
		}
		seen[key] = true
		pending = append(pending, text)
		pendingKeys = append(pendingKeys, key)
	}

	for start := 0; start < len(pending); start += b.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, fault.New(fault.CodeCancelled, err)
		}
		end := start + b.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		vectors, err := b.embedBatch(ctx, pending[start:end])
		if err != nil {
			return nil, err
		}
		for i, vec := range vectors {
			if len(vec) != b.dimension {
				return nil, fault.Newf(fault.CodeEmbedding,
					"provider %s returned dimension %d, expected %d", b.provider.Name(), len(vec), b.dimension)
			}
			b.cache[pendingKeys[start+i]] = vec
		}
		b.stats.Batches++
	}

	for i, text := range texts {
		key := fingerprint(text)
		vec, ok := b.cache[key]
		if !ok {
			return nil, fault.Newf(fault.CodeEmbedding, "missing vector for text %d", i)
		}
		out[i] = vec
		b.stats.Texts++
	}
	b.stats.CacheHits = b.stats.Texts - int64(len(b.cache))
	return out, nil
}

// embedBatch calls the provider with pacing and bounded exponential
// backoff. Only transient provider failures are retried.
func (b *Batcher) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	attempt := 0
	operation := func() error {
		if err := b.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		result, err := b.provider.Embed(ctx, texts)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.Transient() {
				attempt++
				return err
			}
			if errors.Is(err, context.DeadlineExceeded) {
				attempt++
				return err
			}
			return backoff.Permanent(err)
		}
		vectors = result
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(500*time.Millisecond),
			backoff.WithMaxInterval(10*time.Second),
		), uint64(b.maxRetries)),
		ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		b.stats.Retries += int64(attempt)
		return nil, fault.Transient(fault.CodeEmbedding, err)
	}
	b.stats.Retries += int64(attempt)
	return vectors, nil
}

// fingerprint hashes the selected text; identical content shares a vector
// within the run.
func fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
