// Package pipeline splits source novels into chunks and extracts raw
// entity records from each chunk.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siherrmann/rolecard/model"
	"golang.org/x/sync/errgroup"
)

// ChunkFunc is a function that splits text into named chunks
type ChunkFunc func(text string, baseName string) ([]Chunk, error)

// ExtractFunc extracts raw entity records from one chunk.
// A failing chunk contributes zero records; it never aborts the batch.
type ExtractFunc func(ctx context.Context, chunk Chunk) ([]*model.RawEntry, error)

// EmbedFunc is a function that generates embeddings for text
type EmbedFunc func(text string) ([]float32, error)

// Chunk is one piece of a split source document.
type Chunk struct {
	Name     string
	Content  string
	Index    int
	StartPos int
	EndPos   int
}

// Result collects the output of one pipeline run.
type Result struct {
	// PerChunk holds the records of each chunk, indexed like the chunks.
	PerChunk [][]*model.RawEntry
	// Records is the flattened batch in chunk order.
	Records []*model.RawEntry
	// Failed marks chunks whose extraction failed after retries, indexed
	// like the chunks. Callers use it to withhold resume state so a
	// failed chunk is retried on the next run.
	Failed []bool
	// FailedChunks counts chunks whose extraction failed after retries.
	FailedChunks int
}

// Pipeline combines chunking and record extraction.
type Pipeline struct {
	Chunker   ChunkFunc
	Extractor ExtractFunc
	// MaxConcurrent caps in-flight extractions; values below 1 mean 1.
	MaxConcurrent int

	log *slog.Logger
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, extractor ExtractFunc, maxConcurrent int, logger *slog.Logger) *Pipeline {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Pipeline{
		Chunker:       chunker,
		Extractor:     extractor,
		MaxConcurrent: maxConcurrent,
		log:           logger,
	}
}

// Split runs only the chunker.
func (p *Pipeline) Split(text string, baseName string) ([]Chunk, error) {
	return p.Chunker(text, baseName)
}

// Run splits the text and extracts records from every chunk with bounded
// concurrency. Per-chunk failures are isolated: the chunk contributes zero
// records and the failure is counted.
func (p *Pipeline) Run(ctx context.Context, text string, baseName string) (*Result, error) {
	chunks, err := p.Chunker(text, baseName)
	if err != nil {
		return nil, fmt.Errorf("chunk text: %w", err)
	}
	return p.Extract(ctx, chunks)
}

// Extract runs the extractor over already-split chunks.
func (p *Pipeline) Extract(ctx context.Context, chunks []Chunk) (*Result, error) {
	result := &Result{
		PerChunk: make([][]*model.RawEntry, len(chunks)),
		Failed:   make([]bool, len(chunks)),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.MaxConcurrent)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		group.Go(func() error {
			records, err := p.Extractor(groupCtx, chunk)
			if err != nil {
				p.log.Warn("Chunk extraction failed",
					slog.String("chunk", chunk.Name),
					slog.String("error", err.Error()))
				result.Failed[i] = true
				return nil
			}
			result.PerChunk[i] = records
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	for i, records := range result.PerChunk {
		if result.Failed[i] {
			result.FailedChunks++
			continue
		}
		result.Records = append(result.Records, records...)
	}

	p.log.Info("Extraction finished",
		slog.Int("chunks", len(chunks)),
		slog.Int("failed_chunks", result.FailedChunks),
		slog.Int("records", len(result.Records)))

	return result, nil
}
