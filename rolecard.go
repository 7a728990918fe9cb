package rolecard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/siherrmann/rolecard/core/normalize"
	"github.com/siherrmann/rolecard/core/pipeline"
	"github.com/siherrmann/rolecard/core/resolve"
	"github.com/siherrmann/rolecard/database"
	"github.com/siherrmann/rolecard/helper"
	"github.com/siherrmann/rolecard/ingest"
	"github.com/siherrmann/rolecard/model"
	"github.com/siherrmann/rolecard/output"
	loadSql "github.com/siherrmann/rolecard/sql"
)

// Rolecard provides a unified interface to the extraction and resolution
// workflow: split a novel, extract per-chunk records, resolve them into
// canonical entities and export or persist the result.
type Rolecard struct {
	Config model.Config

	Normalizer *normalize.Normalizer
	Scorer     *resolve.Scorer
	Clusterer  *resolve.Clusterer
	Merger     *resolve.Merger
	Loader     *ingest.Loader
	Writer     *output.Writer
	Pipeline   *pipeline.Pipeline // Optional chunking/extraction pipeline
	Embedder   pipeline.EmbedFunc // Optional, only needed for persistence with vectors

	// Database handlers, nil without a database
	DB        *helper.Database
	Documents *database.DocumentsDBHandler
	Entities  *database.EntitiesDBHandler

	// Logging
	log *slog.Logger
}

// NewRolecard creates an in-memory instance without a database.
func NewRolecard(config model.Config) (*Rolecard, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	normalizer, err := normalize.NewNormalizer(config.Normalization)
	if err != nil {
		return nil, helper.NewError("create normalizer", err)
	}

	scorer := resolve.NewScorer(normalizer, config.Similarity)

	return &Rolecard{
		Config:     config,
		Normalizer: normalizer,
		Scorer:     scorer,
		Clusterer:  resolve.NewClusterer(scorer, config.Similarity),
		Merger:     resolve.NewMerger(normalizer, config.Merge),
		Loader:     ingest.NewLoader(config.Validation, logger),
		Writer:     output.NewWriter(config.Output.RolesDir, logger),
		log:        logger,
	}, nil
}

// NewRolecardWithDatabase creates an instance with postgres persistence
// attached. Extensions and handlers are initialized up front.
func NewRolecardWithDatabase(config model.Config, dbConfig *helper.DatabaseConfiguration) (*Rolecard, error) {
	r, err := NewRolecard(config)
	if err != nil {
		return nil, err
	}

	db := helper.NewDatabase("rolecard", dbConfig, r.log)
	err = loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	entities, err := database.NewEntitiesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create entities handler", err)
	}

	r.DB = db
	r.Documents = documents
	r.Entities = entities

	return r, nil
}

// Close closes the database connection
func (r *Rolecard) Close() error {
	if r.DB != nil && r.DB.Instance != nil {
		return r.DB.Instance.Close()
	}
	return nil
}

// SetPipeline sets the chunking and extraction pipeline
func (r *Rolecard) SetPipeline(p *pipeline.Pipeline) {
	r.Pipeline = p
}

// UseLLMPipeline sets up size-based chunking with the LLM extractor.
// An empty apiKey falls back to the ANTHROPIC_API_KEY environment variable.
func (r *Rolecard) UseLLMPipeline(apiKey string) error {
	extractor, err := pipeline.NewLLMExtractor(apiKey, r.Config.Extraction, r.Config.Validation, r.log)
	if err != nil {
		return helper.NewError("create llm extractor", err)
	}

	chunker := pipeline.SizeChunker(r.Config.Chunking.MaxChunkChars, r.Config.Chunking.OverlapChars)
	r.Pipeline = pipeline.NewPipeline(chunker, extractor.Func(), r.Config.Extraction.MaxConcurrent, r.log)
	return nil
}

// UseNERPipeline sets up size-based chunking with the offline NER extractor.
// The resulting records carry names only.
func (r *Rolecard) UseNERPipeline() error {
	extractor, err := pipeline.NewNERExtractor(r.Config.Validation)
	if err != nil {
		return helper.NewError("create ner extractor", err)
	}

	chunker := pipeline.SizeChunker(r.Config.Chunking.MaxChunkChars, r.Config.Chunking.OverlapChars)
	r.Pipeline = pipeline.NewPipeline(chunker, extractor, r.Config.Extraction.MaxConcurrent, r.log)
	return nil
}

// UseDefaultEmbedder attaches the MiniLM embedder for persistence with
// similarity search support.
func (r *Rolecard) UseDefaultEmbedder() error {
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}
	r.Embedder = embedder
	return nil
}

// SplitNovel reads a novel file, splits it into chunks and writes one text
// file per chunk into the configured chunk directory.
func (r *Rolecard) SplitNovel(novelPath string) ([]pipeline.Chunk, error) {
	if r.Pipeline == nil {
		return nil, helper.NewError("split novel", fmt.Errorf("pipeline not set, use UseLLMPipeline() or UseNERPipeline() first"))
	}

	doc, err := model.NewDocumentFromFile(novelPath, nil)
	if err != nil {
		return nil, helper.NewError("read novel", err)
	}

	chunks, err := r.Pipeline.Split(doc.Content, doc.Title)
	if err != nil {
		return nil, helper.NewError("split novel", err)
	}

	if err := os.MkdirAll(r.Config.Output.ChunkDir, 0755); err != nil {
		return nil, helper.NewError("create chunk directory", err)
	}
	for _, chunk := range chunks {
		path := filepath.Join(r.Config.Output.ChunkDir, chunk.Name+".txt")
		if err := os.WriteFile(path, []byte(chunk.Content), 0644); err != nil {
			return nil, helper.NewError("write chunk file", err)
		}
	}

	r.log.Info("Split novel",
		slog.String("novel", doc.Title),
		slog.Int("chunks", len(chunks)))

	return chunks, nil
}

// ExtractRecords splits a novel and extracts records chunk by chunk, writing
// one response file per chunk. Chunks with an existing response file are not
// re-extracted, so an interrupted run resumes where it stopped. Chunks whose
// extraction failed leave no response file and are retried on the next run.
func (r *Rolecard) ExtractRecords(ctx context.Context, novelPath string) ([]*model.RawEntry, error) {
	if r.Pipeline == nil {
		return nil, helper.NewError("extract records", fmt.Errorf("pipeline not set, use UseLLMPipeline() or UseNERPipeline() first"))
	}

	doc, err := model.NewDocumentFromFile(novelPath, nil)
	if err != nil {
		return nil, helper.NewError("read novel", err)
	}

	chunks, err := r.Pipeline.Split(doc.Content, doc.Title)
	if err != nil {
		return nil, helper.NewError("split novel", err)
	}

	responsesDir := r.Config.Output.ResponsesDir
	if err := os.MkdirAll(responsesDir, 0755); err != nil {
		return nil, helper.NewError("create responses directory", err)
	}

	var pending []pipeline.Chunk
	var all []*model.RawEntry
	resumed := 0
	for _, chunk := range chunks {
		path := filepath.Join(responsesDir, chunk.Name+".json")
		if _, err := os.Stat(path); err == nil {
			entries, _, err := r.Loader.LoadFile(path)
			if err != nil {
				r.log.Warn("Re-extracting chunk with unreadable response file",
					slog.String("chunk", chunk.Name),
					slog.String("error", err.Error()))
				pending = append(pending, chunk)
				continue
			}
			resumed++
			all = append(all, entries...)
			continue
		}
		pending = append(pending, chunk)
	}

	if resumed > 0 {
		r.log.Info("Resuming extraction",
			slog.Int("resumedChunks", resumed),
			slog.Int("pendingChunks", len(pending)))
	}

	result, err := r.Pipeline.Extract(ctx, pending)
	if err != nil {
		return nil, helper.NewError("extract records", err)
	}

	for i, chunk := range pending {
		// A failed chunk gets no response file so the next run retries it.
		if result.Failed[i] {
			continue
		}
		entries := result.PerChunk[i]
		if entries == nil {
			entries = []*model.RawEntry{}
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, helper.NewError("marshal response", err)
		}
		path := filepath.Join(responsesDir, chunk.Name+".json")
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, helper.NewError("write response file", err)
		}
	}

	all = append(all, result.Records...)

	r.log.Info("Extraction finished",
		slog.String("novel", doc.Title),
		slog.Int("chunks", len(chunks)),
		slog.Int("records", len(all)),
		slog.Int("failedChunks", result.FailedChunks))

	return all, nil
}

// LoadRecords loads every response file from the responses directory.
func (r *Rolecard) LoadRecords() ([]*model.RawEntry, ingest.LoadStats, error) {
	return r.Loader.LoadDir(r.Config.Output.ResponsesDir)
}

// Resolve clusters raw records by similarity and merges every cluster into
// one canonical entity. Pure: no I/O, deterministic for equal input.
func (r *Rolecard) Resolve(entries []*model.RawEntry) []*model.MergedEntity {
	clusters := r.Clusterer.Cluster(entries)

	merged := make([]*model.MergedEntity, 0, len(clusters))
	for _, indexes := range clusters {
		cluster := make([]*model.RawEntry, 0, len(indexes))
		for _, i := range indexes {
			cluster = append(cluster, entries[i])
		}
		merged = append(merged, r.Merger.Merge(cluster))
	}

	r.log.Info("Resolved records",
		slog.Int("records", len(entries)),
		slog.Int("entities", len(merged)))

	return merged
}

// Export writes merged entities to the roles directory, one file each.
func (r *Rolecard) Export(entities []*model.MergedEntity) (int, error) {
	return r.Writer.WriteAll(entities)
}

// FilterRoles keeps the configured number of largest role files and moves
// the rest into the filtered-out backup directory.
func (r *Rolecard) FilterRoles() (output.FilterStats, error) {
	filter := output.NewFilter(r.Config.Output.RolesDir, r.Config.Output.FilteredDir, r.Config.Output.KeepCount, r.log)
	return filter.Apply()
}

// ResolveDir is the load-resolve-export convenience path over an existing
// responses directory.
func (r *Rolecard) ResolveDir() ([]*model.MergedEntity, error) {
	entries, _, err := r.LoadRecords()
	if err != nil {
		return nil, err
	}

	merged := r.Resolve(entries)

	if _, err := r.Export(merged); err != nil {
		return nil, err
	}

	return merged, nil
}

// PersistEntities upserts merged entities into postgres. With an embedder
// attached, each entity's description is embedded for similarity search.
func (r *Rolecard) PersistEntities(entities []*model.MergedEntity) error {
	if r.Entities == nil {
		return helper.NewError("persist entities", fmt.Errorf("no database attached, use NewRolecardWithDatabase()"))
	}

	for _, entity := range entities {
		if r.Embedder != nil && len(entity.Embedding) == 0 && entity.Description != "" {
			embedding, err := r.Embedder(entity.Description)
			if err != nil {
				r.log.Warn("Failed to embed entity description",
					slog.String("name", entity.Name),
					slog.String("error", err.Error()))
			} else {
				entity.Embedding = embedding
			}
		}

		if err := r.Entities.UpsertEntity(entity); err != nil {
			return helper.NewError(fmt.Sprintf("upsert entity %s", entity.Name), err)
		}
	}

	r.log.Info("Persisted entities", slog.Int("entities", len(entities)))

	return nil
}

// RegisterNovel stores the source novel's metadata alongside its entities.
func (r *Rolecard) RegisterNovel(novelPath string, metadata model.Metadata) (*model.Document, error) {
	if r.Documents == nil {
		return nil, helper.NewError("register novel", fmt.Errorf("no database attached, use NewRolecardWithDatabase()"))
	}

	doc, err := model.NewDocumentFromFile(novelPath, metadata)
	if err != nil {
		return nil, helper.NewError("read novel", err)
	}
	doc.Content = ""

	if err := r.Documents.InsertDocument(doc); err != nil {
		return nil, helper.NewError("insert document", err)
	}

	r.log.Info("Registered novel",
		slog.String("document_id", doc.RID.String()),
		slog.String("title", doc.Title))

	return doc, nil
}

// ListNovels pages through registered novels, newest first. Pass the
// CreatedAt of the last returned novel to fetch the next page.
func (r *Rolecard) ListNovels(lastCreatedAt *time.Time, limit int) ([]*model.Document, error) {
	if r.Documents == nil {
		return nil, helper.NewError("list novels", fmt.Errorf("no database attached, use NewRolecardWithDatabase()"))
	}
	return r.Documents.SelectAllDocuments(lastCreatedAt, limit)
}

// SearchNovels finds registered novels whose title or source matches the term.
func (r *Rolecard) SearchNovels(searchTerm string, limit int) ([]*model.Document, error) {
	if r.Documents == nil {
		return nil, helper.NewError("search novels", fmt.Errorf("no database attached, use NewRolecardWithDatabase()"))
	}
	return r.Documents.SelectDocumentsBySearch(searchTerm, limit)
}

// RecordNovelStats stamps the resolved entity count into the novel's
// metadata so a later run can tell how far the novel got processed.
func (r *Rolecard) RecordNovelStats(doc *model.Document, entityCount int) error {
	if r.Documents == nil {
		return helper.NewError("record novel stats", fmt.Errorf("no database attached, use NewRolecardWithDatabase()"))
	}
	if doc.Metadata == nil {
		doc.Metadata = model.Metadata{}
	}
	doc.Metadata["entity_count"] = entityCount

	if err := r.Documents.UpdateDocument(doc); err != nil {
		return helper.NewError("update document", err)
	}

	r.log.Info("Recorded novel stats",
		slog.String("document_id", doc.RID.String()),
		slog.Int("entities", entityCount))

	return nil
}
