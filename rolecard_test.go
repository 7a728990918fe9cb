package rolecard

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siherrmann/rolecard/core/pipeline"
	"github.com/siherrmann/rolecard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeParagraphNovel splits into three chunks at an 8 rune chunk size.
const threeParagraphNovel = "王王王王王\n\n王王王王王\n\n王王王王王"

// testConfig points every output directory into a fresh temp dir.
func testConfig(t *testing.T) model.Config {
	t.Helper()
	dir := t.TempDir()
	config := model.DefaultConfig()
	config.Output.ChunkDir = filepath.Join(dir, "chunks")
	config.Output.ResponsesDir = filepath.Join(dir, "responses")
	config.Output.RolesDir = filepath.Join(dir, "roles")
	return config
}

func writeResponseFile(t *testing.T, dir, name string, entries []*model.RawEntry) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
}

func TestNewRolecard(t *testing.T) {
	t.Run("Valid call NewRolecard", func(t *testing.T) {
		r, err := NewRolecard(testConfig(t))
		require.NoError(t, err, "Expected NewRolecard to not return an error")
		require.NotNil(t, r, "Expected NewRolecard to return a non-nil instance")
		assert.NotNil(t, r.Normalizer, "Expected rolecard to have a normalizer")
		assert.NotNil(t, r.Scorer, "Expected rolecard to have a scorer")
		assert.NotNil(t, r.Clusterer, "Expected rolecard to have a clusterer")
		assert.NotNil(t, r.Merger, "Expected rolecard to have a merger")
		assert.NotNil(t, r.Loader, "Expected rolecard to have a loader")
		assert.NotNil(t, r.Writer, "Expected rolecard to have a writer")
		assert.Nil(t, r.Pipeline, "Expected pipeline to be nil initially")
		assert.Nil(t, r.DB, "Expected no database without NewRolecardWithDatabase")
	})

	t.Run("Rolecard without database handles Close gracefully", func(t *testing.T) {
		r, err := NewRolecard(testConfig(t))
		require.NoError(t, err)

		err = r.Close()
		assert.NoError(t, err, "Expected Close to handle nil DB gracefully")
	})
}

func TestResolve(t *testing.T) {
	r, err := NewRolecard(testConfig(t))
	require.NoError(t, err)

	t.Run("Merges honorific variants into one entity without aliases", func(t *testing.T) {
		entries := []*model.RawEntry{
			{Name: "老王", Features: "隔壁的邻居", SourceFile: "chunk_001.json"},
			{Name: "王", Personality: "沉默", SourceFile: "chunk_002.json"},
		}

		merged := r.Resolve(entries)

		require.Len(t, merged, 1, "Expected both variants to land in one entity")
		assert.Equal(t, "王", merged[0].Name, "Expected the shortest name as canonical")
		assert.Empty(t, merged[0].Aliases, "Expected no aliases for honorific-only variants")
		assert.Equal(t, 2, merged[0].Metadata.EntryCount)
	})

	t.Run("Keeps dissimilar records separate", func(t *testing.T) {
		entries := []*model.RawEntry{
			{Name: "季山青", SourceFile: "chunk_001.json"},
			{Name: "欧阳雪", SourceFile: "chunk_001.json"},
		}

		merged := r.Resolve(entries)

		require.Len(t, merged, 2)
	})

	t.Run("Prefers a real name over a descriptive reference", func(t *testing.T) {
		entries := []*model.RawEntry{
			{Name: "季山青的师父", SourceFile: "chunk_001.json"},
			{Name: "季山青", SourceFile: "chunk_002.json"},
		}

		merged := r.Resolve(entries)

		require.Len(t, merged, 1)
		assert.Equal(t, "季山青", merged[0].Name)
		assert.Contains(t, merged[0].Aliases, "季山青的师父")
	})

	t.Run("Empty input yields no entities", func(t *testing.T) {
		merged := r.Resolve(nil)
		assert.Empty(t, merged)
	})

	t.Run("Deterministic across repeated runs", func(t *testing.T) {
		entries := []*model.RawEntry{
			{Name: "老王", SourceFile: "b.json"},
			{Name: "王", SourceFile: "a.json"},
			{Name: "季山青", SourceFile: "a.json"},
		}

		first, err := json.Marshal(r.Resolve(entries))
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := json.Marshal(r.Resolve(entries))
			require.NoError(t, err)
			assert.Equal(t, string(first), string(again), "Expected identical output on run %d", i)
		}
	})
}

func TestResolveDir(t *testing.T) {
	t.Run("Loads, resolves and exports a responses directory", func(t *testing.T) {
		config := testConfig(t)
		writeResponseFile(t, config.Output.ResponsesDir, "chunk_001.json", []*model.RawEntry{
			{Name: "老王", Features: "隔壁的邻居"},
		})
		writeResponseFile(t, config.Output.ResponsesDir, "chunk_002.json", []*model.RawEntry{
			{Name: "王", Personality: "沉默"},
			{Name: "季山青", Features: "一位剑客"},
		})

		r, err := NewRolecard(config)
		require.NoError(t, err)

		merged, err := r.ResolveDir()

		require.NoError(t, err)
		require.Len(t, merged, 2, "Expected 老王/王 merged and 季山青 separate")

		names := []string{merged[0].Name, merged[1].Name}
		assert.Contains(t, names, "王")
		assert.Contains(t, names, "季山青")

		assert.FileExists(t, filepath.Join(config.Output.RolesDir, "王.json"))
		assert.FileExists(t, filepath.Join(config.Output.RolesDir, "季山青.json"))
	})

	t.Run("Empty responses directory exports nothing", func(t *testing.T) {
		config := testConfig(t)
		require.NoError(t, os.MkdirAll(config.Output.ResponsesDir, 0755))

		r, err := NewRolecard(config)
		require.NoError(t, err)

		merged, err := r.ResolveDir()

		require.NoError(t, err)
		assert.Empty(t, merged)
	})
}

func TestSplitNovel(t *testing.T) {
	t.Run("Writes one chunk file per chunk", func(t *testing.T) {
		config := testConfig(t)
		config.Chunking.MaxChunkChars = 8
		config.Chunking.OverlapChars = 0

		novelPath := filepath.Join(t.TempDir(), "novel.txt")
		require.NoError(t, os.WriteFile(novelPath, []byte(threeParagraphNovel), 0644))

		r, err := NewRolecard(config)
		require.NoError(t, err)
		r.SetPipeline(pipeline.NewPipeline(
			pipeline.SizeChunker(config.Chunking.MaxChunkChars, config.Chunking.OverlapChars),
			func(ctx context.Context, chunk pipeline.Chunk) ([]*model.RawEntry, error) {
				return nil, nil
			},
			1, r.log))

		chunks, err := r.SplitNovel(novelPath)

		require.NoError(t, err)
		require.Len(t, chunks, 3)
		for _, chunk := range chunks {
			assert.FileExists(t, filepath.Join(config.Output.ChunkDir, chunk.Name+".txt"))
		}
	})

	t.Run("Fails without a pipeline", func(t *testing.T) {
		r, err := NewRolecard(testConfig(t))
		require.NoError(t, err)

		_, err = r.SplitNovel("novel.txt")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline not set")
	})
}

func TestExtractRecords(t *testing.T) {
	// stubExtractor emits one record named after the chunk and counts calls.
	stubExtractor := func(calls *[]string) pipeline.ExtractFunc {
		return func(ctx context.Context, chunk pipeline.Chunk) ([]*model.RawEntry, error) {
			*calls = append(*calls, chunk.Name)
			return []*model.RawEntry{
				{Name: fmt.Sprintf("角色%d", chunk.Index), SourceFile: chunk.Name + ".json"},
			}, nil
		}
	}

	setup := func(t *testing.T, config model.Config, calls *[]string) (*Rolecard, string) {
		t.Helper()
		novelPath := filepath.Join(t.TempDir(), "novel.txt")
		require.NoError(t, os.WriteFile(novelPath, []byte(threeParagraphNovel), 0644))

		r, err := NewRolecard(config)
		require.NoError(t, err)
		r.SetPipeline(pipeline.NewPipeline(
			pipeline.SizeChunker(config.Chunking.MaxChunkChars, config.Chunking.OverlapChars),
			stubExtractor(calls),
			1, r.log))
		return r, novelPath
	}

	t.Run("Extracts every chunk and writes response files", func(t *testing.T) {
		config := testConfig(t)
		config.Chunking.MaxChunkChars = 8
		config.Chunking.OverlapChars = 0

		var calls []string
		r, novelPath := setup(t, config, &calls)

		records, err := r.ExtractRecords(context.Background(), novelPath)

		require.NoError(t, err)
		assert.Len(t, records, 3, "Expected one record per chunk")
		assert.Len(t, calls, 3, "Expected the extractor to run for every chunk")

		files, err := filepath.Glob(filepath.Join(config.Output.ResponsesDir, "*.json"))
		require.NoError(t, err)
		assert.Len(t, files, 3, "Expected one response file per chunk")
	})

	t.Run("Resumes from existing response files", func(t *testing.T) {
		config := testConfig(t)
		config.Chunking.MaxChunkChars = 8
		config.Chunking.OverlapChars = 0

		var calls []string
		r, novelPath := setup(t, config, &calls)

		// First run extracts everything.
		_, err := r.ExtractRecords(context.Background(), novelPath)
		require.NoError(t, err)
		require.Len(t, calls, 3)

		// Second run finds all response files and extracts nothing.
		calls = nil
		records, err := r.ExtractRecords(context.Background(), novelPath)
		require.NoError(t, err)
		assert.Empty(t, calls, "Expected no re-extraction with complete response files")
		assert.Len(t, records, 3, "Expected resumed records from the response files")
	})

	t.Run("Re-extracts only chunks with missing or unreadable responses", func(t *testing.T) {
		config := testConfig(t)
		config.Chunking.MaxChunkChars = 8
		config.Chunking.OverlapChars = 0

		var calls []string
		r, novelPath := setup(t, config, &calls)

		_, err := r.ExtractRecords(context.Background(), novelPath)
		require.NoError(t, err)

		files, err := filepath.Glob(filepath.Join(config.Output.ResponsesDir, "*.json"))
		require.NoError(t, err)
		require.Len(t, files, 3)
		require.NoError(t, os.Remove(files[0]))
		require.NoError(t, os.WriteFile(files[1], []byte("not json"), 0644))

		calls = nil
		records, err := r.ExtractRecords(context.Background(), novelPath)
		require.NoError(t, err)
		assert.Len(t, calls, 2, "Expected re-extraction of the missing and the unreadable chunk")
		assert.Len(t, records, 3)
	})

	t.Run("Retries failed chunks on the next run", func(t *testing.T) {
		config := testConfig(t)
		config.Chunking.MaxChunkChars = 8
		config.Chunking.OverlapChars = 0

		novelPath := filepath.Join(t.TempDir(), "novel.txt")
		require.NoError(t, os.WriteFile(novelPath, []byte(threeParagraphNovel), 0644))

		attempts := map[int]int{}
		r, err := NewRolecard(config)
		require.NoError(t, err)
		r.SetPipeline(pipeline.NewPipeline(
			pipeline.SizeChunker(config.Chunking.MaxChunkChars, config.Chunking.OverlapChars),
			func(ctx context.Context, chunk pipeline.Chunk) ([]*model.RawEntry, error) {
				attempts[chunk.Index]++
				if chunk.Index == 1 && attempts[chunk.Index] == 1 {
					return nil, fmt.Errorf("model overloaded")
				}
				return []*model.RawEntry{
					{Name: fmt.Sprintf("角色%d", chunk.Index), SourceFile: chunk.Name + ".json"},
				}, nil
			},
			1, r.log))

		records, err := r.ExtractRecords(context.Background(), novelPath)
		require.NoError(t, err)
		assert.Len(t, records, 2, "Expected records only from the successful chunks")

		files, err := filepath.Glob(filepath.Join(config.Output.ResponsesDir, "*.json"))
		require.NoError(t, err)
		assert.Len(t, files, 2, "Expected no response file for the failed chunk")

		records, err = r.ExtractRecords(context.Background(), novelPath)
		require.NoError(t, err)
		assert.Len(t, records, 3, "Expected the retry to complete the batch")
		assert.Equal(t, 2, attempts[1], "Expected the failed chunk to be extracted again")
		assert.Equal(t, 1, attempts[0], "Expected successful chunks to resume from their response files")
		assert.Equal(t, 1, attempts[2], "Expected successful chunks to resume from their response files")
	})

	t.Run("Writes an empty array for chunks without records", func(t *testing.T) {
		config := testConfig(t)
		config.Chunking.MaxChunkChars = 100
		config.Chunking.OverlapChars = 0

		novelPath := filepath.Join(t.TempDir(), "novel.txt")
		require.NoError(t, os.WriteFile(novelPath, []byte("一段没有角色的文本"), 0644))

		r, err := NewRolecard(config)
		require.NoError(t, err)
		r.SetPipeline(pipeline.NewPipeline(
			pipeline.SizeChunker(config.Chunking.MaxChunkChars, config.Chunking.OverlapChars),
			func(ctx context.Context, chunk pipeline.Chunk) ([]*model.RawEntry, error) {
				return nil, nil
			},
			1, r.log))

		records, err := r.ExtractRecords(context.Background(), novelPath)
		require.NoError(t, err)
		assert.Empty(t, records)

		files, err := filepath.Glob(filepath.Join(config.Output.ResponsesDir, "*.json"))
		require.NoError(t, err)
		require.Len(t, files, 1)
		data, err := os.ReadFile(files[0])
		require.NoError(t, err)
		assert.JSONEq(t, "[]", string(data), "Expected an explicit empty array as resume marker")
	})

	t.Run("Fails without a pipeline", func(t *testing.T) {
		r, err := NewRolecard(testConfig(t))
		require.NoError(t, err)

		_, err = r.ExtractRecords(context.Background(), "novel.txt")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline not set")
	})
}

func TestFilterRoles(t *testing.T) {
	t.Run("Keeps the configured number of largest role files", func(t *testing.T) {
		config := testConfig(t)
		config.Output.KeepCount = 1

		r, err := NewRolecard(config)
		require.NoError(t, err)

		entities := []*model.MergedEntity{
			{Name: "季山青", Description: strings.Repeat("一位剑客。", 50)},
			{Name: "路人", Description: "路过"},
		}
		written, err := r.Export(entities)
		require.NoError(t, err)
		require.Equal(t, 2, written)

		stats, err := r.FilterRoles()

		require.NoError(t, err)
		assert.Equal(t, 2, stats.Total)
		assert.Equal(t, 1, stats.Kept)
		assert.Equal(t, 1, stats.Removed)
		assert.FileExists(t, filepath.Join(config.Output.RolesDir, "季山青.json"))
		assert.FileExists(t, filepath.Join(config.Output.RolesDir, config.Output.FilteredDir, "路人.json"))
	})
}
