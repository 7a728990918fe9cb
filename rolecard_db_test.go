package rolecard

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/siherrmann/rolecard/helper"
	"github.com/siherrmann/rolecard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
)

var dbPort string

func TestMain(m *testing.M) {
	var teardown func(ctx context.Context, opts ...testcontainers.TerminateOption) error
	var err error
	teardown, dbPort, err = helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("error starting postgres container: %v", err)
	}

	m.Run()

	if teardown != nil && teardown(context.Background()) != nil {
		log.Fatalf("error tearing down postgres container: %v", err)
	}
}

func initRolecardDB(t *testing.T) *Rolecard {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")

	r, err := NewRolecardWithDatabase(testConfig(t), dbConfig)
	require.NoError(t, err, "failed to create rolecard with database")
	require.NotNil(t, r, "expected rolecard to be non-nil")

	t.Cleanup(func() {
		assert.NoError(t, r.Close())
	})

	return r
}

// writeNovel writes a small novel file whose filename becomes the title.
func writeNovel(t *testing.T, title string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), title+".txt")
	require.NoError(t, os.WriteFile(path, []byte(threeParagraphNovel), 0644))
	return path
}

func TestNewRolecardWithDatabase(t *testing.T) {
	t.Run("Valid call NewRolecardWithDatabase", func(t *testing.T) {
		r := initRolecardDB(t)

		assert.NotNil(t, r.DB, "Expected rolecard to have a database instance")
		assert.NotNil(t, r.Documents, "Expected rolecard to have a documents handler")
		assert.NotNil(t, r.Entities, "Expected rolecard to have an entities handler")
	})
}

func TestRegisterAndListNovels(t *testing.T) {
	r := initRolecardDB(t)

	t.Run("Registered novels are listed newest first", func(t *testing.T) {
		first, err := r.RegisterNovel(writeNovel(t, "列表小说甲"), nil)
		require.NoError(t, err)
		second, err := r.RegisterNovel(writeNovel(t, "列表小说乙"), nil)
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, r.Documents.DeleteDocument(first.RID))
			assert.NoError(t, r.Documents.DeleteDocument(second.RID))
		}()

		novels, err := r.ListNovels(nil, 100)
		require.NoError(t, err)

		firstIdx, secondIdx := -1, -1
		for i, novel := range novels {
			switch novel.RID {
			case first.RID:
				firstIdx = i
			case second.RID:
				secondIdx = i
			}
		}
		require.NotEqual(t, -1, firstIdx, "Expected the first novel in the listing")
		require.NotEqual(t, -1, secondIdx, "Expected the second novel in the listing")
		assert.Less(t, secondIdx, firstIdx, "Expected the newer novel to be listed first")
	})

	t.Run("Pagination excludes novels after the cursor", func(t *testing.T) {
		first, err := r.RegisterNovel(writeNovel(t, "分页小说甲"), nil)
		require.NoError(t, err)
		second, err := r.RegisterNovel(writeNovel(t, "分页小说乙"), nil)
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, r.Documents.DeleteDocument(first.RID))
			assert.NoError(t, r.Documents.DeleteDocument(second.RID))
		}()

		page, err := r.ListNovels(&second.CreatedAt, 100)
		require.NoError(t, err)

		rids := make([]string, 0, len(page))
		for _, novel := range page {
			rids = append(rids, novel.RID.String())
		}
		assert.Contains(t, rids, first.RID.String(), "Expected older novels on the next page")
		assert.NotContains(t, rids, second.RID.String(), "Expected the cursor novel to be excluded")
	})

	t.Run("Fails without a database", func(t *testing.T) {
		plain, err := NewRolecard(testConfig(t))
		require.NoError(t, err)

		_, err = plain.ListNovels(nil, 10)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no database attached")
	})
}

func TestSearchNovels(t *testing.T) {
	r := initRolecardDB(t)

	t.Run("Finds novels by title substring", func(t *testing.T) {
		doc, err := r.RegisterNovel(writeNovel(t, "搜索专用小说"), nil)
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, r.Documents.DeleteDocument(doc.RID))
		}()

		found, err := r.SearchNovels("搜索专用", 10)
		require.NoError(t, err)
		require.Len(t, found, 1, "Expected exactly the matching novel")
		assert.Equal(t, doc.RID, found[0].RID)
	})

	t.Run("No match yields an empty result", func(t *testing.T) {
		found, err := r.SearchNovels("不存在的标题", 10)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("Fails without a database", func(t *testing.T) {
		plain, err := NewRolecard(testConfig(t))
		require.NoError(t, err)

		_, err = plain.SearchNovels("任意", 10)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no database attached")
	})
}

func TestRecordNovelStats(t *testing.T) {
	r := initRolecardDB(t)

	t.Run("Stamps the entity count into the novel metadata", func(t *testing.T) {
		doc, err := r.RegisterNovel(writeNovel(t, "统计小说"), model.Metadata{"chapters": float64(3)})
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, r.Documents.DeleteDocument(doc.RID))
		}()

		err = r.RecordNovelStats(doc, 7)
		require.NoError(t, err)

		stored, err := r.Documents.SelectDocument(doc.RID)
		require.NoError(t, err)
		assert.Equal(t, float64(7), stored.Metadata["entity_count"], "Expected the entity count in the stored metadata")
		assert.Equal(t, float64(3), stored.Metadata["chapters"], "Expected existing metadata to survive the update")
		assert.True(t, !stored.UpdatedAt.Before(stored.CreatedAt), "Expected UpdatedAt to move forward")
	})

	t.Run("Initializes missing metadata", func(t *testing.T) {
		doc, err := r.RegisterNovel(writeNovel(t, "无元数据小说"), nil)
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, r.Documents.DeleteDocument(doc.RID))
		}()

		err = r.RecordNovelStats(doc, 0)
		require.NoError(t, err)

		stored, err := r.Documents.SelectDocument(doc.RID)
		require.NoError(t, err)
		assert.Equal(t, float64(0), stored.Metadata["entity_count"])
	})

	t.Run("Fails without a database", func(t *testing.T) {
		plain, err := NewRolecard(testConfig(t))
		require.NoError(t, err)

		err = plain.RecordNovelStats(&model.Document{}, 1)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no database attached")
	})
}
