package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/rolecard/helper"
	"github.com/siherrmann/rolecard/model"
	"github.com/siherrmann/rolecard/sql"
)

// EntitiesDBHandlerFunctions defines the interface for Entities database operations.
type EntitiesDBHandlerFunctions interface {
	UpsertEntity(entity *model.MergedEntity) error
	DeleteEntity(id int64) error
	SelectEntity(id int64) (*model.MergedEntity, error)
	SelectEntityByName(name string) (*model.MergedEntity, error)
	SelectEntitiesBySearch(searchTerm string, limit int) ([]*model.MergedEntity, error)
	SelectEntitiesBySimilarity(embedding []float32, limit int, threshold float64) ([]*model.MergedEntity, error)
}

// EntitiesDBHandler handles merged-entity database operations
type EntitiesDBHandler struct {
	db *helper.Database
}

// NewEntitiesDBHandler creates a new entities database handler.
// It initializes the database connection and loads entity-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db: db,
	}

	err := sql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *EntitiesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities();`)
	if err != nil {
		log.Panicf("error initializing entities table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

// UpsertEntity inserts a merged entity, replacing any previous record with
// the same canonical name. A missing embedding keeps the stored one.
func (h *EntitiesDBHandler) UpsertEntity(entity *model.MergedEntity) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return helper.NewError("marshal payload", err)
	}

	var embedding interface{}
	if len(entity.Embedding) > 0 {
		embedding = pgvector.NewVector(entity.Embedding)
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_entity($1, $2, $3, $4)`,
		entity.Name,
		payload,
		pq.Array(entity.Aliases),
		embedding,
	)

	return scanEntity(row, entity)
}

// DeleteEntity deletes an entity by ID
func (h *EntitiesDBHandler) DeleteEntity(id int64) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_entity($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectEntity retrieves an entity by ID
func (h *EntitiesDBHandler) SelectEntity(id int64) (*model.MergedEntity, error) {
	entity := &model.MergedEntity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity($1)`,
		id,
	)

	if err := scanEntity(row, entity); err != nil {
		return nil, err
	}

	return entity, nil
}

// SelectEntityByName retrieves an entity by its canonical name
func (h *EntitiesDBHandler) SelectEntityByName(name string) (*model.MergedEntity, error) {
	entity := &model.MergedEntity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity_by_name($1)`,
		name,
	)

	if err := scanEntity(row, entity); err != nil {
		return nil, err
	}

	return entity, nil
}

// SelectEntitiesBySearch searches entities by name or alias pattern
func (h *EntitiesDBHandler) SelectEntitiesBySearch(searchTerm string, limit int) ([]*model.MergedEntity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM search_entities($1, $2)`,
		searchTerm,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.MergedEntity
	for rows.Next() {
		entity := &model.MergedEntity{}
		if err := scanEntity(rows, entity); err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

// SelectEntitiesBySimilarity performs vector similarity search over the
// stored description embeddings
func (h *EntitiesDBHandler) SelectEntitiesBySimilarity(embedding []float32, limit int, threshold float64) ([]*model.MergedEntity, error) {
	embeddingVector := pgvector.NewVector(embedding)

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_entities_by_similarity($1, $2, $3)`,
		embeddingVector,
		limit,
		threshold,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.MergedEntity
	for rows.Next() {
		entity := &model.MergedEntity{}
		var payload []byte
		err := rows.Scan(
			&entity.ID,
			&entity.RID,
			&entity.Name,
			&payload,
			pq.Array(&entity.Aliases),
			pq.Array(&entity.Embedding),
			&entity.CreatedAt,
			&entity.Similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		if err := restorePayload(entity, payload); err != nil {
			return nil, err
		}

		results = append(results, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntity reads the common entity column set and restores the merged
// record from its payload. ID/RID/embedding columns win over payload fields.
func scanEntity(row rowScanner, entity *model.MergedEntity) error {
	var payload []byte
	err := row.Scan(
		&entity.ID,
		&entity.RID,
		&entity.Name,
		&payload,
		pq.Array(&entity.Aliases),
		pq.Array(&entity.Embedding),
		&entity.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}
	return restorePayload(entity, payload)
}

func restorePayload(entity *model.MergedEntity, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	restored := model.MergedEntity{}
	if err := json.Unmarshal(payload, &restored); err != nil {
		return helper.NewError("unmarshal payload", err)
	}
	restored.ID = entity.ID
	restored.RID = entity.RID
	restored.Embedding = entity.Embedding
	restored.CreatedAt = entity.CreatedAt
	restored.Similarity = entity.Similarity
	if restored.Aliases == nil {
		restored.Aliases = entity.Aliases
	}
	*entity = restored
	return nil
}
