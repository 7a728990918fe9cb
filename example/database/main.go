package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/siherrmann/rolecard"
	"github.com/siherrmann/rolecard/helper"
	"github.com/siherrmann/rolecard/model"
)

const sampleResponses = `[
  {
    "名字": "季山青",
    "特徵": "白衣剑客",
    "性格": "冷静，果断",
    "動機": "寻找失踪的师妹"
  },
  {
    "名字": "老王",
    "特徵": "守门人",
    "性格": "沉默寡言"
  }
]`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Name:     "rolecard",
		Username: "postgres",
		Password: "postgres",
		Schema:   "public",
	}

	workDir, err := os.MkdirTemp("", "rolecard-database")
	if err != nil {
		log.Fatalf("Failed to create work directory: %v", err)
	}
	defer os.RemoveAll(workDir)

	config := model.DefaultConfig()
	config.Output.ResponsesDir = filepath.Join(workDir, "character_responses")
	config.Output.RolesDir = filepath.Join(workDir, "roles_json")

	if err := os.MkdirAll(config.Output.ResponsesDir, 0755); err != nil {
		log.Fatalf("Failed to create responses directory: %v", err)
	}
	responsePath := filepath.Join(config.Output.ResponsesDir, "novel_chunk_000.json")
	if err := os.WriteFile(responsePath, []byte(sampleResponses), 0644); err != nil {
		log.Fatalf("Failed to write response file: %v", err)
	}

	r, err := rolecard.NewRolecardWithDatabase(config, dbConfig)
	if err != nil {
		log.Fatalf("Failed to create rolecard: %v", err)
	}
	defer r.Close()

	fmt.Println("Resolving records...")
	entities, err := r.ResolveDir()
	if err != nil {
		log.Fatalf("Failed to resolve records: %v", err)
	}
	fmt.Printf("Resolved %d entities\n", len(entities))

	// Persist to postgres and read one back
	if err := r.PersistEntities(entities); err != nil {
		log.Fatalf("Failed to persist entities: %v", err)
	}

	stored, err := r.Entities.SelectEntityByName(entities[0].Name)
	if err != nil {
		log.Fatalf("Failed to read entity back: %v", err)
	}
	fmt.Printf("Stored entity %s with ID %d (rid %s)\n", stored.Name, stored.ID, stored.RID)

	results, err := r.Entities.SelectEntitiesBySearch("山青", 10)
	if err != nil {
		log.Fatalf("Failed to search entities: %v", err)
	}
	fmt.Printf("Search for 山青 matched %d entities\n", len(results))
}
