package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/siherrmann/rolecard"
	"github.com/siherrmann/rolecard/model"
)

// Runs the full extraction and resolution workflow over a novel file.
// Needs ANTHROPIC_API_KEY (from the environment or a .env file) and the
// novel path as first argument.
func main() {
	// Load .env if present, the environment wins otherwise
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		log.Fatal("usage: extract <novel.txt>")
	}
	novelPath := os.Args[1]

	config := model.DefaultConfig()

	r, err := rolecard.NewRolecard(config)
	if err != nil {
		log.Fatalf("Failed to create rolecard: %v", err)
	}

	if err := r.UseLLMPipeline(""); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	// Extraction resumes: existing response files are not re-extracted.
	fmt.Println("Extracting records...")
	records, err := r.ExtractRecords(context.Background(), novelPath)
	if err != nil {
		log.Fatalf("Failed to extract records: %v", err)
	}
	fmt.Printf("Extracted %d raw records\n", len(records))

	entities := r.Resolve(records)
	fmt.Printf("Resolved into %d entities\n", len(entities))

	written, err := r.Export(entities)
	if err != nil {
		log.Fatalf("Failed to export entities: %v", err)
	}
	fmt.Printf("Exported %d role files to %s\n", written, config.Output.RolesDir)

	// Keep only the most substantial roles
	stats, err := r.FilterRoles()
	if err != nil {
		log.Fatalf("Failed to filter roles: %v", err)
	}
	fmt.Printf("Kept %d of %d role files (%d moved to backup)\n", stats.Kept, stats.Total, stats.Removed)
}
