package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/siherrmann/rolecard"
	"github.com/siherrmann/rolecard/model"
)

// Records as an extraction run would have produced them: the same character
// appears under several spellings across chunks.
const chunkOne = `[
  {
    "名字": "老王",
    "特徵": "满脸皱纹的守门人",
    "性格": "沉默寡言",
    "動機": "守住城门"
  },
  {
    "名字": "季山青",
    "特徵": "白衣剑客",
    "性格": "冷静，果断",
    "動機": "寻找失踪的师妹"
  }
]`

const chunkTwo = `[
  {
    "名字": "王",
    "特徵": "守门人",
    "性格": "沉默寡言",
    "說話習慣": "惜字如金"
  },
  {
    "名字": "季山青师父",
    "特徵": "白衣剑客",
    "性格": "冷静",
    "動機": "寻找失踪的师妹"
  }
]`

func main() {
	workDir, err := os.MkdirTemp("", "rolecard-basic")
	if err != nil {
		log.Fatalf("Failed to create work directory: %v", err)
	}
	defer os.RemoveAll(workDir)

	config := model.DefaultConfig()
	config.Output.ResponsesDir = filepath.Join(workDir, "character_responses")
	config.Output.RolesDir = filepath.Join(workDir, "roles_json")

	// Write the sample response files the resolution step will pick up.
	if err := os.MkdirAll(config.Output.ResponsesDir, 0755); err != nil {
		log.Fatalf("Failed to create responses directory: %v", err)
	}
	responses := map[string]string{
		"novel_chunk_000.json": chunkOne,
		"novel_chunk_001.json": chunkTwo,
	}
	for name, content := range responses {
		path := filepath.Join(config.Output.ResponsesDir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			log.Fatalf("Failed to write response file: %v", err)
		}
	}

	r, err := rolecard.NewRolecard(config)
	if err != nil {
		log.Fatalf("Failed to create rolecard: %v", err)
	}

	// Load, resolve and export in one call
	fmt.Println("Resolving records...")
	entities, err := r.ResolveDir()
	if err != nil {
		log.Fatalf("Failed to resolve records: %v", err)
	}

	fmt.Printf("\nResolved %d entities:\n", len(entities))
	for _, entity := range entities {
		fmt.Printf("- %s (merged from %d records", entity.Name, entity.Metadata.EntryCount)
		if len(entity.Aliases) > 0 {
			fmt.Printf(", aliases: %v", entity.Aliases)
		}
		fmt.Println(")")
	}

	files, _ := filepath.Glob(filepath.Join(config.Output.RolesDir, "*.json"))
	fmt.Printf("\nExported %d role files to %s\n", len(files), config.Output.RolesDir)
}
