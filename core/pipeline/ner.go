package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/rolecard/helper"
	"github.com/siherrmann/rolecard/model"
)

// NewNERExtractor creates an offline extractor using a NER model.
// Uses distilbert-NER for named entity recognition; only PER entities
// become records, so the result carries names without descriptions.
func NewNERExtractor(validation model.ValidationConfig) (ExtractFunc, error) {
	// Prepare model (download if needed)
	modelName := "KnightsAnalytics/distilbert-NER"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	// Initialize hugot session with Go backend
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	// Create token classification pipeline for NER
	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}), // Ignore non-entity tokens
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return func(ctx context.Context, chunk Chunk) ([]*model.RawEntry, error) {
		result, err := nerPipeline.RunPipeline([]string{chunk.Content})
		if err != nil {
			return nil, fmt.Errorf("failed to run NER: %w", err)
		}

		if len(result.Entities) == 0 {
			return nil, nil
		}

		seen := map[string]bool{}
		var entries []*model.RawEntry
		for _, entity := range result.Entities[0] {
			if normalizeEntityLabel(entity.Entity) != "PER" {
				continue
			}
			name := strings.TrimSpace(entity.Word)
			if seen[name] || !validation.ValidName(name) {
				continue
			}
			seen[name] = true

			entries = append(entries, &model.RawEntry{
				Name:       name,
				SourceFile: chunk.Name + ".json",
				Extra: model.Metadata{
					"confidence": entity.Score,
					"start":      entity.Start,
					"end":        entity.End,
				},
			})
		}

		return entries, nil
	}, nil
}

// normalizeEntityLabel removes B- and I- prefixes from NER labels
func normalizeEntityLabel(label string) string {
	// Remove BIO tagging prefixes (B- for beginning, I- for inside)
	if strings.HasPrefix(label, "B-") {
		return label[2:]
	}
	if strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}
