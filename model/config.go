package model

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds every tunable of the extraction and resolution workflow.
// The resolution engine treats it as read-only.
type Config struct {
	Similarity    SimilarityConfig    `mapstructure:"similarity"`
	Normalization NormalizationConfig `mapstructure:"normalization"`
	Merge         MergeConfig         `mapstructure:"merge"`
	Validation    ValidationConfig    `mapstructure:"validation"`
	Chunking      ChunkingConfig      `mapstructure:"chunking"`
	Extraction    ExtractionConfig    `mapstructure:"extraction"`
	Output        OutputConfig        `mapstructure:"output"`
}

// SimilarityConfig controls the pairwise scoring of raw records.
type SimilarityConfig struct {
	// NameThreshold is both the decisive-name shortcut and the clustering threshold.
	NameThreshold float64 `mapstructure:"name_threshold"`
	// NameWeight and ContentWeight blend name and feature evidence when the
	// name signal alone is not decisive.
	NameWeight    float64 `mapstructure:"name_weight"`
	ContentWeight float64 `mapstructure:"content_weight"`
	// ContainmentBoost is the floor applied when one normalized name is a
	// non-empty substring of the other.
	ContainmentBoost float64 `mapstructure:"containment_boost"`
	// Workers caps concurrent pair scoring; 0 or 1 keeps scoring sequential.
	Workers int `mapstructure:"workers"`
}

// NormalizationConfig feeds the name normalizer.
type NormalizationConfig struct {
	HonorificPrefixes []string `mapstructure:"honorific_prefixes"`
	HonorificSuffixes []string `mapstructure:"honorific_suffixes"`
	// NameAliases maps already-folded spellings onto their canonical form.
	NameAliases map[string]string `mapstructure:"name_aliases"`
	// TrueNameMarkers introduce a parenthetical that overrides the outer name,
	// e.g. 本名 in "演员（本名：王大锤）".
	TrueNameMarkers []string `mapstructure:"true_name_markers"`
}

// MergeConfig controls canonical-name selection and card-level fields.
type MergeConfig struct {
	// RelationshipPatterns mark a contributed name as descriptive
	// ("林三酒的师父") so it loses to any clean proper name.
	RelationshipPatterns []string `mapstructure:"relationship_patterns"`
	PlaceholderName      string   `mapstructure:"placeholder_name"`
	UnknownMotivation    string   `mapstructure:"unknown_motivation"`
	Creator              string   `mapstructure:"creator"`
	CharacterVersion     string   `mapstructure:"character_version"`
	MaxTags              int      `mapstructure:"max_tags"`
}

// ValidationConfig filters unusable records at the ingestion boundary.
type ValidationConfig struct {
	MinNameLength int      `mapstructure:"min_name_length"`
	NameStoplist  []string `mapstructure:"name_stoplist"`
}

// ChunkingConfig controls novel splitting.
type ChunkingConfig struct {
	MaxChunkChars   int      `mapstructure:"max_chunk_chars"`
	OverlapChars    int      `mapstructure:"overlap_chars"`
	ChapterPatterns []string `mapstructure:"chapter_patterns"`
}

// ExtractionConfig controls the per-chunk LLM extraction stage.
type ExtractionConfig struct {
	Model         string `mapstructure:"model"`
	MaxTokens     int    `mapstructure:"max_tokens"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	RetryLimit    int    `mapstructure:"retry_limit"`
	// RetryDelaySeconds is the initial backoff; it doubles per attempt.
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds"`
	// Prompt overrides the built-in extraction prompt when non-empty.
	Prompt string `mapstructure:"prompt"`
}

// OutputConfig holds the on-disk layout of the workflow.
type OutputConfig struct {
	ChunkDir     string `mapstructure:"chunk_dir"`
	ResponsesDir string `mapstructure:"responses_dir"`
	RolesDir     string `mapstructure:"roles_dir"`
	FilteredDir  string `mapstructure:"filtered_dir"`
	KeepCount    int    `mapstructure:"keep_count"`
}

// DefaultConfig returns the configuration the original pipeline shipped with.
func DefaultConfig() Config {
	return Config{
		Similarity: SimilarityConfig{
			NameThreshold:    0.85,
			NameWeight:       0.8,
			ContentWeight:    0.2,
			ContainmentBoost: 0.9,
			Workers:          0,
		},
		Normalization: NormalizationConfig{
			HonorificPrefixes: []string{"老", "小", "阿"},
			HonorificSuffixes: []string{"队长", "先生", "小姐", "法师", "大人", "陛下"},
			NameAliases:       map[string]string{},
			TrueNameMarkers:   []string{"本名", "真名", "原名"},
		},
		Merge: MergeConfig{
			RelationshipPatterns: []string{
				"的父亲", "的母亲", "的儿子", "的女儿", "的妻子", "的丈夫",
				"的师父", "的师兄", "的师弟", "的师姐", "的师妹", "的徒弟",
				"的朋友", "的同伴", "的手下", "的属下", "的部下",
				"（假）", "（真）", "（幻觉）", "（现实）",
			},
			PlaceholderName:   "未知角色",
			UnknownMotivation: "未知",
			Creator:           "rolecard",
			CharacterVersion:  "2.0",
			MaxTags:           5,
		},
		Validation: ValidationConfig{
			MinNameLength: 2,
			NameStoplist:  []string{},
		},
		Chunking: ChunkingConfig{
			MaxChunkChars: 30000,
			OverlapChars:  200,
			ChapterPatterns: []string{
				`第[一二三四五六七八九十百千万\d]+章`,
				`第[一二三四五六七八九十百千万\d]+节`,
				`第[一二三四五六七八九十百千万\d]+回`,
			},
		},
		Extraction: ExtractionConfig{
			Model:             "claude-3-5-haiku-20241022",
			MaxTokens:         8192,
			MaxConcurrent:     1,
			RetryLimit:        5,
			RetryDelaySeconds: 10,
		},
		Output: OutputConfig{
			ChunkDir:     "chunks",
			ResponsesDir: "character_responses",
			RolesDir:     "roles_json",
			FilteredDir:  "filtered_out",
			KeepCount:    50,
		},
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing file is
// not an error; the defaults are returned unchanged.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config, nil
		}
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound {
			return config, nil
		}
		return config, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return config, nil
}
