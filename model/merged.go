package model

import (
	"time"

	"github.com/google/uuid"
)

// MergedEntity is the consolidated record produced for one resolved cluster.
// Created once by the merger and never mutated afterward.
type MergedEntity struct {
	ID  int64     `json:"-"`
	RID uuid.UUID `json:"-"`
	// Name is the canonical display name chosen for the cluster.
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Personality  string   `json:"personality"`
	Scenario     string   `json:"scenario"`
	FirstMessage string   `json:"first_message"`
	MesExample   string   `json:"mes_example"`
	Creator      string   `json:"creator"`
	Version      string   `json:"character_version"`
	Tags         []string `json:"tags"`
	// Aliases are the folded name variants that lost the canonical vote.
	Aliases []string `json:"aliases,omitempty"`
	// Extra carries unrecognized raw-record fields through unchanged.
	Extra     Metadata     `json:"extra,omitempty"`
	Metadata  MergedOrigin `json:"metadata"`
	Embedding []float32    `json:"-"`
	CreatedAt time.Time    `json:"-"`
	// Similarity is only populated by similarity search results.
	Similarity float64 `json:"-"`
}

// MergedOrigin records where a merged entity came from.
type MergedOrigin struct {
	MergedFromNames []string `json:"merged_from_names"`
	EntryCount      int      `json:"entry_count"`
	SourceFiles     []string `json:"source_files"`
}
