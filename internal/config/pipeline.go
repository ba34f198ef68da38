// Package config defines the JSON pipeline configuration consumed by cmd/ingest.
//
// A pipeline describes one dataset: where its files live, how to parse them,
// how each row maps onto a document, and which index the documents land in.
package config

import (
	"os"

	"geoingest/internal/storage"
	"geoingest/internal/transformer"
)

const (
	// DefaultBatchSize is the number of documents per bulk submission.
	DefaultBatchSize = 500
	// DefaultFileWorkers ingests one file at a time.
	DefaultFileWorkers = 1
)

type Pipeline struct {
	Job     string `json:"job"`
	Dataset string `json:"dataset,omitempty"`

	Source    Source            `json:"source"`
	Parser    Parser            `json:"parser"`
	Transform Transform         `json:"transform"`
	Index     storage.IndexSpec `json:"index"`
	Storage   Storage           `json:"storage"`
	Runtime   RuntimeConfig     `json:"runtime"`
}

type Source struct {
	// Kind must be "dir".
	Kind string `json:"kind"`
	Dir  string `json:"dir"`
	// Pattern is a filepath.Match glob applied to file names. Empty matches all.
	Pattern string `json:"pattern,omitempty"`
}

type Parser struct {
	Kind    string  `json:"kind"`
	Options Options `json:"options"`
}

type Transform struct {
	Fields []transformer.FieldRule `json:"fields"`
	Lookup *transformer.LookupRule `json:"lookup,omitempty"`
}

type Storage struct {
	// Kind: "elasticsearch" | "sqlite" | "postgres" | "mssql"
	Kind       string   `json:"kind"`
	Addresses  []string `json:"addresses,omitempty"`
	DSN        string   `json:"dsn,omitempty"`
	Username   string   `json:"username,omitempty"`
	Password   string   `json:"password,omitempty"`
	APIKey     string   `json:"api_key,omitempty"`
	MaxRetries int      `json:"max_retries,omitempty"`
}

// RuntimeConfig controls pipeline execution behavior.
type RuntimeConfig struct {
	BatchSize   int `json:"batch_size"`
	FileWorkers int `json:"file_workers"`

	// ChannelBuffer bounds how many parsed rows may wait between the reader
	// and the transform stage of one file. It must not exceed BatchSize.
	ChannelBuffer int `json:"channel_buffer"`
}

// WithDefaults fills zero runtime values.
func (r RuntimeConfig) WithDefaults() RuntimeConfig {
	if r.BatchSize <= 0 {
		r.BatchSize = DefaultBatchSize
	}
	if r.FileWorkers <= 0 {
		r.FileWorkers = DefaultFileWorkers
	}
	if r.ChannelBuffer <= 0 {
		r.ChannelBuffer = r.BatchSize
	}
	return r
}

// StorageConfig converts the storage section into the backend factory config,
// expanding ${VAR} references in credentials and DSNs.
func (p Pipeline) StorageConfig() storage.Config {
	addrs := make([]string, 0, len(p.Storage.Addresses))
	for _, a := range p.Storage.Addresses {
		addrs = append(addrs, os.ExpandEnv(a))
	}
	return storage.Config{
		Kind:       p.Storage.Kind,
		Addresses:  addrs,
		DSN:        os.ExpandEnv(p.Storage.DSN),
		Username:   os.ExpandEnv(p.Storage.Username),
		Password:   os.ExpandEnv(p.Storage.Password),
		APIKey:     os.ExpandEnv(p.Storage.APIKey),
		MaxRetries: p.Storage.MaxRetries,
	}
}
