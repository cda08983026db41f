package databases

import (
	"strings"
	"testing"

	"github.com/kadirpekel/repochat/pkg/config"
)

func TestNewProviderFromConfigRejectsUnknownType(t *testing.T) {
	_, err := NewProviderFromConfig(&config.VectorStoreConfig{Type: "weaviate"})
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if !strings.Contains(err.Error(), "unsupported database type: weaviate") {
		t.Errorf("error = %v", err)
	}
}

func TestNewProviderFromConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.VectorStoreConfig
		wantErr string
	}{
		{
			name:    "qdrant without host",
			cfg:     &config.VectorStoreConfig{Type: "qdrant"},
			wantErr: "host is required",
		},
		{
			name:    "pinecone without key",
			cfg:     &config.VectorStoreConfig{Type: "pinecone", IndexName: "repochat"},
			wantErr: "api_key is required",
		},
		{
			name:    "pinecone without index",
			cfg:     &config.VectorStoreConfig{Type: "pinecone", APIKey: "pc-key"},
			wantErr: "index_name is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProviderFromConfig(tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildQdrantFilter(t *testing.T) {
	filter := buildQdrantFilter(map[string]interface{}{
		"repo_id":     "owner_repo",
		"source_path": "pkg/server/router.go",
	})
	if len(filter.Must) != 2 {
		t.Fatalf("len(Must) = %d, want 2", len(filter.Must))
	}
	keys := map[string]bool{}
	for _, cond := range filter.Must {
		field := cond.GetField()
		if field == nil {
			t.Fatal("condition is not a field match")
		}
		keys[field.Key] = true
	}
	if !keys["repo_id"] || !keys["source_path"] {
		t.Errorf("filter keys = %v", keys)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewDatabaseRegistry()
	provider, err := NewQdrantProviderFromConfig(&config.VectorStoreConfig{Type: "qdrant", Host: "localhost"})
	if err != nil {
		t.Fatalf("NewQdrantProviderFromConfig() error: %v", err)
	}
	if err := reg.RegisterDatabase("primary", provider); err != nil {
		t.Fatalf("RegisterDatabase() error: %v", err)
	}
	got, err := reg.GetDatabase("primary")
	if err != nil {
		t.Fatalf("GetDatabase() error: %v", err)
	}
	if got != provider {
		t.Error("GetDatabase returned a different provider")
	}
	if _, err := reg.GetDatabase("missing"); err == nil {
		t.Error("expected error for unregistered name")
	}
}
