package stores_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/openswitchboard/switchboard/pkg/stores"
)

// ExampleNewFileStore demonstrates creating and initializing a file store.
func ExampleNewFileStore() {
	dir, err := os.MkdirTemp("", "switchboard-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := stores.NewFileStore(stores.Config{
		Path: filepath.Join(dir, "switchboard.yaml"),
		Seed: map[string]interface{}{
			"provider": "ollama",
			"model":    "llama3.1-8b",
		},
	}, zerolog.Nop())
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	values, err := store.Config(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("provider: %v, model: %v\n", values["provider"], values["model"])
	// Output: provider: ollama, model: llama3.1-8b
}

// ExampleFileStore_UpdateConfig demonstrates updating and removing values.
func ExampleFileStore_UpdateConfig() {
	dir, err := os.MkdirTemp("", "switchboard-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, _ := stores.NewFileStore(stores.Config{
		Path: filepath.Join(dir, "switchboard.yaml"),
		Seed: map[string]interface{}{
			"model":           "llama3.1-8b",
			"embedding_model": "nomic-embed-text",
		},
	}, zerolog.Nop())

	ctx := context.Background()
	_ = store.Init(ctx)
	defer store.Close()

	// Update one value and remove another in a single atomic write.
	err = store.UpdateConfig(ctx, map[string]interface{}{
		"model":           "llama3.1-70b",
		"embedding_model": nil,
	})
	if err != nil {
		log.Fatal(err)
	}

	values, _ := store.Config(ctx)
	_, hasEmbedding := values["embedding_model"]
	fmt.Printf("model: %v, embedding_model present: %v\n", values["model"], hasEmbedding)
	// Output: model: llama3.1-70b, embedding_model present: false
}
