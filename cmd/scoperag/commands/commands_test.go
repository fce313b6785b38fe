package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/54b3r/scoperag-go/internal/apperr"
	"github.com/54b3r/scoperag-go/internal/config"
	"github.com/54b3r/scoperag-go/internal/rag"
)

func TestRootCmd_Version(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "scoperag ") {
		t.Errorf("unexpected output %q", out.String())
	}
	if appCfg == nil || appLog == nil {
		t.Error("config and logger not initialised by the root command")
	}
}

func TestIngestCmd_InvalidRequestStoresNothing(t *testing.T) {
	dir := t.TempDir()
	blobDir := filepath.Join(dir, "blobs")
	t.Setenv("BLOB_BACKEND", "fs")
	t.Setenv("BLOB_PATH", blobDir)

	doc := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(doc, []byte("scratch notes"), 0o600); err != nil {
		t.Fatal(err)
	}

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"--config", filepath.Join(dir, "missing.yaml"), "ingest", "--type", "temporary", doc})

	err := root.Execute()
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for a temporary global document, got %v", err)
	}

	cfg := config.Default()
	cfg.Blob.Backend = "fs"
	cfg.Blob.Path = blobDir
	store, err := openBlobs(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	infos, err := store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 0 {
		t.Errorf("rejected ingest left %d stored documents", len(infos))
	}
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	for _, name := range []string{"serve", "ingest", "ask", "cleanup", "sweep", "version"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestOpenBlobs_Backends(t *testing.T) {
	t.Parallel()

	for _, backend := range []string{"sqlite", "fs"} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Blob.Backend = backend
			cfg.Blob.Path = filepath.Join(t.TempDir(), "blobs")

			store, err := openBlobs(cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer store.Close()

			ctx := context.Background()
			if err := store.Put(ctx, "cv.txt", []byte("hi")); err != nil {
				t.Fatal(err)
			}
			if got, err := store.Get(ctx, "cv.txt"); err != nil || string(got) != "hi" {
				t.Errorf("get = %q, %v", got, err)
			}
		})
	}
}

func TestOpenIndex_Memory(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Index.Backend = "memory"

	idx, err := openIndex(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.(*rag.MemoryIndex); !ok {
		t.Errorf("expected *rag.MemoryIndex, got %T", idx)
	}
	if indexLabel(cfg) != "index" {
		t.Errorf("label = %q", indexLabel(cfg))
	}
}
