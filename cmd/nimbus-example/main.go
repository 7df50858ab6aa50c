// Command nimbus-example demonstrates pkg/vault's store/fetch round trip
// against a running bridge and its farmer pool: point it at real
// infrastructure via environment variables and it exercises the public API
// end to end.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"nimbus/internal/bridge"
	"nimbus/pkg/vault"
)

const (
	ExampleFilename = "nimbus-example.txt"
	ExampleContent  = "Hello from the nimbus client storage engine!\n"
)

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// StoreExampleFile writes ExampleContent to a temp file and stores it in
// bucketID, returning the finalized file's id.
func StoreExampleFile(ctx context.Context, client *vault.Client, bucketID string) (string, error) {
	dir, err := os.MkdirTemp("", "nimbus-example-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, ExampleFilename)
	if err := os.WriteFile(path, []byte(ExampleContent), 0o644); err != nil {
		return "", fmt.Errorf("write example file: %w", err)
	}

	result := make(chan struct {
		entry *bridge.FileEntry
		err   error
	}, 1)
	client.StoreFileInBucket(ctx, bucketID, "", path, func(entry *bridge.FileEntry, err error) {
		result <- struct {
			entry *bridge.FileEntry
			err   error
		}{entry, err}
	})

	r := <-result
	if r.err != nil {
		return "", fmt.Errorf("store example file: %w", r.err)
	}
	slog.Info("stored example file", "id", r.entry.ID, "bucket", bucketID)
	return r.entry.ID, nil
}

// FetchExampleFile streams fileID back from bucketID and returns its bytes.
func FetchExampleFile(ctx context.Context, client *vault.Client, bucketID, fileID string) ([]byte, error) {
	stream, err := client.CreateFileStream(ctx, bucketID, fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve example file: %w", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read example file: %w", err)
	}
	slog.Info("fetched example file", "id", fileID, "bytes", len(data))
	return data, nil
}

// FetchExampleSlice demonstrates the byte-range slice path over the first
// half of the file.
func FetchExampleSlice(ctx context.Context, client *vault.Client, bucketID, fileID string, end int64) ([]byte, error) {
	stream, err := client.CreateFileSliceStream(ctx, bucketID, fileID, 0, end)
	if err != nil {
		return nil, fmt.Errorf("resolve example slice: %w", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read example slice: %w", err)
	}
	slog.Info("fetched example slice", "id", fileID, "bytes", len(data))
	return data, nil
}

func Run(ctx context.Context, client *vault.Client, bucketID string) error {
	fileID, err := StoreExampleFile(ctx, client, bucketID)
	if err != nil {
		return err
	}

	data, err := FetchExampleFile(ctx, client, bucketID, fileID)
	if err != nil {
		return err
	}
	if !bytes.Equal(data, []byte(ExampleContent)) {
		return fmt.Errorf("round trip mismatch: got %q, want %q", data, ExampleContent)
	}
	slog.Info("round trip verified")

	half := int64(len(ExampleContent) / 2)
	if half > 0 {
		if _, err := FetchExampleSlice(ctx, client, bucketID, fileID, half); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	bucketID := getenv("NIMBUS_EXAMPLE_BUCKET", "aaaaaaaaaaaaaaaaaaaaaaaa")

	client, err := vault.New()
	if err != nil {
		slog.Error("failed to construct client", "err", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := Run(context.Background(), client, bucketID); err != nil {
		slog.Error("example failed", "err", err)
		os.Exit(1)
	}
}
