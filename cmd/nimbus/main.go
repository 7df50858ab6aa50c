package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"nimbus/internal/bridge"
	"nimbus/internal/obslog"
	"nimbus/pkg/vault"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

func Run(ctx context.Context) error {
	bucketID := flag.String("bucket", "", "bucket id, or a name to derive one from -account/-account-name")
	account := flag.String("account", "", "email used to derive a bucket id when -bucket is not 24 hex characters")
	accountName := flag.String("account-name", "", "name paired with -account for bucket id derivation")
	store := flag.String("store", "", "path to a local file to upload")
	fetch := flag.String("fetch", "", "name of a remote file to download")
	slice := flag.String("slice", "", "byte range start:end to fetch instead of the whole file")
	out := flag.String("out", "", "path to write a fetched file to (default stdout)")
	concurrency := flag.Int("concurrency", 0, "shard worker pool size (0 = default)")
	bridgeURL := flag.String("bridge-url", "", "bridge base URI (empty = NIMBUS_BRIDGE_URL or the built-in default)")

	flag.Parse()

	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           log.InfoLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})
	logger := obslog.Wrap(handler)

	if *bucketID == "" {
		return fmt.Errorf("-bucket is required")
	}
	if *store == "" && *fetch == "" {
		return fmt.Errorf("one of -store or -fetch is required")
	}

	opts := []vault.ConfigOption{vault.WithLogger(logger)}
	if *bridgeURL != "" {
		opts = append(opts, vault.WithBaseURI(*bridgeURL))
	}
	if *concurrency > 0 {
		opts = append(opts, vault.WithConcurrency(*concurrency))
	}
	if *account != "" {
		opts = append(opts, vault.WithAccount(*account, *accountName))
	}

	client, err := vault.New(opts...)
	if err != nil {
		return fmt.Errorf("construct client: %w", err)
	}
	defer client.Close()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if *store != "" {
			return runStore(ctx, client, *bucketID, *store, logger)
		}
		return runFetch(ctx, client, *bucketID, *fetch, *slice, *out)
	})

	return eg.Wait()
}

func runStore(ctx context.Context, client *vault.Client, bucketID, path string, logger obslog.Logger) error {
	result := make(chan error, 1)
	client.StoreFileInBucket(ctx, bucketID, "", path, func(entry *bridge.FileEntry, err error) {
		if err != nil {
			result <- err
			return
		}
		logger.Info("file stored", "id", entry.ID, "filename", entry.Filename, "mimetype", entry.Mimetype)
		result <- nil
	})
	return <-result
}

func runFetch(ctx context.Context, client *vault.Client, bucketID, file, sliceArg, outPath string) error {
	var stream io.Reader
	var err error

	if sliceArg != "" {
		start, end, perr := parseSlice(sliceArg)
		if perr != nil {
			return perr
		}
		stream, err = client.CreateFileSliceStream(ctx, bucketID, file, start, end)
	} else {
		stream, err = client.CreateFileStream(ctx, bucketID, file)
	}
	if err != nil {
		return fmt.Errorf("resolve %s: %w", file, err)
	}

	w := os.Stdout
	if outPath != "" {
		f, ferr := os.Create(outPath)
		if ferr != nil {
			return fmt.Errorf("create %s: %w", outPath, ferr)
		}
		defer f.Close()
		w = f
	}

	buf := make([]byte, 64*1024)
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return rerr
		}
	}
}

func parseSlice(s string) (start, end int64, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid -slice %q, expected start:end", s)
	}
	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid -slice start: %w", err)
	}
	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid -slice end: %w", err)
	}
	return start, end, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		log.Error("nimbus exited with error", "error", err)
		os.Exit(1)
	}
}
