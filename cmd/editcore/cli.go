package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nacalab/editcore/internal/api"
	"github.com/nacalab/editcore/internal/config"
	"github.com/nacalab/editcore/internal/netmon"
	"github.com/nacalab/editcore/internal/offline"
	"github.com/nacalab/editcore/pkg/object"
)

// runCommand dispatches one-shot maintenance subcommands.
func runCommand(args []string) error {
	switch strings.ToLower(args[0]) {
	case "checkpoints":
		return listCheckpoints()
	case "export":
		if len(args) < 2 {
			return fmt.Errorf("usage: editcore export <checkpointId>...")
		}
		return exportCheckpoints(args[1:])
	case "queue":
		return listQueue()
	case "flushqueue":
		return flushQueue()
	default:
		return fmt.Errorf("unknown command %q (want checkpoints, export, queue or flushqueue)", args[0])
	}
}

func listCheckpoints() error {
	records, err := DataStore.LoadCheckpoints()
	if err != nil {
		return fmt.Errorf("loading checkpoints: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No checkpoints stored.")
		return nil
	}

	for _, rec := range records {
		var snapshot []object.Serialized
		count := "?"
		if err := json.Unmarshal(rec.Snapshot, &snapshot); err == nil {
			count = fmt.Sprintf("%d", len(snapshot))
		}
		fmt.Printf("%s  %s  screen=%s  objects=%s  %q\n",
			rec.CheckpointID,
			rec.TakenAt.Format("2006-01-02 15:04:05"),
			rec.ScreenID,
			count,
			rec.Name,
		)
	}
	return nil
}

func exportCheckpoints(ids []string) error {
	records, err := DataStore.LoadCheckpoints()
	if err != nil {
		return fmt.Errorf("loading checkpoints: %w", err)
	}

	byID := make(map[string]int, len(records))
	for i, rec := range records {
		byID[rec.CheckpointID] = i
	}

	for _, id := range ids {
		i, ok := byID[id]
		if !ok {
			return fmt.Errorf("checkpoint %s not found", id)
		}
		rec := records[i]

		fileName := fmt.Sprintf("%s_%s.json.gz", rec.Name, rec.TakenAt.Format("20060102_150405"))
		fileName = strings.ReplaceAll(fileName, " ", "_")
		fileName = strings.ReplaceAll(fileName, ":", "_")

		f, err := os.Create(fileName)
		if err != nil {
			return fmt.Errorf("error creating file: %w", err)
		}

		gzWriter := gzip.NewWriter(f)
		_, err = gzWriter.Write(rec.Snapshot)
		if cerr := gzWriter.Close(); err == nil {
			err = cerr
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("error writing %s: %w", fileName, err)
		}

		fmt.Println("Wrote checkpoint to", fileName)
	}
	return nil
}

func listQueue() error {
	records, err := DataStore.LoadQueue()
	if err != nil {
		return fmt.Errorf("loading queue: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("Offline queue is empty.")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("%s  %s %s  enqueued=%s  retries=%d\n",
			rec.RequestID,
			rec.Method,
			rec.URL,
			rec.EnqueuedAt.Format("2006-01-02 15:04:05"),
			rec.RetryCount,
		)
	}
	return nil
}

// flushQueue replays the persisted queue against the server once and reports
// what remains.
func flushQueue() error {
	client := api.New(config.GetString("api.serverUrl"), config.GetString("api.communityId"))
	if err := client.Healthcheck(context.Background()); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	queue, err := offline.New(DataStore, nil, netmon.NewManual(true), nil, Logger)
	if err != nil {
		return fmt.Errorf("initializing queue: %w", err)
	}
	defer queue.Close()

	before := queue.Len()
	if before == 0 {
		fmt.Println("Offline queue is empty.")
		return nil
	}

	if err := queue.Flush(context.Background()); err != nil {
		return err
	}

	fmt.Printf("Flushed %d of %d queued requests, %d remaining.\n",
		before-queue.Len(), before, queue.Len())
	return nil
}
