//go:build unix

package aggregator

import (
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhaobenny/ccwatch/internal/model"
)

func TestScan_FIFODoesNotBlock(t *testing.T) {
	root := t.TempDir()
	writeLog(t, filepath.Join(root, "good.jsonl"), usageLine("m", 5, 0, 0, 0))
	require.NoError(t, syscall.Mkfifo(filepath.Join(root, "pipe.jsonl"), 0644))

	type result struct {
		snap model.Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var s Scanner
		snap, err := s.Scan(root)
		done <- result{snap, err}
	}()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Equal(t, uint64(2), r.snap.FileCount)
		require.Equal(t, uint64(1), r.snap.UnreadableFiles)
		require.Equal(t, uint64(1), r.snap.MessageCount)
		require.Equal(t, uint64(5), r.snap.TotalInput)
	case <-time.After(5 * time.Second):
		t.Fatal("scan blocked on a FIFO")
	}
}
