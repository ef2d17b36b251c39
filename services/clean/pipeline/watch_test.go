// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_Wanted(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), func(context.Context, []string) []string { return nil }, nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.True(t, w.Wanted("/data/obs.cube"))
	assert.False(t, w.Wanted("/data/obs.txt"))
	assert.False(t, w.Wanted("/data/J0437_20230225_43200_cleaned.cube"))
	assert.False(t, w.Wanted("/data/.obs.cube"))
}

func TestNewWatcher_Validates(t *testing.T) {
	_, err := NewWatcher(t.TempDir(), nil, nil)
	assert.Error(t, err)

	_, err = NewWatcher(t.TempDir(), func(context.Context, []string) []string { return nil }, &WatchOptions{Pattern: "["})
	assert.Error(t, err)
}

func TestWatcher_ReportsArrivals(t *testing.T) {
	dir := t.TempDir()
	batches := make(chan []string, 4)
	w, err := NewWatcher(dir, func(_ context.Context, paths []string) []string {
		batches <- paths
		return nil
	}, &WatchOptions{Debounce: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	obs := filepath.Join(dir, "obs.cube")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "obs_cleaned.cube"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(obs, []byte("x"), 0o644))

	select {
	case got := <-batches:
		assert.Equal(t, []string{obs}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch reported")
	}
}

func TestWatcher_SkipsWrittenOutputs(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "result.cube")
	batches := make(chan []string, 4)
	w, err := NewWatcher(dir, func(_ context.Context, paths []string) []string {
		batches <- paths
		if err := os.WriteFile(output, []byte("x"), 0o644); err != nil {
			t.Error(err)
		}
		return []string{output}
	}, &WatchOptions{Debounce: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	obs := filepath.Join(dir, "obs.cube")
	require.NoError(t, os.WriteFile(obs, []byte("x"), 0o644))
	select {
	case got := <-batches:
		assert.Equal(t, []string{obs}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch reported")
	}

	// The output matches the pattern but was written by the handler.
	select {
	case got := <-batches:
		t.Fatalf("output reported again: %v", got)
	case <-time.After(500 * time.Millisecond):
	}

	next := filepath.Join(dir, "next.cube")
	require.NoError(t, os.WriteFile(next, []byte("x"), 0o644))
	select {
	case got := <-batches:
		assert.Equal(t, []string{next}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("new arrival not reported")
	}
}

func TestWatcher_StartMissingDir(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "absent"), func(context.Context, []string) []string { return nil }, nil)
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
	w.Stop()
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, dedupe([]string{"a", "b", "a"}))
}
