package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/common/cache/memory"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/config"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/master"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

func TestOptionalSinksUnconfigured(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := &config.Config{}
	logger := zap.NewNop()

	assert.Nil(t, newPublisher(lc, cfg, nil, logger))

	sink, err := newAnalytics(lc, cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, sink)

	uploader, err := newUploader(cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, uploader)

	nc, err := newNATSConnection(lc, cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, nc)
}

func TestNewPublisher_Kafka(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := &config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "jobs.enriched"}

	pub := newPublisher(lc, cfg, nil, zap.NewNop())
	require.NotNil(t, pub)

	lc.RequireStart()
	lc.RequireStop()
}

func TestNewStore_DefaultsToFile(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	dir := t.TempDir()
	cfg := &config.Config{
		StoreBackend: config.StoreFile,
		MasterFile:   filepath.Join(dir, "ai_jobs_master.json"),
		TrendFile:    filepath.Join(dir, "job_count_history.csv"),
	}

	store, err := newStore(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &master.FileStore{}, store)

	lc.RequireStart()
	lc.RequireStop()
}

func TestNewCache_MemoryWithoutRedis(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	c := newCache(lc, &config.Config{}, zap.NewNop())
	assert.IsType(t, &memory.Cache{}, c)

	lc.RequireStart()
	lc.RequireStop()
}

func TestRootCommand(t *testing.T) {
	root := newRootCommand()

	names := []string{}
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"run", "serve", "similar", "mcp", "export"}, names)
}

func TestExportRecords(t *testing.T) {
	dir := t.TempDir()
	store := master.NewFileStore(filepath.Join(dir, "master_jobs.json"), filepath.Join(dir, "history.csv"), zap.NewNop())
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, err := store.Merge(ctx, []models.JobRecord{{JobID: "a", SourceURL: "https://x/1"}}, day)
	require.NoError(t, err)
	_, err = store.Merge(ctx, []models.JobRecord{{JobID: "b", SourceURL: "https://x/2"}}, day.AddDate(0, 0, 2))
	require.NoError(t, err)

	all, err := exportRecords(ctx, store, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	recent, err := exportRecords(ctx, store, "2026-03-03")
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "b", recent[0].JobID)

	_, err = exportRecords(ctx, store, "March 3rd")
	require.Error(t, err)
	assert.Equal(t, 2, errors.ExitCode(err))
}
