package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.UpsertJob(ctx, RenderJob{ID: "j1", ExamID: 42, Status: JobPending}))

	job, found, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, JobPending, job.Status)
	assert.Equal(t, int64(42), job.ExamID)

	require.NoError(t, s.UpsertJob(ctx, RenderJob{ID: "j1", ExamID: 42, Status: JobDone, PDFSize: 1024}))
	job, found, err = s.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, JobDone, job.Status)
	assert.Equal(t, int64(1024), job.PDFSize)
}

func TestMemStoreGetMissingJob(t *testing.T) {
	s := NewMemStore()
	job, found, err := s.GetJob(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, job)
}

func TestMemStorePing(t *testing.T) {
	assert.NoError(t, NewMemStore().Ping(context.Background()))
}
