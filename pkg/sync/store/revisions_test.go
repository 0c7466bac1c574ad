package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versesync/versesync/pkg/sync/models"
)

func addRevision(t *testing.T, s *GORMStore, path string, revision int, deleted bool) {
	t.Helper()

	rev := &models.FileRevision{
		Service:    models.ServiceContemporary,
		Path:       path,
		Revision:   revision,
		IsDeleted:  deleted,
		ModifiedAt: time.Now().UTC(),
	}
	if !deleted {
		hash := fmt.Sprintf("hash-%d", revision)
		size := int64(revision * 10)
		rev.Hash = &hash
		rev.Size = &size
	}
	require.NoError(t, s.CreateFileRevision(context.Background(), rev))
}

func TestNextRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	next, err := s.NextRevision(ctx, models.ServiceContemporary, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 0, next)

	addRevision(t, s, "a.txt", 0, false)
	addRevision(t, s, "a.txt", 1, false)

	next, err = s.NextRevision(ctx, models.ServiceContemporary, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	// Other services are independent
	next, err = s.NextRevision(ctx, models.ServiceTraditional, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 0, next)
}

func TestGetCurrentFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetCurrentFile(ctx, models.ServiceContemporary, "a.txt")
	assert.ErrorIs(t, err, models.ErrFileNotFound)

	addRevision(t, s, "a.txt", 0, false)
	addRevision(t, s, "a.txt", 1, false)

	current, err := s.GetCurrentFile(ctx, models.ServiceContemporary, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, current.Revision)

	// A tombstone is still returned as the current state
	addRevision(t, s, "a.txt", 2, true)
	current, err = s.GetCurrentFile(ctx, models.ServiceContemporary, "a.txt")
	require.NoError(t, err)
	assert.True(t, current.IsDeleted)
}

func TestListCurrentFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addRevision(t, s, "a.txt", 0, false)
	addRevision(t, s, "a.txt", 1, false)
	addRevision(t, s, "b.txt", 0, false)
	addRevision(t, s, "b.txt", 1, true)
	addRevision(t, s, "c.txt", 0, false)

	files, err := s.ListCurrentFiles(ctx, models.ServiceContemporary, false)
	require.NoError(t, err)

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	// b.txt is deleted and hidden; only max revisions are returned
	assert.Equal(t, []string{"a.txt", "c.txt"}, paths)
	assert.Equal(t, 1, files[0].Revision)

	withDeleted, err := s.ListCurrentFiles(ctx, models.ServiceContemporary, true)
	require.NoError(t, err)
	assert.Len(t, withDeleted, 3)
}

func TestGetRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addRevision(t, s, "a.txt", 0, false)

	rev, err := s.GetRevision(ctx, models.ServiceContemporary, "a.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, "hash-0", rev.HashString())

	_, err = s.GetRevision(ctx, models.ServiceContemporary, "a.txt", 5)
	assert.ErrorIs(t, err, models.ErrRevisionNotFound)
}

func TestListRevisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ListRevisions(ctx, models.ServiceContemporary, "a.txt")
	assert.ErrorIs(t, err, models.ErrFileNotFound)

	addRevision(t, s, "a.txt", 0, false)
	addRevision(t, s, "a.txt", 1, false)
	addRevision(t, s, "a.txt", 2, false)

	revs, err := s.ListRevisions(ctx, models.ServiceContemporary, "a.txt")
	require.NoError(t, err)
	require.Len(t, revs, 3)
	// Newest first
	assert.Equal(t, 2, revs[0].Revision)
	assert.Equal(t, 0, revs[2].Revision)
}

func TestExcessRevisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		addRevision(t, s, "a.txt", i, false)
	}

	// Keep 3 of 5: revisions 0 and 1 are excess
	excess, err := s.ExcessRevisions(ctx, models.ServiceContemporary, "a.txt", 3)
	require.NoError(t, err)
	require.Len(t, excess, 2)
	assert.Equal(t, 1, excess[0].Revision)
	assert.Equal(t, 0, excess[1].Revision)

	// Within limit: nothing to prune
	excess, err = s.ExcessRevisions(ctx, models.ServiceContemporary, "a.txt", 5)
	require.NoError(t, err)
	assert.Empty(t, excess)

	// The current revision is always retained, even with a zero limit
	excess, err = s.ExcessRevisions(ctx, models.ServiceContemporary, "a.txt", 0)
	require.NoError(t, err)
	require.Len(t, excess, 4)
	assert.Equal(t, 3, excess[0].Revision)
}

func TestDeleteFileRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addRevision(t, s, "a.txt", 0, false)
	rev, err := s.GetRevision(ctx, models.ServiceContemporary, "a.txt", 0)
	require.NoError(t, err)

	require.NoError(t, s.DeleteFileRevision(ctx, rev.ID))
	_, err = s.GetRevision(ctx, models.ServiceContemporary, "a.txt", 0)
	assert.ErrorIs(t, err, models.ErrRevisionNotFound)

	assert.ErrorIs(t, s.DeleteFileRevision(ctx, rev.ID), models.ErrRevisionNotFound)
}

func TestCountRevisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.CountRevisions(ctx, models.ServiceContemporary, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	addRevision(t, s, "a.txt", 0, false)
	addRevision(t, s, "a.txt", 1, false)
	addRevision(t, s, "a.txt", 2, false)

	count, err = s.CountRevisions(ctx, models.ServiceContemporary, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
