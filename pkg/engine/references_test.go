package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessResponseReferences(t *testing.T) {
	eng, store, _ := setupEngine(t)
	seedUsers(store)
	seedDocuments(store)
	ctx := context.Background()

	refs := []Reference{
		{DocumentID: "doc_public_001", Excerpt: "전사 공지 내용"},
		{DocumentID: "doc_national_001", Excerpt: "국가 기준 발췌"},
		{DocumentID: "doc_missing", Excerpt: "삭제된 문서"},
		{DocumentID: ""},
	}

	result, err := eng.ProcessResponseReferences(ctx, "user001", refs)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalReferences)
	require.Len(t, result.References, 3, "empty document ids are dropped")

	downloadable := result.References[0]
	assert.True(t, downloadable.CanDownload)
	assert.Equal(t, DownloadURLPrefix+"doc_public_001", downloadable.DownloadURL)
	assert.Equal(t, "전사 공지", downloadable.Title)
	assert.Empty(t, downloadable.AccessMessage)

	metadataOnly := result.References[1]
	assert.False(t, metadataOnly.CanDownload)
	assert.Empty(t, metadataOnly.DownloadURL)
	require.NotNil(t, metadataOnly.ContactInfo)
	assert.Equal(t, "김건설", metadataOnly.ContactInfo.Name)
	assert.Contains(t, metadataOnly.AccessMessage, "042-123-4567")

	missing := result.References[2]
	assert.False(t, missing.CanDownload)
	assert.Contains(t, missing.AccessMessage, "문서를 찾을 수 없습니다")

	assert.Equal(t, 1, result.DownloadableCount)
	assert.Equal(t, 2, result.AccessibleCount, "metadata-only references remain visible")
	assert.True(t, result.PartialAccess)
	assert.NotEmpty(t, result.Notice)
}

func TestProcessResponseReferencesAllDownloadable(t *testing.T) {
	eng, store, _ := setupEngine(t)
	seedUsers(store)
	seedDocuments(store)

	result, err := eng.ProcessResponseReferences(context.Background(), "admin01", []Reference{
		{DocumentID: "doc_public_001"},
		{DocumentID: "doc_construction_001"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.DownloadableCount)
	assert.False(t, result.PartialAccess)
	assert.Empty(t, result.Notice)
}

func TestProcessResponseReferencesEmpty(t *testing.T) {
	eng, store, _ := setupEngine(t)
	seedUsers(store)

	result, err := eng.ProcessResponseReferences(context.Background(), "user001", nil)
	require.NoError(t, err)
	assert.Zero(t, result.TotalReferences)
	assert.Empty(t, result.References)
	assert.False(t, result.PartialAccess)
}
