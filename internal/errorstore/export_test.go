package errorstore

import (
	"context"
	"fmt"
	"testing"

	apperrors "faultline-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestExportPagesThroughAllMatches(t *testing.T) {
	s, _ := openTestStore(t, 0)
	ctx := context.Background()
	for i := 0; i < exportPageSize+3; i++ {
		_, err := s.Store(ctx, Entry{Code: apperrors.CodeNetworkOffline, Category: apperrors.CategoryNetwork, Message: fmt.Sprintf("offline %d", i)})
		require.NoError(t, err)
	}
	_, err := s.Store(ctx, Entry{Code: apperrors.CodeInternal, Category: apperrors.CategoryServer, HTTPStatus: 500, Message: "boom"})
	require.NoError(t, err)

	doc, err := s.Export(ctx, Query{Code: apperrors.CodeNetworkOffline, Limit: 1})
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(doc))
	assert.Equal(t, int64(exportPageSize+3), gjson.GetBytes(doc, "count").Int())
	assert.Len(t, gjson.GetBytes(doc, "entries").Array(), exportPageSize+3)
	assert.Equal(t, int64(exportPageSize+4), gjson.GetBytes(doc, "stats.fingerprints").Int())
	assert.Equal(t, "2026-05-01T12:00:00Z", gjson.GetBytes(doc, "exportedAt").String())
}

func TestExportEmptyArchive(t *testing.T) {
	s, _ := openTestStore(t, 0)
	doc, err := s.Export(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), gjson.GetBytes(doc, "count").Int())
	assert.True(t, gjson.GetBytes(doc, "entries").IsArray())
}
