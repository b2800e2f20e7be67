package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
<title>Port42 Field Guide</title>
<meta property="og:site_name" content="Port42 Docs">
<meta name="author" content="Ada Lovelace">
<meta name="description" content="A short guide to curated learning resources.">
</head>
<body>
<article>
<h1>Port42 Field Guide</h1>
<p>Curated resources are only as good as the discussion around them. This guide walks through how communities vote, comment and keep threads readable over time.</p>
<p>Each resource collects votes and threaded comments. Replies nest up to a fixed depth so long conversations stay readable on small screens.</p>
<p>Moderators can remove comments without breaking the thread, and authors can edit what they wrote while the history stays available.</p>
</article>
</body>
</html>`

func TestFetchMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	database := newTestDB(t)
	crawler := NewCrawlerService(database, nopLog())

	meta, err := crawler.FetchMetadata(context.Background(), srv.URL+"/guide")
	require.NoError(t, err)
	assert.Contains(t, meta.Title, "Port42 Field Guide")
	assert.NotNil(t, meta.FetchedAt)
	assert.NotContains(t, meta.Description, "<")

	_, err = crawler.FetchMetadata(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)

	owner := createUser(t, database, "")
	res := createResource(t, database, owner)
	require.NoError(t, crawler.SaveMetadata(context.Background(), res.ID, meta))
	stored := reloadResource(t, database, res.ID)
	assert.Equal(t, meta.Title, stored.Metadata.Title)
	assert.NotNil(t, stored.Metadata.FetchedAt)
}
