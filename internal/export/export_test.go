package export

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-console/internal/crawler"
	"github.com/JakeFAU/crawl-console/internal/storage/memory"
)

func decoded(t *testing.T, raw string, index int) crawler.CrawlResult {
	t.Helper()
	var r crawler.CrawlResult
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return r.WithIndex(index)
}

func TestExportEmptyIsNoData(t *testing.T) {
	t.Parallel()

	for _, f := range Formats {
		_, err := Export(nil, f)
		require.ErrorIs(t, err, crawler.ErrNoData, f)
	}
}

func TestCSVHeaderFromFirstRecordAndEscaping(t *testing.T) {
	t.Parallel()

	results := []crawler.CrawlResult{
		decoded(t, `{"url":"https://a.test/","statusCode":200,"title":"Hello, \"World\"","contentSize":0}`, 1),
		decoded(t, `{"url":"https://a.test/b","statusCode":null,"contentSize":12,"referrer":"https://a.test/"}`, 2),
	}

	got := string(CSV(results))
	want := "url,statusCode,title,contentSize\n" +
		"https://a.test/,200,\"Hello, \"\"World\"\"\",0\n" +
		"https://a.test/b,,,12\n"
	require.Equal(t, want, got)
	require.NotContains(t, strings.SplitN(got, "\n", 2)[0], "index")
}

func TestExportFormats(t *testing.T) {
	t.Parallel()

	results := []crawler.CrawlResult{
		decoded(t, `{"url":"a","statusCode":200}`, 1),
	}

	csv, err := Export(results, FormatCSV)
	require.NoError(t, err)
	require.Equal(t, "crawl-results.csv", csv.Filename)
	require.Equal(t, "text/csv", csv.ContentType)

	xls, err := Export(results, FormatExcel)
	require.NoError(t, err)
	require.Equal(t, "crawl-results.xls", xls.Filename)
	require.Equal(t, "application/vnd.ms-excel", xls.ContentType)
	require.Equal(t, csv.Data, xls.Data)
	require.Len(t, csv.Checksum, 64)
	require.Equal(t, csv.Checksum, xls.Checksum)

	js, err := Export(results, FormatJSON)
	require.NoError(t, err)
	require.Equal(t, "crawl-results.json", js.Filename)
	require.Equal(t, "application/json", js.ContentType)
	require.NotEqual(t, csv.Checksum, js.Checksum)
}

func TestJSONPrettyOrderedWithIndex(t *testing.T) {
	t.Parallel()

	results := []crawler.CrawlResult{
		decoded(t, `{"statusCode":404,"url":"b","title":null}`, 1),
		decoded(t, `{"url":"c","contentSize":3}`, 2),
	}

	data, err := JSON(results)
	require.NoError(t, err)
	require.JSONEq(t, `[{"statusCode":404,"url":"b","title":null,"index":1},{"url":"c","contentSize":3,"index":2}]`, string(data))

	text := string(data)
	require.True(t, strings.HasPrefix(text, "[\n  {\n    \"statusCode\": 404,"), text)
	require.Less(t, strings.Index(text, `"statusCode"`), strings.Index(text, `"url": "b"`))
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat(" JSON ")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, f)

	_, err = ParseFormat("pdf")
	require.ErrorIs(t, err, crawler.ErrValidation)
	_, err = Export([]crawler.CrawlResult{{URL: "a"}}, Format("pdf"))
	require.ErrorIs(t, err, crawler.ErrValidation)
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestArchiver(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	archiver := NewArchiver(store, "exports", nil)
	artifact := Artifact{Filename: "crawl-results.csv", ContentType: "text/csv", Data: []byte("url\na\n")}

	uri, err := archiver.Archive(context.Background(), "sess-1", artifact)
	require.NoError(t, err)
	require.Equal(t, "memory://exports/sess-1/crawl-results.csv", uri)

	obj, ok := store.Object("exports/sess-1/crawl-results.csv")
	require.True(t, ok)
	require.Equal(t, "text/csv", obj.ContentType)
	require.Equal(t, artifact.Data, obj.Data)

	_, err = NewArchiver(failingStore{}, "", nil).Archive(context.Background(), "s", artifact)
	require.ErrorContains(t, err, "bucket unavailable")
}
