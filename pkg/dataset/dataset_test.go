package dataset

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

const sampleCSV = `Speed,Throttle,Tire degreadation
120,0.7,0.84
80,,0.55
NA,0.9,abc
`

func TestReadCSV(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"Speed", "Throttle", "Tire degreadation"}, ds.Columns)
	assert.Equal(t, 3, ds.Rows)

	speed, ok := ds.Column("Speed")
	require.True(t, ok)
	assert.Equal(t, 120.0, speed[0])
	assert.True(t, math.IsNaN(speed[2]))

	throttle, _ := ds.Column("Throttle")
	assert.True(t, math.IsNaN(throttle[1]))

	deg, _ := ds.Column("Tire degreadation")
	assert.True(t, math.IsNaN(deg[2]))
}

func TestReadCSVShortRows(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("a,b\n1\n2,3\n"))
	require.NoError(t, err)
	b, _ := ds.Column("b")
	assert.True(t, math.IsNaN(b[0]))
	assert.Equal(t, 3.0, b[1])
}

func TestReadCSVInfinityIsMissing(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("a,b,c\n1,2,3\n2,inf,5\n3,-Inf,7\n4,+infinity,9\n"))
	require.NoError(t, err)

	b, _ := ds.Column("b")
	assert.Equal(t, 2.0, b[0])
	for _, v := range b[1:] {
		assert.True(t, math.IsNaN(v))
	}
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("a,a\n1,2\n"))
	assert.Error(t, err)
}

func TestReadCSVHeaderOnly(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Rows)
	assert.True(t, ds.HasColumn("a"))
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))

	ds, err := (&FileSource{Path: path}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Rows)

	_, err = (&FileSource{Path: filepath.Join(t.TempDir(), "missing.csv")}).Fetch(context.Background())
	assert.Error(t, err)
}

type staticSource struct{ ds *models.Dataset }

func (s staticSource) Fetch(ctx context.Context) (*models.Dataset, error) { return s.ds, nil }

func rowsDataset(t *testing.T, n int) *models.Dataset {
	t.Helper()
	col := make([]float64, n)
	for i := range col {
		col[i] = float64(i)
	}
	ds, err := models.NewDataset([]string{"x"}, map[string][]float64{"x": col})
	require.NoError(t, err)
	return ds
}

func TestSamplingSource(t *testing.T) {
	big := rowsDataset(t, 2000)
	src := NewSamplingSource(staticSource{big}, 0.05, nil)

	first, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, first.Rows)
	assert.Equal(t, 2000, big.Rows)

	second, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Values, second.Values)
}

func TestSamplingSourceSmallDatasetUnchanged(t *testing.T) {
	small := rowsDataset(t, 1000)
	ds, err := NewSamplingSource(staticSource{small}, 0.05, nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.Same(t, small, ds)
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestKaggleSourceDownloadsOnceAndCaches(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"README.txt":                 "ignore me",
		"data/simulated_dataset.csv": sampleCSV,
	})

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/v1/datasets/download/owner/tires", r.URL.Path)
		user, key, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "me", user)
		assert.Equal(t, "secret", key)
		w.Header().Set("Content-Type", "application/zip")
		w.Write(archive)
	}))
	defer server.Close()

	src := NewKaggleSource("owner/tires", "simulated_dataset.csv", t.TempDir(), nil)
	src.BaseURL = server.URL + "/api/v1"
	src.Username = "me"
	src.Key = "secret"

	for i := 0; i < 2; i++ {
		ds, err := src.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, ds.Rows)
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.FileExists(t, src.CachePath())
}

func TestKaggleSourcePlainCSV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleCSV)
	}))
	defer server.Close()

	src := NewKaggleSource("owner/tires", "simulated_dataset.csv", t.TempDir(), nil)
	src.BaseURL = server.URL

	ds, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Rows)
}

func TestKaggleSourceErrors(t *testing.T) {
	archive := zipArchive(t, map[string]string{"other.csv": "a\n1\n"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/forbidden") {
			http.Error(w, "no", http.StatusForbidden)
			return
		}
		w.Write(archive)
	}))
	defer server.Close()

	tests := []struct {
		name      string
		datasetID string
	}{
		{"bad id", "no-slash"},
		{"http status", "owner/forbidden"},
		{"file not in archive", "owner/tires"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewKaggleSource(tt.datasetID, "simulated_dataset.csv", t.TempDir(), nil)
			src.BaseURL = server.URL
			_, err := src.Fetch(context.Background())
			assert.Error(t, err)
			assert.NoFileExists(t, src.CachePath())
		})
	}
}
