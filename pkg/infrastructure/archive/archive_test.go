package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/prodplan/pkg/domain/entities"
)

type archivedRun struct {
	entities.RunMeta
	Total string `json:"total"`
}

func testRun() archivedRun {
	return archivedRun{
		RunMeta: entities.RunMeta{
			RunID:           "7c9e6679-7425-40de-944b-e07fc1f90ae7",
			Kind:            entities.RunKindRollup,
			SnapshotVersion: 3,
			ComputedAt:      time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC),
		},
		Total: "4015.225",
	}
}

// mockS3 serves HEAD, PUT and GET for path-style object requests
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *mockS3) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	respond := func(status int, body []byte) *http.Response {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(bytes.NewReader(body)),
			Header: http.Header{
				"Content-Length": {strconv.Itoa(len(body))},
				"Content-Type":   {"application/json"},
			},
		}
	}

	switch req.Method {
	case http.MethodHead:
		if _, ok := m.objects[key]; ok {
			return respond(http.StatusOK, nil), nil
		}
		return respond(http.StatusNotFound, nil), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if decoded, ok := decodeChunked(body); ok {
			body = decoded
		}
		m.objects[key] = body
		return respond(http.StatusOK, nil), nil
	case http.MethodGet:
		if body, ok := m.objects[key]; ok {
			return respond(http.StatusOK, body), nil
		}
		return respond(http.StatusNotFound, nil), nil
	}
	return respond(http.StatusNotImplemented, nil), nil
}

// decodeChunked unwraps a single-chunk aws-chunked payload
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 || parts[2] != "0" {
		return nil, false
	}
	n, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || int64(len(parts[1])) != n {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newMockS3Store(t *testing.T) (*S3Store, *mockS3) {
	t.Helper()
	mock := &mockS3{objects: make(map[string][]byte)}
	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:          "prodplan-runs",
		Region:          "us-east-1",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		Prefix:          "plant-a/",
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: mock}
	})
	require.NoError(t, err)
	return store, mock
}

func TestRunKey(t *testing.T) {
	assert.Equal(t, "runs/rollup/2025/03/03/7c9e6679-7425-40de-944b-e07fc1f90ae7.json", RunKey(testRun().RunMeta))
}

func TestStores(t *testing.T) {
	fsStore, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	s3Store, mock := newMockS3Store(t)

	stores := map[string]Store{"fs": fsStore, "s3": s3Store}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := testRun()

			key, err := SaveRun(ctx, store, run.RunMeta, run)
			require.NoError(t, err)

			var loaded archivedRun
			require.NoError(t, LoadRun(ctx, store, key, &loaded))
			assert.Equal(t, run, loaded)

			_, err = SaveRun(ctx, store, run.RunMeta, run)
			assert.True(t, errors.Is(err, ErrExists), "got %v", err)

			_, err = store.Get(ctx, "runs/mrp/missing.json")
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			assert.Error(t, store.Put(ctx, "../escape.json", []byte("{}")))
		})
	}

	_, prefixed := mock.objects["plant-a/"+RunKey(testRun().RunMeta)]
	assert.True(t, prefixed)
}

func TestSaveRun_RequiresID(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = SaveRun(context.Background(), store, entities.RunMeta{Kind: entities.RunKindMRP}, struct{}{})
	assert.Error(t, err)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	assert.Error(t, err)
}
