package prompt

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// "a" -> 0, "b" -> 1, "ab" -> 2
const tinyBPE = "YQ== 0\nYg== 1\nYWI= 2\n"

func TestBPELoaderDownloadsOnceThenCaches(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(tinyBPE))
	}))
	defer server.Close()

	loader := newBPELoader(time.Second)
	loader.cacheDir = t.TempDir()

	for i := 0; i < 2; i++ {
		ranks, err := loader.LoadTiktokenBpe(server.URL + "/cl100k_base.tiktoken")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"a": 0, "b": 1, "ab": 2}, ranks)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestBPELoaderDownloadIsBounded(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	loader := newBPELoader(100 * time.Millisecond)
	loader.cacheDir = t.TempDir()

	start := time.Now()
	_, err := loader.LoadTiktokenBpe(server.URL + "/cl100k_base.tiktoken")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBPELoaderReadsLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranks.tiktoken")
	require.NoError(t, os.WriteFile(path, []byte(tinyBPE), 0o644))

	ranks, err := newBPELoader(0).LoadTiktokenBpe(path)
	require.NoError(t, err)
	assert.Len(t, ranks, 3)
}

func TestParseBPERejectsMalformedLines(t *testing.T) {
	for _, input := range []string{"YQ==\n", "not-base64! 1\n", "YQ== one\n"} {
		_, err := parseBPE([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestBPECacheDirFollowsEnvironment(t *testing.T) {
	t.Setenv("TIKTOKEN_CACHE_DIR", "/tmp/ranks")
	assert.Equal(t, "/tmp/ranks", bpeCacheDir())

	t.Setenv("TIKTOKEN_CACHE_DIR", "")
	t.Setenv("DATA_GYM_CACHE_DIR", "/tmp/gym")
	assert.Equal(t, "/tmp/gym", bpeCacheDir())
}
