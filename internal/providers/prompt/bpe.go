package prompt

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// DefaultBPELoadTimeout bounds the one-time download of a BPE rank table
const DefaultBPELoadTimeout = 5 * time.Second

// bpeLoader loads tiktoken rank tables with a bounded download. It shares
// tiktoken's cache layout (TIKTOKEN_CACHE_DIR, then DATA_GYM_CACHE_DIR, then
// the temp dir), so a pre-seeded cache works offline.
type bpeLoader struct {
	client   *resty.Client
	cacheDir string
}

func newBPELoader(timeout time.Duration) *bpeLoader {
	if timeout <= 0 {
		timeout = DefaultBPELoadTimeout
	}
	return &bpeLoader{
		client:   resty.New().SetTimeout(timeout),
		cacheDir: bpeCacheDir(),
	}
}

func bpeCacheDir() string {
	for _, key := range []string{"TIKTOKEN_CACHE_DIR", "DATA_GYM_CACHE_DIR"} {
		if dir := strings.TrimSpace(os.Getenv(key)); dir != "" {
			return dir
		}
	}
	return filepath.Join(os.TempDir(), "data-gym-cache")
}

// LoadTiktokenBpe satisfies tiktoken.BpeLoader
func (l *bpeLoader) LoadTiktokenBpe(source string) (map[string]int, error) {
	contents, err := l.read(source)
	if err != nil {
		return nil, err
	}
	return parseBPE(contents)
}

func (l *bpeLoader) read(source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return os.ReadFile(source)
	}

	cachePath := filepath.Join(l.cacheDir, fmt.Sprintf("%x", sha1.Sum([]byte(source))))
	if data, err := os.ReadFile(cachePath); err == nil {
		return data, nil
	}

	resp, err := l.client.R().Get(source)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", source, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download %s: status %d", source, resp.StatusCode())
	}
	data := resp.Body()

	// A failed cache write only costs a download next start
	if err := os.MkdirAll(l.cacheDir, 0o755); err == nil {
		tmp := fmt.Sprintf("%s.%s.tmp", cachePath, uuid.NewString())
		if err := os.WriteFile(tmp, data, 0o644); err == nil {
			if err := os.Rename(tmp, cachePath); err != nil {
				_ = os.Remove(tmp)
			}
		}
	}
	return data, nil
}

// parseBPE reads "base64-token rank" lines
func parseBPE(contents []byte) (map[string]int, error) {
	ranks := make(map[string]int)
	for n, line := range strings.Split(string(contents), "\n") {
		if line == "" {
			continue
		}
		token, rank, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("bpe line %d: missing rank", n+1)
		}
		decoded, err := base64.StdEncoding.DecodeString(token)
		if err != nil {
			return nil, fmt.Errorf("bpe line %d: %w", n+1, err)
		}
		r, err := strconv.Atoi(strings.TrimSpace(rank))
		if err != nil {
			return nil, fmt.Errorf("bpe line %d: %w", n+1, err)
		}
		ranks[string(decoded)] = r
	}
	return ranks, nil
}
