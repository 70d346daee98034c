package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var ErrUnsupportedAudio = errors.New("unsupported audio format")

// BufferSource hands out decoded audio by URL.
type BufferSource interface {
	Get(ctx context.Context, url string) (*beep.Buffer, error)
}

// Opener fetches the raw bytes of a source.
type Opener interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPOpener reads http(s) URLs with a client and everything else from disk.
type HTTPOpener struct {
	Client *http.Client
}

func (o HTTPOpener) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return os.Open(strings.TrimPrefix(url, "file://"))
	}

	client := o.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// BufferCache decodes each source once and keeps the result. Concurrent
// requests for one URL share a single decode; failures are remembered.
type BufferCache struct {
	opener Opener
	format beep.Format
	logger *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	buffers map[string]*beep.Buffer
	failed  map[string]error
}

func NewBufferCache(opener Opener, format beep.Format, logger *slog.Logger) *BufferCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &BufferCache{
		opener:  opener,
		format:  format,
		logger:  logger,
		buffers: make(map[string]*beep.Buffer),
		failed:  make(map[string]error),
	}
}

func (c *BufferCache) Format() beep.Format { return c.format }

// Get returns the decoded buffer for url. Cancelling ctx abandons the wait
// but not the shared decode.
func (c *BufferCache) Get(ctx context.Context, url string) (*beep.Buffer, error) {
	c.mu.RLock()
	buf, ok := c.buffers[url]
	failErr := c.failed[url]
	c.mu.RUnlock()
	if ok {
		return buf, nil
	}
	if failErr != nil {
		return nil, failErr
	}

	ch := c.group.DoChan(url, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), url)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*beep.Buffer), nil
	}
}

// Forget drops a cached result, so the next Get decodes again.
func (c *BufferCache) Forget(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buffers, url)
	delete(c.failed, url)
}

func (c *BufferCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buffers)
}

// Prefetch decodes every url ahead of playback, four at a time. Failures are
// logged and cached, not returned.
func (c *BufferCache) Prefetch(ctx context.Context, urls []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, u := range urls {
		u := u
		g.Go(func() error {
			if _, err := c.Get(ctx, u); err != nil && ctx.Err() == nil {
				c.logger.Warn("audio prefetch failed", "url", u, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *BufferCache) load(ctx context.Context, url string) (*beep.Buffer, error) {
	c.mu.RLock()
	buf, ok := c.buffers[url]
	failErr := c.failed[url]
	c.mu.RUnlock()
	if ok {
		return buf, nil
	}
	if failErr != nil {
		return nil, failErr
	}

	start := time.Now()
	buf, err := c.decode(ctx, url)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failed[url] = err
		c.logger.Warn("audio decode failed", "url", url, "error", err)
		return nil, err
	}
	c.buffers[url] = buf
	c.logger.Debug("audio decoded",
		"url", url,
		"frames", buf.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return buf, nil
}

func (c *BufferCache) decode(ctx context.Context, url string) (*beep.Buffer, error) {
	rc, err := c.opener.Open(ctx, url)
	if err != nil {
		return nil, err
	}

	var (
		stream beep.StreamSeekCloser
		format beep.Format
	)
	switch ext := strings.ToLower(path.Ext(stripQuery(url))); ext {
	case ".mp3":
		stream, format, err = mp3.Decode(rc)
	case ".wav", ".wave":
		stream, format, err = wav.Decode(rc)
	default:
		rc.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAudio, ext)
	}
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	defer stream.Close()

	var src beep.Streamer = stream
	if format.SampleRate != c.format.SampleRate {
		src = beep.Resample(4, format.SampleRate, c.format.SampleRate, stream)
	}

	buf := beep.NewBuffer(c.format)
	buf.Append(src)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return buf, nil
}

func stripQuery(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		return url[:i]
	}
	return url
}
