package markdrill

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Get performs a GET request bound to ctx.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// openStream connects to the video feed and waits for the first frame, which
// guarantees the detection loop is running. The stream stays open until ctx
// ends so the loop keeps a viewer for the whole drill.
func openStream(ctx context.Context, baseURL string, warmUp time.Duration) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/video-feed", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create stream request: %w", err)
	}
	// No client timeout: the stream never ends on its own.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || params["boundary"] == "" {
		resp.Body.Close()
		return fmt.Errorf("stream is not multipart: %q", resp.Header.Get("Content-Type"))
	}

	first := make(chan error, 1)
	go func() {
		defer resp.Body.Close()
		mr := multipart.NewReader(bufio.NewReaderSize(resp.Body, streamReadBuffer), params["boundary"])
		announced := false
		for {
			part, err := mr.NextPart()
			if err != nil {
				if !announced {
					first <- err
				}
				return
			}
			_, _ = io.Copy(io.Discard, part)
			if !announced {
				announced = true
				first <- nil
			}
		}
	}()

	t := time.NewTimer(warmUp)
	defer t.Stop()
	select {
	case err := <-first:
		if err != nil {
			return fmt.Errorf("stream ended before the first frame: %w", err)
		}
		return nil
	case <-t.C:
		return fmt.Errorf("no frame within %s", warmUp)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fireMarks sends config.Requests mark requests through a worker pool and
// releases them together so they race inside the service.
func fireMarks(ctx context.Context, config *Config) []Result {
	log.Printf("🎯 Firing %d mark requests with %d workers...", config.Requests, config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/mark-attendance"
	results := make([]Result, config.Requests)

	var (
		done  int64
		start = make(chan struct{})
		jobs  = make(chan int, config.Workers*WorkerChannelMultiplier)
		wg    sync.WaitGroup
	)

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for idx := range jobs {
				results[idx] = markOnce(ctx, client, url, idx)
				n := atomic.AddInt64(&done, 1)
				if config.Verbose {
					log.Printf("📊 %d/%d: %s", n, config.Requests, results[idx].Response.Status)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < config.Requests; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	close(start)
	wg.Wait()
	return results
}

// markOnce performs a single mark request.
func markOnce(ctx context.Context, client *HTTPClient, url string, idx int) Result {
	res := Result{Index: idx}
	begin := time.Now()
	resp, err := client.Get(ctx, url)
	res.Latency = time.Since(begin)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	if err := json.Unmarshal(body, &res.Response); err != nil {
		res.Err = fmt.Sprintf("decode response: %v", err)
	}
	return res
}
