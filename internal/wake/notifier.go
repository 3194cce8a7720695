package wake

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TokenHeader carries the shared secret on wake requests.
const TokenHeader = "X-Wake-Token"

// HTTPNotifier pokes a worker's wake endpoint. Calls are fire-and-forget:
// Notify returns immediately and failures are only logged.
type HTTPNotifier struct {
	url     string
	token   string
	client  *http.Client
	timeout time.Duration
	log     *zap.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewHTTPNotifier(url, token string, timeout time.Duration, client *http.Client, log *zap.Logger) *HTTPNotifier {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPNotifier{
		url:     url,
		token:   token,
		client:  client,
		timeout: timeout,
		log:     log,
	}
}

// Notify sends one wake request in the background.
func (n *HTTPNotifier) Notify() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		if err := n.send(); err != nil {
			n.log.Warn("wake request failed", zap.String("url", n.url), zap.Error(err))
		}
	}()
}

func (n *HTTPNotifier) send() error {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(TokenHeader, n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("worker responded %d", resp.StatusCode)
	}
	return nil
}

// Close stops accepting new wake calls and waits for in-flight ones.
func (n *HTTPNotifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.wg.Wait()
}
