package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/codesync/internal/version"
	"pkt.systems/codesync/schema"
)

// SSETransport opens server-sent event streams at {api}/sse/{participant}.
type SSETransport struct {
	api    string
	client *http.Client
	// IdleTimeout closes a stream that receives no bytes for this long. Zero
	// disables the watchdog.
	IdleTimeout time.Duration
}

// NewSSETransport constructs an SSE transport for the given API base URL.
func NewSSETransport(api string, client *http.Client) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	return &SSETransport{api: strings.TrimRight(api, "/"), client: client, IdleTimeout: DefaultIdleTimeout}
}

// Open implements Transport.
func (t *SSETransport) Open(ctx context.Context, id schema.ParticipantID) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.api+"/sse/"+url.PathEscape(string(id)), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse handshake: http status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse handshake: unexpected content type %q", ct)
	}
	s := &sseStream{body: resp.Body, cancel: cancel}
	var body io.Reader = resp.Body
	if t.IdleTimeout > 0 {
		s.watchdog = time.AfterFunc(t.IdleTimeout, func() {
			s.idle.Store(true)
			_ = s.Close()
		})
		body = &idleReader{r: resp.Body, timer: s.watchdog, timeout: t.IdleTimeout}
	}
	s.lines = newLineScanner(body)
	return s, nil
}

type sseStream struct {
	body     io.ReadCloser
	lines    *bufio.Scanner
	cancel   context.CancelFunc
	watchdog *time.Timer
	idle     atomic.Bool
	once     sync.Once
}

// Next returns the data of the next event. Events without data lines
// (comments, retry hints) are skipped.
func (s *sseStream) Next(ctx context.Context) ([]byte, error) {
	for {
		data, err := readEventData(ctx, s.lines)
		if err != nil {
			if s.idle.Load() {
				return nil, ErrIdleTimeout
			}
			return nil, err
		}
		if data != nil {
			return data, nil
		}
	}
}

func (s *sseStream) Close() error {
	var err error
	s.once.Do(func() {
		if s.watchdog != nil {
			s.watchdog.Stop()
		}
		s.cancel()
		err = s.body.Close()
	})
	return err
}

// idleReader pushes the watchdog back whenever bytes arrive, keep-alive
// pings included.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), MaxFrameSize)
	return scanner
}

func readEventData(ctx context.Context, lines *bufio.Scanner) ([]byte, error) {
	var dataLines []string
	size := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !lines.Scan() {
			err := lines.Err()
			switch {
			case err == nil:
				return nil, io.ErrUnexpectedEOF
			case errors.Is(err, bufio.ErrTooLong):
				return nil, fmt.Errorf("sse line exceeds %d bytes: %w", MaxFrameSize, err)
			default:
				return nil, err
			}
		}
		line := strings.TrimRight(lines.Text(), "\r")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "data:") {
			data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			size += len(data) + 1
			if size > MaxFrameSize {
				return nil, fmt.Errorf("sse event exceeds %d bytes", MaxFrameSize)
			}
			dataLines = append(dataLines, data)
		}
	}
	if len(dataLines) == 0 {
		return nil, nil
	}
	return []byte(strings.Join(dataLines, "\n")), nil
}
