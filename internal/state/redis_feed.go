package state

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/example/rosterd/internal/observability"
)

type RedisFeedConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Timeout  time.Duration
}

// RedisFeed mirrors MemoryFeed on a shared Redis instance so several rosterd
// replicas can publish into one dashboard feed. It speaks RESP directly over
// a short-lived connection per call.
type RedisFeed struct {
	cfg RedisFeedConfig
}

func NewRedisFeed(cfg RedisFeedConfig) *RedisFeed {
	if cfg.Key == "" {
		cfg.Key = "rosterd:events"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &RedisFeed{cfg: cfg}
}

func (f *RedisFeed) pendingKey() string    { return f.cfg.Key + ":pending" }
func (f *RedisFeed) claimsKey() string     { return f.cfg.Key + ":claims" }
func (f *RedisFeed) visibilityKey() string { return f.cfg.Key + ":visibility" }

func (f *RedisFeed) labels(extra map[string]string) map[string]string {
	l := map[string]string{"feed_backend": "redis"}
	for k, v := range extra {
		l[k] = v
	}
	return l
}

func (f *RedisFeed) Publish(ctx context.Context, event FeedEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	conn, rw, err := f.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := writeRESP(rw, "LPUSH", f.pendingKey(), encodeFeedEvent(event)); err != nil {
		return err
	}
	if _, err := readRESP(rw); err != nil {
		return err
	}
	observability.Default.IncCounter("feed_published_total", f.labels(map[string]string{"kind": event.Kind}), 1)
	return nil
}

func (f *RedisFeed) Poll(ctx context.Context, max int, consumer string, visibilityTimeout time.Duration) ([]FeedClaim, error) {
	if max <= 0 {
		max = 1
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 15 * time.Second
	}
	conn, rw, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	now := time.Now().UTC()
	if err := f.requeueExpired(rw, now); err != nil {
		return nil, err
	}

	out := make([]FeedClaim, 0, max)
	for i := 0; i < max; i++ {
		if err := writeRESP(rw, "RPOP", f.pendingKey()); err != nil {
			return nil, err
		}
		resp, err := readRESP(rw)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			break
		}
		raw, ok := resp.(string)
		if !ok {
			return nil, errors.New("unexpected redis response type")
		}
		event, ok := decodeFeedEvent(raw)
		if !ok {
			// Malformed payloads are dropped rather than poisoning the feed.
			continue
		}

		receipt := fmt.Sprintf("%s:%d:%d", consumer, time.Now().UnixNano(), i)
		visibleAt := now.Add(visibilityTimeout)
		if err := writeRESP(rw, "HSET", f.claimsKey(), receipt, raw); err != nil {
			return nil, err
		}
		if _, err := readRESP(rw); err != nil {
			return nil, err
		}
		if err := writeRESP(rw, "ZADD", f.visibilityKey(), strconv.FormatInt(visibleAt.UnixMilli(), 10), receipt); err != nil {
			return nil, err
		}
		if _, err := readRESP(rw); err != nil {
			return nil, err
		}

		out = append(out, FeedClaim{
			Event:     event,
			Receipt:   receipt,
			ClaimedBy: consumer,
			ClaimedAt: now,
			VisibleAt: visibleAt,
		})
	}
	observability.Default.IncCounter("feed_polled_total", f.labels(map[string]string{"consumer": consumer}), float64(len(out)))
	return out, nil
}

func (f *RedisFeed) Ack(ctx context.Context, claims []FeedClaim) error {
	if len(claims) == 0 {
		return nil
	}
	conn, rw, err := f.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, c := range claims {
		if err := writeRESP(rw, "HDEL", f.claimsKey(), c.Receipt); err != nil {
			return err
		}
		if _, err := readRESP(rw); err != nil {
			return err
		}
		if err := writeRESP(rw, "ZREM", f.visibilityKey(), c.Receipt); err != nil {
			return err
		}
		if _, err := readRESP(rw); err != nil {
			return err
		}
	}
	observability.Default.IncCounter("feed_acked_total", f.labels(nil), float64(len(claims)))
	return nil
}

func (f *RedisFeed) requeueExpired(rw *bufio.ReadWriter, now time.Time) error {
	if err := writeRESP(rw, "ZRANGEBYSCORE", f.visibilityKey(), "-inf", strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		return err
	}
	resp, err := readRESP(rw)
	if err != nil {
		return err
	}
	receipts, err := toStringArray(resp)
	if err != nil {
		return err
	}
	for _, receipt := range receipts {
		if err := writeRESP(rw, "HGET", f.claimsKey(), receipt); err != nil {
			return err
		}
		payload, err := readRESP(rw)
		if err != nil {
			return err
		}
		if raw, ok := payload.(string); ok && raw != "" {
			if err := writeRESP(rw, "LPUSH", f.pendingKey(), raw); err != nil {
				return err
			}
			if _, err := readRESP(rw); err != nil {
				return err
			}
		}
		if err := writeRESP(rw, "HDEL", f.claimsKey(), receipt); err != nil {
			return err
		}
		if _, err := readRESP(rw); err != nil {
			return err
		}
		if err := writeRESP(rw, "ZREM", f.visibilityKey(), receipt); err != nil {
			return err
		}
		if _, err := readRESP(rw); err != nil {
			return err
		}
	}
	return nil
}

func (f *RedisFeed) connect(ctx context.Context) (net.Conn, *bufio.ReadWriter, error) {
	dialer := net.Dialer{Timeout: f.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", f.cfg.Addr)
	if err != nil {
		return nil, nil, err
	}
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	if f.cfg.Password != "" {
		if err := writeRESP(rw, "AUTH", f.cfg.Password); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		if _, err := readRESP(rw); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
	}
	if f.cfg.DB > 0 {
		if err := writeRESP(rw, "SELECT", strconv.Itoa(f.cfg.DB)); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		if _, err := readRESP(rw); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
	}
	return conn, rw, nil
}

func writeRESP(rw *bufio.ReadWriter, parts ...string) error {
	if _, err := fmt.Fprintf(rw, "*%d\r\n", len(parts)); err != nil {
		return err
	}
	for _, p := range parts {
		if _, err := fmt.Fprintf(rw, "$%d\r\n%s\r\n", len(p), p); err != nil {
			return err
		}
	}
	return rw.Flush()
}

func readRESP(rw *bufio.ReadWriter) (any, error) {
	prefix, err := rw.ReadByte()
	if err != nil {
		return nil, err
	}
	line, err := rw.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")

	switch prefix {
	case '+', ':':
		return line, nil
	case '-':
		return nil, fmt.Errorf("redis error: %s", line)
	case '$':
		n, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		if n == -1 {
			return nil, nil
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(rw, buf); err != nil {
			return nil, err
		}
		return string(buf[:n]), nil
	case '*':
		n, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		if n == -1 {
			return nil, nil
		}
		arr := make([]string, 0, n)
		for i := 0; i < n; i++ {
			v, err := readRESP(rw)
			if err != nil {
				return nil, err
			}
			if v == nil {
				arr = append(arr, "")
				continue
			}
			s, ok := v.(string)
			if !ok {
				return nil, errors.New("unexpected redis array element")
			}
			arr = append(arr, s)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unsupported redis response prefix %q", prefix)
	}
}

func toStringArray(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]string)
	if !ok {
		return nil, errors.New("unexpected redis array response type")
	}
	return arr, nil
}

func encodeFeedEvent(event FeedEvent) string {
	b, _ := json.Marshal(event)
	return string(b)
}

func decodeFeedEvent(raw string) (FeedEvent, bool) {
	var event FeedEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return FeedEvent{}, false
	}
	if event.Kind == "" {
		return FeedEvent{}, false
	}
	return event, true
}
