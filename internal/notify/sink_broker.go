package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// BrokerSink sends STOMP SEND frames to a message broker over a WebSocket
// connection. The connection is opened lazily and reopened after a failed
// write.
type BrokerSink struct {
	url          string
	headers      HeaderProvider
	dialTimeout  time.Duration
	writeTimeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

type BrokerOption func(*BrokerSink)

func WithBrokerHeaders(h HeaderProvider) BrokerOption {
	return func(b *BrokerSink) { b.headers = h }
}

func WithBrokerTimeouts(dial, write time.Duration) BrokerOption {
	return func(b *BrokerSink) { b.dialTimeout, b.writeTimeout = dial, write }
}

func NewBrokerSink(brokerURL string, opts ...BrokerOption) *BrokerSink {
	b := &BrokerSink{url: strings.TrimSpace(brokerURL), dialTimeout: 10 * time.Second, writeTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BrokerSink) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return Permanent(fmt.Errorf("encode event: %w", err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		if err := b.connect(ctx); err != nil {
			return err
		}
	}

	frame := stompFrame("SEND", [][2]string{
		{"destination", ev.Destination},
		{"content-type", "application/json"},
		{"content-length", strconv.Itoa(len(body))},
	}, body)

	wctx, cancel := context.WithTimeout(ctx, b.writeTimeout)
	defer cancel()
	if err := b.conn.Write(wctx, websocket.MessageText, frame); err != nil {
		b.dropConn(websocket.StatusGoingAway, "write failed")
		return fmt.Errorf("broker write: %w", err)
	}
	return nil
}

// connect dials, performs the STOMP handshake and then discards inbound
// data so that control frames keep being processed.
func (b *BrokerSink) connect(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, b.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dctx, b.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      b.buildHeaders(),
		Subprotocols:    []string{"v12.stomp"},
	})
	if err != nil {
		return fmt.Errorf("broker dial: %w", err)
	}

	host := "/"
	if u, perr := url.Parse(b.url); perr == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	hello := stompFrame("CONNECT", [][2]string{{"accept-version", "1.2"}, {"host", host}, {"heart-beat", "0,0"}}, nil)
	if err := conn.Write(dctx, websocket.MessageText, hello); err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "handshake")
		return fmt.Errorf("broker connect frame: %w", err)
	}
	_, reply, err := conn.Read(dctx)
	if err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "handshake")
		return fmt.Errorf("broker handshake: %w", err)
	}
	if !bytes.HasPrefix(reply, []byte("CONNECTED")) {
		_ = conn.Close(websocket.StatusPolicyViolation, "rejected")
		return fmt.Errorf("broker refused connection: %s", truncate(string(bytes.TrimRight(reply, "\x00")), 256))
	}
	conn.CloseRead(context.Background())
	b.conn = conn
	return nil
}

func (b *BrokerSink) dropConn(code websocket.StatusCode, reason string) {
	if b.conn == nil {
		return
	}
	_ = b.conn.Close(code, reason)
	b.conn = nil
}

// Close sends DISCONNECT and closes the socket.
func (b *BrokerSink) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = b.conn.Write(ctx, websocket.MessageText, stompFrame("DISCONNECT", nil, nil))
	err := b.conn.Close(websocket.StatusNormalClosure, "close")
	b.conn = nil
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *BrokerSink) buildHeaders() http.Header {
	hdr := http.Header{}
	if b.headers == nil {
		return hdr
	}
	for k, v := range b.headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}

var stompEscaper = strings.NewReplacer("\\", "\\\\", "\r", "\\r", "\n", "\\n", ":", "\\c")

// stompFrame renders a STOMP 1.2 frame: command, escaped headers, blank line,
// body and a NUL terminator.
func stompFrame(command string, headers [][2]string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(command)
	buf.WriteByte('\n')
	for _, h := range headers {
		buf.WriteString(stompEscaper.Replace(h[0]))
		buf.WriteByte(':')
		buf.WriteString(stompEscaper.Replace(h[1]))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(body)
	buf.WriteByte(0)
	return buf.Bytes()
}
