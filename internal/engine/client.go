package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/corridor.report/internal/monitoring"
	"github.com/banshee-data/corridor.report/internal/signal"
	"github.com/banshee-data/corridor.report/internal/units"
)

// ErrProtocol is returned for replies the client cannot parse.
var ErrProtocol = errors.New("engine protocol error")

// maxReply bounds one reply line; the NETWORK reply carries the topology.
const maxReply = 16 << 20

// Client talks to an engine bridge over a line protocol: one request line,
// one reply line. Replies are "OK", "OK <value>" or "ERR <code> <message>".
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// Dial connects to the bridge at addr. timeout bounds each request except
// RUN and RUN_END, which advance the simulation and may take as long as the
// segment needs; zero means requests wait until ctx is done.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial engine bridge %s: %w", addr, err)
	}
	monitoring.Logf("connected to engine bridge at %s", addr)
	return NewClient(conn, timeout), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, timeout time.Duration) *Client {
	return &Client{conn: conn, r: bufio.NewReaderSize(conn, 64<<10), timeout: timeout}
}

// call sends one request and returns the reply payload after "OK".
func (c *Client) call(ctx context.Context, op, element string, args ...string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Time{}
	if c.timeout > 0 && !advances(op) {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("%s: set deadline: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// Cancelling ctx unblocks a pending read or write.
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Now()) })
	defer stop()

	line := strings.Join(append([]string{op}, args...), " ") + "\n"
	if _, err := c.conn.Write([]byte(line)); err != nil {
		return "", c.ioError(ctx, op, "write", err)
	}
	reply, err := c.readLine()
	if err != nil {
		return "", c.ioError(ctx, op, "read", err)
	}
	return parseReply(op, element, reply)
}

// advances reports whether op steps the simulation clock.
func advances(op string) bool {
	return op == "RUN" || op == "RUN_END"
}

func (c *Client) ioError(ctx context.Context, op, dir string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %s: %w", op, dir, ctxErr)
	}
	return fmt.Errorf("%s: %s: %w", op, dir, err)
}

func (c *Client) readLine() (string, error) {
	var sb strings.Builder
	for {
		chunk, isPrefix, err := c.r.ReadLine()
		if err != nil {
			return "", err
		}
		sb.Write(chunk)
		if sb.Len() > maxReply {
			return "", fmt.Errorf("%w: reply exceeds %d bytes", ErrProtocol, maxReply)
		}
		if !isPrefix {
			return sb.String(), nil
		}
	}
}

func parseReply(op, element, reply string) (string, error) {
	reply = strings.TrimRight(reply, "\r")
	switch {
	case reply == "OK":
		return "", nil
	case strings.HasPrefix(reply, "OK "):
		return strings.TrimSpace(reply[3:]), nil
	case strings.HasPrefix(reply, "ERR "):
		code, msg, _ := strings.Cut(strings.TrimSpace(reply[4:]), " ")
		switch code {
		case "unknown_controller":
			return "", &ConsistencyError{Op: op, Element: element, Err: fmt.Errorf("%w: %s", ErrUnknownController, msg)}
		case "unknown_element":
			return "", &ConsistencyError{Op: op, Element: element, Err: fmt.Errorf("%w: %s", ErrUnknownElement, msg)}
		}
		return "", fmt.Errorf("%s: engine error %s: %s", op, code, msg)
	}
	return "", fmt.Errorf("%w: %s: unexpected reply %q", ErrProtocol, op, reply)
}

func (c *Client) callInt(ctx context.Context, op, element string, args ...string) (int, error) {
	payload, err := c.call(ctx, op, element, args...)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: expected id, got %q", ErrProtocol, op, payload)
	}
	return n, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (c *Client) Configure(ctx context.Context, s Settings) error {
	_, err := c.call(ctx, "CONFIGURE", "",
		strconv.Itoa(s.Horizon), strconv.Itoa(s.Seed), boolFlag(s.Quick), strconv.Itoa(s.VehicleInputInterval))
	return err
}

func (c *Client) Network(ctx context.Context) (*Network, error) {
	payload, err := c.call(ctx, "NETWORK", "")
	if err != nil {
		return nil, err
	}
	var n Network
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return nil, fmt.Errorf("%w: NETWORK: %v", ErrProtocol, err)
	}
	return &n, nil
}

func (c *Client) ResetCounters(ctx context.Context) error {
	_, err := c.call(ctx, "RESET_COUNTERS", "")
	return err
}

func (c *Client) AddQueueCounter(ctx context.Context, link int, pos float64) (int, error) {
	return c.callInt(ctx, "ADD_QUEUE_COUNTER", fmt.Sprintf("link %d", link), strconv.Itoa(link), formatFloat(pos))
}

func (c *Client) AddDataCollection(ctx context.Context, link, lane int, pos float64) (int, error) {
	return c.callInt(ctx, "ADD_DATA_COLLECTION", fmt.Sprintf("lane %d-%d", link, lane),
		strconv.Itoa(link), strconv.Itoa(lane), formatFloat(pos))
}

func (c *Client) RunUntil(ctx context.Context, instant int) error {
	_, err := c.call(ctx, "RUN", "", strconv.Itoa(instant))
	return err
}

func (c *Client) RunToEnd(ctx context.Context) error {
	_, err := c.call(ctx, "RUN_END", "")
	return err
}

func (c *Client) SetControllerState(ctx context.Context, controller string, step signal.PhaseStep) error {
	_, err := c.call(ctx, "SET", controller, controller, step.String())
	return err
}

func (c *Client) Query(ctx context.Context, q Quantity, id, hour int) (*float64, error) {
	element := fmt.Sprintf("%s %d", q, id)
	payload, err := c.call(ctx, "QUERY", element, string(q), strconv.Itoa(id), strconv.Itoa(hour))
	if err != nil {
		return nil, err
	}
	if payload == "null" || payload == "" {
		return nil, nil
	}
	if q == LevelOfService {
		if g, ok := units.LOSGrade(payload); ok {
			return &g, nil
		}
	}
	v, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: QUERY %s hour %d: %q is not a number", ErrProtocol, element, hour, payload)
	}
	return &v, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
