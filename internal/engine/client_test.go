package engine

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/corridor.report/internal/cluster"
	"github.com/banshee-data/corridor.report/internal/signal"
)

// scriptedBridge answers each request line with the reply mapped to it and
// records the requests it saw.
func scriptedBridge(t *testing.T, replies map[string]string) (*Client, *[]string) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	var seen []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		r := bufio.NewReader(serverConn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSuffix(line, "\n")
			seen = append(seen, line)
			reply, ok := replies[line]
			if !ok {
				reply = "ERR bad_request " + line
			}
			if _, err := serverConn.Write([]byte(reply + "\n")); err != nil {
				return
			}
		}
	}()
	c := NewClient(clientConn, time.Second)
	t.Cleanup(func() {
		c.Close()
		serverConn.Close()
		<-done
	})
	return c, &seen
}

func TestClientSessionCommands(t *testing.T) {
	c, seen := scriptedBridge(t, map[string]string{
		"CONFIGURE 5400 42 1 900":       "OK",
		"RESET_COUNTERS":                "OK",
		"ADD_QUEUE_COUNTER 7 188.5":     "OK 1",
		"ADD_DATA_COLLECTION 7 2 178.4": "OK 3",
		"RUN 30":                        "OK",
		"SET K1 GREEN,RED,AMBER":        "OK",
		"RUN_END":                       "OK",
		"QUERY vehs 3 2":                "OK 417",
		"QUERY trav_tm 1 1":             "OK null",
	})
	ctx := context.Background()

	require.NoError(t, c.Configure(ctx, Settings{Horizon: 5400, Seed: 42, Quick: true, VehicleInputInterval: 900}))
	require.NoError(t, c.ResetCounters(ctx))
	id, err := c.AddQueueCounter(ctx, 7, 188.5)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	id, err = c.AddDataCollection(ctx, 7, 2, 178.4)
	require.NoError(t, err)
	assert.Equal(t, 3, id)
	require.NoError(t, c.RunUntil(ctx, 30))
	require.NoError(t, c.SetControllerState(ctx, "K1", signal.PhaseStep{signal.Green, signal.Red, signal.Amber}))
	require.NoError(t, c.RunToEnd(ctx))

	v, err := c.Query(ctx, Vehicles, 3, 2)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 417.0, *v)

	v, err = c.Query(ctx, TravelTime, 1, 1)
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.Len(t, *seen, 9)
}

func TestClientNetwork(t *testing.T) {
	c, _ := scriptedBridge(t, map[string]string{
		"NETWORK": `OK {"controllers":[{"name":"K1","groups":2}],"detectors":[{"link_id":7,"lane_id":1,"position":180,"link_length":200}],"travel_time_sections":[{"id":1,"start_link":7,"end_link":9,"distance":400}],"nodes":[1]}`,
	})
	n, err := c.Network(context.Background())
	require.NoError(t, err)

	want := &Network{
		Controllers: []Controller{{Name: "K1", Groups: 2}},
		Detectors:   []cluster.DetectorPosition{{LinkID: 7, LaneID: 1, Position: 180, LinkLength: 200}},
		Sections:    []TravelTimeSection{{ID: 1, StartLink: 7, EndLink: 9, Distance: 400}},
		Nodes:       []int{1},
	}
	if diff := cmp.Diff(want, n); diff != "" {
		t.Errorf("Network() mismatch (-want +got):\n%s", diff)
	}
}

func TestClientErrorReplies(t *testing.T) {
	c, _ := scriptedBridge(t, map[string]string{
		"SET K9 RED":       "ERR unknown_controller K9 is not in the network",
		"QUERY qstops 4 1": "ERR unknown_element no queue counter 4",
		"RUN 10":           "ERR busy simulation not configured",
		"QUERY vehs 1 1":   "OK many",
		"RUN_END":          "HELLO",
	})
	ctx := context.Background()

	err := c.SetControllerState(ctx, "K9", signal.PhaseStep{signal.Red})
	assert.ErrorIs(t, err, ErrUnknownController)
	var ce *ConsistencyError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "K9", ce.Element)

	_, err = c.Query(ctx, QueueStops, 4, 1)
	assert.ErrorIs(t, err, ErrUnknownElement)

	err = c.RunUntil(ctx, 10)
	require.Error(t, err)
	assert.False(t, IsConsistencyError(err))
	assert.Contains(t, err.Error(), "busy")

	_, err = c.Query(ctx, Vehicles, 1, 1)
	assert.ErrorIs(t, err, ErrProtocol)

	err = c.RunToEnd(ctx)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestClientTimeout(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()
	go func() {
		// Drain the request and never answer.
		bufio.NewReader(serverConn).ReadString('\n')
	}()
	c := NewClient(clientConn, 50*time.Millisecond)
	defer c.Close()

	err := c.ResetCounters(context.Background())
	require.Error(t, err)
	var ne net.Error
	assert.True(t, errors.As(err, &ne) && ne.Timeout(), "want timeout, got %v", err)
}

func TestClientRunOutlastsTimeout(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()
	go func() {
		r := bufio.NewReader(serverConn)
		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
			// Simulating a segment takes longer than any single query may.
			time.Sleep(200 * time.Millisecond)
			if _, err := serverConn.Write([]byte("OK\n")); err != nil {
				return
			}
		}
	}()
	c := NewClient(clientConn, 50*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.RunUntil(context.Background(), 3600))
	require.NoError(t, c.RunToEnd(context.Background()))
}

func TestClientRunStopsOnCancel(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()
	go func() {
		bufio.NewReader(serverConn).ReadString('\n')
	}()
	c := NewClient(clientConn, 50*time.Millisecond)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	err := c.RunUntil(ctx, 3600)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientLevelOfService(t *testing.T) {
	c, _ := scriptedBridge(t, map[string]string{
		"QUERY los 1 2": "OK C",
		"QUERY los 2 2": "OK 5",
		"QUERY los 3 2": "OK null",
		"QUERY los 4 2": "OK Z",
	})
	ctx := context.Background()

	v, err := c.Query(ctx, LevelOfService, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3.0, *v)
	v, err = c.Query(ctx, LevelOfService, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5.0, *v)
	v, err = c.Query(ctx, LevelOfService, 3, 2)
	require.NoError(t, err)
	assert.Nil(t, v)
	_, err = c.Query(ctx, LevelOfService, 4, 2)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDialRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	_, err = Dial(context.Background(), addr, time.Second)
	assert.Error(t, err)
}
