package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/corridor.report/internal/signal"
)

func TestFakeSession(t *testing.T) {
	ctx := context.Background()
	f := NewFake(DemoNetwork(SameGroups(2, "K1", "K2")))
	var e Engine = f

	require.NoError(t, e.Configure(ctx, Settings{Horizon: 120}))
	n, err := e.Network(ctx)
	require.NoError(t, err)
	assert.Len(t, n.Detectors, 8)
	assert.Len(t, n.Sections, 2)

	id, err := e.AddQueueCounter(ctx, 10, 188)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	_, err = e.AddQueueCounter(ctx, 99, 10)
	assert.ErrorIs(t, err, ErrUnknownElement)

	require.NoError(t, e.RunUntil(ctx, 30))
	assert.Error(t, e.RunUntil(ctx, 30), "instants must increase")
	assert.Error(t, e.RunUntil(ctx, 121), "instants must stay within the horizon")

	require.NoError(t, e.SetControllerState(ctx, "K2", signal.PhaseStep{signal.Red, signal.Green}))
	err = e.SetControllerState(ctx, "K3", signal.PhaseStep{signal.Red, signal.Green})
	assert.ErrorIs(t, err, ErrUnknownController)
	err = e.SetControllerState(ctx, "K1", signal.PhaseStep{signal.Red})
	assert.ErrorIs(t, err, ErrGroupMismatch)

	require.NoError(t, e.RunToEnd(ctx))
	assert.Equal(t, 120, f.Now)
	require.Len(t, f.Pushes, 1)
	assert.Equal(t, Push{At: 30, Controller: "K2", Step: signal.PhaseStep{signal.Red, signal.Green}}, f.Pushes[0])

	f.Set(QueueStops, 1, 1, 7)
	v, err := e.Query(ctx, QueueStops, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 7.0, *v)

	v, err = e.Query(ctx, QueueStops, 1, 2)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = e.Query(ctx, Vehicles, 1, 1)
	assert.ErrorIs(t, err, ErrUnknownElement, "no data collection points were placed")

	require.NoError(t, e.ResetCounters(ctx))
	_, err = e.Query(ctx, QueueStops, 1, 1)
	assert.ErrorIs(t, err, ErrUnknownElement)

	require.NoError(t, e.Close())
	assert.True(t, f.Closed)
}

func TestDemoReadings(t *testing.T) {
	for _, q := range []Quantity{Vehicles, Occupancy, QueueStops, TravelTime, EmissionsCO, EmissionsVOC} {
		for hour := 1; hour <= 3; hour++ {
			v := DemoReadings(Reading{Quantity: q, ID: 2, Hour: hour})
			require.NotNil(t, v)
			assert.GreaterOrEqual(t, *v, 0.0)
		}
	}
	assert.Equal(t, 0.0, *DemoReadings(Reading{Quantity: TravelTime, ID: 1, Hour: 1}))
	assert.Greater(t, *DemoReadings(Reading{Quantity: TravelTime, ID: 1, Hour: 2}), 0.0)
}

func TestDemoNetworkKeepsControllerGroups(t *testing.T) {
	ctx := context.Background()
	f := NewFake(DemoNetwork([]Controller{{Name: "K1", Groups: 4}, {Name: "K2", Groups: 2}}))
	require.NoError(t, f.Configure(ctx, Settings{Horizon: 60}))

	require.NoError(t, f.SetControllerState(ctx, "K1", signal.PhaseStep{signal.Green, signal.Red, signal.Green, signal.Red}))
	require.NoError(t, f.SetControllerState(ctx, "K2", signal.PhaseStep{signal.Red, signal.Green}))
	err := f.SetControllerState(ctx, "K2", signal.PhaseStep{signal.Green, signal.Red, signal.Green, signal.Red})
	assert.ErrorIs(t, err, ErrGroupMismatch)
}

func TestFakeLinkAndNodeQueries(t *testing.T) {
	ctx := context.Background()
	f := NewFake(DemoNetwork(SameGroups(2, "K1", "K2")))
	f.Fill = DemoReadings

	for _, q := range []Quantity{LinkDelayRel, LinkDensity, LinkSpeed} {
		_, err := f.Query(ctx, q, 20, 2)
		assert.NoError(t, err, q)
		_, err = f.Query(ctx, q, 30, 2)
		assert.ErrorIs(t, err, ErrUnknownElement, q)
	}

	v, err := f.Query(ctx, LevelOfService, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 3.0, *v)
	v, err = f.Query(ctx, LevelOfService, 2, 1)
	require.NoError(t, err)
	assert.Nil(t, v, "node 2 is unrated in the first hour")
	_, err = f.Query(ctx, LevelOfService, 9, 1)
	assert.ErrorIs(t, err, ErrUnknownElement)

	assert.Equal(t, 0.0, *DemoReadings(Reading{Quantity: LinkSpeed, ID: 10, Hour: 1}))
	assert.Greater(t, *DemoReadings(Reading{Quantity: LinkSpeed, ID: 20, Hour: 1}), 0.0)
}
