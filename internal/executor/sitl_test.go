package executor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSITLScanSuccess(t *testing.T) {
	sitl := NewSITLConnector("")
	payload, _ := json.Marshal(ScanPayload{Sector: "A"})

	res, err := sitl.Call(context.Background(), ActionScanSector, payload)
	require.NoError(t, err)

	var scan ScanResult
	require.NoError(t, json.Unmarshal(res, &scan))
	assert.Equal(t, "scanned", scan.Status)
	assert.Equal(t, "A", scan.Sector)
	assert.Greater(t, scan.EnergyUsed, 0.0)
}

func TestSITLFailSector(t *testing.T) {
	sitl := NewSITLConnector("B")
	payload, _ := json.Marshal(ScanPayload{Sector: "b"})

	_, err := sitl.Call(context.Background(), ActionScanSector, payload)
	assert.Error(t, err, "настроенный сектор отказа должен падать независимо от регистра")
}

func TestSITLLifecycleActions(t *testing.T) {
	sitl := NewSITLConnector("")

	res, err := sitl.Call(context.Background(), ActionTakeoff, nil)
	require.NoError(t, err)
	assert.Contains(t, string(res), "airborne")

	res, err = sitl.Call(context.Background(), ActionLand, nil)
	require.NoError(t, err)
	assert.Contains(t, string(res), "landed")
}

func TestSITLUnknownAction(t *testing.T) {
	sitl := NewSITLConnector("")
	_, err := sitl.Call(context.Background(), "teleport", nil)
	assert.Error(t, err)
}

func TestSITLHonorsContextCancel(t *testing.T) {
	sitl := NewSITLConnector("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sitl.Call(ctx, ActionTakeoff, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
