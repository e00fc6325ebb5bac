package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-ssvep/configs"
)

func TestInspectWindowFindsStimulus(t *testing.T) {
	config := configs.GetDefaultConfig()
	config.Simulation.Frequency = 14

	targets, err := inspectWindow(config, 4)
	require.NoError(t, err)
	require.Len(t, targets, 4)

	best := 0
	for i, target := range targets {
		if target.SNR > targets[best].SNR {
			best = i
		}
	}
	assert.Equal(t, 14.0, targets[best].Frequency)
	assert.Greater(t, targets[best].Decibels, 20.0)

	var buf bytes.Buffer
	require.NoError(t, printSNR(&buf, "table", targets))
	assert.Contains(t, buf.String(), "14 Hz")
}
