package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tankConfig = `{
	"outputs": [
		{"id": "light", "type": "gpio", "description": {"pin": 17}},
		{"id": "co2", "type": "mqtt", "description": {"url": "broker.local", "port": 1883, "topic": "tank/co2", "default": "off"}}
	]
}`

const dayFile = `{
	"actions": [
		{"id": 1, "outputs": [{"id": "light", "value": "on"}, {"id": "co2", "value": "on"}]},
		{"id": 2, "outputs": [{"id": "light", "value": "off"}, {"id": "co2", "value": "off"}]}
	],
	"schedule": {
		"title": "day",
		"start_at": "2024-03-01",
		"repeating": true,
		"events": [
			{"id": 1, "day": 0, "trigger_at": "08:00", "actions": [1]},
			{"id": 2, "day": 0, "trigger_at": "20:00", "actions": [2]}
		]
	}
}`

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestCheckSchedule(t *testing.T) {
	cfg := writeFile(t, "config.json", tankConfig)
	file := writeFile(t, "day.json", dayFile)

	var out bytes.Buffer
	require.NoError(t, checkSchedule(&out, cfg, file))
	assert.Contains(t, out.String(), `schedule "day": repeating, 2 events, period 1 days`)
	assert.Contains(t, out.String(), "event 2: day 0 at 20:00, actions [2]")
}

func TestCheckSchedule_UnknownOutput(t *testing.T) {
	file := writeFile(t, "day.json", dayFile)

	var out bytes.Buffer
	assert.Error(t, checkSchedule(&out, "", file))
	assert.Empty(t, out.String())
}
