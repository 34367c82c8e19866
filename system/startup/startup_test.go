package startup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/aquactl/internal/config"
	"github.com/thatsimonsguy/aquactl/internal/output"
	"github.com/thatsimonsguy/aquactl/internal/pinctrl"
)

func testConfig(invert bool) config.Config {
	return config.Config{
		GPIOChip:     "/dev/gpiochip0",
		InvertOutput: invert,
		Outputs: []output.Description{
			{ID: "light", Type: "gpio", Description: json.RawMessage(`{"pin": 17, "default": "on"}`)},
			{ID: "heater", Type: "gpio", Description: json.RawMessage(`{"pin": 4}`)},
			{ID: "expander", Type: "gpio", Description: json.RawMessage(`{"pin": 2, "chip": "/dev/gpiochip1"}`)},
			{ID: "co2", Type: "mqtt", Description: json.RawMessage(`{"url": "h", "port": 1883, "topic": "t", "default": "off"}`)},
		},
	}
}

func TestBootPins(t *testing.T) {
	pins, err := BootPins(testConfig(false))
	require.NoError(t, err)
	assert.Equal(t, []BootPin{
		{Output: "heater", Pin: 4, High: false},
		{Output: "light", Pin: 17, High: true},
	}, pins)

	pins, err = BootPins(testConfig(true))
	require.NoError(t, err)
	assert.True(t, pins[0].High)
	assert.False(t, pins[1].High)
}

func TestBootPins_InvalidDescription(t *testing.T) {
	cfg := config.Config{
		GPIOChip: "/dev/gpiochip0",
		Outputs:  []output.Description{{ID: "x", Type: "gpio", Description: json.RawMessage(`{"default": "on"}`)}},
	}
	_, err := BootPins(cfg)
	assert.Error(t, err)
}

func TestWriteStartupScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.sh")
	require.NoError(t, WriteStartupScript(path, testConfig(false)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	script := string(data)
	assert.Contains(t, script, "#!/bin/bash")
	assert.Contains(t, script, "# heater\npinctrl set 4 op pn dl\n")
	assert.Contains(t, script, "# light\npinctrl set 17 op pn dh\n")
	assert.NotContains(t, script, "expander")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestCheckPins(t *testing.T) {
	orig := pinctrl.Command
	t.Cleanup(func() { pinctrl.Command = orig })
	pinctrl.Command = func(args ...string) ([]byte, error) {
		return []byte(" 4: op dl pn | lo // GPIO4 = output\n17: ip    pu | hi // GPIO17 = input\n"), nil
	}

	mismatches, err := CheckPins(testConfig(false))
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Contains(t, mismatches[0], "light")
}

func TestUnits(t *testing.T) {
	unit := StartupUnit("/usr/local/bin/aquactl-boot.sh")
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/aquactl-boot.sh")
	assert.Contains(t, unit, "Type=oneshot")

	unit = ControllerUnit(Service{
		User:        "aquactl",
		WorkDir:     "/opt/aquactl",
		Binary:      "/opt/aquactl/aquactl",
		ConfigFile:  "/etc/aquactl/config.json",
		StartupUnit: "/etc/systemd/system/aquactl-boot.service",
	})
	assert.Contains(t, unit, "Requires=aquactl-boot.service")
	assert.Contains(t, unit, "ExecStart=/opt/aquactl/aquactl -config-file /etc/aquactl/config.json")
	assert.Contains(t, unit, "User=aquactl")

	unit = ControllerUnit(Service{User: "u", WorkDir: "/", Binary: "/b", ConfigFile: "/c"})
	assert.NotContains(t, unit, "Requires=")
}
