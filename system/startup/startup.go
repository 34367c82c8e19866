// Package startup parks gpio outputs at their defaults during boot, before
// the controller runs, and installs the systemd units doing so.
package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/thatsimonsguy/aquactl/internal/backend"
	"github.com/thatsimonsguy/aquactl/internal/config"
	"github.com/thatsimonsguy/aquactl/internal/pinctrl"
	"github.com/thatsimonsguy/aquactl/internal/value"
)

// BootPin is the level one gpio output is parked at.
type BootPin struct {
	Output string
	Pin    int
	High   bool
}

// BootPins lists the gpio outputs of the default chip with the level their
// default state drives. pinctrl only addresses the header chip, so outputs
// on other chips are skipped.
func BootPins(cfg config.Config) ([]BootPin, error) {
	var pins []BootPin
	for _, o := range cfg.Outputs {
		if o.Type != backend.TypeGPIO {
			continue
		}
		line, err := backend.ParseGPIODescription(o.Description, cfg.GPIOChip)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", o.ID, err)
		}
		if line.Chip != cfg.GPIOChip {
			continue
		}
		on := line.Default == value.On
		pins = append(pins, BootPin{Output: o.ID, Pin: line.Pin, High: on != cfg.InvertOutput})
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i].Pin < pins[j].Pin })
	return pins, nil
}

func BootScript(pins []BootPin) string {
	lines := []string{"#!/bin/bash", "", "# aquactl GPIO output defaults at boot", ""}
	for _, p := range pins {
		lines = append(lines, fmt.Sprintf("# %s", p.Output))
		lines = append(lines, "pinctrl "+strings.Join(pinctrl.SetArgs(p.Pin, p.High), " "))
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n") + "\n"
}

func WriteStartupScript(path string, cfg config.Config) error {
	pins, err := BootPins(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(BootScript(pins)), 0755)
}

// CheckPins compares the live pin states with the boot levels and describes
// every pin that differs.
func CheckPins(cfg config.Config) ([]string, error) {
	pins, err := BootPins(cfg)
	if err != nil {
		return nil, err
	}
	states, err := pinctrl.ReadAllPins()
	if err != nil {
		return nil, err
	}

	var mismatches []string
	for _, p := range pins {
		st, ok := states[p.Pin]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: pin %d not reported by pinctrl", p.Output, p.Pin))
			continue
		}
		if !st.Driving(p.High) {
			mismatches = append(mismatches, fmt.Sprintf("%s: pin %d is %s %s, want op %s", p.Output, p.Pin, st.Mode, st.Drive, pinctrl.Drive(p.High)))
		}
	}
	return mismatches, nil
}

func StartupUnit(scriptPath string) string {
	return fmt.Sprintf(`[Unit]
Description=Park aquactl GPIO outputs at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, scriptPath)
}

func InstallStartupService(unitPath, scriptPath string) error {
	return os.WriteFile(unitPath, []byte(StartupUnit(scriptPath)), 0644)
}

// Service describes the controller unit.
type Service struct {
	User       string
	WorkDir    string
	Binary     string
	ConfigFile string
	// StartupUnit is the unit file of the boot script, if installed.
	StartupUnit string
}

func ControllerUnit(svc Service) string {
	var deps string
	if svc.StartupUnit != "" {
		name := filepath.Base(svc.StartupUnit)
		deps = fmt.Sprintf("After=%s\nRequires=%s\n", name, name)
	}
	return fmt.Sprintf(`[Unit]
Description=aquactl output controller
%s
[Service]
Type=simple
User=%s
WorkingDirectory=%s
ExecStart=%s -config-file %s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, deps, svc.User, svc.WorkDir, svc.Binary, svc.ConfigFile)
}

func InstallControllerService(unitPath string, svc Service) error {
	return os.WriteFile(unitPath, []byte(ControllerUnit(svc)), 0644)
}

func RunStartupScript(path string) error {
	cmd := exec.Command("/bin/bash", path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
