package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/aquactl/db"
	"github.com/thatsimonsguy/aquactl/internal/backend"
	"github.com/thatsimonsguy/aquactl/internal/can"
	"github.com/thatsimonsguy/aquactl/internal/config"
	"github.com/thatsimonsguy/aquactl/internal/controllers/schedulecontroller"
	"github.com/thatsimonsguy/aquactl/internal/gpio"
	"github.com/thatsimonsguy/aquactl/internal/mqtt"
	"github.com/thatsimonsguy/aquactl/internal/output"
	"github.com/thatsimonsguy/aquactl/internal/schedule"
	"github.com/thatsimonsguy/aquactl/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, outputID, configPath, file, unitPath, mainUnitPath, user, workdir, binary string
	var limit int
	flag.StringVar(&dbPath, "db", "data/events.db", "Path to the SQLite event log")
	flag.StringVar(&command, "cmd", "", "Command to run: events, check-schedule, boot-script, check-pins, install-service")
	flag.StringVar(&outputID, "output", "", "Output ID for events")
	flag.IntVar(&limit, "limit", db.DefaultLimit, "Number of events to show")
	flag.StringVar(&configPath, "config-file", "", "Path to controller config file")
	flag.StringVar(&file, "file", "", "Schedule file, or boot script path")
	flag.StringVar(&unitPath, "unit", "/etc/systemd/system/aquactl-boot.service", "Boot unit path for install-service")
	flag.StringVar(&mainUnitPath, "main-unit", "/etc/systemd/system/aquactl.service", "Controller unit path for install-service")
	flag.StringVar(&user, "user", "aquactl", "User the controller runs as")
	flag.StringVar(&workdir, "workdir", "/opt/aquactl", "Working directory of the controller")
	flag.StringVar(&binary, "binary", "/opt/aquactl/aquactl", "Controller binary")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of aquactl-debug:")
		fmt.Println("  -cmd events [-db path] [-output id] [-limit n]\tPrint the event log")
		fmt.Println("  -cmd check-schedule -file f [-config-file c]\tParse a schedule file without touching hardware")
		fmt.Println("  -cmd boot-script -config-file c -file f\tWrite the boot script parking gpio outputs")
		fmt.Println("  -cmd check-pins -config-file c\tCompare live pins with their boot levels")
		fmt.Println("  -cmd install-service -config-file c -file f\tWrite boot script and systemd units")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	var err error
	switch command {
	case "events":
		err = db.PrintEventsCLI(os.Stdout, dbPath, outputID, limit)
	case "check-schedule":
		if file == "" {
			fmt.Println("Error: -file is required")
			os.Exit(1)
		}
		err = checkSchedule(os.Stdout, configPath, file)
	case "boot-script", "check-pins", "install-service":
		if configPath == "" {
			fmt.Println("Error: -config-file is required")
			os.Exit(1)
		}
		var cfg config.Config
		cfg, err = config.FromFile(configPath)
		if err != nil {
			break
		}
		switch command {
		case "boot-script":
			err = startup.WriteStartupScript(file, cfg)
		case "check-pins":
			err = checkPins(os.Stdout, cfg)
		default:
			err = installService(cfg, file, unitPath, mainUnitPath, startup.Service{
				User: user, WorkDir: workdir, Binary: binary, ConfigFile: configPath,
			})
		}
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

// checkSchedule loads a schedule file against a registry of simulated
// backends built from the optional config.
func checkSchedule(w io.Writer, configPath, file string) error {
	factory := output.NewFactory()
	defaultChip := "/dev/gpiochip0"
	var outputs []output.Description
	if configPath != "" {
		cfg, err := config.FromFile(configPath)
		if err != nil {
			return err
		}
		defaultChip = cfg.GPIOChip
		outputs = cfg.Outputs
	}
	backend.Register(factory, backend.Deps{
		Chips:       gpio.NewChips(gpio.NewFakeDriver(), false),
		DefaultChip: defaultChip,
		CAN:         can.NewPool(can.NewFakeOpener().Open),
		MQTT:        mqtt.NewPool(mqtt.NewFakeDialer().Dial),
	})
	registry := output.NewRegistry(factory)
	defer registry.Close()

	for _, d := range outputs {
		if err := registry.Add(d); err != nil {
			return err
		}
	}

	actions := schedule.NewActions()
	scheduler := schedulecontroller.New(registry, actions)
	loader := &schedule.Loader{
		Outputs:   registry,
		Actions:   actions,
		Scheduler: scheduler,
		Parser:    schedule.NewParser(schedule.DefaultDateLayout),
	}
	s, err := loader.LoadFile(file)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "schedule %q: %s, %d events, period %d days\n", s.Title, s.Mode, len(s.Events), s.Period)
	for _, e := range s.Events {
		fmt.Fprintf(w, "  event %d: day %d at %s, actions %v\n", e.ID, e.Day, e.TriggerTime(), e.Actions)
	}
	return nil
}

func checkPins(w io.Writer, cfg config.Config) error {
	mismatches, err := startup.CheckPins(cfg)
	if err != nil {
		return err
	}
	for _, m := range mismatches {
		fmt.Fprintln(w, m)
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d pins differ from their boot level", len(mismatches))
	}
	return nil
}

func installService(cfg config.Config, scriptPath, unitPath, mainUnitPath string, svc startup.Service) error {
	if scriptPath == "" {
		scriptPath = "/usr/local/bin/aquactl-boot.sh"
	}
	if err := startup.WriteStartupScript(scriptPath, cfg); err != nil {
		return err
	}
	if err := startup.InstallStartupService(unitPath, scriptPath); err != nil {
		return err
	}
	svc.StartupUnit = unitPath
	return startup.InstallControllerService(mainUnitPath, svc)
}
