// Scenario simulator: replays a recorded scenario through the full driver and
// plays both Arduinos over socat virtual serial pairs. Use this for local
// testing when you don't have the robot.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"AcademyBot/internal/core"
	"AcademyBot/internal/device"
	"AcademyBot/internal/model"
	"AcademyBot/internal/util"
)

func main() {
	util.SetupLogger("simulation", os.Stderr)

	cfgPath := flag.String("c", "configs/config.yml", "path to configuration file")
	scenario := flag.String("scenario", "", "scenario file, overrides sim.scenario")
	frames := flag.String("frames", "", "frame directory for the color detector, overrides sim.frame_dir")
	ptyDir := flag.String("pty", "/tmp/academybot", "directory for the virtual serial links")
	console := flag.Bool("console", false, "print frames instead of using socat")
	flag.Parse()

	cfg, err := core.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *scenario != "" {
		cfg.Sim.Scenario = *scenario
	}
	if *frames != "" {
		cfg.Sim.FrameDir = *frames
	}

	var (
		mgr     *util.SocatManager
		stopSim = make(chan struct{})
		simWG   sync.WaitGroup
	)
	if *console {
		cfg.Actuators.Drivetrain.Device = "console"
		cfg.Actuators.Turret.Device = "console"
	} else {
		if err := os.MkdirAll(*ptyDir, 0o755); err != nil {
			log.Fatalf("create %s: %v", *ptyDir, err)
		}
		mgr = util.NewSocatManager()
		defer mgr.Cleanup()
		for _, l := range []*model.LinkConfig{&cfg.Actuators.Drivetrain, &cfg.Actuators.Turret} {
			driverEnd := filepath.Join(*ptyDir, l.ID+"0")
			boardEnd := filepath.Join(*ptyDir, l.ID+"1")
			if err := mgr.CreatePair(driverEnd, boardEnd); err != nil {
				mgr.Cleanup()
				log.Fatalf("socat: %v", err)
			}
			if err := util.WaitForLinks(5*time.Second, driverEnd, boardEnd); err != nil {
				mgr.Cleanup()
				log.Fatalf("socat: %v", err)
			}
			l.Device = driverEnd

			board := device.NewArduinoDevice("sim-"+l.ID, boardEnd, l.Baud)
			id := l.ID
			simWG.Add(1)
			go func() {
				defer simWG.Done()
				err := board.StartSimulation(stopSim, func(cmd model.Command) {
					log.Printf("[%s] executing %s", id, cmd)
				})
				if err != nil {
					util.Warn("board %s: %v", id, err)
				}
			}()
		}
	}

	fatal := func(format string, args ...any) {
		if mgr != nil {
			mgr.Cleanup()
		}
		log.Fatalf(format, args...)
	}
	sys, err := core.NewSystemWithOptions(cfg, core.Options{})
	if err != nil {
		fatal("failed to create system: %v", err)
	}
	if err := sys.StartAll(); err != nil {
		fatal("failed to start system: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-sys.Done():
	case <-sys.NavTask.Done():
		// let the arbiter forward what is still queued
		time.Sleep(cfg.Global.StaleAfter)
		log.Printf("[simulation] scenario finished")
	}

	sys.StopAll()
	close(stopSim)
	simWG.Wait()
	if err := sys.Err(); err != nil {
		util.Error("simulation ended with: %v", err)
	}
}
