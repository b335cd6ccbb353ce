// Package main is the entry point of the AcademyBot driver.
// It initializes the logger, loads the configuration, constructs the perception
// tasks, the arbiter and the actuator links, and runs them until interrupted.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"AcademyBot/internal/core"
	"AcademyBot/internal/util"
)

// main loads configuration, constructs the system and starts all components.
// The program waits for an interrupt signal or an actuator failure and then
// shuts down.
func main() {
	util.SetupLogger("driver", os.Stderr)

	cfgPath := flag.String("c", "configs/config.yml", "path to configuration file")
	flag.Parse()

	log.Printf("[Main] Using config: %s", *cfgPath)

	sys, err := core.NewSystem(*cfgPath)
	if err != nil {
		log.Fatalf("failed to create system: %v", err)
	}

	if err := sys.StartAll(); err != nil {
		log.Fatalf("failed to start system: %v", err)
	}

	// wait for Ctrl+C, SIGTERM or a dead actuator link
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	exit := 0
	select {
	case <-stop:
	case <-sys.Done():
		if err := sys.Err(); err != nil {
			util.Error("driver terminated: %v", err)
			exit = 1
		}
	}

	log.Println("[Main] Shutting down system...")
	sys.StopAll()
	log.Println("[Main] System stopped cleanly.")
	os.Exit(exit)
}
