package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/pawmates/tracking/internal/walksim"
)

// Default configuration constants.
const (
	defaultWalks        = 100
	defaultFixesPerWalk = 200
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultInterval     = 2 * time.Second
	defaultTimeout      = 30 * time.Second
	defaultRunTimeout   = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8090", "Base URL of the service")
		walks    = flag.Int("walks", defaultWalks, "Number of walk sessions to simulate")
		fixes    = flag.Int("fixes", defaultFixesPerWalk, "Number of location fixes per walk")
		walkers  = flag.Int("walkers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		interval = flag.Duration("interval", defaultInterval, "Simulated time between fixes on a track")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile  = flag.String("log", "", "Log file for simulation output (default: walksim_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		walksim.ShowHelp()
		return
	}

	if err := walksim.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &walksim.Config{
		BaseURL:      *baseURL,
		Walks:        *walks,
		FixesPerWalk: *fixes,
		Walkers:      *walkers,
		Interval:     *interval,
		Timeout:      *timeout,
		LogFile:      *logFile,
		Verbose:      *verbose,
	}

	if err := walksim.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
