package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hostsentry-project/hostsentry/internal/core"
	"github.com/hostsentry-project/hostsentry/internal/engine"
)

var (
	version   = "0.3.0"
	commit    = "dev"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "hostsentry.yaml", "path to configuration file")
		writeConfig = flag.Bool("init", false, "write the default configuration to -config and exit")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("hostsentry %s (commit %s, built %s)\n", version, commit, buildDate)
		return
	}

	if *writeConfig {
		if err := core.SaveConfig(core.DefaultConfig(), *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "error: writing config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote default configuration to %s\n", *configPath)
		return
	}

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.NewEngine(cfg, platformOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := eng.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
