package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"decisionengine/internal/app"
	"decisionengine/internal/clock"
	"decisionengine/internal/config"

	"github.com/joho/godotenv"
)

// main starts the decision service using file or directory config source.
// Params: CLI flags (--config-file or --config-dir) and optional .env file.
// Returns: process exit code by startup/run result.
func main() {
	var (
		configFile = flag.String("config-file", "", "path to one TOML config file")
		configDir  = flag.String("config-dir", "", "path to directory with TOML config fragments")
		envFile    = flag.String("env-file", ".env", "optional dotenv file with environment overrides")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		_, _ = fmt.Fprintln(os.Stderr, "load env file:", err.Error())
		os.Exit(2)
	}

	source, err := config.FromCLI(*configFile, *configDir)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx := context.Background()
	service, err := app.NewService(ctx, source, clock.RealClock{})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service init failed:", err.Error())
		os.Exit(1)
	}

	if err := service.Run(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service run failed:", err.Error())
		os.Exit(1)
	}
}
