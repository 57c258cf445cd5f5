package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	var (
		configPath    = flag.String("config", "./config/config.yaml", "path to the YAML config file")
		prefetch      = flag.Int("prefetch", 32, "RabbitMQ consumer prefetch")
		maxConcurrent = flag.Int("max-concurrent", 256, "max in-flight HTTP requests")
	)
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// cancel the root context on SIGINT/SIGTERM; Run drains from there
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	if err := run(ctx, *configPath, *prefetch, *maxConcurrent); err != nil {
		fmt.Fprintln(os.Stderr, "alert service terminated:", err)
		os.Exit(1)
	}
}
