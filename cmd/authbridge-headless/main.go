package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/panyam/authbridge/internal/cmd/headless"
)

func main() {
	cfg, err := headless.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[HEADLESS] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := headless.Run(ctx, cfg, os.Stdout); err != nil {
		log.Fatalf("headless: %v", err)
	}
}
