package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/panyam/authbridge/internal/cmd/testuser"
)

func main() {
	cfg, err := testuser.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetFlags(0)
	log.SetPrefix("[TESTUSER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.PromptPassword(os.Stdin, os.Stderr); err != nil {
		log.Fatalf("%v", err)
	}

	err = testuser.Run(ctx, cfg, os.Stdout)
	switch {
	case err == nil:
		return
	case errors.Is(err, testuser.ErrMissingCredentials):
		log.Printf("Error: %v", err)
		log.Printf("Copy %s.example to %s, fill in the values and run again.", cfg.EnvFile, cfg.EnvFile)
	case errors.Is(err, testuser.ErrUnreachable):
		log.Printf("Error: could not connect to %s", cfg.SiteURL)
		log.Printf("Make sure the dev server is running.")
	case errors.Is(err, testuser.ErrWrongPassword):
		log.Printf("Error: %v", err)
		log.Printf("Update the password in %s, or delete the user and run again.", cfg.EnvFile)
	default:
		log.Printf("Error: %v", err)
	}
	os.Exit(testuser.ExitCode(err))
}
