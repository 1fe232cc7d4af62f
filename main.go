package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"siamese/device"
	"siamese/mnist"
	"siamese/trainer"
)

func main() {
	logger := log.New(os.Stdout, "", 0)
	cfg := trainer.DefaultConfig()

	dev := device.Select(cfg.Workers)
	logger.Printf("device=%s", dev)

	train, err := mnist.Load(cfg.DataDir, mnist.Train, cfg.Fetch)
	if err != nil {
		log.Fatalf("load training split: %v", err)
	}
	test, err := mnist.Load(cfg.DataDir, mnist.Test, cfg.Fetch)
	if err != nil {
		log.Fatalf("load test split: %v", err)
	}

	s, err := trainer.NewSession(cfg, train, test, dev, logger)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}
	path, err := trainer.SnapshotPath(cfg.SnapshotName)
	if err != nil {
		log.Fatalf("snapshot path: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := trainer.Run(ctx, s, path); err != nil {
		log.Fatalf("training failed: %v", err)
	}
}
