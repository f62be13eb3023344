package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/faktorykit/internal/agent"
	"github.com/danmuck/faktorykit/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to faktoryctl TOML config")
	info := flag.Bool("info", false, "connect once, print the server INFO reply, and exit")
	flag.Parse()

	logging.ConfigureRuntime()
	cfg, err := loadServiceConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "faktoryctl: %v\n", err)
		os.Exit(1)
	}
	svc := agent.NewService(cfg)

	if *info {
		if err := printInfo(svc); err != nil {
			fmt.Fprintf(os.Stderr, "faktoryctl: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "faktoryctl: %v\n", err)
		os.Exit(1)
	}
}

func printInfo(svc *agent.Service) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	raw, err := svc.Info(ctx)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return fmt.Errorf("format info reply: %w", err)
	}
	out.WriteByte('\n')
	_, err = os.Stdout.Write(out.Bytes())
	return err
}
