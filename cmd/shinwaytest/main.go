// Package main implements shinway-test, a smoke-test CLI that exercises a
// running gateway over its public edge. It is meant for post-deploy checks:
// list the catalog, run one chat completion (streaming or not), and generate
// one image, all through the same auth, routing, and billing path real
// clients use.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	logger, err := glog.NewConsoleWithName("shinway-test", glog.LevelInfo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %+v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := "chat"
	if len(os.Args) > 1 {
		command = strings.ToLower(strings.TrimSpace(os.Args[1]))
	}
	args := os.Args[1:]
	if len(args) > 0 {
		args = args[1:]
	}

	env := clientEnvFromOS()

	var execErr error
	switch command {
	case "chat":
		execErr = chatCommand(ctx, logger, env, args)
	case "models":
		execErr = modelsCommand(ctx, logger, env)
	case "image":
		execErr = imageCommand(ctx, logger, env, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected chat, models, or image)\n", command)
		os.Exit(1)
	}

	if execErr != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(execErr))
		os.Exit(1)
	}

	logger.Info("command completed", zap.String("command", command))
}
