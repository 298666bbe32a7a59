// Package main provides a CLI for driving the plugin installation and
// management engine directly, without going through the HTTP bridge.
// Usage: pimctl install <plugin-id> [version] [repo-url]
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/opskernel/pimhub/internal/config"
	"github.com/opskernel/pimhub/internal/pim"
	"github.com/opskernel/pimhub/internal/pim/host"
	"github.com/opskernel/pimhub/internal/pim/installer"
)

// Exit codes
const (
	ExitOK         = 0
	ExitTaskFailed = 1
	ExitUsageError = 2
	ExitHostError  = 3
)

// Colors for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(ExitUsageError)
	}

	cfg := config.Load()
	h, err := host.NewFSHost(cfg.PluginDir, cfg.CacheDir, "unknown", "unknown")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%sError initializing plugin host: %v%s\n", colorRed, err, colorReset)
		os.Exit(ExitHostError)
	}
	pip := installer.NewExecPipInstaller(pythonInterpreter())
	facade := pim.New(h, cfg, pip)

	switch os.Args[1] {
	case "install":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: pimctl install <plugin-id> [version] [repo-url]")
			os.Exit(ExitUsageError)
		}
		version, repoURL := "", ""
		if len(os.Args) >= 4 {
			version = os.Args[3]
		}
		if len(os.Args) >= 5 {
			repoURL = os.Args[4]
		}
		os.Exit(runTask(facade, func(ctx context.Context) (string, error) {
			return facade.Install(ctx, os.Args[2], version, repoURL)
		}))
	case "uninstall":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: pimctl uninstall <plugin-id>")
			os.Exit(ExitUsageError)
		}
		os.Exit(runTask(facade, func(ctx context.Context) (string, error) {
			return facade.Uninstall(ctx, os.Args[2])
		}))
	case "list":
		os.Exit(cmdList(facade))
	case "help", "--help", "-h":
		printUsage()
		os.Exit(ExitOK)
	default:
		fmt.Fprintf(os.Stderr, "%sUnknown command: %s%s\n", colorRed, os.Args[1], colorReset)
		printUsage()
		os.Exit(ExitUsageError)
	}
}

func printUsage() {
	fmt.Println(`pimctl - plugin installation and management CLI

Usage:
  pimctl <command> [arguments]

Commands:
  install <plugin-id> [version] [repo-url]   Install a plugin
  uninstall <plugin-id>                      Uninstall a plugin
  list                                       List plugins in the official catalogue
  help                                       Show this help

Exit codes:
  0  Success
  1  Task failed
  2  Usage error
  3  Host initialization error`)
}

func runTask(facade *pim.Facade, start func(ctx context.Context) (string, error)) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	taskID, err := start(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%sError: %v%s\n", colorRed, err, colorReset)
		return ExitTaskFailed
	}

	fmt.Printf("%stask %s started%s\n", colorCyan, taskID, colorReset)
	ch := facade.Subscribe(taskID)
	poll := time.NewTicker(500 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case msg := <-ch:
			fmt.Println(msg)
		case <-poll.C:
		}
		t, ok := facade.GetTask(taskID)
		if !ok || t.Status == "completed" || t.Status == "failed" {
			break
		}
	}

	t, ok := facade.GetTask(taskID)
	if !ok {
		fmt.Fprintf(os.Stderr, "%stask vanished%s\n", colorRed, colorReset)
		return ExitTaskFailed
	}
	if t.Status == "failed" {
		fmt.Printf("%s✗ %s failed: %s%s\n", colorRed, t.Action, t.Message, colorReset)
		return ExitTaskFailed
	}
	fmt.Printf("%s✓ %s completed%s\n", colorGreen, t.Action, colorReset)
	return ExitOK
}

func cmdList(facade *pim.Facade) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	plugins, err := facade.ListPlugins(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%sError listing plugins: %v%s\n", colorRed, err, colorReset)
		return ExitTaskFailed
	}
	if len(plugins) == 0 {
		fmt.Printf("%sno plugins in the catalogue%s\n", colorYellow, colorReset)
		return ExitOK
	}
	for _, p := range plugins {
		fmt.Printf("%s %s (%s)\n", p.ID, p.Version, p.Name)
	}
	return ExitOK
}

func pythonInterpreter() string {
	if v := os.Getenv("PIM_PYTHON"); v != "" {
		return v
	}
	return "python3"
}
