package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

import (
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
)

import (
	appinfo "mockproxy/internal/appinfo"
	mslogger "mockproxy/logger"
	msUtils "mockproxy/utils"
)

const (
	// Debounce delay for config reload
	debounceDelay = 500 * time.Millisecond
)

var configFile string

func main() {
	mslogger.StartupMessage(appinfo.Version)
	mslogger.LoggerConfig.ShowTimestamp = false

	var rootCmd = &cobra.Command{
		Use:   "mockproxy",
		Short: "mockproxy CLI",
	}

	var startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the mock proxy",
		Run: func(cmd *cobra.Command, args []string) {
			if configFile == "" {
				fmt.Println("Config file is required. Example: mockproxy start --config mockproxy.json")
				os.Exit(1)
			}

			startApp(configFile)
		},
	}

	startCmd.Flags().StringVarP(&configFile, "config", "c", "mockproxy.json", "Path to config file")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(convertCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func startApp(configFile string) {
	absConfigPath, err := filepath.Abs(configFile)
	if err != nil {
		fmt.Printf("[ERROR] Failed to resolve config path: %v\n", err)
		os.Exit(1)
	}

	app, eng, rf := mustLoadAndStart(absConfigPath)
	rt := &Runtime{App: app, Eng: eng, Cfg: rf}

	go listenApp(rt.App, rf.Engine.Port)
	mslogger.LogServerStart(fmt.Sprintf(":%d", rf.Engine.Port))

	watchConfigFile(configFile, rt)
}

// watchConfigFile sets up fsnotify watcher and handles reload
func watchConfigFile(configFile string, rt *Runtime) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		msUtils.StopWithError("Failed to start config watcher", err)
	}
	defer watcher.Close()

	if err := watcher.Add(configFile); err != nil {
		msUtils.StopWithError("Failed to watch config file", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var reloadTimer *time.Timer
	var mu sync.Mutex

	for {
		select {
		case event := <-watcher.Events:
			if event.Op&fsnotify.Write == fsnotify.Write {
				mu.Lock()
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(debounceDelay, func() {
					reloadServer(rt, configFile)
				})
				mu.Unlock()
			}

		case err := <-watcher.Errors:
			mslogger.LogError(fmt.Sprintf("Config watcher error: %v", err))

		case sig := <-sigChan:
			rt.Mu.Lock()
			app := rt.App
			rt.Mu.Unlock()
			handleSignal(sig, app)
			return
		}
	}
}

func handleSignal(sig os.Signal, app *fiber.App) {
	mslogger.LogWarn(fmt.Sprintf("Signal received (%s), shutting down gracefully...", sig))
	_ = app.Shutdown()
	mslogger.LogInfo("mockproxy stopped. Goodbye!")
}
