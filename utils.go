package main

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"mockproxy/config"
	"mockproxy/engine"
	mslogger "mockproxy/logger"
	msServer "mockproxy/server"
	msUtils "mockproxy/utils"
)

// mustLoadAndStart loads the rule file, builds an engine from it, installs
// its bootstrap rules, and attaches the transport.
func mustLoadAndStart(configPath string) (*fiber.App, *engine.Engine, *config.RuleFile) {
	rf, err := config.LoadRuleFile(configPath)
	if err != nil {
		msUtils.StopWithError("Failed to load config", err)
	}

	eng := engine.New(&rf.Engine)
	if _, err := eng.AddRules(rf.Rules); err != nil {
		msUtils.StopWithError("Failed to install bootstrap rules", err)
	}

	return msServer.Attach(eng), eng, rf
}

// listenApp starts the Fiber server
func listenApp(app *fiber.App, port int) {
	if err := msServer.Listen(app, port); err != nil {
		mslogger.LogError(fmt.Sprintf("Server stopped unexpectedly: %v", err))
	}
}

// reloadServer reloads the rule file and restarts the server in place.
func reloadServer(rt *Runtime, configFile string) {
	mslogger.LogWarn("Config file changed. Reloading server...")

	rt.Mu.Lock()
	oldApp := rt.App
	rt.Mu.Unlock()

	_ = oldApp.Shutdown()
	time.Sleep(200 * time.Millisecond) // short wait to release port

	rf, err := config.LoadRuleFile(configFile)
	if err != nil {
		mslogger.LogError(fmt.Sprintf("Failed to reload config: %v", err))
		return
	}

	newEng := engine.New(&rf.Engine)
	if _, err := newEng.AddRules(rf.Rules); err != nil {
		mslogger.LogError(fmt.Sprintf("Failed to install reloaded rules: %v", err))
		return
	}

	newApp := msServer.Attach(newEng)
	go listenApp(newApp, rf.Engine.Port)
	mslogger.LogSuccess(fmt.Sprintf("Server reloaded successfully and listening on %s", mslogger.GetServerHost(fmt.Sprintf(":%d", rf.Engine.Port))), 1)

	rt.Mu.Lock()
	rt.App = newApp
	rt.Eng = newEng
	rt.Cfg = rf
	rt.Mu.Unlock()
}
