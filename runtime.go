package main

import (
	"sync"

	"github.com/gofiber/fiber/v2"

	"mockproxy/config"
	"mockproxy/engine"
)

// Runtime holds the currently-serving Fiber app, its engine and the rule
// file it was built from, guarded for the config-reload swap (§S2).
type Runtime struct {
	App *fiber.App
	Eng *engine.Engine
	Cfg *config.RuleFile
	Mu  sync.Mutex
}
