/*
Demo application exercising the descriptor layer through the engine
package: a handful of programs with overlapping resource bindings,
churned every frame.
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/vitro/engine"
	"github.com/spaghettifunk/vitro/engine/config"
	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/testbed"
)

func main() {
	cfg, err := config.Load("vitro.toml")
	if err != nil {
		panic(err)
	}
	core.LogSetLevel(cfg.Renderer.LogLevel)

	watcher, err := config.NewWatcher("vitro.toml", cfg)
	if err != nil {
		core.LogWarn("config watcher unavailable: %s", err.Error())
	} else {
		defer watcher.Close()
	}

	game := testbed.NewTestGame()

	eng, err := engine.New(cfg, game)
	if err != nil {
		panic(err)
	}

	if err := eng.Initialize(); err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		<-sigCh
		eng.RequestQuit()
	}()

	// run engine
	if err := eng.Run(); err != nil {
		panic(err)
	}
}
