package engine

import (
	"fmt"

	"github.com/spaghettifunk/vitro/engine/config"
	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/platform"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
	"github.com/spaghettifunk/vitro/engine/systems"
)

/**
 * @brief The application driving the engine. The engine owns the loop;
 * the game owns what gets bound and drawn each frame.
 */
type Game struct {
	SystemManager *systems.SystemManager
	State         interface{}
	FnInitialize  Initialize
	FnUpdate      Update
	FnOnResize    OnResize
	FnShutdown    Shutdown
}

type Initialize func(g *Game) error
type Update func(g *Game, deltaTime float64) (*metadata.RenderPacket, error)
type OnResize func(g *Game, width uint32, height uint32) error
type Shutdown func(g *Game) error

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	config        *config.Config
	isRunning     bool
	isSuspended   bool
	platform      *platform.Platform
	systemManager *systems.SystemManager
	width         uint32
	height        uint32
	clock         *core.Clock
	lastTime      float64
}

func New(cfg *config.Config, g *Game) (*Engine, error) {
	p, err := platform.New()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	sm, err := systems.NewSystemManager(cfg, p)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	g.SystemManager = sm

	return &Engine{
		currentStage:  EngineStageUninitialized,
		gameInstance:  g,
		config:        cfg,
		clock:         core.NewClock(),
		platform:      p,
		systemManager: sm,
		isRunning:     true,
		isSuspended:   false,
		width:         cfg.Application.Width,
		height:        cfg.Application.Height,
		lastTime:      0,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if !core.EventInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	if err := core.MetricsInitialize(); err != nil {
		return err
	}
	core.LogSetLevel(e.config.Renderer.LogLevel)

	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, onEvent)
	core.EventRegister(core.EVENT_CODE_RESIZED, e, onResized)
	core.EventRegister(core.EVENT_CODE_DESCRIPTOR_STALL, e, onDescriptorStall)

	if err := e.platform.Startup(e.config.Application.Name, 100, 100, e.width, e.height); err != nil {
		return err
	}

	if err := e.systemManager.Initialize(); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.gameInstance); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		e.platform.PumpMessages()
		if e.platform.Window.ShouldClose() {
			e.isRunning = false
			break
		}

		if e.isSuspended {
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		packet, err := e.gameInstance.FnUpdate(e.gameInstance, delta)
		if err != nil {
			core.LogError("game update failed, shutting down: %s", err.Error())
			e.isRunning = false
			break
		}

		if packet != nil {
			packet.DeltaTime = delta
			if err := e.systemManager.DrawFrame(packet); err != nil {
				core.LogError("draw frame failed, shutting down: %s", err.Error())
				e.isRunning = false
				break
			}
		}

		e.lastTime = currentTime
	}

	return e.Shutdown()
}

// RequestQuit asks the loop to stop after the current frame. Safe from
// the signal handler goroutine: the flag flips through the event system
// on the next pump.
func (e *Engine) RequestQuit() {
	var ec core.EventContext
	core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, e, ec)
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(e.gameInstance); err != nil {
			core.LogError(err.Error())
		}
	}
	if err := e.systemManager.Shutdown(); err != nil {
		return err
	}
	if err := core.EventShutdown(); err != nil {
		return err
	}
	return e.platform.Shutdown()
}

// GetFramebufferSize returns the width and height (in this order)
// of the application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	e, ok := listener.(*Engine)
	if !ok {
		return false
	}
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func onDescriptorStall(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	// Stalls are backpressure, not errors. Surface them so a workload
	// sizing its pools too small is visible without debug logging.
	core.LogWarn("descriptor stall on set kind %d", data.Data.U32[0])
	return false
}

func onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	e, ok := listener.(*Engine)
	if !ok || code != core.EVENT_CODE_RESIZED {
		return false
	}

	width := data.Data.U32[0]
	height := data.Data.U32[1]

	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height

	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}

	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.gameInstance, width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	if err := e.systemManager.OnResize(uint16(width), uint16(height)); err != nil {
		core.LogError(err.Error())
	}
	return true
}
