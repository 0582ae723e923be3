package systems

import (
	"github.com/spaghettifunk/vitro/engine/config"
	"github.com/spaghettifunk/vitro/engine/platform"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

/**
 * @brief Wires and owns every system: the worker pool, the renderer and
 * the program cache. Construction order matters; shutdown runs in
 * reverse.
 */
type SystemManager struct {
	JobSystem      *JobSystem
	RendererSystem *RendererSystem
	ProgramSystem  *ProgramSystem
}

func NewSystemManager(cfg *config.Config, p *platform.Platform) (*SystemManager, error) {
	js, err := NewJobSystem(2, 32)
	if err != nil {
		return nil, err
	}

	rs, err := NewRendererSystem(p, &metadata.RendererBackendConfig{
		ApplicationName: cfg.Application.Name,
		Width:           cfg.Application.Width,
		Height:          cfg.Application.Height,
		Validation:      cfg.Renderer.Validation,
		PushDescriptors: cfg.Renderer.PushDescriptors,
		UpdateTemplates: cfg.Renderer.UpdateTemplates,
		FramesInFlight:  cfg.Renderer.FramesInFlight,
		PoolSetCapacity: cfg.Descriptors.PoolSetCapacity,
	})
	if err != nil {
		return nil, err
	}

	ps, err := NewProgramSystem(&ProgramSystemConfig{
		MaxProgramCount: 128,
	}, rs, js)
	if err != nil {
		return nil, err
	}

	return &SystemManager{
		JobSystem:      js,
		RendererSystem: rs,
		ProgramSystem:  ps,
	}, nil
}

func (sm *SystemManager) Initialize() error {
	return sm.RendererSystem.Initialize()
}

func (sm *SystemManager) OnResize(width, height uint16) error {
	return sm.RendererSystem.OnResize(width, height)
}

func (sm *SystemManager) DrawFrame(packet *metadata.RenderPacket) error {
	return sm.RendererSystem.DrawFrame(packet)
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.JobSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.ProgramSystem.Shutdown(); err != nil {
		return err
	}
	return sm.RendererSystem.Shutdown()
}
