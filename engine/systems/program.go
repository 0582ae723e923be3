package systems

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

/** @brief The subset of the renderer the program system drives. */
type ProgramBackend interface {
	ProgramCreate(program *metadata.Program) error
	ProgramDestroy(program *metadata.Program) error
}

type ProgramSystemConfig struct {
	/** @brief Programs kept alive at once; the least recently acquired
	 * one is destroyed when the cache is full. */
	MaxProgramCount int
}

/**
 * @brief Owns every live program, keyed by the canonical hash of its
 * reflection. Identical reflections share one program, which in turn
 * shares layout keys and per-session pools downstream. Eviction and
 * shutdown destroy the program's descriptors, dropping layout key use
 * counts so stale pools die on the next session reset.
 */
type ProgramSystem struct {
	backend ProgramBackend
	jobs    *JobSystem

	// Serializes misses so concurrent prewarm jobs cannot double-build
	// one reflection.
	mu    sync.Mutex
	cache *lru.Cache[string, *metadata.Program]
}

func NewProgramSystem(config *ProgramSystemConfig, backend ProgramBackend, jobs *JobSystem) (*ProgramSystem, error) {
	if config.MaxProgramCount <= 0 {
		err := fmt.Errorf("program system requires a positive program capacity")
		core.LogError(err.Error())
		return nil, err
	}

	ps := &ProgramSystem{
		backend: backend,
		jobs:    jobs,
	}

	cache, err := lru.NewWithEvict(config.MaxProgramCount, ps.onEvict)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	ps.cache = cache

	return ps, nil
}

func (ps *ProgramSystem) onEvict(hash string, program *metadata.Program) {
	core.LogDebug("program '%s' evicted", program.Name)
	if err := ps.backend.ProgramDestroy(program); err != nil {
		core.LogError("failed to destroy evicted program '%s': %s", program.Name, err.Error())
	}
	if err := core.IdentifierReleaseID(program.ID); err != nil {
		core.LogError(err.Error())
	}
}

/**
 * @brief Returns the program for the given reflection, building it on
 * first use. Two configs with the same canonical reflection resolve to
 * the same program instance regardless of declaration order.
 */
func (ps *ProgramSystem) Acquire(config *metadata.ProgramConfig) (*metadata.Program, error) {
	hash := config.Hash()

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if program, ok := ps.cache.Get(hash); ok {
		return program, nil
	}

	program := &metadata.Program{
		Name:   config.Name,
		Stages: config.Stages,
		State:  metadata.PROGRAM_STATE_UNINITIALIZED,
	}
	program.ID = core.IdentifierAcquireNewID(program)

	if err := ps.backend.ProgramCreate(program); err != nil {
		if rerr := core.IdentifierReleaseID(program.ID); rerr != nil {
			core.LogError(rerr.Error())
		}
		return nil, err
	}

	ps.cache.Add(hash, program)
	return program, nil
}

/**
 * @brief Builds programs on the worker pool so first draws do not pay
 * for layout and pipeline creation. Safe alongside the recording thread;
 * the layout registry is the only shared surface and it is locked.
 */
func (ps *ProgramSystem) Prewarm(configs []*metadata.ProgramConfig) {
	if ps.jobs == nil {
		return
	}
	for _, config := range configs {
		cfg := config
		ps.jobs.Submit(metadata.JobTask{
			JobType:  metadata.JOB_TYPE_GPU_RESOURCE,
			Priority: metadata.JOB_PRIORITY_NORMAL,
			OnStart: func(params interface{}, result chan interface{}) error {
				program, err := ps.Acquire(cfg)
				if err != nil {
					return err
				}
				result <- program
				return nil
			},
			OnComplete: func(result chan interface{}) {
				program := <-result
				core.LogDebug("program '%s' prewarmed", program.(*metadata.Program).Name)
			},
		})
	}
}

/** @brief The number of live programs in the cache. */
func (ps *ProgramSystem) Count() int {
	return ps.cache.Len()
}

/**
 * @brief Destroys every cached program through the eviction path.
 */
func (ps *ProgramSystem) Shutdown() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.cache.Purge()
	return nil
}
