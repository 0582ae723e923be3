package testbed

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/exp/rand"
	xdraw "golang.org/x/image/draw"

	"github.com/spaghettifunk/vitro/engine"
	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

/*
The testbed stresses the descriptor layer the way a translation layer
sees traffic: several programs with overlapping binding interfaces,
rebinds between draws, a compute dispatch writing an image the graphics
side samples, and periodic program churn.
*/

type gameState struct {
	rng *rand.Rand

	width  uint32
	height uint32

	elapsed     float64
	metricsTick float64
	frame       uint64

	// Shared resources bound across programs.
	globalsUBO  *metadata.Buffer
	materialUBO *metadata.Buffer
	particles   *metadata.Buffer
	waveTexels  *metadata.Buffer

	diffuse *metadata.Texture
	target  *metadata.Texture

	flat      *metadata.Program
	textured  *metadata.Program
	particler *metadata.Program
	texelfx   *metadata.Program
	empty     *metadata.Program
}

func NewTestGame() *engine.Game {
	g := &engine.Game{
		State: &gameState{
			rng: rand.New(rand.NewSource(42)),
		},
	}
	g.FnInitialize = initialize
	g.FnUpdate = update
	g.FnOnResize = onResize
	g.FnShutdown = shutdown
	return g
}

func programConfigs() []*metadata.ProgramConfig {
	return []*metadata.ProgramConfig{
		{
			// Push-constant style globals only, slot 0 takes the fast path.
			Name: "flat",
			Stages: []metadata.StageReflection{
				{Stage: metadata.ShaderStageVertex, Bindings: []metadata.Binding{
					{Slot: 0, Type: metadata.BindingTypeDynamicUniformBuffer, Count: 1},
				}},
				{Stage: metadata.ShaderStageFragment},
			},
		},
		{
			Name: "textured",
			Stages: []metadata.StageReflection{
				{Stage: metadata.ShaderStageVertex, Bindings: []metadata.Binding{
					{Slot: 0, Type: metadata.BindingTypeDynamicUniformBuffer, Count: 1},
				}},
				{Stage: metadata.ShaderStageFragment, Bindings: []metadata.Binding{
					{Slot: 1, Type: metadata.BindingTypeUniformBuffer, Count: 1},
					{Slot: 0, Type: metadata.BindingTypeSampledImage, Count: 1},
				}},
			},
		},
		{
			Name: "particles",
			Stages: []metadata.StageReflection{
				{Stage: metadata.ShaderStageCompute, Bindings: []metadata.Binding{
					{Slot: 0, Type: metadata.BindingTypeStorageBuffer, Count: 1},
					{Slot: 0, Type: metadata.BindingTypeStorageImage, Count: 1},
				}},
			},
		},
		{
			Name: "texelfx",
			Stages: []metadata.StageReflection{
				{Stage: metadata.ShaderStageVertex, Bindings: []metadata.Binding{
					{Slot: 0, Type: metadata.BindingTypeDynamicUniformBuffer, Count: 1},
				}},
				{Stage: metadata.ShaderStageFragment, Bindings: []metadata.Binding{
					{Slot: 0, Type: metadata.BindingTypeUniformTexelBuffer, Count: 1},
				}},
			},
		},
		{
			// No resources at all: the dummy set covers every slot.
			Name: "empty",
			Stages: []metadata.StageReflection{
				{Stage: metadata.ShaderStageVertex},
				{Stage: metadata.ShaderStageFragment},
			},
		},
	}
}

func initialize(g *engine.Game) error {
	if g.SystemManager == nil {
		return fmt.Errorf("the engine is not yet initialized with all the system managers")
	}

	state := g.State.(*gameState)
	rs := g.SystemManager.RendererSystem
	ps := g.SystemManager.ProgramSystem

	configs := programConfigs()

	// Warm everything up front on the job pool; Acquire below hits the cache.
	ps.Prewarm(configs)

	var err error
	if state.flat, err = ps.Acquire(configs[0]); err != nil {
		return err
	}
	if state.textured, err = ps.Acquire(configs[1]); err != nil {
		return err
	}
	if state.particler, err = ps.Acquire(configs[2]); err != nil {
		return err
	}
	if state.texelfx, err = ps.Acquire(configs[3]); err != nil {
		return err
	}
	if state.empty, err = ps.Acquire(configs[4]); err != nil {
		return err
	}

	// Buffers.
	state.globalsUBO = &metadata.Buffer{Name: "globals", Size: 256, Usage: metadata.BufferUsageUniform}
	state.materialUBO = &metadata.Buffer{Name: "material", Size: 256, Usage: metadata.BufferUsageUniform}
	state.particles = &metadata.Buffer{Name: "particles", Size: 64 * 1024, Usage: metadata.BufferUsageStorage}
	state.waveTexels = &metadata.Buffer{
		Name:   "wave",
		Size:   4096 * 4,
		Usage:  metadata.BufferUsageUniformTexel,
		Format: metadata.TexelFormatR32Float,
	}
	for _, b := range []*metadata.Buffer{state.globalsUBO, state.materialUBO, state.particles, state.waveTexels} {
		if err := rs.BufferCreate(b); err != nil {
			return err
		}
	}
	if err := rs.BufferLoadData(state.waveTexels, 0, sineTexels(4096)); err != nil {
		return err
	}

	// Textures: a scaled-up checker to sample, and a storage image for
	// the compute program to scribble on.
	state.diffuse = &metadata.Texture{Name: "checker", Width: 128, Height: 128}
	if err := rs.TextureCreate(state.diffuse, checkerPixels(128, 128)); err != nil {
		return err
	}
	state.target = &metadata.Texture{Name: "scratch", Width: 256, Height: 256, Writeable: true}
	if err := rs.TextureCreate(state.target, nil); err != nil {
		return err
	}

	core.LogInfo("testbed initialized: %d programs resident", ps.Count())
	return nil
}

func update(g *engine.Game, deltaTime float64) (*metadata.RenderPacket, error) {
	state := g.State.(*gameState)
	rs := g.SystemManager.RendererSystem

	state.elapsed += deltaTime
	state.frame++

	// Refresh the per-frame globals. Slot 0 uniform data rides the push
	// path, so this costs no descriptor set.
	if err := rs.BufferLoadData(state.globalsUBO, 0, globalsData(state.elapsed, state.width, state.height)); err != nil {
		return nil, err
	}

	packet := &metadata.RenderPacket{}

	// Compute first: particles advance, scratch image gets rewritten.
	rs.BindStorageBuffer(metadata.ShaderStageCompute, 0, state.particles, 0, state.particles.Size)
	rs.BindStorageImage(metadata.ShaderStageCompute, 0, state.target)
	packet.Dispatches = append(packet.Dispatches, metadata.DispatchCommand{
		Program: state.particler,
		GroupsX: 16, GroupsY: 16, GroupsZ: 1,
	})

	// Flat pass, push-only.
	rs.BindUniformBuffer(metadata.ShaderStageVertex, 0, state.globalsUBO, 0, 256)
	packet.Draws = append(packet.Draws, metadata.DrawCommand{Program: state.flat, VertexCount: 3, InstanceCount: 1})

	// Textured pass; alternate between the checker and the image compute
	// just wrote, so the sampled-image slot actually changes between frames.
	tex := state.diffuse
	if state.frame%2 == 1 {
		tex = state.target
	}
	rs.BindUniformBuffer(metadata.ShaderStageFragment, 1, state.materialUBO, 0, 256)
	rs.BindTexture(metadata.ShaderStageFragment, 0, tex)
	packet.Draws = append(packet.Draws, metadata.DrawCommand{Program: state.textured, VertexCount: 6, InstanceCount: 4})

	// Texel buffer pass at a randomized offset into the wave table.
	rs.BindTexelBuffer(metadata.ShaderStageFragment, 0, state.waveTexels)
	packet.Draws = append(packet.Draws, metadata.DrawCommand{Program: state.texelfx, VertexCount: 6, InstanceCount: 1})

	// Sometimes end on a program with no resources: every gap comes from
	// the dummy set.
	if state.rng.Intn(4) == 0 {
		packet.Draws = append(packet.Draws, metadata.DrawCommand{Program: state.empty, VertexCount: 3, InstanceCount: 1})
	}

	// Occasionally drop the sampled-image slot so the next textured draw
	// falls back to the dummy resource until rebound.
	if state.rng.Intn(64) == 0 {
		rs.Invalidate(metadata.ShaderStageFragment, metadata.BindingTypeSampledImage, 0)
	}

	state.metricsTick += deltaTime
	if state.metricsTick >= 1.0 {
		state.metricsTick = 0
		snap := core.MetricsDescriptorsSnapshot()
		core.LogInfo("FPS: %5.1f sets_allocated=%d pools_created=%d pool_stalls=%d plan_writes=%d push_writes=%d",
			core.MetricsFPS(), snap["sets_allocated"], snap["pools_created"], snap["pool_stalls"], snap["plan_writes"], snap["push_writes"])
	}

	return packet, nil
}

func onResize(g *engine.Game, width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func shutdown(g *engine.Game) error {
	state := g.State.(*gameState)
	rs := g.SystemManager.RendererSystem

	for _, b := range []*metadata.Buffer{state.globalsUBO, state.materialUBO, state.particles, state.waveTexels} {
		if b != nil {
			rs.BufferDestroy(b)
		}
	}
	if state.diffuse != nil {
		rs.TextureDestroy(state.diffuse)
	}
	if state.target != nil {
		rs.TextureDestroy(state.target)
	}
	return nil
}

// globalsData packs time and viewport into the 256-byte globals block.
func globalsData(elapsed float64, width, height uint32) []byte {
	data := make([]byte, 256)
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(float32(elapsed)))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(float32(width)))
	binary.LittleEndian.PutUint32(data[8:], math.Float32bits(float32(height)))
	return data
}

// sineTexels fills one period of a sine wave as R32 floats.
func sineTexels(count int) []byte {
	data := make([]byte, count*4)
	for i := 0; i < count; i++ {
		v := float32(math.Sin(2 * math.Pi * float64(i) / float64(count)))
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return data
}

// checkerPixels renders a small checkerboard and upscales it to the
// requested size, keeping the edges soft.
func checkerPixels(width, height uint32) []uint8 {
	small := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			c := color.RGBA{30, 30, 30, 255}
			if (x+y)%2 == 0 {
				c = color.RGBA{220, 220, 220, 255}
			}
			small.SetRGBA(x, y, c)
		}
	}
	big := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	xdraw.ApproxBiLinear.Scale(big, big.Bounds(), small, small.Bounds(), xdraw.Over, nil)
	return big.Pix
}
