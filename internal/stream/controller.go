package stream

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tguillem/whisperstream/internal/metrics"
)

// gpuBlocklistPrefixes names GPU backends known to fail mid-stream (device
// lost, shader link failures) rather than merely being slow, so they're
// refused even when the host asked for GPU offload.
//
// Grounded on original_source/jni.c's is_gpu_blocklisted: Adreno 6xx-7xx
// devices were observed hitting VK_ERROR_DEVICE_LOST or failing to link
// some compute shaders.
var gpuBlocklistPrefixes = []string{"Adreno"}

func isGPUBlocklisted(desc string) bool {
	for _, prefix := range gpuBlocklistPrefixes {
		if strings.HasPrefix(desc, prefix) {
			return true
		}
	}
	return false
}

// slot holds one loaded inference context plus the thread count it should
// run with.
type slot struct {
	engine     InferenceContext
	numThreads int
}

// command is one request enqueued onto a Controller's single owner
// goroutine. Grounded on original_source/jni.c's command_node queue; a
// channel replaces the hand-rolled linked list + condvar as the idiomatic
// Go equivalent of a single-consumer work queue.
type command interface{ apply(*Controller) }

type loadCommand struct {
	slotIdx    int
	modelPath  string
	numThreads int
	useGPU     bool
}

type startCommand struct {
	sessionID uint32
	read      ReadAudio
	vad       VADSegmenter
	abort     AbortFunc
	cfg       Config
}

type updateLanguageCommand struct{ lang string }

type shutdownCommand struct{}

// Controller is the single entry point a host embeds (component C8): one
// owner goroutine drains a command queue, so every model load and stream
// start is serialized without the host needing its own locking. Stop,
// UpdateLanguage and SetDuration act on atomics directly, so they take
// effect while a stream is running.
//
// Grounded on original_source/jni.c's whisper_jni_context + worker_thread_func.
type Controller struct {
	loader EngineLoader
	events Events

	commands chan command
	done     chan struct{}

	slots  [2]slot
	useGPU bool

	sessionID      atomic.Uint32
	startSessionID uint32 // owner-goroutine-only

	langOverride atomic.Pointer[string] // nil: no override

	// totalDurationMs gates progress events (spec's set_duration): 0
	// disables them entirely, any other value enables them. The value is
	// not used to scale the reported percentage.
	totalDurationMs atomic.Int64

	// metrics is optional; a nil value makes every recording call a no-op.
	metrics *metrics.StreamMetrics
}

// SetMetrics attaches a StreamMetrics collector, shared across every stream
// this Controller runs. Call before the first Start; nil disables metrics.
func (c *Controller) SetMetrics(m *metrics.StreamMetrics) {
	c.metrics = m
}

// NewController builds a Controller bound to loader. Call Run in its own
// goroutine before issuing any commands.
func NewController(loader EngineLoader, events Events) *Controller {
	return &Controller{
		loader:   loader,
		events:   events,
		commands: make(chan command, 8),
		done:     make(chan struct{}),
	}
}

// Run drains the command queue until Shutdown is called or ctx is canceled.
// It is the Go analog of original_source/jni.c's worker_thread_func's
// dequeue loop.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.commands:
			if _, shutdown := cmd.(shutdownCommand); shutdown {
				return
			}
			cmd.apply(c)
		}
	}
}

// LoadModel enqueues a model load into the given slot (0 or 1). Loading is
// asynchronous; Events.Loaded reports the outcome.
func (c *Controller) LoadModel(slotIdx int, modelPath string, numThreads int, useGPU bool) {
	c.enqueue(loadCommand{slotIdx: slotIdx, modelPath: modelPath, numThreads: numThreads, useGPU: useGPU})
}

// Start enqueues a stream start and returns the session ID assigned to it.
// A session started with a stale ID (one already superseded by a later
// Stop or Shutdown, which advance the counter; Start itself does not) is
// silently discarded when it reaches the front of the
// queue, mirroring original_source/jni.c's process_start_command check.
func (c *Controller) Start(read ReadAudio, vad VADSegmenter, abort AbortFunc, cfg Config) uint32 {
	sessionID := c.sessionID.Load()
	c.enqueue(startCommand{sessionID: sessionID, read: read, vad: vad, abort: abort, cfg: cfg})
	return sessionID
}

// Stop requests the in-flight stream abort by advancing the session
// counter; any worker still running observes the mismatch on its next
// abort check and unwinds.
func (c *Controller) Stop() {
	c.sessionID.Add(1)
}

// UpdateLanguage overrides the decode language for the remainder of the
// current stream (spec's control.update_language). It takes effect
// immediately, without going through the command queue (whose owner
// goroutine is busy for the whole of a running stream); workers read it at
// their next context hand-off. Each Start clears any earlier override.
func (c *Controller) UpdateLanguage(lang string) {
	updateLanguageCommand{lang: lang}.apply(c)
}

// SetDuration sets the value that gates progress events (spec's
// set_duration): 0 disables progress reporting entirely, any other value
// enables it. Progress events carry the engine's 0-100 percentage for the
// chunk being decoded; totalDurationMs does not scale it. It takes effect
// immediately, without going through the command queue, since it is read
// by workers as a plain atomic and carries no ordering requirement
// relative to other commands.
func (c *Controller) SetDuration(totalDurationMs int64) {
	c.totalDurationMs.Store(totalDurationMs)
}

// Shutdown stops Run and releases all loaded slots.
func (c *Controller) Shutdown() {
	c.sessionID.Add(1)
	select {
	case c.commands <- shutdownCommand{}:
	default:
	}
	for i := range c.slots {
		if c.slots[i].engine != nil {
			c.slots[i].engine.Close()
			c.slots[i].engine = nil
		}
	}
}

func (c *Controller) enqueue(cmd command) {
	select {
	case c.commands <- cmd:
	case <-c.done:
	}
}

func (cmd loadCommand) apply(c *Controller) {
	if c.slots[cmd.slotIdx].engine != nil {
		c.slots[cmd.slotIdx].engine.Close()
		c.slots[cmd.slotIdx].engine = nil
	}

	if cmd.modelPath == "" {
		return
	}

	engine, gpuDesc, gpuActive, err := c.loader.Load(cmd.modelPath, cmd.numThreads, cmd.useGPU)
	if err != nil {
		c.metrics.RecordModelLoadError(cmd.slotIdx)
		c.events.error("load slot %d: %v", cmd.slotIdx, err)
		return
	}

	numThreads := cmd.numThreads
	if cmd.slotIdx == 0 {
		c.useGPU = false
		if gpuActive {
			if isGPUBlocklisted(gpuDesc) {
				gpuActive = false
			} else {
				c.useGPU = true
			}
		}
		if c.useGPU {
			numThreads = 1
		}
	}

	c.slots[cmd.slotIdx] = slot{engine: engine, numThreads: numThreads}
	c.events.loaded(cmd.slotIdx, gpuDesc, gpuActive)
}

func (cmd updateLanguageCommand) apply(c *Controller) {
	if cmd.lang == "" || cmd.lang == "auto" {
		c.langOverride.Store(nil)
		return
	}
	lang := cmd.lang
	c.langOverride.Store(&lang)
}

func (cmd shutdownCommand) apply(c *Controller) {}

func (cmd startCommand) apply(c *Controller) {
	if c.sessionID.Load() != cmd.sessionID {
		return
	}
	if c.slots[0].engine == nil {
		c.events.error("model not loaded")
		return
	}

	c.startSessionID = cmd.sessionID
	c.langOverride.Store(nil)

	dual := c.slots[1].engine != nil

	sess := newSession(!dual, func() bool {
		if cmd.abort != nil && cmd.abort() {
			return true
		}
		return c.sessionID.Load() != cmd.sessionID
	})

	ch := newChunker(cmd.cfg, cmd.read, cmd.vad, sess)

	langOverride := func() (string, bool) {
		v := c.langOverride.Load()
		if v == nil {
			return "", false
		}
		return *v, true
	}

	maxCtxTokens := 224
	progressOn := func() bool { return c.totalDurationMs.Load() != 0 }

	w0 := newWorker(0, c.slots[0].numThreads, ch, sess, c.slots[0].engine, c.events, maxCtxTokens, langOverride, progressOn, c.metrics)
	sess.progressReporter.Store(w0)

	var w1 *worker
	if dual {
		w1 = newWorker(1, c.slots[1].numThreads, ch, sess, c.slots[1].engine, c.events, maxCtxTokens, langOverride, progressOn, c.metrics)
		w0.other = w1
		w1.other = w0
	}

	c.metrics.RecordSessionStarted()
	ctx := context.Background()

	var wg sync.WaitGroup
	var w1Err error
	if dual {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w1Err = w1.run(ctx)
		}()
	}

	w0Err := w0.run(ctx)
	wg.Wait()

	sessionAfter := c.sessionID.Load()
	wasStopped := c.startSessionID != sessionAfter
	c.metrics.RecordSessionEnded(wasStopped)

	if wasStopped {
		return
	}

	err := w0Err
	if err == nil {
		err = w1Err
	}
	if err != nil {
		c.events.error("%v", err)
	}
	c.events.streamComplete(err == nil)
}
