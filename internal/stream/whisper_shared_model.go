package stream

import (
	"fmt"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/tguillem/whisperstream/internal/logger"
)

// whisperLoader is the production EngineLoader: it loads (and caches, by
// path) whisper.cpp models, so a dual-slot stream naming the same model
// path for both slots shares one set of weights instead of loading it
// twice.
//
// Grounded on server/internal/transcription/whisper_shared.go's
// SharedWhisperModel, generalized from "one shared model, N contexts" to
// "a cache of shared models keyed by path, one context per Load call".
type whisperLoader struct {
	mu     sync.Mutex
	models map[string]whisper.Model
	log    *logger.ContextLogger
}

func newWhisperLoader(log *logger.Logger) *whisperLoader {
	return &whisperLoader{
		models: make(map[string]whisper.Model),
		log:    log.With("whisper-loader"),
	}
}

// NewWhisperLoader builds the production EngineLoader, backed by a model
// cache shared across every Controller that uses it — so multiple peer
// sessions naming the same model path share one set of weights.
func NewWhisperLoader(log *logger.Logger) EngineLoader {
	return newWhisperLoader(log)
}

// Close releases every model cached by loader, if loader came from
// NewWhisperLoader. Call once during host shutdown.
func Close(loader EngineLoader) error {
	if l, ok := loader.(*whisperLoader); ok {
		return l.Close()
	}
	return nil
}

func (l *whisperLoader) Load(modelPath string, numThreads int, gpuRequested bool) (InferenceContext, string, bool, error) {
	l.mu.Lock()
	model, ok := l.models[modelPath]
	if !ok {
		l.log.Info("loading model %s", modelPath)
		var err error
		model, err = whisper.New(modelPath)
		if err != nil {
			l.mu.Unlock()
			return nil, "", false, fmt.Errorf("load model %s: %w", modelPath, err)
		}
		l.models[modelPath] = model
	}
	l.mu.Unlock()

	ctx, err := model.NewContext()
	if err != nil {
		return nil, "", false, fmt.Errorf("create context for %s: %w", modelPath, err)
	}

	// The bindings don't expose ggml_backend_vk_get_device_description or
	// whisper_ctx_is_using_gpu, so GPU activation can't be confirmed here
	// the way original_source/jni.c's load_model does; gpuRequested is
	// reported back as the best available signal, leaving the block-list
	// decision in controller.go a no-op until a binding exposes the real
	// device description.
	return newWhisperContext(ctx, "", uint(numThreads)), "", gpuRequested, nil
}

// Close releases every cached model. Call once during host shutdown, after
// every Controller.Shutdown using this loader has returned.
func (l *whisperLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, model := range l.models {
		if err := model.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.models = make(map[string]whisper.Model)
	return firstErr
}
