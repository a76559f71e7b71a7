package embed

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/docsearch/docsearch/internal/core"
)

// errMissingInput is returned by runInference when the loaded model's
// input signature doesn't match what the tokenizer produced (wrong model
// file, or a quantized export that dropped a secondary input). The factory
// treats this specific failure as a signal to fall back to FallbackProvider
// rather than hard-failing indexing.
var errMissingInput = fmt.Errorf("onnx: missing required model input")

// libraryPath resolves the platform-specific onnxruntime shared library
// name, the same Dlopen entry point the purego proof of concept used for
// libc/libSystem.
func libraryPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "linux":
		return "libonnxruntime.so", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("onnx: unsupported OS %s", runtime.GOOS)
	}
}

// ortAPI is the thin purego binding over the ONNX Runtime C API surface
// this package actually calls. Only the handful of functions needed for
// session creation, tensor construction, and Run are bound; the C API
// itself is far larger.
type ortAPI struct {
	lib uintptr

	createEnv         func(logLevel int32, logID string, env *uintptr) int32
	createSessionOpts func(opts *uintptr) int32
	createSession     func(env uintptr, modelPath string, opts uintptr, session *uintptr) int32
	createCPUMemInfo  func(allocType int32, memType int32, out *uintptr) int32
	createTensor      func(memInfo uintptr, data unsafe.Pointer, dataLen uintptr, shape *int64, shapeLen uintptr, elemType int32, out *uintptr) int32
	getTensorData     func(value uintptr, out *unsafe.Pointer) int32
	run               func(session uintptr, runOpts uintptr, inputNames *uintptr, inputs *uintptr, inputCount uintptr, outputNames *uintptr, outputCount uintptr, outputs *uintptr) int32
	releaseValue      func(value uintptr)
	releaseSession    func(session uintptr)
	releaseEnv        func(env uintptr)
}

func loadOrtAPI(path string) (*ortAPI, error) {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("onnx: dlopen %s: %w", path, err)
	}

	api := &ortAPI{lib: lib}
	purego.RegisterLibFunc(&api.createEnv, lib, "OrtCreateEnv")
	purego.RegisterLibFunc(&api.createSessionOpts, lib, "OrtCreateSessionOptions")
	purego.RegisterLibFunc(&api.createSession, lib, "OrtCreateSession")
	purego.RegisterLibFunc(&api.createCPUMemInfo, lib, "OrtCreateCpuMemoryInfo")
	purego.RegisterLibFunc(&api.createTensor, lib, "OrtCreateTensorWithDataAsOrtValue")
	purego.RegisterLibFunc(&api.getTensorData, lib, "OrtGetTensorMutableData")
	purego.RegisterLibFunc(&api.run, lib, "OrtRun")
	purego.RegisterLibFunc(&api.releaseValue, lib, "OrtReleaseValue")
	purego.RegisterLibFunc(&api.releaseSession, lib, "OrtReleaseSession")
	purego.RegisterLibFunc(&api.releaseEnv, lib, "OrtReleaseEnv")
	return api, nil
}

// ONNXConfig configures the local embedding model.
type ONNXConfig struct {
	ModelPath     string
	TokenizerPath string
	LibraryPath   string // overrides libraryPath's platform default, for test doubles
	Dimension     int
	MaxTokens     int
}

// ONNXProvider embeds text with a local ONNX Runtime session, loaded via
// purego so the module never needs cgo. Tokenization is handled by
// tokenizer.go; pooling is attention-weighted mean pooling over the token
// embeddings, followed by L2 normalization.
type ONNXProvider struct {
	cfg       ONNXConfig
	api       *ortAPI
	env       uintptr
	sessionMu sync.Mutex
	session   uintptr
	tokenizer *Tokenizer
	closed    bool
}

var _ Provider = (*ONNXProvider)(nil)

// NewONNXProvider loads the tokenizer and ONNX Runtime shared library and
// creates an inference session for cfg.ModelPath. Callers should treat any
// returned error as "local model unavailable" and fall back to
// NewFallbackProvider rather than failing startup.
func NewONNXProvider(cfg ONNXConfig) (*ONNXProvider, error) {
	if cfg.Dimension <= 0 {
		return nil, core.Validation("dimension", "onnx provider requires a positive dimension")
	}
	tok, err := LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, core.DependencyUnavailable("load tokenizer", err)
	}

	path, err := libraryPath(cfg.LibraryPath)
	if err != nil {
		return nil, core.DependencyUnavailable("resolve onnxruntime library path", err)
	}
	api, err := loadOrtAPI(path)
	if err != nil {
		return nil, core.DependencyUnavailable("load onnxruntime", err)
	}

	var env uintptr
	if rc := api.createEnv(3 /*ORT_LOGGING_LEVEL_WARNING*/, "docsearch", &env); rc != 0 {
		return nil, core.DependencyUnavailable("create onnxruntime environment", fmt.Errorf("status %d", rc))
	}

	var opts uintptr
	if rc := api.createSessionOpts(&opts); rc != 0 {
		api.releaseEnv(env)
		return nil, core.DependencyUnavailable("create session options", fmt.Errorf("status %d", rc))
	}

	var session uintptr
	if rc := api.createSession(env, cfg.ModelPath, opts, &session); rc != 0 {
		api.releaseEnv(env)
		return nil, core.DependencyUnavailable("create onnx session", fmt.Errorf("status %d", rc))
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}

	return &ONNXProvider{
		cfg:       cfg,
		api:       api,
		env:       env,
		session:   session,
		tokenizer: tok,
	}, nil
}

func (p *ONNXProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *ONNXProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()

	if p.closed {
		return nil, core.Internal("onnx provider is closed", nil)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		encoded, err := p.tokenizer.Encode(text, p.cfg.MaxTokens)
		if err != nil {
			return nil, core.Internal("tokenize text", err)
		}
		if len(encoded.InputIDs) == 0 {
			return nil, errMissingInput
		}

		pooled, err := p.runInference(encoded)
		if err != nil {
			return nil, err
		}
		out[i] = normalizeVector(pooled)
	}
	return out, nil
}

const (
	ortElemTypeInt64   int32 = 7
	ortElemTypeFloat32 int32 = 1
	ortAllocDevice     int32 = 0
	ortMemTypeCPU      int32 = 0
)

// runInference builds the input_ids and attention_mask tensors (no
// token_type_ids input is passed), calls OrtRun, and applies attention-weighted mean pooling over the
// returned last_hidden_state tensor — the standard sentence-embedding head
// for encoder-only transformer exports.
func (p *ONNXProvider) runInference(encoded EncodedInput) ([]float32, error) {
	if p.session == 0 {
		return nil, errMissingInput
	}

	seqLen := len(encoded.InputIDs)
	if seqLen == 0 {
		return nil, errMissingInput
	}

	var memInfo uintptr
	if rc := p.api.createCPUMemInfo(ortAllocDevice, ortMemTypeCPU, &memInfo); rc != 0 {
		return nil, core.Internal("create onnx cpu memory info", fmt.Errorf("status %d", rc))
	}

	shape := []int64{1, int64(seqLen)}

	inputIDsTensor, err := p.makeInt64Tensor(memInfo, encoded.InputIDs, shape)
	if err != nil {
		return nil, err
	}
	defer p.api.releaseValue(inputIDsTensor)

	attentionMask := make([]int64, seqLen)
	for i, v := range encoded.AttentionMask {
		if v != 0 {
			attentionMask[i] = 1
		}
	}
	attentionTensor, err := p.makeInt64Tensor(memInfo, attentionMask, shape)
	if err != nil {
		return nil, err
	}
	defer p.api.releaseValue(attentionTensor)

	inputNamePtrs := cStringArray("input_ids", "attention_mask")
	inputs := []uintptr{inputIDsTensor, attentionTensor}
	outputNamePtrs := cStringArray("last_hidden_state")
	outputs := make([]uintptr, 1)

	rc := p.api.run(p.session, 0,
		&inputNamePtrs[0], &inputs[0], uintptr(len(inputs)),
		&outputNamePtrs[0], uintptr(len(outputs)), &outputs[0])
	if rc != 0 {
		return nil, errMissingInput
	}
	defer p.api.releaseValue(outputs[0])

	var dataPtr unsafe.Pointer
	if rc := p.api.getTensorData(outputs[0], &dataPtr); rc != 0 {
		return nil, core.Internal("read onnx output tensor", fmt.Errorf("status %d", rc))
	}
	hiddenStates := unsafe.Slice((*float32)(dataPtr), seqLen*p.cfg.Dimension)

	pooled := make([]float32, p.cfg.Dimension)
	var weightSum float32
	for i := 0; i < seqLen; i++ {
		attn := encoded.AttentionMask[i]
		if attn == 0 {
			continue
		}
		weightSum += attn
		base := i * p.cfg.Dimension
		for d := 0; d < p.cfg.Dimension; d++ {
			pooled[d] += attn * hiddenStates[base+d]
		}
	}
	if weightSum == 0 {
		return nil, errMissingInput
	}
	for d := range pooled {
		pooled[d] /= weightSum
	}
	return pooled, nil
}

// cStringArray builds a slice of NUL-terminated C string pointers, the
// const char* const* shape OrtRun expects for its name arrays.
func cStringArray(names ...string) []uintptr {
	out := make([]uintptr, len(names))
	for i, name := range names {
		b := append([]byte(name), 0)
		out[i] = uintptr(unsafe.Pointer(&b[0]))
	}
	return out
}

func (p *ONNXProvider) makeInt64Tensor(memInfo uintptr, data []int64, shape []int64) (uintptr, error) {
	var tensor uintptr
	dataPtr := unsafe.Pointer(&data[0])
	dataLen := uintptr(len(data)) * 8
	rc := p.api.createTensor(memInfo, dataPtr, dataLen, &shape[0], uintptr(len(shape)), ortElemTypeInt64, &tensor)
	if rc != 0 {
		return 0, core.Internal("create onnx input tensor", fmt.Errorf("status %d", rc))
	}
	return tensor, nil
}

func (p *ONNXProvider) Dimensions() int { return p.cfg.Dimension }

func (p *ONNXProvider) ModelID() string { return p.cfg.ModelPath }

func (p *ONNXProvider) Available(ctx context.Context) bool {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()
	return !p.closed && p.session != 0
}

func (p *ONNXProvider) Close() error {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()
	if p.closed {
		return nil
	}
	if p.session != 0 {
		p.api.releaseSession(p.session)
	}
	if p.env != 0 {
		p.api.releaseEnv(p.env)
	}
	p.closed = true
	return nil
}
