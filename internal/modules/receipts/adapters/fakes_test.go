package adapters

import (
	"context"
	"sync"

	"github.com/yungbote/stockscan-backend/internal/platform/gcp"
	"github.com/yungbote/stockscan-backend/internal/platform/openai"
)

type fakeAI struct {
	mu sync.Mutex

	text    string
	json    map[string]any
	vecs    [][]float32
	err     error
	calls   int
	embeds  []string
	images  []openai.ImageInput
	lastSys string
	lastUsr string
}

func (f *fakeAI) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.embeds = append(f.embeds, inputs...)
	return f.vecs, f.err
}

func (f *fakeAI) GenerateJSON(_ context.Context, system, user, _ string, _ map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSys, f.lastUsr = system, user
	return f.json, f.err
}

func (f *fakeAI) GenerateText(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSys, f.lastUsr = system, user
	return f.text, f.err
}

func (f *fakeAI) GenerateTextWithImages(_ context.Context, system, user string, images []openai.ImageInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSys, f.lastUsr = system, user
	f.images = images
	return f.text, f.err
}

type fakeVision struct {
	text string
	err  error
}

func (f *fakeVision) OCRImageBytes(_ context.Context, _ []byte, mime string) (*gcp.VisionOCRResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &gcp.VisionOCRResult{Provider: "fake", MimeType: mime, PrimaryText: f.text}, nil
}

func (f *fakeVision) Close() error { return nil }

type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]float32
	getErr error
	setErr error
	sets   int
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]float32{}} }

func (c *fakeCache) Get(_ context.Context, text string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[text]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, text string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.data[text] = vec
	return nil
}
