package whisper

import (
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// ModelInfo describes a ggml model published for whisper.cpp.
type ModelInfo struct {
	ID           string
	Name         string
	Filename     string
	SizeBytes    int64
	Multilingual bool
}

var models = []ModelInfo{
	{ID: "tiny.en", Name: "Tiny English", Filename: "ggml-tiny.en.bin", SizeBytes: 75_000_000},
	{ID: "base.en", Name: "Base English", Filename: "ggml-base.en.bin", SizeBytes: 142_000_000},
	{ID: "small.en", Name: "Small English", Filename: "ggml-small.en.bin", SizeBytes: 466_000_000},
	{ID: "medium.en", Name: "Medium English", Filename: "ggml-medium.en.bin", SizeBytes: 1_500_000_000},
	{ID: "tiny", Name: "Tiny", Filename: "ggml-tiny.bin", SizeBytes: 75_000_000, Multilingual: true},
	{ID: "base", Name: "Base", Filename: "ggml-base.bin", SizeBytes: 142_000_000, Multilingual: true},
	{ID: "small", Name: "Small", Filename: "ggml-small.bin", SizeBytes: 466_000_000, Multilingual: true},
	{ID: "medium", Name: "Medium", Filename: "ggml-medium.bin", SizeBytes: 1_500_000_000, Multilingual: true},
	{ID: "large-v3", Name: "Large V3", Filename: "ggml-large-v3.bin", SizeBytes: 3_000_000_000, Multilingual: true},
}

var modelByID = func() map[string]ModelInfo {
	m := make(map[string]ModelInfo, len(models))
	for _, model := range models {
		m[model.ID] = model
	}
	return m
}()

const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// Lookup returns the model with the given ID.
func Lookup(id string) (ModelInfo, bool) {
	info, ok := modelByID[id]
	return info, ok
}

// List returns all known models, english-only first.
func List() []ModelInfo {
	out := make([]ModelInfo, len(models))
	copy(out, models)
	return out
}

// IsModelID reports whether ref names a catalog model rather than a file.
func IsModelID(ref string) bool {
	if strings.ContainsRune(ref, filepath.Separator) {
		return false
	}
	_, ok := modelByID[ref]
	return ok
}

// Size formats the approximate download size.
func (m ModelInfo) Size() string {
	return humanize.Bytes(uint64(m.SizeBytes))
}
