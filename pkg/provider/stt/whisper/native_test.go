package whisper_test

import (
	"testing"

	"github.com/hmori/gamecoach/pkg/provider/stt/whisper"
)

func TestNewNative_EmptyModelPath_ReturnsError(t *testing.T) {
	t.Parallel()
	_, err := whisper.NewNative("")
	if err == nil {
		t.Fatal("expected error for empty modelPath, got nil")
	}
}

func TestNewNative_MissingModelFile_ReturnsError(t *testing.T) {
	t.Parallel()
	_, err := whisper.NewNative("/nonexistent/model.bin")
	if err == nil {
		t.Fatal("expected error for missing model file, got nil")
	}
}
