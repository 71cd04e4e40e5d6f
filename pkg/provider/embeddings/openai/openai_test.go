package openai

import "testing"

func TestModelDimensions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
	}
	for _, tt := range tests {
		if got := modelDimensions(tt.model); got != tt.want {
			t.Errorf("modelDimensions(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestModelDimensions_UnknownModelGetsADefault(t *testing.T) {
	t.Parallel()
	if got := modelDimensions("some-future-model"); got <= 0 {
		t.Errorf("modelDimensions for unknown model = %d, want positive default", got)
	}
}

func TestProvider_DimensionsTracksModel(t *testing.T) {
	t.Parallel()
	for _, model := range []string{
		"text-embedding-3-small",
		"text-embedding-3-large",
		"text-embedding-ada-002",
	} {
		p := &Provider{model: model}
		if p.Dimensions() != modelDimensions(model) {
			t.Errorf("%s: Dimensions() = %d, want %d", model, p.Dimensions(), modelDimensions(model))
		}
	}
}

func TestProvider_ModelIDIsVerbatim(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "my-custom-embeddings-model"}
	if got := p.ModelID(); got != "my-custom-embeddings-model" {
		t.Errorf("ModelID() = %q", got)
	}
}

func TestNew_EmptyModelUsesDefault(t *testing.T) {
	t.Parallel()
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ModelID() != DefaultModel {
		t.Errorf("ModelID() = %q, want %q", p.ModelID(), DefaultModel)
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New("", "text-embedding-3-small"); err == nil {
		t.Fatal("New with empty API key must fail")
	}
}

func TestNew_AcceptsOptions(t *testing.T) {
	t.Parallel()
	_, err := New("sk-test", "text-embedding-3-small",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
	)
	if err != nil {
		t.Fatalf("New with options: %v", err)
	}
}

func TestFloat64ToFloat32(t *testing.T) {
	t.Parallel()
	in := []float64{1.0, 2.5, -0.5}
	out := float64ToFloat32(in)
	if len(out) != 3 {
		t.Fatalf("got %d elements, want 3", len(out))
	}
	for i := range in {
		if out[i] != float32(in[i]) {
			t.Errorf("element %d = %v, want %v", i, out[i], float32(in[i]))
		}
	}
}
