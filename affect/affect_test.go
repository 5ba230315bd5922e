package affect

import (
	"math"
	"math/rand"
	"testing"
)

func TestBiasForClasses(t *testing.T) {
	cases := []struct {
		class AmbientClass
		want  Bias
	}{
		{AmbientMusic, Bias{Valence: 0.05}},
		{AmbientSpeech, Bias{Valence: -0.05}},
		{AmbientNoise, Bias{Arousal: 0.05}},
		{AmbientSilence, Bias{}},
		{AmbientClass("unknown"), Bias{}},
	}
	for _, tc := range cases {
		if got := BiasFor(tc.class); got != tc.want {
			t.Errorf("BiasFor(%s) = %+v, want %+v", tc.class, got, tc.want)
		}
	}
}

func TestFaceAdapterEmitsClampedSamples(t *testing.T) {
	var got []Sample
	a := NewFaceAdapter(func(s Sample) { got = append(got, s) })

	a.Update(map[string]float64{
		ShapeMouthSmile: 1,
		ShapeJawOpen:    1,
		ShapeEyeWide:    1,
		ShapeBrowUp:     1,
	})
	if len(got) != 1 {
		t.Fatalf("emitted %d samples, want 1", len(got))
	}
	s := got[0]
	if s.Source != SourceFace {
		t.Errorf("source = %s, want face", s.Source)
	}
	if s.Valence != 1 {
		t.Errorf("valence = %v, want clamped 1", s.Valence)
	}
	if s.Arousal != 1 {
		t.Errorf("arousal = %v, want clamped 1", s.Arousal)
	}
	if s.Timestamp.IsZero() {
		t.Error("sample missing timestamp")
	}
}

func TestFaceAdapterAbsentInputEmitsNothing(t *testing.T) {
	calls := 0
	a := NewFaceAdapter(func(Sample) { calls++ })
	a.Update(nil)
	a.Update(map[string]float64{})
	if calls != 0 {
		t.Fatalf("absent input emitted %d samples", calls)
	}
}

func TestMapBlendShapesDirections(t *testing.T) {
	smile := MapBlendShapes(map[string]float64{ShapeMouthSmile: 0.8})
	frown := MapBlendShapes(map[string]float64{ShapeMouthFrown: 0.8, ShapeBrowDown: 0.5})
	if smile.Valence <= frown.Valence {
		t.Errorf("smile valence %v not above frown valence %v", smile.Valence, frown.Valence)
	}
	for _, s := range []Sample{smile, frown} {
		if s.Valence < 0 || s.Valence > 1 || s.Arousal < 0 || s.Arousal > 1 {
			t.Errorf("sample out of range: %+v", s)
		}
	}
}

func TestAmbientAdapterLastWriteWins(t *testing.T) {
	var classes []AmbientClass
	a := NewAmbientAdapter(func(_ Sample, c AmbientClass) { classes = append(classes, c) })

	if _, ok := a.Latest(); ok {
		t.Fatal("class reported before any update")
	}
	a.Update(AmbientMusic)
	a.Update(AmbientSpeech)
	got, ok := a.Latest()
	if !ok || got != AmbientSpeech {
		t.Fatalf("latest = %v/%v, want speech", got, ok)
	}
	if len(classes) != 2 {
		t.Fatalf("sink saw %d updates, want 2", len(classes))
	}
}

func TestClassifyHeuristics(t *testing.T) {
	// nil VAD exercises the energy/flatness fallbacks deterministically
	c := &AmbientClassifier{sampleRate: 16000}

	silence := make([]float32, 1024)
	if got := c.classify(silence); got != AmbientSilence {
		t.Errorf("silence classified as %s", got)
	}

	tone := make([]float32, 1024)
	for i := range tone {
		tone[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	if got := c.classify(tone); got != AmbientMusic {
		t.Errorf("steady tone classified as %s, want music", got)
	}
}

func TestSpectralFlatnessExtremes(t *testing.T) {
	c := &AmbientClassifier{sampleRate: 16000}

	rng := rand.New(rand.NewSource(7))
	noise := make([]float32, 1024)
	for i := range noise {
		noise[i] = float32(rng.Float64()*2 - 1)
	}
	if got := c.spectralFlatness(noise); got < flatnessNoiseMin {
		t.Errorf("white noise flatness = %v, want above %v", got, flatnessNoiseMin)
	}

	tone := make([]float32, 1024)
	for i := range tone {
		tone[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	if got := c.spectralFlatness(tone); got > 0.1 {
		t.Errorf("pure tone flatness = %v, want near 0", got)
	}
}

func TestPCMConversionClamps(t *testing.T) {
	pcm := toPCM16([]float32{2, -2, 0})
	if len(pcm) != 6 {
		t.Fatalf("pcm length = %d, want 6", len(pcm))
	}
	hi := int16(pcm[0]) | int16(pcm[1])<<8
	lo := int16(pcm[2]) | int16(pcm[3])<<8
	if hi != 32767 {
		t.Errorf("over-range sample = %d, want 32767", hi)
	}
	if lo != -32767 {
		t.Errorf("under-range sample = %d, want -32767", lo)
	}
}
