package affect

import "time"

// Blend-shape names the face adapter reads. Magnitudes are 0..1; unknown
// names are ignored, absent names contribute zero.
const (
	ShapeMouthSmile = "mouthSmile"
	ShapeMouthFrown = "mouthFrown"
	ShapeBrowDown   = "browDown"
	ShapeBrowUp     = "browInnerUp"
	ShapeJawOpen    = "jawOpen"
	ShapeEyeWide    = "eyeWide"
)

// FaceAdapter maps normalized blend-shape magnitudes to a (valence, arousal)
// sample via a fixed linear combination. Stateless apart from the emit
// callback; absence of input simply means no sample is emitted.
type FaceAdapter struct {
	emit func(Sample)
	now  func() time.Time
}

// NewFaceAdapter wires the adapter to a sample sink, typically
// fusion.Engine.Submit.
func NewFaceAdapter(emit func(Sample)) *FaceAdapter {
	return &FaceAdapter{emit: emit, now: time.Now}
}

// Update converts one frame of blend shapes into a face sample and emits it.
// Nil or empty input emits nothing.
func (a *FaceAdapter) Update(shapes map[string]float64) {
	if len(shapes) == 0 || a.emit == nil {
		return
	}
	s := MapBlendShapes(shapes)
	s.Timestamp = a.now()
	a.emit(s)
}

// MapBlendShapes computes the clamped linear combination. Smiling raises
// valence, frowning and lowered brows reduce it; open jaw, wide eyes and
// raised brows all raise arousal.
func MapBlendShapes(shapes map[string]float64) Sample {
	valence := 0.5 +
		0.5*shapes[ShapeMouthSmile] -
		0.4*shapes[ShapeMouthFrown] -
		0.2*shapes[ShapeBrowDown]
	arousal := 0.3 +
		0.4*shapes[ShapeJawOpen] +
		0.3*shapes[ShapeEyeWide] +
		0.2*shapes[ShapeBrowUp]
	return Sample{
		Valence: clamp01(valence),
		Arousal: clamp01(arousal),
		Source:  SourceFace,
	}
}
