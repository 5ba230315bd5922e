package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/moodtape/moodpipe/fusion"
	"github.com/moodtape/moodpipe/monitor"
)

// PersistBundle is the top-level session record written to eras.json.
type PersistBundle struct {
	SessionID    string    `json:"session_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	Eras         []MoodEra `json:"eras"`
	WindowCount  int       `json:"window_count"`
	StateCount   int       `json:"state_count"`
	DroppedPool  uint64    `json:"dropped_pool_exhausted"`
	DroppedInfer uint64    `json:"dropped_inference_handoff"`
	Backpressure uint64    `json:"backpressure_events"`
}

// telemetryRecord is one exported monitor aggregate line.
type telemetryRecord struct {
	Stage      string        `json:"stage"`
	Count      uint64        `json:"count"`
	Max        time.Duration `json:"max_ns"`
	Violations uint64        `json:"violations"`
}

func mkSessionDir(outputsRoot string) (string, string, error) {
	sid := "session_" + uuid.NewString()
	dir := filepath.Join(outputsRoot, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return sid, dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// persistSession windows the collected mood states, clusters them into eras
// and writes windows.json, eras.json, telemetry.jsonl and a config.yaml
// sidecar under outputs/<session>/. A session with no published states
// writes nothing.
func (p *Pipeline) persistSession() error {
	p.histMu.Lock()
	states := append([]fusion.MoodState{}, p.history...)
	p.histMu.Unlock()

	if len(states) == 0 {
		p.log.Info("no mood states published, skipping session output")
		return nil
	}

	windows := windowStates(states, p.cfg.Summary.TimeWindow, p.cfg.Summary.Overlap)
	for i := range windows {
		aggregate(&windows[i])
		windows[i].Vector = toVector(windows[i])
	}

	eras, err := clusterEras(windows, p.cfg.Summary.Eras)
	if err != nil {
		p.log.WithError(err).Warn("era clustering failed")
	}

	sid, outDir, err := mkSessionDir(p.cfg.Paths.Outputs)
	if err != nil {
		return fmt.Errorf("session dir: %w", err)
	}

	if err := writeJSON(filepath.Join(outDir, "windows.json"), windows); err != nil {
		return err
	}

	exhausted, handoffDropped := p.Stats()
	bundle := PersistBundle{
		SessionID:    sid,
		GeneratedAt:  time.Now(),
		Eras:         eras,
		WindowCount:  len(windows),
		StateCount:   len(states),
		DroppedPool:  exhausted,
		DroppedInfer: handoffDropped,
		Backpressure: p.mon.BackpressureEvents(),
	}
	if err := writeJSON(filepath.Join(outDir, "eras.json"), bundle); err != nil {
		return err
	}

	if err := p.exportTelemetry(filepath.Join(outDir, "telemetry.jsonl")); err != nil {
		return err
	}

	confYAML, err := yaml.Marshal(p.cfg)
	if err == nil {
		err = os.WriteFile(filepath.Join(outDir, "config.yaml"), confYAML, 0o644)
	}
	if err != nil {
		return fmt.Errorf("config sidecar: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"session": sid,
		"windows": len(windows),
		"eras":    len(eras),
	}).Info("session output written")
	return nil
}

// exportTelemetry writes one JSON line per pipeline stage with its latency
// aggregates, for offline analysis.
func (p *Pipeline) exportTelemetry(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, stage := range []string{monitor.StagePool, monitor.StageExtract, monitor.StageInference, monitor.StageFusion} {
		st := p.mon.StageSnapshot(stage)
		if st.Count == 0 {
			continue
		}
		if err := enc.Encode(telemetryRecord{
			Stage:      stage,
			Count:      st.Count,
			Max:        st.Max,
			Violations: st.Violations,
		}); err != nil {
			return err
		}
	}
	return nil
}
