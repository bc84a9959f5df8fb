package processor

// Stage is a state of the per-document conversion machine
type Stage string

const (
	StageIdle           Stage = "idle"
	StageRendering      Stage = "rendering"
	StageEnhancing      Stage = "enhancing"
	StageSampling       Stage = "sampling"
	StageClassifying    Stage = "classifying"
	StageConfigSelected Stage = "config_selected"
	StageRecognizing    Stage = "recognizing"
	StageAccumulating   Stage = "accumulating"
	StageDone           Stage = "done"
	StageAborted        Stage = "aborted"
)

// Terminal reports whether no further transition follows
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageAborted
}

// Observer is notified on every stage transition. page is 1-based and 0 for
// document-level stages.
type Observer interface {
	OnStage(page, total int, stage Stage)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(page, total int, stage Stage)

// OnStage implements Observer
func (f ObserverFunc) OnStage(page, total int, stage Stage) { f(page, total, stage) }

type nopObserver struct{}

func (nopObserver) OnStage(int, int, Stage) {}

var stageFractions = map[Stage]float64{
	StageRendering:      0,
	StageEnhancing:      0.1,
	StageSampling:       0.2,
	StageClassifying:    0.3,
	StageConfigSelected: 0.35,
	StageRecognizing:    0.4,
	StageAccumulating:   1,
}

// Percent maps a page-level transition to overall progress in [0,100].
// Done is 100; idle, aborted and unknown stages are 0.
func Percent(page, total int, stage Stage) float64 {
	if stage == StageDone {
		return 100
	}
	if total <= 0 || page <= 0 {
		return 0
	}
	frac, ok := stageFractions[stage]
	if !ok {
		return 0
	}
	p := (float64(page-1) + frac) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}
