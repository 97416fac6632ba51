package services

import "github.com/rs/zerolog"

// Best-effort steps of a chat turn.
const (
	StepCacheWrite   = "cache_write"
	StepCacheRead    = "cache_read"
	StepHTMLPatch    = "html_patch"
	StepTouchProject = "touch_project"
)

// Outcome records a best-effort step that failed without failing its
// operation. Callers may inspect it; nothing requires them to.
type Outcome struct {
	Step   string
	Target string
	Err    error
}

func logOutcomes(log *zerolog.Logger, outcomes []Outcome) {
	for _, o := range outcomes {
		log.Warn().Err(o.Err).Str("step", o.Step).Str("target", o.Target).Msg("best-effort step failed")
	}
}
