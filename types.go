package browserd

import (
	"github.com/quarev/browserd/internal/cleanup"
	"github.com/quarev/browserd/internal/content"
	"github.com/quarev/browserd/internal/nav"
	"github.com/quarev/browserd/internal/steps"
	"github.com/quarev/browserd/internal/track"
)

// Re-exported domain types so callers never import internal packages.
type (
	SessionInfo     = track.SessionInfo
	TabInfo         = track.TabInfo
	NavigationEvent = track.NavigationEvent

	NavResult  = nav.Result
	Snapshot   = content.Snapshot
	EvalResult = content.EvalResult
	ShotResult = content.ShotResult
	PDFResult  = content.PDFResult

	Format = content.Format

	Step       = steps.Step
	StepKind   = steps.Kind
	StepResult = steps.Result

	CleanupReport  = cleanup.Report
	CleanupFailure = cleanup.Failure
)

// Content formats accepted by GetContent.
const (
	FormatHTML      = content.FormatHTML
	FormatSanitized = content.FormatSanitized
	FormatText      = content.FormatText
	FormatMarkdown  = content.FormatMarkdown
)

// Automation step kinds accepted by RunSteps.
const (
	StepNavigate = steps.KindNavigate
	StepClick    = steps.KindClick
	StepFill     = steps.KindFill
	StepWait     = steps.KindWait
	StepExtract  = steps.KindExtract
)

// Health reports engine readiness and registry occupancy.
type Health struct {
	EngineReady  bool     `json:"engine_ready"`
	Sessions     int      `json:"sessions"`
	Tabs         int      `json:"tabs"`
	Capabilities []string `json:"capabilities"`
}
