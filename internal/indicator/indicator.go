// Package indicator provides pure presentation mappings for the practice UI:
// the bounded depth gauge, difficulty labels, and duration formatting.
package indicator

import (
	"fmt"

	"github.com/torrance721/careerflow-practice/internal/domain"
)

const (
	// DepthLevels is the number of discrete levels on the depth gauge.
	DepthLevels = 5

	// MaxInfoPoints is the collected-info count that spans the full gauge.
	MaxInfoPoints = 8
)

// DepthLevel maps a collected-info count onto a bounded discrete level in
// [0, DepthLevels-1]. Counts beyond maxInfo clamp to the top level rather
// than overflowing the gauge.
func DepthLevel(infoCount, maxInfo int) int {
	if maxInfo <= 0 {
		maxInfo = MaxInfoPoints
	}
	if infoCount <= 0 {
		return 0
	}

	level := infoCount * DepthLevels / maxInfo
	if level > DepthLevels-1 {
		return DepthLevels - 1
	}
	return level
}

// DifficultyVariant is the visual variant associated with a difficulty label.
type DifficultyVariant string

const (
	VariantSuccess DifficultyVariant = "success"
	VariantWarning DifficultyVariant = "warning"
	VariantDanger  DifficultyVariant = "danger"
)

// DifficultyLabel is a display label plus visual variant for one difficulty.
type DifficultyLabel struct {
	Label   string            `json:"label"`
	Variant DifficultyVariant `json:"variant"`
}

// difficultyLabels is the fixed three-entry presentation table. Lookups go
// through domain.NormalizeDifficulty first, so every input resolves to one
// of these entries.
var difficultyLabels = map[domain.Difficulty]DifficultyLabel{
	domain.DifficultyEasy:   {Label: "Easy", Variant: VariantSuccess},
	domain.DifficultyMedium: {Label: "Medium", Variant: VariantWarning},
	domain.DifficultyHard:   {Label: "Hard", Variant: VariantDanger},
}

// LabelFor returns the display label and variant for a raw difficulty string.
func LabelFor(raw string) DifficultyLabel {
	return difficultyLabels[domain.NormalizeDifficulty(raw)]
}

// FormatDuration renders a second count as a compact "2m 5s" style string.
// Sub-minute durations omit the minute component.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}
