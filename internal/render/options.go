// Package render turns a composed HTML document into PDF bytes by running
// an ordered list of render tiers until one succeeds.
package render

import (
	"time"

	"resume-pdf/internal/config"
)

// Options configures a single render attempt.
type Options struct {
	Tier string

	// Page geometry in inches. Margins are always zero; the template's CSS
	// owns the page layout.
	PaperWidth        float64
	PaperHeight       float64
	Scale             float64
	PrintBackground   bool
	PreferCSSPageSize bool

	WaitUntil string
	Timeout   time.Duration
	Isolated  bool
	Flags     []string
}

// TiersFromConfig expands the configured tiers with the shared page settings.
func TiersFromConfig(cfg config.Config) []Options {
	scale := cfg.PDF.Scale
	if scale <= 0 {
		scale = 1
	}
	tiers := make([]Options, 0, len(cfg.PDF.Tiers))
	for _, t := range cfg.PDF.Tiers {
		tiers = append(tiers, Options{
			Tier:              t.Name,
			PaperWidth:        cfg.PDF.PaperWidth,
			PaperHeight:       cfg.PDF.PaperHeight,
			Scale:             scale,
			PrintBackground:   true,
			PreferCSSPageSize: true,
			WaitUntil:         t.WaitUntil,
			Timeout:           t.Timeout,
			Isolated:          t.Isolated,
			Flags:             append([]string(nil), t.Flags...),
		})
	}
	return tiers
}
