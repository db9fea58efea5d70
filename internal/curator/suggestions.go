// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package curator

import (
	"context"
	"fmt"
	"sort"
)

// gapThreshold is the minimum shortfall (in share) before a genre is worth
// reporting as a coverage gap.
const gapThreshold = 0.02

// thinEraFloor is the film count below which an era is reported as thin.
const thinEraFloor = 25

// GenreGap is an underrepresented genre relative to its target share.
type GenreGap struct {
	Genre        string  `json:"genre"`
	TargetShare  float64 `json:"target_share"`
	CurrentShare float64 `json:"current_share"`
	Gap          float64 `json:"gap"`
}

// EraGap is a release era with thin catalog coverage.
type EraGap struct {
	Era   string `json:"era"`
	Count int64  `json:"count"`
}

// Suggestions describes where the catalog's coverage is weakest, to steer
// discovery and manual submissions.
type Suggestions struct {
	GenreGaps []GenreGap `json:"genre_gaps"`
	ThinEras  []EraGap   `json:"thin_eras"`
}

// Suggest reports genre and era coverage gaps, largest gaps first.
func (c *Curator) Suggest(ctx context.Context) (*Suggestions, error) {
	genreShare, err := c.store.GenreDistribution(ctx)
	if err != nil {
		return nil, fmt.Errorf("genre distribution: %w", err)
	}

	s := &Suggestions{
		GenreGaps: []GenreGap{},
		ThinEras:  []EraGap{},
	}

	for genre, target := range c.cfg.GenreTargets {
		current := genreShare[genre]
		if gap := target - current; gap > gapThreshold {
			s.GenreGaps = append(s.GenreGaps, GenreGap{
				Genre:        genre,
				TargetShare:  target,
				CurrentShare: current,
				Gap:          gap,
			})
		}
	}
	sort.Slice(s.GenreGaps, func(i, j int) bool {
		if s.GenreGaps[i].Gap != s.GenreGaps[j].Gap {
			return s.GenreGaps[i].Gap > s.GenreGaps[j].Gap
		}
		return s.GenreGaps[i].Genre < s.GenreGaps[j].Genre
	})

	eraCounts, err := c.store.EraDistribution(ctx)
	if err != nil {
		return nil, fmt.Errorf("era distribution: %w", err)
	}
	for era, count := range eraCounts {
		if count < thinEraFloor {
			s.ThinEras = append(s.ThinEras, EraGap{Era: era, Count: count})
		}
	}
	sort.Slice(s.ThinEras, func(i, j int) bool {
		if s.ThinEras[i].Count != s.ThinEras[j].Count {
			return s.ThinEras[i].Count < s.ThinEras[j].Count
		}
		return s.ThinEras[i].Era < s.ThinEras[j].Era
	})

	return s, nil
}
