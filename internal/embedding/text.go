// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package embedding

import (
	"fmt"
	"strings"

	"github.com/tomtom215/vitascope/internal/models"
)

// maxKeywords caps how many keywords feed the embedding text. Providers
// return dozens; past the first few they stop adding signal.
const maxKeywords = 10

// BuildText renders a film into the deterministic text representation fed
// to the embedding provider. The same film always produces the same text,
// so re-embedding an unchanged film yields the same vector and the upsert
// stays idempotent in practice as well as by key.
func BuildText(f *models.Film) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s (%d)", f.Title, f.Year)

	if len(f.Genres) > 0 {
		fmt.Fprintf(&b, ". Genres: %s", strings.Join(f.Genres, ", "))
	}
	if f.Runtime > 0 {
		fmt.Fprintf(&b, ". Runtime: %d minutes", f.Runtime)
	}
	fmt.Fprintf(&b, ". Rated %.1f from %d votes", f.VoteAverage, f.VoteCount)

	if f.OriginalLanguage != "" {
		fmt.Fprintf(&b, ". Language: %s", f.OriginalLanguage)
	}
	if len(f.Countries) > 0 {
		fmt.Fprintf(&b, ". Countries: %s", strings.Join(f.Countries, ", "))
	}
	if f.Overview != "" {
		fmt.Fprintf(&b, ". Overview: %s", f.Overview)
	}
	if len(f.Keywords) > 0 {
		kw := f.Keywords
		if len(kw) > maxKeywords {
			kw = kw[:maxKeywords]
		}
		fmt.Fprintf(&b, ". Keywords: %s", strings.Join(kw, ", "))
	}
	if f.Popularity > 0 {
		fmt.Fprintf(&b, ". Popularity: %.1f", f.Popularity)
	}

	return b.String()
}
