// Package suggest provides a category suggester built from the categories
// already assigned in an owner's ledger.
package suggest

import (
	"context"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"statement-reconciliation-service/internal/matcher"
	"statement-reconciliation-service/internal/models"
)

// DefaultMinSimilarity is the lowest edit-distance similarity that yields a suggestion
const DefaultMinSimilarity = 0.6

type entry struct {
	description string
	categoryID  string
}

// HistorySuggester ranks categories by how closely a description resembles
// previously categorized ledger descriptions
type HistorySuggester struct {
	entries       []entry
	minSimilarity float64
}

var _ matcher.CategorySuggester = (*HistorySuggester)(nil)

// NewHistorySuggester indexes every categorized ledger row. Rows without a
// category are ignored. A non-positive minSimilarity uses the default.
func NewHistorySuggester(ledger []*models.LedgerTransaction, minSimilarity float64) *HistorySuggester {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}

	hs := &HistorySuggester{minSimilarity: minSimilarity}
	for _, tx := range ledger {
		if tx.CategoryID == nil || *tx.CategoryID == "" {
			continue
		}
		hs.add(tx.Description, *tx.CategoryID)
		if tx.BankReference != nil {
			hs.add(*tx.BankReference, *tx.CategoryID)
		}
	}
	return hs
}

func (hs *HistorySuggester) add(description, categoryID string) {
	if d := normalize(description); d != "" {
		hs.entries = append(hs.entries, entry{description: d, categoryID: categoryID})
	}
}

// Len returns the number of indexed descriptions
func (hs *HistorySuggester) Len() int {
	return len(hs.entries)
}

// Suggest returns categories whose best matching description is at least
// minSimilarity alike, best first. Ties are ordered by category id.
func (hs *HistorySuggester) Suggest(ctx context.Context, description string) ([]matcher.Suggestion, error) {
	target := normalize(description)
	if target == "" {
		return nil, nil
	}

	best := make(map[string]float64)
	for i, e := range hs.entries {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		sim := Similarity(target, e.description)
		if sim >= hs.minSimilarity && sim > best[e.categoryID] {
			best[e.categoryID] = sim
		}
	}

	suggestions := make([]matcher.Suggestion, 0, len(best))
	for id, sim := range best {
		suggestions = append(suggestions, matcher.Suggestion{CategoryID: id, Confidence: sim})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].CategoryID < suggestions[j].CategoryID
	})
	return suggestions, nil
}

// Similarity is one minus the edit distance divided by the longer length
func Similarity(a, b string) float64 {
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func normalize(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
