// Package series creates recurring transaction and card-expense
// series and applies scoped edits and deletes to them. A series is a
// set of records one calendar month apart sharing one generated id;
// scoped operations target either one record or the whole future tail
// from a pivot date, committed as a single atomic batch.
package series

import (
	"github.com/google/uuid"

	"carteira/internal/core"
)

// DefaultOccurrences is the series length when the caller does not
// specify one.
const DefaultOccurrences = 12

// minOccurrences: asking for a recurring series of fewer than two
// occurrences still yields two.
const minOccurrences = 2

// Occurrence is one generated member of a series: the date of the k-th
// monthly repetition and its "k/n" label.
type Occurrence struct {
	Date  core.Date
	Label string
}

// NewSeriesID generates the shared identifier for a new series.
func NewSeriesID() string {
	return uuid.NewString()
}

// NewRecordID generates a record identifier.
func NewRecordID() string {
	return uuid.NewString()
}

// NormalizeCount applies the default and minimum series length.
func NormalizeCount(n int) int {
	if n <= 0 {
		return DefaultOccurrences
	}
	if n < minOccurrences {
		return minOccurrences
	}
	return n
}

// Expand generates the n monthly occurrences of a series starting at
// base. Occurrence k (0-based) is dated base + k calendar months, day
// clamped to the target month, and labeled "k+1/n". Labels are
// immutable history markers: they are assigned here and never
// renumbered, even after a future-scoped delete truncates the series.
func Expand(base core.Date, n int) []Occurrence {
	base = base.Normalize()
	out := make([]Occurrence, n)
	for k := 0; k < n; k++ {
		out[k] = Occurrence{
			Date:  base.AddMonths(k),
			Label: core.Installment(k+1, n),
		}
	}
	return out
}
