package core

import "strings"

// CategorySet is one owner's allowed category names, split by
// transaction type. It is always a superset of the system defaults.
type CategorySet struct {
	Income  []string
	Expense []string
}

// ForType returns the names for a transaction type. The returned slice
// is the set's backing slice; callers must not mutate it.
func (s CategorySet) ForType(t TransactionType) []string {
	if t == Income {
		return s.Income
	}
	return s.Expense
}

// Has reports whether name is present for the type, case-insensitively.
func (s CategorySet) Has(t TransactionType, name string) bool {
	name = strings.TrimSpace(name)
	for _, c := range s.ForType(t) {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to mutate.
func (s CategorySet) Clone() CategorySet {
	return CategorySet{
		Income:  append([]string(nil), s.Income...),
		Expense: append([]string(nil), s.Expense...),
	}
}
