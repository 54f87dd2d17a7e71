// Package memory tracks what coaching content has already been delivered on a
// call so repeated suggestions can be penalized.
//
// A CoachMemory is a value. Merge never mutates its input; it returns a new
// memory, which keeps concurrent readers (loggers, persistence) safe.
package memory

// PrimarySuggestionLimit is the capacity of CoachMemory.LastPrimarySuggestions.
const PrimarySuggestionLimit = 5

// CoachMemory is the per-call ledger carried between coaching turns.
type CoachMemory struct {
	UsedValueProps         OrderedSet `json:"used_value_props"`
	UsedDifferentiators    OrderedSet `json:"used_differentiators"`
	UsedObjectionResponses OrderedSet `json:"used_objection_responses"`
	QuestionsAsked         OrderedSet `json:"questions_asked"`
	LastPrimarySuggestions FIFO       `json:"last_5_primary_suggestions"`
}

// UsedUpdates is what a single coaching turn reports as newly used.
type UsedUpdates struct {
	ValuePropsUsed         []string `json:"value_props_used"`
	DifferentiatorsUsed    []string `json:"differentiators_used"`
	ObjectionResponsesUsed []string `json:"objection_responses_used"`
	QuestionsAsked         []string `json:"questions_asked"`
}

// IsEmpty reports whether no list carries an item.
func (u UsedUpdates) IsEmpty() bool {
	return len(u.ValuePropsUsed) == 0 && len(u.DifferentiatorsUsed) == 0 &&
		len(u.ObjectionResponsesUsed) == 0 && len(u.QuestionsAsked) == 0
}

// Empty returns the memory a call starts with.
func Empty() CoachMemory {
	return CoachMemory{
		UsedValueProps:         NewOrderedSet(),
		UsedDifferentiators:    NewOrderedSet(),
		UsedObjectionResponses: NewOrderedSet(),
		QuestionsAsked:         NewOrderedSet(),
		LastPrimarySuggestions: NewFIFO(PrimarySuggestionLimit),
	}
}

// Clone returns a deep copy of m.
func (m CoachMemory) Clone() CoachMemory {
	return CoachMemory{
		UsedValueProps:         m.UsedValueProps.Clone(),
		UsedDifferentiators:    m.UsedDifferentiators.Clone(),
		UsedObjectionResponses: m.UsedObjectionResponses.Clone(),
		QuestionsAsked:         m.QuestionsAsked.Clone(),
		LastPrimarySuggestions: m.LastPrimarySuggestions.Clone(),
	}
}

// Merge folds one turn's updates and its primary suggestion into existing.
//
// Each list keeps its first-occurrence order: an item already present is
// dropped, never moved. The suggestion is pushed onto the primary FIFO, which
// evicts from the front past PrimarySuggestionLimit. existing is not modified.
func Merge(existing CoachMemory, updates UsedUpdates, newPrimarySuggestion string) CoachMemory {
	merged := existing.Clone()
	merged.UsedValueProps.Add(updates.ValuePropsUsed...)
	merged.UsedDifferentiators.Add(updates.DifferentiatorsUsed...)
	merged.UsedObjectionResponses.Add(updates.ObjectionResponsesUsed...)
	merged.QuestionsAsked.Add(updates.QuestionsAsked...)
	merged.LastPrimarySuggestions.Push(newPrimarySuggestion)
	return merged
}
