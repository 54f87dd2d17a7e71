// Package engine defines the contract of the coaching brain: the shape of
// what goes into a coaching turn, the shape of what comes out, and the
// strict validation that guards both directions.
//
// Every object at every nesting level rejects keys it does not declare. A
// failed input validation abandons the turn before any model call; a failed
// output validation is replaced by SafeFallbackResponse.
package engine

import (
	"github.com/realtime-ai/realtime-coach/pkg/memory"
)

// CallMode is how a call is wired. All modes share one coaching contract.
type CallMode string

const (
	CallModeOutbound CallMode = "OUTBOUND"
	CallModeMock     CallMode = "MOCK"
	CallModeAICaller CallMode = "AI_CALLER"
)

// CallModes lists every supported mode.
var CallModes = []CallMode{CallModeOutbound, CallModeMock, CallModeAICaller}

// Valid reports whether m is a known call mode.
func (m CallMode) Valid() bool {
	switch m {
	case CallModeOutbound, CallModeMock, CallModeAICaller:
		return true
	}
	return false
}

// Speaker identifies who said a transcript line.
type Speaker string

const (
	SpeakerRep      Speaker = "REP"
	SpeakerProspect Speaker = "PROSPECT"
)

// Contract bounds.
const (
	MaxRAGChunks           = 8
	MaxTranscriptWindow    = 15
	MaxNudges              = 3
	DefaultSuggestionCount = 3
)

// CompanyBrief describes the seller.
type CompanyBrief struct {
	CompanyName    string `json:"companyName"`
	WhatWeSell     string `json:"whatWeSell"`
	TargetCustomer string `json:"targetCustomer"`
}

// RAGChunk is one retrieved knowledge snippet.
type RAGChunk struct {
	Field string  `json:"field"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// TranscriptTurn is one line of the recent conversation.
type TranscriptTurn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// EngineInput is everything the brain sees for one coaching turn.
//
// Values of this type reach the brain only through ValidateInput or
// BuildInput; Validated reports which.
type EngineInput struct {
	OrgID                 string             `json:"orgId"`
	CallID                string             `json:"callId"`
	CallMode              CallMode           `json:"callMode"`
	CallType              string             `json:"callType"`
	GuidanceLevel         string             `json:"guidanceLevel"`
	CompanyBrief          CompanyBrief       `json:"companyBrief"`
	RAGChunks             []RAGChunk         `json:"ragChunks"`
	AgentPromptDelta      string             `json:"agentPromptDelta"`
	Strategy              string             `json:"strategy"`
	CurrentStage          string             `json:"currentStage"`
	StageChecklist        []string           `json:"stageChecklist"`
	TranscriptWindow      []TranscriptTurn   `json:"transcriptWindow"`
	ProspectLastUtterance string             `json:"prospectLastUtterance"`
	ObjectionType         *string            `json:"objectionType"`
	DetectedEntities      []string           `json:"detectedEntities"`
	Intent                *string            `json:"intent"`
	CoachMemory           memory.CoachMemory `json:"coachMemory"`
	Notes                 *string            `json:"notes"`
	SuggestionCount       int                `json:"suggestionCount"`

	validated bool
}

// Validated reports whether in was produced by the validator.
func (in *EngineInput) Validated() bool {
	return in != nil && in.validated
}

// WithMemory returns a validated copy of in carrying m as its coach memory.
// Memory only ever comes from Merge, so the copy stays within the contract.
func (in *EngineInput) WithMemory(m memory.CoachMemory) *EngineInput {
	out := *in
	out.CoachMemory = m.Clone()
	return &out
}

// ContextToast is a short card shown beside the suggestion.
type ContextToast struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// EngineResponse is the brain's single structured suggestion for a turn.
type EngineResponse struct {
	Say          string             `json:"say"`
	Intent       string             `json:"intent"`
	Reason       string             `json:"reason"`
	Nudges       []string           `json:"nudges"`
	ContextToast *ContextToast      `json:"context_toast"`
	Ask          *string            `json:"ask"`
	UsedUpdates  memory.UsedUpdates `json:"used_updates"`
}
