package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the type-specific sub-record attached to a memory record.
// Exactly one variant exists per memory type; the variant stored with a
// record always matches the record's Type.
//
// Variants are registered in a dispatch table rather than selected by a
// conditional chain, so adding a memory type means adding one constructor
// entry.
type Payload interface {
	// MemoryType reports which memory type this payload belongs to.
	MemoryType() MemoryType
}

// payloadConstructors maps each memory type to a constructor returning an
// empty payload of the matching variant.
var payloadConstructors = map[MemoryType]func() Payload{
	TypeWorking:    func() Payload { return &WorkingPayload{} },
	TypeEpisodic:   func() Payload { return &EpisodicPayload{} },
	TypeSemantic:   func() Payload { return &SemanticPayload{} },
	TypeProcedural: func() Payload { return &ProceduralPayload{} },
	TypeShared:     func() Payload { return &SharedPayload{} },
	TypeBusiness:   func() Payload { return &BusinessPayload{} },
}

// NewPayload returns an empty payload of the variant matching the memory
// type.
func NewPayload(t MemoryType) (Payload, error) {
	ctor, ok := payloadConstructors[t]
	if !ok {
		return nil, fmt.Errorf("record: no payload variant for memory type %q", string(t))
	}
	return ctor(), nil
}

// DecodePayload unmarshals JSON data into the payload variant matching the
// memory type. Empty data yields a nil payload.
func DecodePayload(t MemoryType, data []byte) (Payload, error) {
	if len(data) == 0 {
		return nil, nil
	}
	p, err := NewPayload(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("record: decode %s payload: %w", string(t), err)
	}
	return p, nil
}

// EncodePayload marshals a payload to JSON. A nil payload yields nil data.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("record: encode %s payload: %w", string(p.MemoryType()), err)
	}
	return data, nil
}

// WorkingPayload is short-lived task context for an in-progress activity.
type WorkingPayload struct {
	// TaskID links the context to the task it serves.
	TaskID string `json:"task_id,omitempty"`

	// ContextWindow holds the active context fragments, most recent last.
	ContextWindow []string `json:"context_window,omitempty"`

	// Priority orders working memories within a task.
	Priority int `json:"priority,omitempty"`

	// ExpiresAt is a soft expiry hint; working memories past it are demotion
	// candidates regardless of age thresholds.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// MemoryType implements Payload.
func (*WorkingPayload) MemoryType() MemoryType { return TypeWorking }

// EpisodicPayload records a concrete experience.
type EpisodicPayload struct {
	// Event describes what happened.
	Event string `json:"event"`

	// Outcome describes how it ended.
	Outcome string `json:"outcome,omitempty"`

	// Participants lists agents or external parties involved.
	Participants []string `json:"participants,omitempty"`

	// Emotion is an optional affective label attached by the agent.
	Emotion string `json:"emotion,omitempty"`

	// OccurredAt is when the experience happened, which may predate record
	// creation.
	OccurredAt time.Time `json:"occurred_at"`
}

// MemoryType implements Payload.
func (*EpisodicPayload) MemoryType() MemoryType { return TypeEpisodic }

// SemanticPayload is learned factual knowledge.
type SemanticPayload struct {
	// Facts are the individual statements this memory asserts.
	Facts []string `json:"facts,omitempty"`

	// Domain is the knowledge domain, e.g. "legal" or "infrastructure".
	Domain string `json:"domain,omitempty"`

	// Confidence is the agent's belief in the knowledge, in [0, 1].
	Confidence float64 `json:"confidence,omitempty"`

	// Sources records where the knowledge came from.
	Sources []string `json:"sources,omitempty"`
}

// MemoryType implements Payload.
func (*SemanticPayload) MemoryType() MemoryType { return TypeSemantic }

// ProcedureStep is one ordered step of a procedural memory.
type ProcedureStep struct {
	// Order positions the step within the procedure, starting at 1.
	Order int `json:"order"`

	// Action is what to do.
	Action string `json:"action"`

	// ExpectedResult is what success looks like for the step.
	ExpectedResult string `json:"expected_result,omitempty"`
}

// ProceduralPayload captures how to perform a task.
type ProceduralPayload struct {
	// Steps is the ordered procedure.
	Steps []ProcedureStep `json:"steps"`

	// SuccessCount and FailureCount track execution outcomes.
	SuccessCount int `json:"success_count,omitempty"`
	FailureCount int `json:"failure_count,omitempty"`

	// Prerequisites lists conditions that must hold before running.
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// MemoryType implements Payload.
func (*ProceduralPayload) MemoryType() MemoryType { return TypeProcedural }

// SuccessRate returns the fraction of successful executions, or 0 when the
// procedure has never run.
func (p *ProceduralPayload) SuccessRate() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(total)
}

// SharedPayload is knowledge published by one agent for use by others.
type SharedPayload struct {
	// SourceAgentID is the agent that published the knowledge.
	SourceAgentID string `json:"source_agent_id"`

	// SharedWith lists agent ids granted access; empty means visible to all
	// agents, subject to the external sharing service.
	SharedWith []string `json:"shared_with,omitempty"`

	// Visibility is a coarse scope label such as "team" or "public".
	Visibility string `json:"visibility,omitempty"`
}

// MemoryType implements Payload.
func (*SharedPayload) MemoryType() MemoryType { return TypeShared }

// BusinessPayload holds business metrics.
type BusinessPayload struct {
	// MetricName identifies the KPI.
	MetricName string `json:"metric_name"`

	// Value is the measured KPI value for the period.
	Value float64 `json:"value"`

	// Target is the KPI target for the period, if one is set.
	Target float64 `json:"target,omitempty"`

	// Trend is a direction label: "up", "down", or "flat".
	Trend string `json:"trend,omitempty"`

	// Period is the reporting period, e.g. "2026-Q3".
	Period string `json:"period,omitempty"`
}

// MemoryType implements Payload.
func (*BusinessPayload) MemoryType() MemoryType { return TypeBusiness }
