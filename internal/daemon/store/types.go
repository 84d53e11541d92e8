// Package store provides the in-memory observable state of the kernel.
package store

import (
	"time"

	"github.com/grovetools/cellkernel/pkg/outcome"
)

// Phase is the engine's position in one execution cycle.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseAssembling        Phase = "assembling"
	PhaseInvoking          Phase = "invoking"
	PhaseClassifying       Phase = "classifying"
	PhaseSuccess           Phase = "success"
	PhaseBuildFailure      Phase = "build_failure"
	PhaseExtractionFailure Phase = "extraction_failure"
)

// Terminal reports whether p ends a cycle.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseSuccess, PhaseBuildFailure, PhaseExtractionFailure:
		return true
	}
	return false
}

// PhaseFor maps an outcome kind to its terminal phase.
func PhaseFor(kind outcome.Kind) Phase {
	switch kind {
	case outcome.KindSuccess:
		return PhaseSuccess
	case outcome.KindBuildFailure:
		return PhaseBuildFailure
	default:
		return PhaseExtractionFailure
	}
}

// State is the kernel's world view as exposed to clients.
type State struct {
	Phase       Phase            `json:"phase"`
	Filename    string           `json:"filename"`
	Workspace   string           `json:"workspace"`
	ArtifactDir string           `json:"artifact_dir"`
	CellCount   int              `json:"cell_count"`
	Runs        int              `json:"runs"`
	LastOutcome *outcome.Outcome `json:"last_outcome,omitempty"`
	SessionAt   time.Time        `json:"session_started_at"`
}

// SessionInfo describes a freshly started session.
type SessionInfo struct {
	Filename    string    `json:"filename"`
	Workspace   string    `json:"workspace"`
	ArtifactDir string    `json:"artifact_dir"`
	StartedAt   time.Time `json:"started_at"`
}

// UpdateType defines what kind of data changed.
type UpdateType string

const (
	UpdatePhase        UpdateType = "phase"
	UpdateCells        UpdateType = "cells"
	UpdateOutcome      UpdateType = "outcome"
	UpdateSessionReset UpdateType = "session_reset"
	UpdateConfigReload UpdateType = "config_reload"
)

// Update represents a change to the state.
type Update struct {
	Type    UpdateType  `json:"type"`
	Source  string      `json:"source,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}
