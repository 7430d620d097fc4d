// Copyright 2025 Web7 Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/web7-labs/maestro/internal/session"
)

// CLI style colors using lipgloss
var (
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	styleInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // blue
	styleMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	styleBold  = lipgloss.NewStyle().Bold(true)
)

// Symbols for status indicators
const (
	symbolOK      = "✓"
	symbolError   = "✗"
	symbolRunning = "▸"
	symbolPending = "·"
)

// renderWorkflowStatus colors a workflow status label.
func renderWorkflowStatus(status session.Status) string {
	switch status {
	case session.StatusSucceeded:
		return styleOK.Render(string(status))
	case session.StatusFailed:
		return styleError.Render(string(status))
	case session.StatusInProgress:
		return styleInfo.Render(string(status))
	default:
		return styleMuted.Render(string(status))
	}
}

// renderStepSymbol picks the marker shown before a step line.
func renderStepSymbol(status session.StepStatus) string {
	switch status {
	case session.StepUpdated:
		return styleOK.Render(symbolOK)
	case session.StepFailed:
		return styleError.Render(symbolError)
	case session.StepStarted:
		return styleInfo.Render(symbolRunning)
	default:
		return styleMuted.Render(symbolPending)
	}
}
