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
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/web7-labs/maestro/internal/session"
)

// newSubmitCommand creates the submit command.
func newSubmitCommand(opts *options) *cobra.Command {
	var agentID string
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit <query>",
		Short: "Submit a request and start a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()

			var resp SubmitResponse
			var err error
			if agentID != "" {
				resp, err = client.SubmitWithAgent(cmd.Context(), agentID, args[0])
			} else {
				resp, err = client.Submit(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			if opts.jsonMode {
				return printJSON(cmd, resp)
			}
			cmd.Printf("%s workflow started\n", styleOK.Render(symbolOK))
			cmd.Printf("  agent: %s\n", styleBold.Render(resp.AgentID))

			if watch {
				return watchWorkflow(cmd, opts, resp.AgentID)
			}
			cmd.Printf("  %s\n", styleMuted.Render("maestro watch "+resp.AgentID))
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Reuse an existing agent ID")
	cmd.Flags().BoolVar(&watch, "watch", false, "Poll progress until the workflow finishes")
	return cmd
}

// newStatusCommand creates the status command.
func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <agent-id>",
		Short: "Show the current state of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := opts.client().Workflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonMode {
				return printJSON(cmd, snap)
			}
			renderSnapshot(cmd, snap)
			return nil
		},
	}
}

// newWatchCommand creates the watch command.
func newWatchCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <agent-id>",
		Short: "Poll a workflow until it reaches a terminal status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchWorkflow(cmd, opts, args[0])
		},
	}
}

// watchWorkflow polls until the workflow succeeds or fails.
func watchWorkflow(cmd *cobra.Command, opts *options, agentID string) error {
	client := opts.client()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		snap, err := client.Workflow(cmd.Context(), agentID)
		if err != nil {
			return err
		}

		cmd.Println(styleMuted.Render(strings.Repeat("─", 40)))
		renderSnapshot(cmd, snap)

		if snap.Status.Terminal() {
			if snap.Status == session.StatusFailed {
				return fmt.Errorf("workflow failed: %s", snap.ErrorMessage)
			}
			return nil
		}

		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-ticker.C:
		}
	}
}

// renderSnapshot prints one human-readable view of a session.
func renderSnapshot(cmd *cobra.Command, snap *session.Snapshot) {
	cmd.Printf("%s %s  %s  %d%%\n",
		styleBold.Render(snap.AgentID),
		renderWorkflowStatus(snap.Status),
		styleMuted.Render(snap.Query),
		snap.ProgressPercentage)

	for _, step := range snap.Steps {
		line := fmt.Sprintf("  %s %s %s", renderStepSymbol(step.Status), step.StepID, step.Action)
		if step.MCPServer != "" {
			line += styleMuted.Render(" [" + step.MCPServer + "]")
		}
		if step.DurationSeconds != nil {
			line += styleMuted.Render(fmt.Sprintf(" (%.1fs)", *step.DurationSeconds))
		}
		cmd.Println(line)
	}

	if n := len(snap.Logs); n > 0 {
		cmd.Println(styleMuted.Render("  " + snap.Logs[n-1]))
	}
	if snap.ErrorMessage != "" {
		cmd.Println(styleError.Render("  error: " + snap.ErrorMessage))
	}
}
