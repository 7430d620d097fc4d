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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// VersionInfo contains version metadata.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// options are the persistent root flags.
type options struct {
	server   string
	jsonMode bool
}

func (o *options) client() *Client {
	return NewClient(o.server)
}

// NewRootCommand builds the maestro CLI.
func NewRootCommand(info VersionInfo) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "maestro",
		Short:         "Client for the maestro workflow orchestration daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultServer := os.Getenv("MAESTRO_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8000"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer,
		"Daemon base URL (env: MAESTRO_SERVER)")
	root.PersistentFlags().BoolVar(&opts.jsonMode, "json", false,
		"Print raw JSON responses")

	root.AddCommand(
		newSubmitCommand(opts),
		newStatusCommand(opts),
		newWatchCommand(opts),
		newSearchCommand(opts),
		newVerifyCommand(opts),
		newSeedCommand(),
		newHealthCommand(opts),
		newVersionCommand(info, opts),
	)
	return root
}

// printJSON renders any payload as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// newVersionCommand creates the version command.
func newVersionCommand(info VersionInfo, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.jsonMode {
				return printJSON(cmd, info)
			}
			cmd.Printf("maestro %s (commit: %s, built: %s)\n",
				info.Version, info.Commit, info.BuildDate)
			return nil
		},
	}
}

// newHealthCommand creates the health command.
func newHealthCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon and directory health",
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := opts.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonMode {
				return printJSON(cmd, health)
			}

			cmd.Printf("%s %s %s\n",
				styleOK.Render(symbolOK), health.Service, styleMuted.Render(health.Version))
			if health.Database.Status == "healthy" {
				cmd.Printf("%s directory: %s\n", styleOK.Render(symbolOK), health.Database.Database)
			} else {
				cmd.Printf("%s directory: %s (%s)\n",
					styleError.Render(symbolError), health.Database.Database, health.Database.Error)
			}
			return nil
		},
	}
}
