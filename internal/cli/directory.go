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
	"os"

	"github.com/spf13/cobra"

	"github.com/web7-labs/maestro/internal/directory"
	"github.com/web7-labs/maestro/internal/mcpprobe"
	"github.com/web7-labs/maestro/internal/summary"
)

// newSearchCommand creates the search command.
func newSearchCommand(opts *options) *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the tool directory for providers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := opts.client().Search(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}
			if opts.jsonMode {
				return printJSON(cmd, result)
			}

			if len(result.Servers) == 0 {
				cmd.Println(styleMuted.Render("no providers matched"))
				return nil
			}
			for _, provider := range result.Servers {
				cmd.Printf("%s %s  %s %s\n",
					styleOK.Render(symbolOK),
					styleBold.Render(provider.Name),
					provider.URL,
					styleMuted.Render("("+string(provider.Transport)+")"))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "count", "k", 5, "Number of providers to return")
	return cmd
}

// newVerifyCommand creates the verify command, which speaks MCP directly
// to a provider endpoint instead of going through the daemon.
func newVerifyCommand(opts *options) *cobra.Command {
	var endpoint, transport string

	cmd := &cobra.Command{
		Use:   "verify <provider-name>",
		Short: "Probe a provider's MCP endpoint and list its tools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := directory.Provider{
				Name:      args[0],
				URL:       endpoint,
				Transport: directory.Transport(transport),
			}

			// Resolve the endpoint through the daemon when not given.
			if provider.URL == "" {
				result, err := opts.client().Search(cmd.Context(), provider.Name, 1)
				if err != nil {
					return err
				}
				if len(result.Servers) == 0 {
					return fmt.Errorf("no provider found for %q", provider.Name)
				}
				provider = result.Servers[0]
			}

			report, err := mcpprobe.Probe(cmd.Context(), provider, "cli")
			if err != nil {
				return err
			}
			if opts.jsonMode {
				return printJSON(cmd, report)
			}

			cmd.Printf("%s %s %s  %s\n",
				styleOK.Render(symbolOK),
				styleBold.Render(report.ServerName),
				styleMuted.Render(report.ServerVersion),
				styleMuted.Render("protocol "+report.ProtocolVersion))
			for _, tool := range report.Tools {
				cmd.Printf("  %s %s  %s\n",
					styleInfo.Render(symbolPending), tool.Name, styleMuted.Render(tool.Description))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "url", "", "Provider MCP endpoint (skips directory lookup)")
	cmd.Flags().StringVar(&transport, "transport", string(directory.TransportStreamableHTTP),
		"MCP transport (streamable-http, sse)")
	return cmd
}

// newSeedCommand creates the seed command, which writes a provider catalog
// straight into Qdrant using the daemon's environment variables.
func newSeedCommand() *cobra.Command {
	var collection string
	var watch bool

	cmd := &cobra.Command{
		Use:   "seed <catalog.json>",
		Short: "Embed and load a provider catalog into the directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qdrantURL := os.Getenv("QDRANT_URL")
			if qdrantURL == "" {
				return fmt.Errorf("QDRANT_URL is required")
			}
			embedKey := os.Getenv("OPENAI_API_KEY")
			if embedKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is required")
			}

			embedder := summary.NewEmbedder(summary.EmbedderConfig{APIKey: embedKey})
			qdrant := directory.NewQdrantClient(directory.QdrantConfig{
				BaseURL:    qdrantURL,
				APIKey:     os.Getenv("QDRANT_API_KEY"),
				Collection: collection,
				Embedder:   embedder,
			})
			seeder := directory.NewSeeder(qdrant, embedder, nil)

			if watch {
				cmd.Printf("%s watching %s\n", styleInfo.Render(symbolRunning), args[0])
				return seeder.Watch(cmd.Context(), args[0])
			}
			if err := seeder.SeedFile(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("%s catalog seeded into %q\n", styleOK.Render(symbolOK), collection)
			return nil
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "mcp_servers", "Qdrant collection name")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and re-seed when the catalog changes")
	return cmd
}
