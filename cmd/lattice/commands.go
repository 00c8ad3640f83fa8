// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/latticeci/lattice/pkg/logging"
)

// --- Global Command Variables ---
var (
	serverURL   string
	projectID   string
	specSource  string
	environment string
	logLevel    string

	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "lattice",
		Short: "A cli to drive the Lattice API test orchestrator",
		Long: `Lattice ingests an OpenAPI spec, infers producer→consumer
				dependencies between endpoints, and executes the confirmed
				graph against a live environment in dependency order.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger, _ = logging.New(logging.Config{Level: logLevel, Service: "cli"})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	projectCmd = &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	projectCreateCmd = &cobra.Command{
		Use:   "create [name]",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			err := newAPIClient(serverURL).do("POST", "/projects",
				map[string]string{"name": args[0]}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	projectListCmd = &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := newAPIClient(serverURL).do("GET", "/projects", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	projectDeleteCmd = &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a project and its catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAPIClient(serverURL).do("DELETE", "/projects/"+args[0], nil, nil)
		},
	}

	ingestCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Ingest an OpenAPI spec into a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			err := newAPIClient(serverURL).do("POST", "/ingest",
				map[string]string{"projectId": projectID, "source": specSource}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Infer dependency candidates for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			err := newAPIClient(serverURL).do("POST", "/projects/"+projectID+"/analyze", nil, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Execute a project's dependency graph against an environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			err := newAPIClient(serverURL).do("POST", "/projects/"+projectID+"/run",
				map[string]string{"environment": environment}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	reportCmd = &cobra.Command{
		Use:   "report [runId]",
		Short: "Show the projection of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := newAPIClient(serverURL).do("GET", "/runs/"+args[0], nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
)

func printJSON(raw json.RawMessage) error {
	var buf map[string]interface{}
	if err := json.Unmarshal(raw, &buf); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(pretty))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		"http://localhost:12400", "orchestrator base URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")

	ingestCmd.Flags().StringVar(&projectID, "project", "", "target project id")
	ingestCmd.Flags().StringVar(&specSource, "spec", "", "spec URL or file path")
	_ = ingestCmd.MarkFlagRequired("project")
	_ = ingestCmd.MarkFlagRequired("spec")

	analyzeCmd.Flags().StringVar(&projectID, "project", "", "target project id")
	_ = analyzeCmd.MarkFlagRequired("project")

	runCmd.Flags().StringVar(&projectID, "project", "", "target project id")
	runCmd.Flags().StringVar(&environment, "env", "", "environment base URL")
	_ = runCmd.MarkFlagRequired("project")
	_ = runCmd.MarkFlagRequired("env")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectDeleteCmd)
	rootCmd.AddCommand(projectCmd, ingestCmd, analyzeCmd, runCmd, reportCmd)
}
