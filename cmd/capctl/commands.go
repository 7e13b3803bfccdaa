// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/ManuGH/capd/internal/target"
)

func (c *cli) targetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List targets and their owners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets, err := c.client().Targets(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), targets)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tTYPE\tOWNER\tSINCE")
			for _, t := range targets {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Type, orDash(t.Owner), since(t))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) acquireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "acquire TARGET",
		Short: "Take ownership of a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := c.client().Acquire(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s acquired by %s\n", info.ID, info.Owner)
			return nil
		},
	}
}

func (c *cli) releaseCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "release TARGET",
		Short: "Release a target, stopping its running captures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := c.client().Release(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s released\n", info.ID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "release a target owned by someone else")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list TARGET",
		Short: "Show which stream captures are running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := c.client().List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), map[string]any{"components": states})
			}
			names := make([]string, 0, len(states))
			for name := range states {
				names = append(names, name)
			}
			sort.Strings(names)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "CAPTURER\tSTATE")
			for _, name := range names {
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", name, states[name])
			}
			return tw.Flush()
		},
	}
}

func (c *cli) inventoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inventory TARGET",
		Short: "Describe the capturers of a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := c.client().Inventory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), map[string]any{"capturers": inv})
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "CAPTURER\tTYPE\tMIMETYPE\tALIAS OF")
			for _, d := range inv {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Mode, d.MediaType, orDash(d.AliasOf))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start TARGET CAPTURER",
		Short: "Start a stream capture, restarting it if already running",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client().Start(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s started\n", args[0], args[1])
			return nil
		},
	}
}

func (c *cli) getCmd() *cobra.Command {
	var dir, file string
	cmd := &cobra.Command{
		Use:   "get TARGET CAPTURER",
		Short: "Stop a stream capture or take a snapshot, and download the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.client().StopAndGet(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			defer out.Close()
			if out.Body == nil {
				return printJSON(cmd.OutOrStdout(), out.Data)
			}

			name := file
			if name == "" {
				name = filepath.Join(dir, filepath.Base(out.FileName))
			}
			n, err := saveAtomically(name, out.Body)
			if err != nil {
				return fmt.Errorf("save %s: %w", name, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %d bytes)\n", name, out.MediaType, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory to save files into")
	cmd.Flags().StringVar(&file, "file", "", "save the file under this name instead")
	return cmd
}

// saveAtomically writes r to path through a pending file, so an interrupted
// download leaves nothing behind under the final name.
func saveAtomically(path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, err
	}
	defer func() { _ = pending.Cleanup() }()
	n, err := io.Copy(pending, r)
	if err != nil {
		return n, err
	}
	return n, pending.CloseAtomicallyReplace()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func since(t target.Info) string {
	if t.AcquiredAt == nil {
		return "-"
	}
	return t.AcquiredAt.Local().Format(time.DateTime)
}
