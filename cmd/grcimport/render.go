package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/permissions"
)

func renderResult(w io.Writer, res *core.ImportResult, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	mode := ""
	if res.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "%s%s\n", res.FileName, mode)
	for _, d := range res.Errors {
		fmt.Fprintf(w, "  %s\n", d)
	}
	for _, d := range res.Warnings {
		fmt.Fprintf(w, "  %s\n", d)
	}

	for _, b := range res.Blocks {
		fmt.Fprintf(w, "\n%s (line %d): %d created, %d updated, %d ignored",
			b.ObjectType, b.Line, b.Created, b.Updated, b.Ignored)
		if b.Failed > 0 {
			fmt.Fprintf(w, ", %d failed", b.Failed)
		}
		fmt.Fprintln(w)
		for _, d := range b.BlockErrors {
			fmt.Fprintf(w, "  %s\n", d)
		}
		for _, d := range b.BlockWarnings {
			fmt.Fprintf(w, "  %s\n", d)
		}
		for _, r := range b.Rows {
			if len(r.Diagnostics) == 0 && len(r.Changes) == 0 {
				continue
			}
			fmt.Fprintf(w, "  line %d %s %s\n", r.Line, r.Slug, r.Action)
			for _, d := range r.Diagnostics {
				fmt.Fprintf(w, "    %s\n", d)
			}
			for _, c := range r.Changes {
				fmt.Fprintf(w, "    %s: %q -> %q\n", c.Column, c.Old, c.New)
			}
		}
	}

	created, updated, ignored, failed := res.Totals()
	fmt.Fprintf(w, "\ntotal: %d created, %d updated, %d ignored, %d failed\n", created, updated, ignored, failed)
	return nil
}

func resultHasErrors(res *core.ImportResult) bool {
	if len(res.Errors) > 0 {
		return true
	}
	for i := range res.Blocks {
		if res.Blocks[i].HasErrors() || res.Blocks[i].Failed > 0 {
			return true
		}
	}
	return false
}

func printRoles(w io.Writer, reg *permissions.Registry) error {
	for _, name := range reg.Names() {
		role, ok := reg.Role(name)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s [%s]\n", name, role.Scope)
		if role.Description != "" {
			fmt.Fprintf(w, "  %s\n", role.Description)
		}
		actions := make([]string, 0, len(role.Permissions))
		for a := range role.Permissions {
			actions = append(actions, a)
		}
		sort.Strings(actions)
		for _, a := range actions {
			types := append([]string(nil), role.Permissions[a]...)
			sort.Strings(types)
			fmt.Fprintf(w, "  %-6s %s\n", a, strings.Join(types, ", "))
		}
	}
	return nil
}
