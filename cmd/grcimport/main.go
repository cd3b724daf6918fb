// Command grcimport imports and exports GRC spreadsheets from the command
// line, against PostgreSQL or an in-memory store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/grc/internal/app"
	"github.com/JonMunkholm/grc/internal/config"
	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/logging"
	"github.com/JonMunkholm/grc/internal/permissions"
)

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

type globalFlags struct {
	memory bool
	role   string
}

type importFlags struct {
	dryRun       bool
	allOrNothing bool
	format       string
	failOnError  bool
}

type exportFlags struct {
	format string
	out    string
}

func main() {
	_ = godotenv.Overload()

	var g globalFlags
	root := &cobra.Command{
		Use:           "grcimport",
		Short:         "Import and export GRC workflow spreadsheets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&g.memory, "memory", false, "Use an in-memory store instead of PostgreSQL")
	root.PersistentFlags().StringVar(&g.role, "role", "", "Role to check permissions against (default: DEFAULT_ROLE)")

	var imp importFlags
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a CSV or XLSX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cmd.OutOrStdout(), args[0], g, imp)
		},
	}
	f := importCmd.Flags()
	f.BoolVar(&imp.dryRun, "dry-run", false, "Validate only, write nothing")
	f.BoolVar(&imp.allOrNothing, "all-or-nothing", false, "Ignore a whole block when any row has an error")
	f.StringVar(&imp.format, "format", "text", "Output format: text or json")
	f.BoolVar(&imp.failOnError, "fail-on-error", false, "Exit 2 when any row or block has an error")

	var exp exportFlags
	exportCmd := &cobra.Command{
		Use:   "export <object type>...",
		Short: "Export records in the import layout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), cmd.OutOrStdout(), args, g, exp)
		},
	}
	exportCmd.Flags().StringVar(&exp.format, "format", core.FormatCSV, "Output format: csv or xlsx")
	exportCmd.Flags().StringVar(&exp.out, "out", "", "Write to file instead of stdout")

	rolesCmd := &cobra.Command{
		Use:   "roles",
		Short: "Print the resolved role permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printRoles(cmd.OutOrStdout(), permissions.Default())
		},
	}

	notifyCmd := &cobra.Command{
		Use:   "notify",
		Short: "Send pending emails and the digest once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotify(cmd.Context(), cmd.OutOrStdout(), g)
		},
	}

	root.AddCommand(importCmd, exportCmd, rolesCmd, notifyCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", core.FormatUserError(err))
		os.Exit(1)
	}
}

func setup(ctx context.Context, g globalFlags) (*app.App, *config.Config, error) {
	if g.memory {
		os.Setenv("DB_IN_MEMORY", "true")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, codeError(3, "configuration: %s", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

func subject(g globalFlags, cfg *config.Config) string {
	if g.role != "" {
		return g.role
	}
	return cfg.Security.DefaultRole
}

func runImport(ctx context.Context, w io.Writer, path string, g globalFlags, flags importFlags) error {
	if flags.format != "text" && flags.format != "json" {
		return codeError(3, "invalid --format %q (want text or json)", flags.format)
	}
	a, cfg, err := setup(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	file, err := os.Open(path)
	if err != nil {
		return codeError(3, "open %s: %s", path, err)
	}
	defer file.Close()

	opts := core.Options{
		DryRun:       flags.dryRun,
		AllOrNothing: flags.allOrNothing || cfg.Import.AllOrNothing,
		Subject:      subject(g, cfg),
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Import.Timeout)
	defer cancel()

	res, err := a.Pipeline.Import(ctx, path, file, opts)
	if res != nil {
		if rerr := renderResult(w, res, flags.format); rerr != nil {
			return rerr
		}
	}
	if err != nil {
		return err
	}
	if flags.failOnError && resultHasErrors(res) {
		return codeError(2, "import finished with errors")
	}
	return nil
}

func runExport(ctx context.Context, w io.Writer, names []string, g globalFlags, flags exportFlags) error {
	format := strings.ToLower(flags.format)
	if format != core.FormatCSV && format != core.FormatXLSX {
		return codeError(3, "invalid --format %q (want csv or xlsx)", flags.format)
	}
	a, cfg, err := setup(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	if flags.out != "" {
		out, err := os.Create(flags.out)
		if err != nil {
			return codeError(3, "create %s: %s", flags.out, err)
		}
		defer out.Close()
		w = out
	}
	return a.Pipeline.Export(ctx, w, format, names, subject(g, cfg))
}

func runNotify(ctx context.Context, w io.Writer, g globalFlags) error {
	a, _, err := setup(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	emails, emailErr := a.Notifications.NotifyEmail(ctx)
	digests, digestErr := a.Notifications.NotifyDigest(ctx)
	fmt.Fprintf(w, "sent %d email(s), %d digest(s)\n", emails, digests)
	return errors.Join(emailErr, digestErr)
}
