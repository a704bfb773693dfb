package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/pyhost/internal/resources"
)

// ErrNoResources is returned by the locate command when no candidate validates.
var ErrNoResources = errors.New("no valid resource directory found")

// LocateReport is what the locate command prints.
type LocateReport struct {
	resources.Result
	Paths   resources.Paths `json:"paths"`
	Missing []string        `json:"missing"`
}

// LocateFunc resolves the resource directory and the launch paths under it.
type LocateFunc func() (resources.Result, resources.Paths)

// CreateLocateCmd creates the locate command.
func CreateLocateCmd(locate LocateFunc) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Show where the backend would be started from",
		Long: `Runs resource directory discovery exactly as startup does and prints every candidate tried, ` +
			`the chosen root and the interpreter, entry script and working directory derived from it. ` +
			`Exits non-zero when the backend could not be started.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, paths := locate()
			report := LocateReport{Result: result, Paths: paths, Missing: paths.Missing()}
			if report.Missing == nil {
				report.Missing = []string{}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else if err := writeLocateReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}

			if !report.Valid || len(report.Missing) > 0 {
				return ErrNoResources
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func writeLocateReport(out io.Writer, report LocateReport) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tROOT\tVALID")
	for _, c := range report.Tried {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", c.Strategy, c.Root, c.Valid)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "root:         %s (%s)\n", report.Root, report.Strategy)
	fmt.Fprintf(out, "interpreter:  %s\n", report.Paths.Interpreter)
	fmt.Fprintf(out, "entry script: %s\n", report.Paths.EntryScript)
	fmt.Fprintf(out, "working dir:  %s\n", report.Paths.WorkingDir)
	for _, m := range report.Missing {
		fmt.Fprintf(out, "missing:      %s\n", m)
	}
	return nil
}
