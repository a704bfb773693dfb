package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/pyhost/internal/files"
)

// CreateScanCmd creates the scan command.
func CreateScanCmd() *cobra.Command {
	var ext string

	cmd := &cobra.Command{
		Use:          "scan <dir>",
		Short:        "List files with an extension below a directory",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := files.Scan(args[0], ext)
			if err != nil {
				return err
			}
			for _, path := range found {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&ext, "ext", "e", "txt", "File extension to match")
	return cmd
}
