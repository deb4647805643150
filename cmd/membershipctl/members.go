package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"membership-backend/internal/domain"
	"membership-backend/internal/factory"
)

var (
	exportDir    string
	exportSearch string
	exportYear   string
	reconcileFix bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the member roster to a dated CSV file",
	Long: `Export writes every member matching the filters to
membership_data_<date>.csv in the output directory.

Examples:
  membershipctl export --out ./backups
  membershipctl export --year "2nd Year"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFactory(func(ctx context.Context, f *factory.Factory) error {
			tmp, err := os.CreateTemp(exportDir, ".export-*.csv")
			if err != nil {
				return err
			}
			defer os.Remove(tmp.Name())
			filter := domain.MemberFilter{Search: exportSearch, YearLevel: domain.YearLevel(exportYear)}
			name, err := f.Services.Admin.ExportCSV(ctx, filter, tmp)
			if cerr := tmp.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			dest := filepath.Join(exportDir, name)
			if err := os.Rename(tmp.Name(), dest); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dest)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Replace the member roster with the contents of a CSV export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFactory(func(ctx context.Context, f *factory.Factory) error {
			var src io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				src = file
			}
			res, err := f.Services.Admin.ImportCSV(ctx, src)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d members, skipped %d rows\n", res.Loaded, res.Skipped)
			return nil
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Report stranded approvals and recycled numbers still in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFactory(func(ctx context.Context, f *factory.Factory) error {
			report, err := f.Services.Admin.Reconcile(ctx, reconcileFix)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd, reconcileCmd)

	exportCmd.Flags().StringVarP(&exportDir, "out", "o", ".", "Directory to write the CSV file to")
	exportCmd.Flags().StringVar(&exportSearch, "search", "", "Only export members matching this text")
	exportCmd.Flags().StringVar(&exportYear, "year", "", "Only export members of this year level")
	reconcileCmd.Flags().BoolVar(&reconcileFix, "repair", false, "Fix the findings instead of only reporting them")
}
