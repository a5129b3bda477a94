package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dcpinventory-desktop/internal/config"
	"dcpinventory-desktop/internal/services/upload"
	"dcpinventory-desktop/internal/spreadsheet"

	"github.com/spf13/cobra"
)

func newPreviewCmd(g *globalOptions) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "preview <file.xlsx|file.xls> [--out preview.xlsx|preview.json]",
		Short: "Parse and reconcile a school list without uploading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := upload.ValidateUploadRequest(&upload.UploadRequest{FilePath: args[0]}); err != nil {
				return err
			}

			rt, err := g.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			preview, err := rt.Uploads.PreviewFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printPreviewSummary(cmd.OutOrStdout(), preview)
			if outPath == "" {
				return nil
			}
			if err := writePreviewFile(outPath, preview); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Preview written to %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the reconciled rows to an .xlsx or .json file")
	return cmd
}

func newUploadCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.xlsx|file.xls>",
		Short: "Reconcile a school list and submit it as one bulk create",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := upload.ValidateUploadRequest(&upload.UploadRequest{FilePath: args[0]}); err != nil {
				return err
			}

			rt, err := g.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			preview, result, err := rt.Uploads.UploadFile(cmd.Context(), args[0])
			if preview != nil {
				printPreviewSummary(cmd.OutOrStdout(), preview)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d schools\n", result.Uploaded)
			return nil
		},
	}
}

func newContactsCmd(g *globalOptions) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "contacts <file.xlsx|file.xls> [--workers N]",
		Short: "Update school contact details row by row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := upload.ValidateUploadRequest(&upload.UploadRequest{FilePath: args[0]}); err != nil {
				return err
			}

			rt, err := g.open(cmd.Context(), func(cfg *config.Configuration) {
				if workers > 0 {
					cfg.ContactUpdateWorkers = workers
				}
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.Uploads.UpdateContactsFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printContactReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent row updates (default CONTACT_UPDATE_WORKERS)")
	return cmd
}

func printPreviewSummary(w io.Writer, p *upload.Preview) {
	fmt.Fprintf(w, "%s: %d records, %d rows skipped, %d unmatched division/district values\n",
		p.FileName, len(p.Records), p.SkippedRows, len(p.Mismatches))
	for _, m := range p.Mismatches {
		line := fmt.Sprintf("  row %d: %s %q not found", m.Row, m.Field, m.Value)
		if len(m.Suggestions) > 0 {
			line += " (did you mean " + strings.Join(m.Suggestions, ", ") + "?)"
		}
		fmt.Fprintln(w, line)
	}
}

func printContactReport(w io.Writer, r *upload.ContactReport) {
	fmt.Fprintf(w, "Contact update %s: %d of %d rows updated, %d failed\n",
		r.Status, r.Updated, r.Total, len(r.Failures))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  row %d (%s %s): %s\n", f.Row, f.SchoolID, f.School, f.Error)
	}
}

// writePreviewFile writes the preview as a workbook or as JSON, chosen by extension
func writePreviewFile(path string, p *upload.Preview) (err error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".xlsx" && ext != ".json" {
		return fmt.Errorf("unsupported preview format %q, expected .xlsx or .json", ext)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if ext == ".xlsx" {
		return spreadsheet.WritePreview(f, p.Columns(), p.Rows())
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
