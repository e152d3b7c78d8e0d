package cmd

import (
	"bytes"
	"fmt"
	"os"

	"CaseForAI/backend/go/internal/pdfkit"

	"github.com/spf13/cobra"
)

var (
	numberFormat   string
	numberPosition string
	numberFontSize int
)

var pdfCmd = &cobra.Command{
	Use:   "pdf",
	Short: "PDF utilities used when assembling case packages",
}

var pdfPagesCmd = &cobra.Command{
	Use:   "pages [file-path]",
	Short: "Print the page count of a PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := pdfkit.PageCount(f)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var pdfNumberCmd = &cobra.Command{
	Use:   "number [in] [out]",
	Short: "Stamp page numbers on every page of a PDF",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		switch pdfkit.Position(numberPosition) {
		case pdfkit.BottomCenter, pdfkit.BottomLeft, pdfkit.BottomRight, pdfkit.TopCenter, pdfkit.TopRight:
		default:
			return fmt.Errorf("unknown position %q (use bc, bl, br, tc or tr)", numberPosition)
		}

		var buf bytes.Buffer
		opts := pdfkit.NumberOptions{Format: numberFormat, Position: pdfkit.Position(numberPosition), FontSize: numberFontSize}
		if err := pdfkit.NumberPages(bytes.NewReader(data), &buf, opts); err != nil {
			return err
		}
		if err := os.WriteFile(args[1], buf.Bytes(), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pdfCmd)
	pdfCmd.AddCommand(pdfPagesCmd)
	pdfCmd.AddCommand(pdfNumberCmd)

	pdfNumberCmd.Flags().StringVar(&numberFormat, "format", "Page %p of %P", "page label, %p is the page and %P the total")
	pdfNumberCmd.Flags().StringVar(&numberPosition, "position", string(pdfkit.BottomCenter), "anchor: bc, bl, br, tc or tr")
	pdfNumberCmd.Flags().IntVar(&numberFontSize, "font-size", 9, "font size in points")
}
