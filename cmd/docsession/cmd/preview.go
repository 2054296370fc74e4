package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/docsession/preview"
)

var previewOut string

var previewCmd = &cobra.Command{
	Use:   "preview <id> <filename>",
	Short: "Preview a document",
	Long: `Preview a document. Text and markdown files are printed; other files are
fetched through the preview endpoint and written to --output (stdout when empty).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if _, err := preview.KindFor(args[1]); err != nil {
			return err
		}

		c, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()

		v := c.Viewer()
		defer v.Close()

		h, err := v.Show(cmd.Context(), preview.File{ID: id, Filename: args[1]})
		if err != nil {
			return err
		}
		if h.Kind == preview.KindInlineText {
			fmt.Fprint(cmd.OutOrStdout(), h.Text)
			return nil
		}

		data, _, ok := c.Cache().Resolve(h.URI)
		if !ok {
			return fmt.Errorf("preview of %s was released before it could be read", args[1])
		}
		out := previewOut
		if out == "" {
			out = "-"
		}
		return writeOutput(cmd.OutOrStdout(), out, data)
	},
}

func init() {
	previewCmd.Flags().StringVarP(&previewOut, "output", "o", "", "Where to write non-text previews (default stdout)")
	rootCmd.AddCommand(previewCmd)
}
