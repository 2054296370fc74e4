package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmcleod/docsession/gateway"
	"github.com/jmcleod/docsession/internal/util"
)

var (
	listSearch  string
	listMinSize string
	listMaxSize string
	listJSON    bool

	downloadOut string
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage your documents",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		minSize, err := util.ParseSize(listMinSize)
		if err != nil {
			return err
		}
		maxSize := int64(-1)
		if listMaxSize != "" {
			if maxSize, err = util.ParseSize(listMaxSize); err != nil {
				return err
			}
		}

		c, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()

		files, err := c.Documents().ListFiles(cmd.Context(), listSearch)
		if err != nil {
			return err
		}
		files = filterBySize(files, minSize, maxSize)

		if listJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(files)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tVERSION\tSIZE\tUPLOADED\tDESCRIPTION")
		for _, f := range files {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n",
				f.ID, f.Filename, f.Version, util.FormatSize(deref(f.Size)), f.UploadedTime, derefString(f.Description))
		}
		return tw.Flush()
	},
}

var filesRenameCmd = &cobra.Command{
	Use:   "rename <id> <new-name>",
	Short: "Rename a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()

		f, err := c.Documents().RenameFile(cmd.Context(), id, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %d to %s\n", f.ID, f.Filename)
		return nil
	},
}

var filesDescribeCmd = &cobra.Command{
	Use:   "describe <id> [description]",
	Short: "Set or clear a document's description",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var desc string
		if len(args) == 2 {
			desc = args[1]
		}
		c, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()

		if _, err := c.Documents().DescribeFile(cmd.Context(), id, desc); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Description saved")
		return nil
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()

		if err := c.Documents().DeleteFile(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "File deleted successfully!")
		return nil
	},
}

var filesDownloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download a document",
	Long: `Download a document. It is written to --output, or to the service's
filename in the current directory when --output is empty. Use --output - for stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()

		content, err := c.Documents().Download(cmd.Context(), id)
		if err != nil {
			return err
		}
		out := downloadOut
		if out == "" {
			out = filepath.Base(content.Filename)
			if out == "." || out == string(filepath.Separator) || out == "" {
				out = "download-" + args[0]
			}
		}
		if err := writeOutput(cmd.OutOrStdout(), out, content.Data); err != nil {
			return err
		}
		if out != "-" {
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", out, util.FormatSize(int64(len(content.Data))))
		}
		return nil
	},
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Upload one or more files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()

		var failed int
		for _, p := range args {
			res, err := uploadPath(cmd, c.Documents(), p)
			if err != nil {
				// A rejected session ends every later upload too.
				if isSessionEnding(err) {
					return err
				}
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "Upload failed: %s: %v\n", p, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "File uploaded: %s (version %d)\n", res.Filename, res.Version)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d uploads failed", failed, len(args))
		}
		return nil
	},
}

var filesReplaceCmd = &cobra.Command{
	Use:   "replace <id> <path>",
	Short: "Replace a document's content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		c, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()

		updated, err := c.Documents().ReplaceContent(cmd.Context(), id, filepath.Base(args[1]), f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s to version %d\n", updated.Filename, updated.Version)
		return nil
	},
}

func uploadPath(cmd *cobra.Command, docs *gateway.Documents, p string) (gateway.UploadResult, error) {
	f, err := os.Open(p)
	if err != nil {
		return gateway.UploadResult{}, err
	}
	defer f.Close()
	return docs.Upload(cmd.Context(), filepath.Base(p), f)
}

func filterBySize(files []gateway.File, minSize, maxSize int64) []gateway.File {
	if minSize <= 0 && maxSize < 0 {
		return files
	}
	out := files[:0:0]
	for _, f := range files {
		size := deref(f.Size)
		if size < minSize || (maxSize >= 0 && size > maxSize) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func init() {
	filesListCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Only files whose name contains this text")
	filesListCmd.Flags().StringVar(&listMinSize, "min-size", "", "Minimum size, e.g. 10KB")
	filesListCmd.Flags().StringVar(&listMaxSize, "max-size", "", "Maximum size, e.g. 2MB")
	filesListCmd.Flags().BoolVar(&listJSON, "json", false, "Print JSON instead of a table")
	filesDownloadCmd.Flags().StringVarP(&downloadOut, "output", "o", "", "Output path, or - for stdout")

	filesCmd.AddCommand(filesListCmd, filesRenameCmd, filesDescribeCmd, filesDeleteCmd,
		filesDownloadCmd, filesUploadCmd, filesReplaceCmd)
	rootCmd.AddCommand(filesCmd)
}
