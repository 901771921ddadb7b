// Package cli implements the studio command line tool.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"ai-portrait-studio/internal/dataurl"
	"ai-portrait-studio/internal/studio"
	"ai-portrait-studio/internal/style"
	"ai-portrait-studio/internal/upload"
)

var ErrAllFailed = errors.New("every style failed")

type Options struct {
	// NewGenerator is called only by commands that talk to the model.
	NewGenerator func() (studio.Generator, error)
	Logger       *slog.Logger
}

func NewCLI(opts Options) *cobra.Command {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rootCmd := &cobra.Command{
		Use:   "studio",
		Short: "Turn one portrait into six AI styled photos",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
		},
	}

	stylesCmd := &cobra.Command{
		Use:   "styles",
		Args:  cobra.NoArgs,
		Short: "List styles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ListHandler(cmd.OutOrStdout())
		},
	}

	generateCmd := &cobra.Command{
		Use:   "generate PHOTO",
		Args:  cobra.ExactArgs(1),
		Short: "Generate every style for a photo",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.NewGenerator == nil {
				return errors.New("no generator configured")
			}
			gen, err := opts.NewGenerator()
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("out")
			retries, _ := cmd.Flags().GetInt("retries")

			st := studio.New(studio.Options{
				Generator:   gen,
				Logger:      logger,
				BaseContext: cmd.Context(),
			})
			return GenerateHandler(cmd.OutOrStdout(), st, upload.New(upload.Options{Logger: logger}), args[0], out, retries)
		},
	}
	generateCmd.Flags().StringP("out", "o", ".", "Directory to write results to")
	generateCmd.Flags().IntP("retries", "r", 0, "Retry failed styles this many times")

	rootCmd.AddCommand(stylesCmd, generateCmd)
	return rootCmd
}

func ListHandler(w io.Writer) error {
	var data [][]string
	for _, def := range style.Catalog() {
		data = append(data, []string{def.ID, def.Name, def.Description})
	}

	table := newTable(w)
	table.SetHeader([]string{"ID", "NAME", "DESCRIPTION"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

// GenerateHandler runs one photo through st and writes every successful image
// into outDir.
func GenerateHandler(w io.Writer, st *studio.Studio, acquirer *upload.Acquirer, photo, outDir string, retries int) error {
	f, err := os.Open(photo)
	if err != nil {
		return err
	}
	defer f.Close()

	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	if err := acquirer.Select(st, upload.File{
		Name:   filepath.Base(photo),
		Size:   size,
		Reader: f,
	}); err != nil {
		return fmt.Errorf("%s: %w", upload.UserMessage(err), err)
	}
	st.Wait()

	for attempt := 0; attempt < retries; attempt++ {
		retried := 0
		for _, s := range st.Snapshot().States {
			if s.Status() == studio.StatusError && st.Retry(s.StyleID()) {
				retried++
			}
		}
		if retried == 0 {
			break
		}
		fmt.Fprintf(w, "retrying %d failed style(s)\n", retried)
		st.Wait()
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	var data [][]string
	succeeded := 0
	snap := st.Snapshot()
	for _, def := range st.Catalog() {
		s, ok := snap.State(def.ID)
		if !ok {
			continue
		}

		switch s.Status() {
		case studio.StatusSuccess:
			imageURL, _ := s.ImageURL()
			path, err := writeImage(outDir, def, imageURL)
			if err != nil {
				data = append(data, []string{def.Name, "error", err.Error()})
				continue
			}
			succeeded++
			data = append(data, []string{def.Name, "ok", path})
		case studio.StatusError:
			message, _ := s.Error()
			data = append(data, []string{def.Name, "error", message})
		default:
			data = append(data, []string{def.Name, s.Status().String(), ""})
		}
	}

	table := newTable(w)
	table.SetHeader([]string{"STYLE", "STATUS", "RESULT"})
	table.AppendBulk(data)
	table.Render()

	if succeeded == 0 {
		return ErrAllFailed
	}
	return nil
}

func writeImage(dir string, def style.Definition, imageURL string) (string, error) {
	_, data, err := dataurl.Decode(imageURL)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, style.DownloadName(def))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	return table
}
