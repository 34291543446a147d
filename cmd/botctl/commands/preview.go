package commands

import (
	"fmt"
	"io"
	"unicode/utf8"

	"cryptothreads/internal/service"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	postIndexStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	postMetaStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Compose the next thread without publishing",
	Long: `Gathers market data, headlines and videos, then prints the thread and
chat digest the next cycle would publish. Nothing is gated, posted or
recorded.`,
	RunE: runPreview,
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.Threads.Preview(ctx)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(cmd.OutOrStdout(), p)
	}
	renderPreview(cmd.OutOrStdout(), p)
	return nil
}

func renderPreview(w io.Writer, p service.Preview) {
	fmt.Fprintln(w, headerStyle.Render("Thread"))
	for i, post := range p.Thread {
		fmt.Fprintf(w, "%s %s\n%s\n\n",
			postIndexStyle.Render(fmt.Sprintf("%d/%d", i+1, len(p.Thread))),
			postMetaStyle.Render(fmt.Sprintf("(%d chars)", utf8.RuneCountInString(post))),
			post,
		)
	}

	if p.Message != "" {
		fmt.Fprintln(w, headerStyle.Render("Chat digest"))
		fmt.Fprintf(w, "%s\n\n", p.Message)
	}

	for _, e := range p.Errors {
		fmt.Fprintln(w, warnStyle.Render("warning: "+e))
	}
}
