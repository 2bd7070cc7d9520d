package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/samsaffron/pulse/internal/chat"
	"github.com/samsaffron/pulse/internal/edit"
	"github.com/samsaffron/pulse/internal/render"
	"github.com/samsaffron/pulse/internal/search"
	"github.com/samsaffron/pulse/internal/signal"
	"github.com/samsaffron/pulse/internal/tags"
)

var (
	buildSite string
	buildIn   string
	buildOut  string
	buildRefs []string
	buildDiff bool
	buildSave string
)

var buildCmd = &cobra.Command{
	Use:   "build <request>",
	Short: "Run one turn against a pulse server",
	Long: `Send one request to a pulse server and apply the reply to a document.

The reply is shown on stderr. The resulting document is written to --out,
or to stdout when neither --out nor --site is given.

Examples:
  pulse build "a landing page for a bakery" --out index.html
  pulse build "tighten the copy" --in index.html --out index.html --diff
  pulse build "use our brand colours" --ref 'docs/**/*.md' --in index.html
  pulse build "add a pricing table" --site 3f2a...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVar(&buildSite, "site", "", "Saved site to edit; the server stores the result")
	buildCmd.Flags().StringVarP(&buildIn, "in", "i", "", "Start from this HTML file")
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "Write the resulting document here")
	buildCmd.Flags().StringArrayVar(&buildRefs, "ref", nil, "Reference files for this turn (glob, repeatable, ** supported)")
	buildCmd.Flags().BoolVar(&buildDiff, "diff", false, "Show a diff of the document change")
	buildCmd.Flags().StringVar(&buildSave, "save", "", "Save the result as a new site with this name ('-' uses the page title)")
}

type buildStyles struct {
	muted   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
}

func newBuildStyles(w *os.File) buildStyles {
	if !term.IsTerminal(int(w.Fd())) {
		plain := lipgloss.NewStyle()
		return buildStyles{muted: plain, success: plain, failure: plain}
	}
	return buildStyles{
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context())
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg.Client)
	if err != nil {
		return err
	}
	styles := newBuildStyles(os.Stderr)
	message := strings.Join(args, " ")

	before, name, err := loadStartDocument(ctx, client)
	if err != nil {
		return err
	}

	if len(buildRefs) > 0 {
		if err := uploadReferences(ctx, client, buildRefs); err != nil {
			return err
		}
	}

	consumer := chat.NewConsumer(chat.ConsumerOptions{
		Document: before,
		OnSearch: func(phase search.Phase, reqs []tags.Request) {
			if phase == search.PhaseSearching {
				fmt.Fprintln(os.Stderr, styles.muted.Render("Searching: "+describeRequests(reqs)))
			}
		},
		OnCodeActive: func(active bool) {
			if active {
				fmt.Fprintln(os.Stderr, styles.muted.Render("Writing code…"))
			}
		},
	})
	defer consumer.Stop()

	req := chat.TurnRequest{
		Message:  message,
		Document: before,
		Numbered: edit.NumberLines(before),
		RecordID: buildSite,
	}
	if err := client.stream(ctx, req, consumer.Handle); err != nil {
		return err
	}
	if !consumer.Done() {
		return errors.New("stream ended before the reply was complete")
	}

	res := consumer.Result()
	if reply := lastAssistant(res.Messages); reply != "" {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(reply))
	}
	if res.Err != "" {
		return errors.New(res.Err)
	}
	status := res.Status
	if res.Summary != "" {
		status += " · " + res.Summary
	}
	fmt.Fprintln(os.Stderr, styles.success.Render(status))

	after := res.Document
	if buildDiff && after != before {
		fmt.Fprint(os.Stderr, edit.PatchDiff(name, before, after))
	}

	switch {
	case buildOut != "":
		if err := os.WriteFile(buildOut, []byte(after), 0644); err != nil {
			return fmt.Errorf("write %s: %w", buildOut, err)
		}
	case buildSite == "":
		if _, err := io.WriteString(os.Stdout, after); err != nil {
			return err
		}
	}

	if buildSave != "" {
		return saveSite(ctx, client, buildSave, after, styles)
	}
	return nil
}

// loadStartDocument returns the document the turn edits and a display name
// for diffs.
func loadStartDocument(ctx context.Context, client *apiClient) (string, string, error) {
	switch {
	case buildSite != "":
		var site struct {
			Name string `json:"name"`
			HTML string `json:"html"`
		}
		if err := client.call(ctx, http.MethodGet, "/api/sites/"+buildSite, nil, &site); err != nil {
			return "", "", fmt.Errorf("load site: %w", err)
		}
		return site.HTML, site.Name, nil
	case buildIn != "":
		data, err := os.ReadFile(buildIn)
		if err != nil {
			return "", "", err
		}
		return string(data), filepath.Base(buildIn), nil
	default:
		return "", "index.html", nil
	}
}

func uploadReferences(ctx context.Context, client *apiClient, patterns []string) error {
	type file struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	var files []file
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return fmt.Errorf("bad --ref pattern %q: %w", pattern, err)
		}
		for _, path := range matches {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			files = append(files, file{Name: filepath.Base(path), Content: string(data)})
		}
	}
	if len(files) == 0 {
		return errors.New("--ref matched no files")
	}
	return client.call(ctx, http.MethodPost, "/api/references", map[string]any{"files": files}, nil)
}

func saveSite(ctx context.Context, client *apiClient, name, doc string, styles buildStyles) error {
	if name == "-" {
		name = render.Title(doc)
	}
	if name == "" {
		name = "Untitled"
	}
	var out struct {
		Site struct {
			ID string `json:"id"`
		} `json:"site"`
	}
	if err := client.call(ctx, http.MethodPost, "/api/sites", map[string]string{"name": name, "html": doc}, &out); err != nil {
		fmt.Fprintln(os.Stderr, styles.failure.Render("Could not save site."))
		return err
	}
	fmt.Fprintln(os.Stderr, styles.muted.Render(fmt.Sprintf("Saved %q as %s", name, out.Site.ID)))
	return nil
}

func lastAssistant(msgs []chat.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" {
			return msgs[i].Text
		}
	}
	return ""
}

func describeRequests(reqs []tags.Request) string {
	parts := make([]string, 0, len(reqs))
	for _, r := range reqs {
		parts = append(parts, string(r.Kind)+": "+r.Query)
	}
	return strings.Join(parts, ", ")
}
