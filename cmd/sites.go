package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/samsaffron/pulse/internal/signal"
	"github.com/samsaffron/pulse/internal/store"
)

var (
	sitesFilter string
	sitesRaw    bool
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List and show saved sites",
}

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your saved sites",
	Args:  cobra.NoArgs,
	RunE:  runSitesList,
}

var sitesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved site's HTML",
	Args:  cobra.ExactArgs(1),
	RunE:  runSitesShow,
}

func init() {
	rootCmd.AddCommand(sitesCmd)
	sitesCmd.AddCommand(sitesListCmd, sitesShowCmd)

	sitesListCmd.Flags().StringVarP(&sitesFilter, "filter", "f", "", "Fuzzy filter on site name")
	sitesShowCmd.Flags().BoolVar(&sitesRaw, "raw", false, "Print without syntax highlighting")
}

type siteNames []store.RecordSummary

func (s siteNames) String(i int) string { return s[i].Name }
func (s siteNames) Len() int            { return len(s) }

// filterSites keeps the sites whose names fuzzily match query, best match
// first. An empty query keeps everything in server order.
func filterSites(sites []store.RecordSummary, query string) []store.RecordSummary {
	if query == "" {
		return sites
	}
	matches := fuzzy.FindFrom(query, siteNames(sites))
	out := make([]store.RecordSummary, 0, len(matches))
	for _, m := range matches {
		out = append(out, sites[m.Index])
	}
	return out
}

func runSitesList(cmd *cobra.Command, args []string) error {
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

	var out struct {
		Sites []store.RecordSummary `json:"sites"`
	}
	if err := client.call(ctx, http.MethodGet, "/api/sites", nil, &out); err != nil {
		return err
	}

	sites := filterSites(out.Sites, sitesFilter)
	if len(sites) == 0 {
		fmt.Fprintln(os.Stderr, "No sites.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUPDATED")
	for _, s := range sites {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Name, s.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runSitesShow(cmd *cobra.Command, args []string) error {
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

	var site struct {
		HTML string `json:"html"`
	}
	if err := client.call(ctx, http.MethodGet, "/api/sites/"+args[0], nil, &site); err != nil {
		return err
	}
	if sitesRaw || !term.IsTerminal(int(os.Stdout.Fd())) {
		_, err := io.WriteString(os.Stdout, site.HTML)
		return err
	}
	return highlightHTML(os.Stdout, site.HTML)
}

func highlightHTML(w io.Writer, doc string) error {
	lexer := lexers.Get("html")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, doc)
	if err != nil {
		_, err := io.WriteString(w, doc)
		return err
	}
	return formatter.Format(w, style, iterator)
}
