package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/foxzi/ingestdesk/internal/datatable"
	"github.com/foxzi/ingestdesk/internal/web/backend"
	"github.com/foxzi/ingestdesk/internal/web/config"
	"github.com/foxzi/ingestdesk/internal/web/models"
	"github.com/spf13/cobra"
)

// source fetches one entity list as table rows.
type source struct {
	name  string
	table func(loc *time.Location) datatable.Config
	fetch func(ctx context.Context, c *backend.Client, loc *time.Location) ([]datatable.Row, error)
}

var (
	jobsSource = source{
		name:  "jobs",
		table: models.JobsTable,
		fetch: func(ctx context.Context, c *backend.Client, loc *time.Location) ([]datatable.Row, error) {
			l, err := c.ListJobs(ctx)
			if err != nil {
				return nil, err
			}
			return l.Rows(loc, time.Now()), nil
		},
	}
	issuesSource = source{
		name:  "issues",
		table: func(loc *time.Location) datatable.Config { return models.IssuesTable(loc, false) },
		fetch: func(ctx context.Context, c *backend.Client, loc *time.Location) ([]datatable.Row, error) {
			l, err := c.ListIssues(ctx)
			if err != nil {
				return nil, err
			}
			return l.Rows(loc), nil
		},
	}
	contactsSource = source{
		name:  "contacts",
		table: models.ContactsTable,
		fetch: func(ctx context.Context, c *backend.Client, loc *time.Location) ([]datatable.Row, error) {
			l, err := c.ListContacts(ctx)
			if err != nil {
				return nil, err
			}
			return l.Rows(loc), nil
		},
	}
)

func jobIssuesSource(jobID int64) source {
	return source{
		name:  fmt.Sprintf("issues of job %d", jobID),
		table: func(loc *time.Location) datatable.Config { return models.IssuesTable(loc, true) },
		fetch: func(ctx context.Context, c *backend.Client, loc *time.Location) ([]datatable.Row, error) {
			l, err := c.ListJobIssues(ctx, jobID)
			if err != nil {
				return nil, err
			}
			return l.Rows(loc), nil
		},
	}
}

// listOptions drive the table the same way the web toolbar does.
type listOptions struct {
	search   string
	filters  []string
	sort     string
	page     int
	pageSize int
	columns  []string
	csv      bool
}

func (o *listOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.search, "search", "", "Search text matched against the searchable columns")
	f.StringArrayVar(&o.filters, "filter", nil, "Filter as key=value, repeatable (date ranges use <field>_start/<field>_end)")
	f.StringVar(&o.sort, "sort", "", "Sort column, append :desc for descending")
	f.IntVar(&o.page, "page", 1, "Page number")
	f.IntVar(&o.pageSize, "page-size", -1, "Rows per page: 10, 20, 30, 40, 50 or 0 for all (default: display.page_size)")
	f.StringSliceVar(&o.columns, "columns", nil, "Visible columns, comma separated")
	f.BoolVar(&o.csv, "csv", false, "Write every filtered row as CSV")
}

// apply sets the table state. Rows must already be loaded so the page can
// be clamped.
func (o listOptions) apply(t *datatable.Table) error {
	for _, f := range o.filters {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return fmt.Errorf("invalid filter %q: want key=value", f)
		}
		if err := t.SetFilter(strings.TrimSpace(key), value); err != nil {
			return err
		}
	}

	t.SetSearch(o.search)

	if o.sort != "" {
		field, dir, _ := strings.Cut(o.sort, ":")
		s := datatable.Sort{Field: field, Direction: datatable.Ascending}
		switch dir {
		case "", "asc":
		case "desc":
			s.Direction = datatable.Descending
		default:
			return fmt.Errorf("invalid sort direction %q: want asc or desc", dir)
		}
		if err := t.SetSort(s); err != nil {
			return err
		}
	}

	if len(o.columns) > 0 {
		known := make([]string, 0, len(t.Config().Columns))
		for _, c := range t.Config().Columns {
			known = append(known, c.ID)
		}
		for _, id := range o.columns {
			if !slices.Contains(known, id) {
				return fmt.Errorf("%w: %s", datatable.ErrUnknownColumn, id)
			}
		}
		for _, id := range known {
			if err := t.SetColumnVisible(id, slices.Contains(o.columns, id)); err != nil {
				return err
			}
		}
	}

	if o.pageSize >= 0 {
		if err := t.SetPageSize(o.pageSize); err != nil {
			return err
		}
	}
	t.SetPage(o.page - 1)
	return nil
}

// newListCommand builds `<entity> list`.
func newListCommand(src func() source, opts *listOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List " + src().name,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := openBackend()
			if err != nil {
				return err
			}
			t, err := loadTable(runContext(cmd), client, cfg, src())
			if err != nil {
				return err
			}
			if err := opts.apply(t); err != nil {
				return err
			}
			if opts.csv {
				return t.ExportCSV(cmd.OutOrStdout())
			}
			return printTable(cmd.OutOrStdout(), t)
		},
	}
	opts.bind(cmd)
	return cmd
}

// openBackend loads the configuration and builds a client using the
// service token.
func openBackend() (*config.Config, *backend.Client, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Backend.ServiceToken == "" {
		return nil, nil, fmt.Errorf("backend.service_token is required for command line access")
	}
	client := backend.NewClient(cfg.Backend.BaseURL, backend.StaticToken(cfg.Backend.ServiceToken),
		backend.WithTimeout(cfg.Backend.Timeout),
	)
	return cfg, client, nil
}

func loadTable(ctx context.Context, client *backend.Client, cfg *config.Config, src source) (*datatable.Table, error) {
	loc := cfg.Location()
	tcfg := src.table(loc)
	tcfg.PageSize = cfg.Display.PageSize

	rows, err := src.fetch(ctx, client, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %s", src.name, backend.Message(err))
	}

	t := datatable.New(tcfg)
	t.SetData(rows)
	return t, nil
}

func printTable(w io.Writer, t *datatable.Table) error {
	cols := t.VisibleColumns()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	labels := make([]string, len(cols))
	for i, c := range cols {
		labels[i] = c.Label
	}
	fmt.Fprintln(tw, strings.Join(labels, "\t"))

	cells := make([]string, len(cols))
	for _, row := range t.PageRows() {
		for i, c := range cols {
			cells[i] = strings.ReplaceAll(row.Text(c.ID), "\t", " ")
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	total := len(t.FilteredRows())
	fmt.Fprintf(w, "\nPage %d of %d (%d rows)\n", t.PageIndex()+1, max(t.PageCount(), 1), total)
	return nil
}

var (
	jobsListOpts     listOptions
	issuesListOpts   listOptions
	contactsListOpts listOptions
	issuesJobID      int64
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Ingestion jobs",
}

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "Data quality issues",
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Imported contacts",
}

func init() {
	jobsCmd.AddCommand(newListCommand(func() source { return jobsSource }, &jobsListOpts))

	issuesList := newListCommand(func() source {
		if issuesJobID > 0 {
			return jobIssuesSource(issuesJobID)
		}
		return issuesSource
	}, &issuesListOpts)
	issuesList.Flags().Int64Var(&issuesJobID, "job", 0, "Only issues of this job")
	issuesCmd.AddCommand(issuesList)

	contactsCmd.AddCommand(newListCommand(func() source { return contactsSource }, &contactsListOpts))
}
