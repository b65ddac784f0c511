package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"faultline-go/internal/config"
	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/errorstore"
)

type listFlags struct {
	code       string
	category   string
	severity   string
	search     string
	since      time.Duration
	unresolved bool
	limit      int
	offset     int
	asJSON     bool
}

func (f listFlags) query() (errorstore.Query, error) {
	q := errorstore.Query{
		Code:     strings.ToUpper(strings.TrimSpace(f.code)),
		Category: apperrors.Category(strings.ToLower(strings.TrimSpace(f.category))),
		Search:   f.search,
		Limit:    f.limit,
		Offset:   f.offset,
	}
	if f.severity != "" {
		sev := apperrors.Severity(strings.ToLower(f.severity))
		if !sev.Valid() {
			return q, fmt.Errorf("unknown severity %q", f.severity)
		}
		q.MinSeverity = sev
	}
	if f.since < 0 {
		return q, fmt.Errorf("--since must be positive")
	}
	if f.since > 0 {
		q.Since = time.Now().Add(-f.since)
	}
	if f.unresolved {
		resolved := false
		q.Resolved = &resolved
	}
	return q, nil
}

func (f *listFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.code, "code", "", "Filter by error code")
	cmd.Flags().StringVar(&f.category, "category", "", "Filter by category")
	cmd.Flags().StringVar(&f.severity, "severity", "", "Minimum severity (low, medium, high, critical)")
	cmd.Flags().StringVarP(&f.search, "query", "q", "", "Search message text")
	cmd.Flags().DurationVar(&f.since, "since", 0, "Only entries seen within this duration (e.g. 24h)")
	cmd.Flags().BoolVar(&f.unresolved, "unresolved", false, "Only unresolved entries")
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var f listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived errors, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := f.query()
			if err != nil {
				return err
			}
			return opts.withArchive(cmd.Context(), func(archive *errorstore.Store, _ *config.Config) error {
				page, err := archive.Query(cmd.Context(), q)
				if err != nil {
					return err
				}
				if f.asJSON {
					return printJSON(cmd.OutOrStdout(), page)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCODE\tSEVERITY\tCOUNT\tLAST SEEN\tRESOLVED\tMESSAGE")
				for _, e := range page.Entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%t\t%s\n",
						e.ID, e.Code, e.Severity, e.Occurrences,
						e.LastSeen.Local().Format(time.DateTime), e.Resolved, truncate(e.Message, 60))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d entries\n", len(page.Entries), page.Total)
				return nil
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().IntVar(&f.limit, "limit", 20, "Max entries to show")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "Entries to skip")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the page as JSON")
	return cmd
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one archived error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withArchive(cmd.Context(), func(archive *errorstore.Store, _ *config.Config) error {
				e, err := archive.Get(cmd.Context(), args[0])
				if err != nil {
					return notFound(args[0], err)
				}
				return printJSON(cmd.OutOrStdout(), e)
			})
		},
	}
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withArchive(cmd.Context(), func(archive *errorstore.Store, _ *config.Config) error {
				st, err := archive.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
}

// newResolveCmd builds resolve, or unresolve when resolve is false.
func newResolveCmd(opts *globalOptions, resolve bool) *cobra.Command {
	use, short := "resolve", "Mark errors resolved"
	if !resolve {
		use, short = "unresolve", "Reopen resolved errors"
	}
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withArchive(cmd.Context(), func(archive *errorstore.Store, _ *config.Config) error {
				for _, id := range args {
					var err error
					if resolve {
						_, err = archive.Resolve(cmd.Context(), id)
					} else {
						_, err = archive.Unresolve(cmd.Context(), id)
					}
					if err != nil {
						return notFound(id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", use, id)
				}
				return nil
			})
		},
	}
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Remove errors from the archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withArchive(cmd.Context(), func(archive *errorstore.Store, _ *config.Config) error {
				for _, id := range args {
					if err := archive.Delete(cmd.Context(), id); err != nil {
						return notFound(id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				}
				return nil
			})
		},
	}
}

func newCleanupCmd(opts *globalOptions) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove entries past retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withArchive(cmd.Context(), func(archive *errorstore.Store, _ *config.Config) error {
				var (
					n   int64
					err error
				)
				if olderThan > 0 {
					n, err = archive.CleanupBefore(cmd.Context(), time.Now().Add(-olderThan))
				} else {
					n, err = archive.Cleanup(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Override retention: remove entries last seen before now minus this duration")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var (
		f      listFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching errors with archive stats as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := f.query()
			if err != nil {
				return err
			}
			return opts.withArchive(cmd.Context(), func(archive *errorstore.Store, _ *config.Config) error {
				doc, err := archive.Export(cmd.Context(), q)
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
					return err
				}
				if err := os.WriteFile(output, doc, 0o600); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", output)
				return nil
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func notFound(id string, err error) error {
	if errors.Is(err, errorstore.ErrNotFound) {
		return fmt.Errorf("no archived error with id %s", id)
	}
	return err
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
