package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/extract"
	"github.com/JonMunkholm/chargeflow/internal/history"
	"github.com/JonMunkholm/chargeflow/internal/pipeline"
	"github.com/JonMunkholm/chargeflow/internal/reporting"
	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"
)

// parseDay accepts any date layout dateparse understands and truncates it
// to a calendar day.
func parseDay(name, val string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	t, err := dateparse.ParseIn(val, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &t, nil
}

func newReportCmd(c *cli) *cobra.Command {
	var start, end, company string
	var limit, days int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Query the reporting view",
	}

	daily := &cobra.Command{
		Use:   "daily",
		Short: "Daily totals per company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseDay("start", start)
			if err != nil {
				return err
			}
			e, err := parseDay("end", end)
			if err != nil {
				return err
			}
			rows, err := c.app.Service.Reports().QueryDailySummary(cmd.Context(), reporting.SummaryFilter{
				StartDate: s,
				EndDate:   e,
				CompanyID: company,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			return c.print(rows)
		},
	}
	daily.Flags().StringVar(&start, "start", "", "first day to include")
	daily.Flags().StringVar(&end, "end", "", "last day to include")
	daily.Flags().StringVar(&company, "company", "", "restrict to one company ID")
	daily.Flags().IntVar(&limit, "limit", 0, "maximum rows")

	companies := &cobra.Command{
		Use:   "companies",
		Short: "Totals per company over a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseDay("start", start)
			if err != nil {
				return err
			}
			e, err := parseDay("end", end)
			if err != nil {
				return err
			}
			rows, err := c.app.Service.Reports().CompanyTotals(cmd.Context(), s, e)
			if err != nil {
				return err
			}
			return c.print(rows)
		},
	}
	companies.Flags().StringVar(&start, "start", "", "first day to include")
	companies.Flags().StringVar(&end, "end", "", "last day to include")

	trends := &cobra.Command{
		Use:   "trends",
		Short: "Daily totals over the last N days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := c.app.Service.Reports().DailyTrends(cmd.Context(), days, company)
			if err != nil {
				return err
			}
			return c.print(rows)
		},
	}
	trends.Flags().IntVar(&days, "days", reporting.DefaultTrendDays, "number of days")
	trends.Flags().StringVar(&company, "company", "", "restrict to one company ID")

	cmd.AddCommand(
		daily,
		companies,
		trends,
		&cobra.Command{
			Use:   "distribution",
			Short: "Row counts, date coverage and integrity score",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := c.app.Service.Reports().DistributionStatistics(cmd.Context())
				if err != nil {
					return err
				}
				return c.print(d)
			},
		},
		&cobra.Command{
			Use:   "performance",
			Short: "Explain the daily summary view and index usage",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				pa, err := c.app.Service.Reports().AnalyzeViewPerformance(cmd.Context())
				if err != nil {
					return err
				}
				return c.print(pa)
			},
		},
	)
	return cmd
}

// extractTargets maps CLI names to extraction sources.
var extractTargets = map[string]string{
	"raw":       extract.SourceRaw,
	"companies": extract.SourceCompanies,
	"charges":   extract.SourceCharges,
	"summary":   extract.SourceSummary,
}

func newExtractCmd(c *cli) *cobra.Command {
	var (
		format    string
		output    string
		companies []string
		statuses  []string
		publish   bool
	)

	cmd := &cobra.Command{
		Use:       "extract raw|companies|charges|summary",
		Short:     "Write a table or the reporting view to csv, parquet or xlsx",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"raw", "companies", "charges", "summary"},
		RunE: func(cmd *cobra.Command, args []string) error {
			source := extractTargets[args[0]]
			if output == "" {
				output = fmt.Sprintf("%s_%s.%s", source, time.Now().UTC().Format("20060102_150405"), format)
			}
			res, err := c.app.Service.Extract(cmd.Context(), pipeline.ExtractRequest{
				Source:     source,
				Format:     format,
				OutputPath: output,
				Filters:    extract.Filters{CompanyIDs: companies, Statuses: statuses},
				Publish:    publish,
			})
			if res != nil {
				if perr := c.print(res); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", extract.FormatCSV, "output format: "+strings.Join(extract.Formats, ", "))
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, relative paths go under OUTPUT_DATA_PATH")
	cmd.Flags().StringSliceVar(&companies, "company", nil, "company IDs to include")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "statuses to include")
	cmd.Flags().BoolVar(&publish, "publish", false, "copy the file to EXPORT_PUBLISH_URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "check FILE",
		Short: "Validate an extracted file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := c.app.Service.ValidateOutputFile(args[0])
			if err := c.print(v); err != nil {
				return err
			}
			if !v.Valid {
				return fmt.Errorf("%s is not valid", filepath.Base(args[0]))
			}
			return nil
		},
	})
	return cmd
}

var stageUsage = strings.Join([]string{history.StageLoad, history.StageTransform, history.StageExtract}, ", ")

func newHistoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the run ledger",
	}

	var stage string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app.History == nil {
				return fmt.Errorf("run ledger is disabled (HISTORY_DB_PATH is empty)")
			}
			runs, err := c.app.History.List(cmd.Context(), stage, limit)
			if err != nil {
				return err
			}
			return c.print(runs)
		},
	}
	list.Flags().StringVar(&stage, "stage", "", stageUsage)
	list.Flags().IntVar(&limit, "limit", 20, "maximum runs")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app.History == nil {
				return fmt.Errorf("run ledger is disabled (HISTORY_DB_PATH is empty)")
			}
			n, err := c.app.History.Clear(cmd.Context(), stage)
			if err != nil {
				return err
			}
			return c.print(map[string]any{"deleted": n, "stage": stage})
		},
	}
	clearCmd.Flags().StringVar(&stage, "stage", "", "only clear this stage: "+stageUsage)

	cmd.AddCommand(
		list,
		clearCmd,
		&cobra.Command{
			Use:   "export FILE",
			Short: "Write extraction and transformation history as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := c.app.Service.ExportMetadata(cmd.Context(), args[0]); err != nil {
					return err
				}
				return c.print(map[string]string{"exported": args[0]})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Extraction statistics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.app.Service.ExtractionStatistics(cmd.Context())
				if err != nil {
					return err
				}
				return c.print(s)
			},
		},
	)
	return cmd
}
