package main

import (
	"fmt"

	"github.com/JonMunkholm/chargeflow/internal/pipeline"
	"github.com/spf13/cobra"
)

func newLoadCmd(c *cli) *cobra.Command {
	var (
		noValidate bool
		validate   bool
		batchSize  int
	)

	cmd := &cobra.Command{
		Use:   "load FILE",
		Short: "Stage a CSV file into raw_data.raw_transactions",
		Long: `Load reads FILE, validates its rows and appends them to the raw staging
table in batches. Relative paths that do not exist are looked up under
INPUT_DATA_PATH.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if validate && noValidate {
				return fmt.Errorf("--validate and --no-validate are mutually exclusive")
			}
			req := pipeline.LoadRequest{Path: args[0], BatchSize: batchSize}
			switch {
			case validate:
				req.Validate = &validate
			case noValidate:
				off := false
				req.Validate = &off
			}

			rep, err := c.app.Service.Load(cmd.Context(), req)
			if rep != nil {
				if perr := c.print(rep); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", false, "validate rows even when VALIDATION_LEVEL is lenient")
	cmd.Flags().BoolVar(&noValidate, "no-validate", false, "skip row validation")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per insert transaction (default BATCH_SIZE)")
	return cmd
}

func newTransformCmd(c *cli) *cobra.Command {
	var req pipeline.TransformRequest

	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Clean staged rows into normalized companies and charges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := c.app.Service.Transform(cmd.Context(), req)
			if rep != nil {
				if perr := c.print(rep); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&req.SkipValidation, "skip-validation", false, "convert rows without collecting validation issues")
	cmd.Flags().BoolVar(&req.SkipBusinessRules, "skip-rules", false, "do not apply business rules")
	return cmd
}

func newResetCmd(c *cli) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:       "reset raw|normalized|all",
		Short:     "Truncate pipeline tables",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"raw", "normalized", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset deletes data; pass --yes to confirm")
			}
			if err := c.app.Service.Reset(cmd.Context(), args[0]); err != nil {
				return err
			}
			return c.print(map[string]string{"status": "reset", "scope": args[0]})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func newSchemaCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the normalized schema, reporting view and indexes",
	}

	apply := func(use, short, op string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				results, err := c.app.Service.ApplySchema(cmd.Context(), op)
				if err != nil {
					return err
				}
				if err := c.print(results); err != nil {
					return err
				}
				for _, r := range results {
					if !r.Success {
						return fmt.Errorf("%s failed: %s", r.Operation, r.Error)
					}
				}
				return nil
			},
		}
	}

	cmd.AddCommand(
		apply("create", "Create schemas, tables, view and indexes", pipeline.SchemaCreate),
		apply("view", "Recreate the daily summary view", pipeline.SchemaView),
		apply("indexes", "Create reporting indexes", pipeline.SchemaIndexes),
		&cobra.Command{
			Use:   "validate",
			Short: "Check that the normalized schema is complete",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				v := c.app.Service.ValidateSchema(cmd.Context())
				if err := c.print(v); err != nil {
					return err
				}
				if !v.IsValid {
					return fmt.Errorf("schema is invalid: %d problems", len(v.ValidationErrors))
				}
				return nil
			},
		},
	)
	return cmd
}

func newStatsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show table statistics",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "raw",
			Short: "Statistics for the raw staging table",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.app.Service.Loader().Statistics(cmd.Context())
				if err != nil {
					return err
				}
				return c.print(s)
			},
		},
		&cobra.Command{
			Use:   "normalized",
			Short: "Statistics for the normalized tables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.app.Service.Transformer().Statistics(cmd.Context())
				if err != nil {
					return err
				}
				return c.print(s)
			},
		},
		&cobra.Command{
			Use:   "integrity",
			Short: "Check referential integrity of the normalized tables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				in, err := c.app.Service.Transformer().Integrity(cmd.Context())
				if err != nil {
					return err
				}
				return c.print(in)
			},
		},
		&cobra.Command{
			Use:   "info",
			Short: "List pipeline schemas, tables and views",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				info, err := c.app.Service.Reports().DatabaseInfo(cmd.Context())
				if err != nil {
					return err
				}
				return c.print(info)
			},
		},
	)
	return cmd
}
