package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/golab-ledger/internal/core"
	"github.com/JonMunkholm/golab-ledger/internal/pgstore"
	"github.com/JonMunkholm/golab-ledger/internal/source"
)

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerimport",
		Short:         "Import purchase and sales ledgers into the inventory ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.AddCommand(
		newLayoutsCmd(c),
		newDryRunCmd(c),
		newCommitCmd(c),
		newImportCmd(c),
		newItemsCmd(c),
		newItemCmd(c),
		newEntriesCmd(c),
		newAuditCmd(c),
		newMigrateCmd(c),
	)
	return root
}

// fileOptions are the flags shared by commands that read a ledger file.
type fileOptions struct {
	layout    string
	file      string
	sheet     string
	threshold string
}

func (o *fileOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.layout, "layout", "", "Sheet layout: purchase or sales (required)")
	cmd.Flags().StringVar(&o.file, "file", "", "Ledger file, .xlsx or .csv (required)")
	cmd.Flags().StringVar(&o.sheet, "sheet", "", "Sheet name a CSV file was exported from")
	cmd.Flags().StringVar(&o.threshold, "threshold", "", "Flag unit prices above this value (default from IMPORT_PRICE_THRESHOLD)")
	_ = cmd.MarkFlagRequired("layout")
	_ = cmd.MarkFlagRequired("file")
}

// load resolves the layout and reads the file's rows.
func (o *fileOptions) load() (core.Layout, []core.RawRow, error) {
	layout, err := core.Lookup(o.layout)
	if err != nil {
		return core.Layout{}, nil, err
	}
	f, err := os.Open(o.file)
	if err != nil {
		return core.Layout{}, nil, withCode(exitUsage, fmt.Errorf("open --file: %w", err))
	}
	defer f.Close()

	res, err := source.Read(o.file, f, layout, source.Options{Sheet: o.sheet})
	if err != nil {
		return core.Layout{}, nil, err
	}
	return layout, res.Rows, nil
}

func (o *fileOptions) priceThreshold() (decimal.Decimal, error) {
	if o.threshold == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(o.threshold)
	if err != nil || d.Sign() < 0 {
		return decimal.Zero, withCode(exitUsage, fmt.Errorf("invalid --threshold %q", o.threshold))
	}
	return d, nil
}

func newLayoutsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "layouts",
		Short: "List registered sheet layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(c.out, core.All())
		},
	}
}

func newDryRunCmd(c *cli) *cobra.Command {
	var opts fileOptions

	cmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Classify a ledger file without writing anything but an audit event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold, err := opts.priceThreshold()
			if err != nil {
				return err
			}
			layout, rows, err := opts.load()
			if err != nil {
				return err
			}
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cliContext(cmd)
			report, err := svc.DryRun(ctx, layout, rows, core.DryRunOptions{PriceThreshold: threshold})
			if err != nil {
				return err
			}
			if err := writeJSON(c.out, report); err != nil {
				return err
			}
			if err := report.Err(); err != nil {
				return withCode(exitValidation, err)
			}
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

func newCommitCmd(c *cli) *cobra.Command {
	var (
		opts     fileOptions
		batch    int
		from, to int
	)

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Append a ledger file, or a row range of it, to the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch < 0 || from < 0 || to < 0 {
				return withCode(exitUsage, fmt.Errorf("--batch, --from and --to must be non-negative"))
			}
			threshold, err := opts.priceThreshold()
			if err != nil {
				return err
			}
			layout, rows, err := opts.load()
			if err != nil {
				return err
			}
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Commit(cliContext(cmd), layout, rows, core.CommitOptions{
				BatchIndex:     batch,
				From:           from,
				To:             to,
				PriceThreshold: threshold,
			})
			if res != nil {
				if werr := writeJSON(c.out, res); werr != nil && err == nil {
					err = werr
				}
			}
			return err
		},
	}
	opts.bind(cmd)
	cmd.Flags().IntVar(&batch, "batch", 0, "Batch index recorded in the audit log")
	cmd.Flags().IntVar(&from, "from", 0, "First row to commit, 1-based (default: first)")
	cmd.Flags().IntVar(&to, "to", 0, "Last row to commit, inclusive (default: last)")
	return cmd
}

func newImportCmd(c *cli) *cobra.Command {
	var opts fileOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Dry run, then commit the file in two batches if the dry run is a go",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold, err := opts.priceThreshold()
			if err != nil {
				return err
			}
			layout, rows, err := opts.load()
			if err != nil {
				return err
			}
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}
			report, err := svc.Import(cliContext(cmd), layout, rows, core.DryRunOptions{PriceThreshold: threshold})
			if report != nil && report.DryRun != nil {
				if werr := writeJSON(c.out, importOutput{Report: report, Totals: report.Totals()}); werr != nil && err == nil {
					err = werr
				}
			}
			return err
		},
	}
	opts.bind(cmd)
	return cmd
}

type importOutput struct {
	Report *core.ImportReport `json:"report"`
	Totals core.BatchResult   `json:"totals"`
}

func newItemsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "items",
		Short: "List item states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}
			items, err := svc.Items(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(c.out, items)
		},
	}
}

type itemOutput struct {
	Item       *core.ItemState             `json:"item"`
	AssetValue string                      `json:"assetValue"`
	History    []core.InboundHistoryRecord `json:"history"`
}

func newItemCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "item <item-id>",
		Short: "Show one item state with its inbound history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}
			st, hist, err := svc.Item(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(c.out, itemOutput{
				Item:       st,
				AssetValue: st.AssetValue().String(),
				History:    hist,
			})
		},
	}
}

func newEntriesCmd(c *cli) *cobra.Command {
	var (
		docType, itemID string
		limit, offset   int
	)

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List committed ledger entries in commit order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := svc.Entries(cmd.Context(), core.EntryFilter{
				DocType: core.DocType(docType),
				ItemID:  itemID,
				Limit:   limit,
				Offset:  offset,
			})
			if err != nil {
				return err
			}
			return writeJSON(c.out, entries)
		},
	}
	cmd.Flags().StringVar(&docType, "doc-type", "", "Filter by document type")
	cmd.Flags().StringVar(&itemID, "item", "", "Filter by item id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries (default: all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	return cmd
}

func newAuditCmd(c *cli) *cobra.Command {
	var (
		kind, layout  string
		limit, offset int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}
			events, err := svc.AuditLog(cmd.Context(), core.AuditFilter{
				Kind:   core.Mode(kind),
				Layout: layout,
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return err
			}
			return writeJSON(c.out, events)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind: DRY_RUN or COMMIT")
	cmd.Flags().StringVar(&layout, "layout", "", "Filter by layout")
	cmd.Flags().IntVar(&limit, "limit", core.DefaultAuditLimit, "Maximum events")
	cmd.Flags().IntVar(&offset, "offset", 0, "Events to skip")
	return cmd
}

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg == nil || c.cfg.Database.URL == "" {
				return withCode(exitUsage, fmt.Errorf("DATABASE_URL is required for migrate"))
			}
			if err := pgstore.Migrate(c.cfg.Database.URL); err != nil {
				return withCode(exitDB, err)
			}
			version, dirty, err := pgstore.MigrationVersion(c.cfg.Database.URL)
			if err != nil {
				return withCode(exitDB, err)
			}
			fmt.Fprintf(c.out, "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
