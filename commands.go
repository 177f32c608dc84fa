package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) runCmd() *cobra.Command {
	var (
		headless     bool
		otpMode      string
		trackingFile string
		arrivalDate  string
		yes          bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create a prior notice by copying the most recent submission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config
			if cmd.Flags().Changed("headless") {
				cfg.Headless = headless
			}
			if otpMode != "" {
				cfg.OTPMode = otpMode
			}
			if trackingFile != "" {
				cfg.TrackingFile = trackingFile
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if arrivalDate != "" {
				if err := ValidateArrivalDate(arrivalDate); err != nil {
					return err
				}
			}
			return a.runPriorNotice(cmd.Context(), StepOptions{
				TrackingFile: cfg.TrackingFile,
				ArrivalDate:  strings.TrimSpace(arrivalDate),
			}, yes)
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false, "Run the browser without a window")
	cmd.Flags().StringVar(&otpMode, "otp-mode", "", "How the one-time code is entered: terminal or browser")
	cmd.Flags().StringVar(&trackingFile, "tracking-file", "", "CSV whose first row's guia_aerea is used as tracking number")
	cmd.Flags().StringVar(&arrivalDate, "arrival-date", "", "Port of arrival date, MM/DD/YYYY (prompted when empty)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Start without asking for confirmation")
	return cmd
}

func (a *app) runPriorNotice(ctx context.Context, opts StepOptions, yes bool) error {
	cfg, env := a.config, a.env

	printBanner("FDA Prior Notice Assistant")
	fmt.Printf(T("run_session")+"\n", env.Session.ID)
	fmt.Printf(T("run_profile")+"\n", cfg.BrowserProfilePath)
	fmt.Printf(T("run_otp_mode")+"\n", cfg.OTPMode)
	fmt.Printf(T("run_tracking_file")+"\n", opts.TrackingFile)
	if cfg.DebugMode {
		fmt.Println(T("run_debug_mode"))
	}
	fmt.Println()

	if !yes {
		ok, err := Confirm(ctx, env.Prompt, T("run_confirm_start"))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println(T("run_cancelled"))
			return nil
		}
	}

	shutdownTracer, err := InitTracer(ctx, cfg.Tracing, env.Session, env.Log)
	if err != nil {
		env.Log.Warn("tracing disabled", zap.Error(err))
		shutdownTracer = func() {}
	}
	defer shutdownTracer()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.AdaptiveTimeouts {
		if r := SeedAdaptiveTimeouts(ctx, env); !r.OK() {
			env.Log.Warn("portal probe failed, using configured timeouts", zap.String("url", r.URL), zap.Int("status", r.Status), zap.Error(r.Err))
		}
	}

	browser := NewBrowserSession(cfg, env.Log)
	browser.OnLost = cancel
	defer browser.Close()

	if err := browser.Setup(); err != nil {
		return fmt.Errorf("failed to setup browser: %w", err)
	}

	report := PriorNoticeFlow(env, browser, opts).Run(ctx)
	printRunReport(report, env.Perf.Summary())

	if cfg.KeepBrowserOpen && ctx.Err() == nil {
		fmt.Println(T("run_keep_open"))
		_ = sleepCtx(ctx, 30*time.Second)
	}

	if !report.Completed() {
		return fmt.Errorf("prior notice stopped at %s: %w", report.Failed, report.Err)
	}
	return nil
}

func printRunReport(report RunReport, summary SessionSummary) {
	fmt.Println()
	fmt.Println(T("run_report_header"))
	for _, o := range report.Outcomes {
		mark := "✅"
		if !o.Success {
			mark = "❌"
		}
		fmt.Printf("   %s %-18s %8s  %s\n", mark, o.Step, o.Duration.Round(time.Millisecond), o.Message)
	}
	fmt.Printf(T("run_report_totals")+"\n", summary.Operations, summary.Failures, report.Elapsed.Round(time.Second))
	if report.Completed() {
		fmt.Println(T("run_completed"))
	} else {
		fmt.Printf(T("run_failed")+"\n", report.Failed, Kind(report.Err))
	}
}

func (a *app) shopify() (*ShopifyClient, error) {
	return NewShopifyClient(a.config.Shopify, a.env.Log)
}

func (a *app) exportCmd() *cobra.Command {
	var (
		fromCSV string
		ids     []int64
		workers int
	)

	cmd := &cobra.Command{
		Use:   "export [order numbers...]",
		Short: "Export Shopify orders to CSV by short order number",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.shopify()
			if err != nil {
				return err
			}
			exporter := NewExporter(client, a.config, a.env.Log)

			if len(ids) > 0 {
				failed := 0
				for _, id := range ids {
					if _, err := exporter.ExportOrder(ctx, id); err != nil {
						fmt.Printf(T("export_failed")+"\n", id, err)
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d orders failed", failed, len(ids))
				}
				return nil
			}

			numbers := args
			if len(numbers) == 0 {
				if fromCSV == "" {
					fromCSV = a.config.OrderListFile
				}
				var column string
				numbers, column, err = ReadOrderNumbers(fromCSV)
				if err != nil {
					return err
				}
				fmt.Printf(T("export_read_numbers")+"\n", len(numbers), fromCSV, column)
			}
			if len(numbers) == 0 {
				return fmt.Errorf("no order numbers to export")
			}

			batch := NewBatchExporter(client, exporter, a.env.Log)
			batch.Workers = workers
			results := batch.Run(ctx, numbers)

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
			}
			if failed == len(results) {
				return fmt.Errorf("no orders exported")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fromCSV, "from-csv", "", "Read order numbers from this CSV (default: order_list_file)")
	cmd.Flags().Int64SliceVar(&ids, "id", nil, "Export by internal order id instead of number")
	cmd.Flags().IntVar(&workers, "workers", 1, "Orders exported concurrently")
	return cmd
}

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Write a summary report over every exported order file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, analyses, err := WriteSummaryReport(a.config.OutputDir, time.Now())
			if err != nil {
				return err
			}

			var total, withFDA int
			for _, an := range analyses {
				total += an.Total
				withFDA += an.WithFDA
			}
			overall := FileAnalysis{Total: total, WithFDA: withFDA, WithoutFDA: total - withFDA}

			fmt.Println(T("summary_header"))
			fmt.Printf(T("summary_orders")+"\n", len(analyses))
			fmt.Printf(T("summary_products")+"\n", total)
			fmt.Printf(T("summary_with_fda")+"\n", withFDA)
			fmt.Printf(T("summary_without_fda")+"\n", total-withFDA)
			fmt.Printf(T("summary_percentage")+"\n", overall.FDAPercentage())
			fmt.Printf(T("summary_saved")+"\n", path)
			return nil
		},
	}
}

func (a *app) trackingCmd() *cobra.Command {
	var (
		rowList string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "tracking <order number> <guia aerea>",
		Short: "Set guia_aerea in an order's exported CSV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := FindOrderFiles(a.config.OutputDir, args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no exported files for order %s in %s", args[0], a.config.OutputDir)
			}
			if !all {
				files = files[len(files)-1:]
			}

			rows, err := ParseRowList(rowList)
			if err != nil {
				return err
			}

			for _, f := range files {
				n, err := UpdateTracking(f, args[1], rows)
				if err != nil {
					return err
				}
				fmt.Printf(T("tracking_updated")+"\n", filepath.Base(f), n, args[1])
				a.env.Log.Info("tracking updated", zap.String("file", f), zap.Int("rows", n))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rowList, "rows", "", "Comma-separated 1-based rows to update (default: all)")
	cmd.Flags().BoolVar(&all, "all", false, "Update every file for the order, not only the newest")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <csv>",
		Short: "Check that a CSV has exactly the export columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			missing, extra, err := ValidateStructure(args[0])
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				fmt.Printf(T("validate_missing")+"\n", strings.Join(missing, ", "))
			}
			if len(extra) > 0 {
				fmt.Printf(T("validate_extra")+"\n", strings.Join(extra, ", "))
			}
			if len(missing) > 0 || len(extra) > 0 {
				return fmt.Errorf("%s does not match the export structure", args[0])
			}
			fmt.Println(T("validate_ok"))
			return nil
		},
	}
}

func (a *app) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <csv>",
		Short: "Show order details and FDA id coverage of an exported CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			an, err := AnalyzeFile(args[0])
			if err != nil {
				return err
			}
			if an.Total == 0 {
				fmt.Printf(T("analyze_empty")+"\n", an.File)
				return nil
			}

			fmt.Printf(T("analyze_header")+"\n", an.File)
			fmt.Printf(T("analyze_order")+"\n", an.OrderNumber)
			fmt.Printf(T("analyze_ship_to")+"\n", an.ShippingName, an.ShippingCountry)
			fmt.Printf(T("analyze_counts")+"\n", an.Total, an.WithFDA, an.WithoutFDA, an.FDAPercentage())
			for _, row := range an.Rows {
				fda := row["fda_id"]
				if strings.TrimSpace(fda) == "" {
					fda = "-"
				}
				fmt.Printf("   • %sx %s (%sg) FDA: %s\n", row["line_item_quantity"], row["line_item_name"], row["line_item_weight"], fda)
			}
			return nil
		},
	}
}

func (a *app) filterCmd() *cobra.Command {
	var withoutFDA bool

	cmd := &cobra.Command{
		Use:   "filter <csv>",
		Short: "Write the rows with (or without) an FDA id to a new CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, n, err := FilterByFDA(args[0], !withoutFDA)
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Println(T("filter_none"))
				return nil
			}
			fmt.Printf(T("filter_written")+"\n", out, n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withoutFDA, "without-fda", false, "Keep rows that have no FDA id")
	return cmd
}

func (a *app) productsCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "products",
		Short: "Export every product variant for FDA code mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.shopify()
			if err != nil {
				return err
			}
			fmt.Println(T("products_downloading"))
			products, err := client.ListProducts(cmd.Context())
			if err != nil {
				return err
			}
			n, err := WriteProductMapping(out, products)
			if err != nil {
				return err
			}
			fmt.Printf(T("products_written")+"\n", len(products), n, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", filepath.Join("data", "shopify", "shopify_products_fda_mapping.csv"), "Output CSV path")
	return cmd
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the portal and the store are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checker := NewHealthChecker(a.env.Perf, a.env.Log)
			results := checker.Check(cmd.Context(), HealthTargets(a.config))

			failed := 0
			for _, r := range results {
				if !r.OK() {
					failed++
					fmt.Printf(T("health_down")+"\n", r.URL, r.Err)
					continue
				}
				fmt.Printf(T("health_up")+"\n", r.URL, r.Status, r.Latency.Round(time.Millisecond))
				if r.HasDate && (r.ClockOffset > 30*time.Second || r.ClockOffset < -30*time.Second) {
					fmt.Printf(T("health_clock_skew")+"\n", r.ClockOffset.Round(time.Second))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d endpoints unreachable", failed, len(results))
			}
			return nil
		},
	}
}

func (a *app) cleanScreenshotsCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "clean-screenshots",
		Short: "Delete screenshot folders older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("days") {
				days = a.config.ScreenshotDays
			}
			removed, err := a.env.Shots.Cleanup(time.Duration(days) * 24 * time.Hour)
			if err != nil {
				return err
			}
			fmt.Printf(T("clean_removed")+"\n", removed, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "Keep screenshots from the last N days")
	return cmd
}
