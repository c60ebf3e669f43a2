package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"watson/internal/config"
	"watson/internal/connectors"
	"watson/internal/listener"
	"watson/internal/optimizer"
	"watson/internal/pipeline"
	"watson/internal/pricehistory"
	"watson/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "optimize" {
		runOptimize(cfg, os.Args[2:])
		return
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "pricelist:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "price list xlsx")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		proc, err := pipeline.NewProcessingService(db, cfg)
		must(err)
		imp, issues, err := proc.ImportPriceList(*file)
		must(err)
		fmt.Printf("price list imported id=%s rows=%d issues=%d\n", imp.ID, imp.RowCount, len(issues))
		for _, issue := range issues {
			fmt.Printf("  row %d %s: %s\n", issue.RowNo, issue.ItemCode, issue.Reason)
		}
	case "pricelist:summary":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		item := fs.String("item", "", "show the periods of one item code")
		_ = fs.Parse(os.Args[2:])
		latest, err := db.LatestPriceImport()
		must(err)
		if latest == nil {
			must(storage.ErrNoPriceList)
		}
		proc, err := pipeline.NewProcessingService(db, cfg)
		must(err)
		idx, err := proc.LoadIndex()
		must(err)
		printSummary(latest.SourceName, idx)
		if *item != "" {
			printPeriods(idx, *item)
		}
	case "reconcile":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "invoice xlsx")
		output := fs.String("output", "", "result xlsx (default OUTPUT_DIR/<input>_result.xlsx)")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		out := *output
		if strings.TrimSpace(out) == "" {
			base := strings.TrimSuffix(filepath.Base(*input), filepath.Ext(*input))
			out = filepath.Join(cfg.OutputDir, base+"_result.xlsx")
		}
		proc, err := pipeline.NewProcessingService(db, cfg)
		must(err)
		res, err := proc.ReconcileFile(ctx, *input)
		must(err)
		must(proc.Export(res.Run.ID, out))
		fmt.Printf("reconcile done run=%s lines=%d checked=%d acceptable=%d unacceptable=%d avg=%.1f%% totalDiff=%s\n",
			res.Run.ID, len(res.Rows), res.Run.TotalItems, res.Run.AcceptableCount, res.Run.UnacceptableCount,
			res.Run.AverageConfidence*100, res.Run.TotalDiff)
		for status, n := range res.Summary.ByStatus {
			fmt.Printf("  %s=%d\n", status, n)
		}
		fmt.Printf("output=%s\n", out)
	case "runs:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "max runs")
		_ = fs.Parse(os.Args[2:])
		runs, err := db.ListRuns(*limit)
		must(err)
		for _, r := range runs {
			fmt.Printf("%s  %s  %s  checked=%d ok=%d avg=%.1f%% diff=%s\n",
				r.ID, r.CreatedAt, r.SourceName, r.TotalItems, r.AcceptableCount, r.AverageConfidence*100, r.TotalDiff)
		}
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.String("run", "", "run id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*runID) == "" || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--run and --out are required"))
		}
		proc, err := pipeline.NewProcessingService(db, cfg)
		must(err)
		must(proc.Export(*runID, *out))
		fmt.Printf("exported run %s to %s\n", *runID, *out)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		source := fs.String("source", cfg.WatchSource, "folder|imap|gmail")
		label := fs.String("label", cfg.WatchLabel, "mailbox/label")
		max := fs.Int("max", cfg.WatchFetchMax, "max messages")
		_ = fs.Parse(os.Args[2:])
		srcCfg := cfg
		srcCfg.WatchSource = *source
		conn, err := listener.NewConnector(ctx, srcCfg)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done source=%s fetched=%d stored=%d known=%d\n", *source, result.Fetched, result.Stored, result.Known)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		proc, err := pipeline.NewProcessingService(db, cfg)
		must(err)
		results, err := proc.ProcessPending(ctx, *batch)
		must(err)
		for _, r := range results {
			fmt.Printf("message %d %s runs=%d\n", r.MessageID, r.Status, len(r.Runs))
		}
		fmt.Printf("processed pending messages=%d\n", len(results))
	case "watch":
		s := listener.NewService(db, cfg)
		must(s.Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

func runOptimize(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	pricesFlag := fs.String("prices", "", "comma separated unit prices, e.g. 100,90")
	qty := fs.Int("qty", 0, "invoice quantity")
	amount := fs.String("amount", "", "reported amount")
	notExceed := fs.Bool("not-exceed", cfg.NotExceedReported, "reject splits above the reported amount")
	_ = fs.Parse(args)
	if strings.TrimSpace(*pricesFlag) == "" || strings.TrimSpace(*amount) == "" {
		must(fmt.Errorf("--prices, --qty and --amount are required"))
	}

	var prices []optimizer.PriceOption
	for i, raw := range strings.Split(*pricesFlag, ",") {
		p, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			must(fmt.Errorf("price %d: %w", i+1, err))
		}
		prices = append(prices, optimizer.PriceOption{Price: p})
	}
	reported, err := decimal.NewFromString(strings.TrimSpace(*amount))
	must(err)

	opts := optimizer.Options{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		NotExceedReported:   *notExceed,
		MaxPrices:           cfg.MaxPrices,
		ExhaustiveLimit:     cfg.ExhaustiveLimit,
		NearMisses:          cfg.NearMisses,
	}
	res := optimizer.FindBestPriceCombination(prices, *qty, reported, opts)
	for _, line := range res.ExplanationTrace {
		fmt.Println(line)
	}
	fmt.Printf("status=%s allocation=%s diff=%s\n", res.Status, optimizer.FormatAllocation(res.ChosenPrices), optimizer.FormatDiff(res.Difference, res.IsAcceptable))
	if res.Status == optimizer.StatusInvalidInput {
		must(errors.New(res.Message))
	}
}

func printSummary(source string, idx *pricehistory.Index) {
	sum := idx.Summary()
	fmt.Printf("price list %s: items=%d periods=%d", source, sum.Items, sum.Periods)
	if sum.Earliest != nil && sum.Latest != nil {
		fmt.Printf(" from=%s to=%s", sum.Earliest.Format("2006-01-02"), sum.Latest.Format("2006-01-02"))
	}
	fmt.Println()
}

func printPeriods(idx *pricehistory.Index, item string) {
	periods := idx.Periods(item)
	if len(periods) == 0 {
		fmt.Printf("item %s: not in price list\n", item)
		return
	}
	for _, p := range periods {
		end := "open"
		if p.EndDate != nil {
			end = p.EndDate.Format("2006-01-02")
		}
		fmt.Printf("  %s..%s ext-VAT=%s inc-VAT=%s %s\n", p.StartDate.Format("2006-01-02"), end, p.ExtVatPrice.StringFixed(2), p.IncVatPrice.StringFixed(2), p.Remark)
	}
}

func usage() {
	fmt.Println("usage: watson <command>")
	fmt.Println("commands:")
	fmt.Println("  pricelist:import --file=prices.xlsx")
	fmt.Println("  pricelist:summary [--item=100200]")
	fmt.Println("  reconcile --input=invoice.xlsx [--output=result.xlsx]")
	fmt.Println("  runs:list [--limit=20]")
	fmt.Println("  export:xlsx --run=<id> --out=./out/result.xlsx")
	fmt.Println("  optimize --prices=100,90 --qty=10 --amount=950 [--not-exceed]")
	fmt.Println("  mail:fetch [--source=folder|imap|gmail] [--label=INBOX] [--max=20]")
	fmt.Println("  mail:process [--batch=20]")
	fmt.Println("  watch")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
