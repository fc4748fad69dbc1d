package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"adhunter/internal/app"
	"adhunter/internal/config"
	"adhunter/internal/model"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return fs
}

func runAdd(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("add")
	name := fs.String("name", "", "unique name of the search query")
	url := fs.String("url", "", "search results URL ({page} is replaced by the page number)")
	pages := fs.Int("pages", 0, "number of pages to crawl, 0 means until the results end")
	pattern := fs.String("pattern", "", "case-insensitive regular expression the listing name must match")
	minPrice := fs.Int64("min-price", model.MinPriceFloor, "minimum price")
	maxPrice := fs.Int64("max-price", 0, "maximum price, 0 means unbounded")
	skipSold := fs.Bool("skip-sold", false, "skip listings marked as sold")
	skipNoPrice := fs.Bool("skip-no-price", false, "skip listings without a price")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *url == "" {
		return errors.New("add requires --name and --url")
	}

	svc, err := e.service(ctx)
	if err != nil {
		return err
	}
	q, err := svc.AddQuery(ctx, model.QueryParams{
		Name:        *name,
		URL:         *url,
		Pages:       *pages,
		Pattern:     *pattern,
		MinPrice:    *minPrice,
		MaxPrice:    *maxPrice,
		SkipSold:    *skipSold,
		SkipNoPrice: *skipNoPrice,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "search query %q added, the first run will only record the current listings\n", q.Name)
	return nil
}

func runList(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("list")
	asJSON := fs.Bool("json", false, "print raw JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	svc, err := e.service(ctx)
	if err != nil {
		return err
	}
	queries, err := svc.ListQueries(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(queries)
	}
	if len(queries) == 0 {
		fmt.Fprintln(e.out, "no search queries saved")
		return nil
	}
	return printQueryTable(e.out, queries)
}

func printQueryTable(w io.Writer, queries []app.QueryInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tENABLED\tPAGES\tPRICE\tPATTERN\tSKIP\tLISTINGS\tURL")
	for _, q := range queries {
		pages := "all"
		if q.Pages > 0 {
			pages = strconv.Itoa(q.Pages)
		}
		maxPrice := "∞"
		if q.MaxPrice > 0 {
			maxPrice = strconv.FormatInt(q.MaxPrice, 10)
		}
		pattern := "-"
		if q.Pattern != nil {
			pattern = *q.Pattern
		}
		var skip []string
		if q.SkipSold {
			skip = append(skip, "sold")
		}
		if q.SkipNoPrice {
			skip = append(skip, "no_price")
		}
		skipCol := "-"
		if len(skip) > 0 {
			skipCol = strings.Join(skip, ",")
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%d-%s\t%s\t%s\t%d\t%s\n",
			q.Name, q.Enabled, pages, q.MinPrice, maxPrice, pattern, skipCol, q.Listings, q.URL)
	}
	return tw.Flush()
}

func runDelete(ctx context.Context, e *env, args []string) error {
	return applyToNames(ctx, e, "delete", args, (*app.Service).DeleteQueries)
}

func runEnable(ctx context.Context, e *env, args []string) error {
	return applyToNames(ctx, e, "enable", args, (*app.Service).EnableQueries)
}

func runDisable(ctx context.Context, e *env, args []string) error {
	return applyToNames(ctx, e, "disable", args, (*app.Service).DisableQueries)
}

func applyToNames(ctx context.Context, e *env, action string, args []string,
	fn func(*app.Service, context.Context, ...string) (*app.NamesResult, error)) error {
	fs := newFlagSet(action)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%s requires at least one search query name", action)
	}
	svc, err := e.service(ctx)
	if err != nil {
		return err
	}
	res, err := fn(svc, ctx, fs.Args()...)
	if err != nil {
		return err
	}
	for _, name := range res.Done {
		fmt.Fprintf(e.out, "%s: %s\n", action, name)
	}
	for _, name := range res.Unknown {
		fmt.Fprintf(e.out, "search query %q not found\n", name)
	}
	return nil
}

func runRun(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	svc, err := e.service(ctx)
	if err != nil {
		return err
	}
	report, err := svc.RunAll(ctx)
	if report != nil {
		e.logger.Info("run finished",
			slog.String("run_id", report.RunID),
			slog.Int("queries", len(report.Queries)),
			slog.Int("failed", report.Failed()),
			slog.String("duration", report.Duration.String()))
	}
	return err
}

func runMaintenance(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("maintenance")
	testNotification := fs.Bool("test-notification", false, "send a sample notification")
	reset := fs.String("reset", "", "forget the stored listings of a search query")
	forceUnlock := fs.Bool("force-unlock", false, "remove the run lock unconditionally")
	dataPath := fs.Bool("data-path", false, "print where the data is stored")
	sleep := fs.Int("sleep", 0, "hold the run lock for N seconds")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, err := e.service(ctx)
	if err != nil {
		return err
	}
	did := false
	if *dataPath {
		did = true
		fmt.Fprintln(e.out, svc.Location())
	}
	if *forceUnlock {
		did = true
		existed, err := svc.ForceUnlock(ctx)
		if err != nil {
			return err
		}
		if existed {
			fmt.Fprintln(e.out, "run lock removed")
		} else {
			fmt.Fprintln(e.out, "run lock was not set")
		}
	}
	if *reset != "" {
		did = true
		if err := svc.ResetQuery(ctx, *reset); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "search query %q reset, the next run will only record the current listings\n", *reset)
	}
	if *testNotification {
		did = true
		if err := svc.TestNotification(ctx); err != nil {
			return err
		}
		fmt.Fprintln(e.out, "test notification sent")
	}
	if *sleep > 0 {
		did = true
		err := svc.Sleep(ctx, time.Duration(*sleep)*time.Second, func(remaining time.Duration) {
			fmt.Fprintf(e.out, "\rholding the run lock, %s left ", remaining)
		})
		fmt.Fprintln(e.out)
		if err != nil {
			return err
		}
	}
	if !did {
		fs.Usage()
		return flag.ErrHelp
	}
	return nil
}

func runConfig(_ context.Context, e *env, args []string) error {
	fs := newFlagSet("config")
	pushover := fs.String("pushover", "", "pushover credentials as APP_TOKEN:USER_KEY")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pushover == "" {
		fs.Usage()
		return flag.ErrHelp
	}
	if err := e.cfg.SetPushoverKeys(*pushover); err != nil {
		return err
	}
	if err := config.Save(e.cfgPath, e.cfg); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "pushover credentials saved to %s\n", e.cfgPath)
	return nil
}
