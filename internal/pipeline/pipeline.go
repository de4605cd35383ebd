// Package pipeline sequences a full batch run: extract the three source
// datasets, snapshot raw data to the lake, validate, clean, transform into
// the sales dataset, snapshot processed data, and load the star schema into
// the warehouse.
//
// Steps disabled by configuration are skipped entirely and appear in neither
// steps_completed nor steps_failed. A failing step aborts the run unless
// continue_on_error is set; validation failures and warehouse connection
// failures abort regardless, since downstream results would be meaningless.
// The run summary is always emitted, whatever the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"salesetl/internal/clean"
	"salesetl/internal/config"
	"salesetl/internal/extract"
	"salesetl/internal/lake"
	"salesetl/internal/metrics"
	"salesetl/internal/transform"
	"salesetl/internal/validate"
	"salesetl/internal/warehouse"
	"salesetl/pkg/table"
)

// Step names as they appear in results and metrics.
const (
	StepExtract       = "extract"
	StepSaveRaw       = "save_raw_data"
	StepValidate      = "validate"
	StepClean         = "clean"
	StepTransform     = "transform"
	StepSaveProcessed = "save_processed_data"
	StepLoad          = "load_to_warehouse"
)

// Pipeline executes one configured run at a time. It is not safe for
// concurrent use.
type Pipeline struct {
	cfg  config.Pipeline
	repo warehouse.Repository
	api  *extract.APIClient

	orders    *table.Table
	customers *table.Table
	products  *table.Table
	sales     *table.Table
	daily     *table.Table
}

// Option adjusts a Pipeline at construction time.
type Option func(*Pipeline)

// WithRepository injects a pre-built warehouse connection. The pipeline then
// neither opens nor closes one itself.
func WithRepository(r warehouse.Repository) Option {
	return func(p *Pipeline) { p.repo = r }
}

// WithAPIClient overrides the HTTP client used for URL sources.
func WithAPIClient(c *extract.APIClient) Option {
	return func(p *Pipeline) { p.api = c }
}

// New builds a Pipeline from cfg. The configuration should already have been
// linted with config.ValidatePipeline.
func New(cfg config.Pipeline, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg: cfg,
		api: extract.NewAPIClient(extract.APIConfig{
			Timeout:        time.Duration(cfg.API.TimeoutSeconds) * time.Second,
			MaxRetries:     cfg.API.MaxRetries,
			InitialBackoff: time.Duration(cfg.API.RetryDelayMS) * time.Millisecond,
		}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes the configured steps in order and returns the run summary.
// The returned error is the one that aborted the run; it is nil when the run
// reached the end, even if non-blocking steps failed under
// continue_on_error (inspect Result.StepsFailed for those).
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := newResult(p.cfg.Job, time.Now())
	log.Printf("run %s: job=%s starting", res.RunID, p.cfg.Job)

	defer func() {
		res.EndTime = time.Now()
		res.Duration = res.EndTime.Sub(res.StartTime)
		log.Printf("run %s: success=%v completed=%v failed=%v errors=%d duration=%s",
			res.RunID, res.Success, res.StepsCompleted, res.StepsFailed,
			len(res.Errors), res.Duration.Truncate(time.Millisecond))
	}()

	// EXTRACT
	if err := p.runStep(ctx, res, StepExtract, p.extractStep); err != nil {
		if !p.cfg.ContinueOnError {
			return res, err
		}
	}

	// SAVE_RAW
	if p.cfg.Lake.Enabled {
		if err := p.runStep(ctx, res, StepSaveRaw, p.saveRawStep(res.StartTime)); err != nil {
			if !p.cfg.ContinueOnError {
				return res, err
			}
		}
	}

	// VALIDATE: a failed validation always aborts; continuing would load
	// data known to be bad.
	if p.cfg.Validation.Enabled && p.orders != nil {
		if err := p.runStep(ctx, res, StepValidate, p.validateStep); err != nil {
			return res, err
		}
	}

	// CLEAN
	if p.cfg.Cleaning.Enabled && p.orders != nil {
		if err := p.runStep(ctx, res, StepClean, p.cleanStep); err != nil {
			if !p.cfg.ContinueOnError {
				return res, err
			}
		}
	}

	// TRANSFORM
	if p.cfg.Transform.Enabled && p.orders != nil {
		if err := p.runStep(ctx, res, StepTransform, p.transformStep); err != nil {
			if !p.cfg.ContinueOnError {
				return res, err
			}
		}
	}

	// SAVE_PROCESSED
	if p.cfg.Lake.Enabled && p.sales != nil {
		if err := p.runStep(ctx, res, StepSaveProcessed, p.saveProcessedStep(res.StartTime)); err != nil {
			if !p.cfg.ContinueOnError {
				return res, err
			}
		}
	}

	// LOAD: connection failures always abort, other load errors respect
	// continue_on_error.
	if p.cfg.Warehouse.Enabled && (p.sales != nil || p.orders != nil) {
		if err := p.runStep(ctx, res, StepLoad, p.loadStep); err != nil {
			var ce *warehouse.ConnectionError
			if errors.As(err, &ce) || !p.cfg.ContinueOnError {
				return res, err
			}
		}
	}

	res.Success = len(res.StepsFailed) == 0
	return res, nil
}

// runStep times fn, records metrics, and files the outcome on res.
func (p *Pipeline) runStep(ctx context.Context, res *Result, name string, fn func(context.Context) (map[string]any, error)) error {
	start := time.Now()
	stats, err := fn(ctx)
	metrics.RecordStep(p.cfg.Job, name, err, time.Since(start))
	if err != nil {
		log.Printf("step %s: failed: %v", name, err)
		res.fail(name, err)
		return err
	}
	log.Printf("step %s: ok", name)
	res.complete(name, stats)
	return nil
}

// dateColumn is the orders timestamp column used for daily aggregation and
// the date dimension.
func (p *Pipeline) dateColumn() string {
	if cols := p.cfg.Cleaning.DateColumns; len(cols) > 0 {
		return cols[0]
	}
	return "order_date"
}

// extractStep pulls the three datasets concurrently. Unconfigured sources
// stay nil; any configured source failing fails the step.
func (p *Pipeline) extractStep(ctx context.Context) (map[string]any, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := p.extractSource(ctx, "orders", p.cfg.Sources.Orders)
		p.orders = t
		return err
	})
	g.Go(func() error {
		t, err := p.extractSource(ctx, "customers", p.cfg.Sources.Customers)
		p.customers = t
		return err
	})
	g.Go(func() error {
		t, err := p.extractSource(ctx, "products", p.cfg.Sources.Products)
		p.products = t
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := map[string]any{}
	total := int64(0)
	for name, t := range p.datasets() {
		stats[name+"_rows"] = t.NumRows()
		total += int64(t.NumRows())
	}
	metrics.RecordRows(p.cfg.Job, "extracted", total)
	return stats, nil
}

func (p *Pipeline) extractSource(ctx context.Context, name string, src config.Source) (*table.Table, error) {
	switch {
	case src.Path != "":
		format := src.Format
		if format == "" {
			format = strings.TrimPrefix(filepath.Ext(src.Path), ".")
		}
		switch format {
		case "csv":
			var delim rune
			if src.Delimiter != "" {
				delim = []rune(src.Delimiter)[0]
			}
			return extract.CSV(src.Path, extract.CSVOptions{
				Delimiter: delim,
				Encoding:  src.Encoding,
				HeaderRow: src.HeaderRow,
				TrimSpace: true,
			})
		case "json":
			if src.RecordPath != "" {
				return extract.JSONNested(src.Path, src.RecordPath, src.MetaFields...)
			}
			return extract.JSON(src.Path)
		default:
			return nil, fmt.Errorf("extract %s: unsupported format %q", name, format)
		}
	case src.URL != "":
		return p.api.Fetch(ctx, src.Method, src.URL, src.RecordPath)
	default:
		return nil, nil
	}
}

// datasets returns the extracted tables that exist, keyed by source name.
func (p *Pipeline) datasets() map[string]*table.Table {
	out := map[string]*table.Table{}
	if p.orders != nil {
		out["orders"] = p.orders
	}
	if p.customers != nil {
		out["customers"] = p.customers
	}
	if p.products != nil {
		out["products"] = p.products
	}
	return out
}

func (p *Pipeline) lakeFormat() lake.Format {
	switch p.cfg.Lake.Format {
	case "csv":
		return lake.CSV
	case "json":
		return lake.JSON
	default:
		return lake.Binary
	}
}

// saveRawStep snapshots every extracted dataset with the run's start time so
// the files of one run correlate.
func (p *Pipeline) saveRawStep(ts time.Time) func(context.Context) (map[string]any, error) {
	return func(context.Context) (map[string]any, error) {
		st := lake.NewStorage(p.cfg.Lake.BasePath)
		stats := map[string]any{}
		for name, t := range p.datasets() {
			path, err := st.SaveRaw(t, name, p.lakeFormat(), ts)
			if err != nil {
				return stats, err
			}
			stats[name] = path
		}
		return stats, nil
	}
}

func (p *Pipeline) validateStep(context.Context) (map[string]any, error) {
	v := validate.New()
	if mc := p.cfg.Validation.MinCompleteness; mc > 0 {
		v.MinCompleteness = mc
	}

	stats := map[string]any{}
	for _, name := range []string{"orders", "customers", "products"} {
		t := p.datasets()[name]
		if t == nil {
			continue
		}
		var rules map[string]validate.Rule
		if name == "orders" {
			rules = map[string]validate.Rule{
				"quantity":   validate.Positive,
				"unit_price": validate.Positive,
			}
		}
		rep := v.All(t, p.cfg.Validation.RequiredColumns[name], nil, rules)
		stats[name+"_valid"] = rep.IsValid
		if !rep.IsValid {
			return stats, &validate.ValidationError{Report: rep}
		}
	}
	return stats, nil
}

func (p *Pipeline) cleanStep(context.Context) (map[string]any, error) {
	c := p.cfg.Cleaning
	before := p.orders.NumRows()

	opt := clean.Options{
		RemoveDuplicates: c.RemoveDuplicates,
		DuplicatePolicy:  duplicatePolicy(c.DuplicatePolicy),
		Nulls: clean.NullOptions{
			Strategy: clean.NullStrategy(c.NullStrategy),
			Method:   clean.FillMethod(c.FillMethod),
			Constant: table.Infer(c.FillConstant),
			Columns:  c.NullColumns,
		},
		DateColumns:  c.DateColumns,
		DateLayout:   c.DateLayout,
		EmailColumns: c.EmailColumns,
	}
	if len(opt.DateColumns) == 0 {
		opt.DateColumns = []string{p.dateColumn()}
	}

	if c.TrimWhitespace {
		p.orders = clean.All(p.orders, opt)
	} else {
		out := p.orders
		if opt.RemoveDuplicates {
			out = clean.RemoveDuplicates(out, opt.DuplicateSubset, opt.DuplicatePolicy)
		}
		if opt.Nulls.Strategy != "" && opt.Nulls.Strategy != clean.Skip {
			out = clean.HandleNulls(out, opt.Nulls)
		}
		out = clean.StandardizeDates(out, opt.DateColumns, opt.DateLayout)
		if len(opt.EmailColumns) > 0 {
			out = clean.StandardizeEmails(out, opt.EmailColumns)
		}
		p.orders = out
	}

	if p.customers != nil {
		cust := p.customers
		if c.TrimWhitespace {
			cust = clean.TrimWhitespace(cust, nil)
		}
		if len(c.EmailColumns) > 0 {
			cust = clean.StandardizeEmails(cust, c.EmailColumns)
		}
		p.customers = cust
	}
	if p.products != nil && c.TrimWhitespace {
		p.products = clean.TrimWhitespace(p.products, nil)
	}

	dropped := int64(before - p.orders.NumRows())
	metrics.RecordRows(p.cfg.Job, "cleaned_dropped", dropped)
	return map[string]any{
		"orders_before": before,
		"orders_after":  p.orders.NumRows(),
	}, nil
}

func duplicatePolicy(s string) clean.DuplicatePolicy {
	switch s {
	case "keep_last":
		return clean.KeepLast
	case "drop_all":
		return clean.DropAll
	default:
		return clean.KeepFirst
	}
}

func (p *Pipeline) transformStep(context.Context) (map[string]any, error) {
	sales := p.orders

	fullFlow := p.customers != nil && p.products != nil &&
		sales.HasColumn("quantity") && sales.HasColumn("unit_price") && sales.HasColumn("discount")

	var err error
	if fullFlow {
		sales, err = transform.SalesData(p.orders, p.customers, p.products)
		if err != nil {
			return nil, err
		}
	} else {
		if p.customers != nil {
			sales, err = transform.Join(sales, p.customers, "customer_id", "customer_id",
				transform.Left, transform.DefaultSuffixes)
			if err != nil {
				return nil, err
			}
		} else {
			log.Printf("transform: no customers dataset, join skipped")
		}
		if p.products != nil {
			sales, err = transform.EnrichWithLookup(sales, p.products, "product_id", "product_id",
				[]string{"product_name", "category", "brand", "price"}, "product")
			if err != nil {
				return nil, err
			}
		} else {
			log.Printf("transform: no products dataset, enrichment skipped")
		}
		if calcs := amountCalculations(sales); len(calcs) > 0 {
			sales, err = transform.CalculateFields(sales, calcs)
			if err != nil {
				return nil, err
			}
		}
	}

	if len(p.cfg.Transform.Calculations) > 0 {
		calcs := make([]transform.Calculation, len(p.cfg.Transform.Calculations))
		for i, c := range p.cfg.Transform.Calculations {
			calcs[i] = transform.Calculation{Name: c.Name, Expr: c.Expr}
		}
		sales, err = transform.CalculateFields(sales, calcs)
		if err != nil {
			return nil, err
		}
	}

	stats := map[string]any{"sales_rows": sales.NumRows()}
	if p.cfg.Transform.Filter != "" {
		before := sales.NumRows()
		sales, err = transform.Filter(sales, p.cfg.Transform.Filter)
		if err != nil {
			return nil, err
		}
		stats["filtered_rows"] = before - sales.NumRows()
		metrics.RecordRows(p.cfg.Job, "filtered", int64(before-sales.NumRows()))
	}

	if p.cfg.Transform.DailyAggregation && sales.HasColumn(p.dateColumn()) {
		daily, err := transform.AggregateDailySales(sales, p.dateColumn())
		if err != nil {
			return stats, err
		}
		p.daily = daily
		stats["daily_rows"] = daily.NumRows()
	}

	p.sales = sales
	stats["sales_rows"] = sales.NumRows()
	return stats, nil
}

// amountCalculations returns the amount fields computable from the columns
// sales actually has.
func amountCalculations(sales *table.Table) []transform.Calculation {
	var calcs []transform.Calculation
	if sales.HasColumn("quantity") && sales.HasColumn("unit_price") {
		calcs = append(calcs, transform.Calculation{Name: "total_amount", Expr: "quantity * unit_price"})
		if sales.HasColumn("discount") {
			calcs = append(calcs,
				transform.Calculation{Name: "discount_amount", Expr: "total_amount * discount / 100"},
				transform.Calculation{Name: "final_amount", Expr: "total_amount - discount_amount"})
		}
	}
	return calcs
}

func (p *Pipeline) saveProcessedStep(ts time.Time) func(context.Context) (map[string]any, error) {
	return func(context.Context) (map[string]any, error) {
		st := lake.NewStorage(p.cfg.Lake.BasePath)
		stats := map[string]any{}
		path, err := st.SaveProcessed(p.sales, "sales", p.lakeFormat(), ts)
		if err != nil {
			return stats, err
		}
		stats["sales"] = path
		if p.daily != nil {
			path, err := st.SaveProcessed(p.daily, "daily_sales", p.lakeFormat(), ts)
			if err != nil {
				return stats, err
			}
			stats["daily_sales"] = path
		}
		return stats, nil
	}
}

func (p *Pipeline) loadStep(ctx context.Context) (map[string]any, error) {
	w := p.cfg.Warehouse

	repo := p.repo
	if repo == nil {
		r, err := warehouse.New(ctx, warehouse.Config{Kind: w.Kind, DSN: w.DSN})
		if err != nil {
			return nil, err
		}
		defer r.Close()
		repo = r
	}
	if err := repo.Ping(ctx); err != nil {
		return nil, &warehouse.ConnectionError{Kind: w.Kind, Err: err}
	}

	if w.AutoCreateTables {
		if err := warehouse.EnsureStarSchema(ctx, w.Kind, repo); err != nil {
			return nil, err
		}
	}

	loader := warehouse.NewLoader(repo, w.BatchSize)
	stats := map[string]any{}

	if p.customers != nil {
		st, err := loader.LoadDimension(ctx, "dim_customers", buildDimCustomers(p.customers), "customer_id")
		if err != nil {
			return stats, err
		}
		stats["dim_customers_rows"] = st.RowsLoaded
	}
	if p.products != nil {
		st, err := loader.LoadDimension(ctx, "dim_products", buildDimProducts(p.products), "product_id")
		if err != nil {
			return stats, err
		}
		stats["dim_products_rows"] = st.RowsLoaded
	}

	sales := p.sales
	if sales == nil {
		sales = p.orders
	}

	if dimDate, err := buildDimDate(sales, p.dateColumn()); err == nil && dimDate.NumRows() > 0 {
		st, err := loader.LoadDimension(ctx, "dim_date", dimDate, "date_id")
		if err != nil {
			return stats, err
		}
		stats["dim_date_rows"] = st.RowsLoaded
	}

	fact := buildFactSales(sales, p.dateColumn())
	var st warehouse.Stats
	var err error
	if w.Incremental {
		st, err = loader.IncrementalLoad(ctx, "fact_sales", fact, w.WatermarkColumn, nil)
	} else {
		st, err = loader.Append(ctx, "fact_sales", fact, loadMode(w.Mode))
	}
	if err != nil {
		return stats, err
	}
	stats["fact_rows"] = st.RowsLoaded
	stats["fact_status"] = st.Status
	metrics.RecordRows(p.cfg.Job, "loaded", st.RowsLoaded)
	metrics.RecordBatches(p.cfg.Job, st.Batches)
	return stats, nil
}

func loadMode(s string) warehouse.Mode {
	switch s {
	case "replace":
		return warehouse.Replace
	case "fail":
		return warehouse.Fail
	default:
		return warehouse.Append
	}
}
