// Command coupon-ingest loads promo codes from gzip-compressed code lists.
// A code is accepted when it appears in at least --min-files of the lists.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
	maxFiles      = 64
)

type options struct {
	dataDir     string
	pattern     string
	databaseURL string
	capacity    uint
	minFiles    int
	batchSize   int
	writers     int

	percentage      decimal.Decimal
	minimumPrice    decimal.Decimal
	maximumDiscount decimal.Decimal
	usageLimit      int
	maxGlobalUsage  int
	validFor        time.Duration
}

func main() {
	var (
		opts                        options
		percentage, minimum, maxDsc string
	)

	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing the code lists")
	flag.StringVar(&opts.pattern, "pattern", "couponbase*.gz", "glob of code lists inside data-dir")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&opts.capacity, "capacity", 120_000_000, "expected codes per list, sizes the bloom filters")
	flag.IntVar(&opts.minFiles, "min-files", 2, "number of lists a code must appear in")
	flag.IntVar(&opts.batchSize, "batch", 500, "coupons per database batch")
	flag.IntVar(&opts.writers, "writers", 4, "concurrent database writers")
	flag.StringVar(&percentage, "percentage", "10", "discount percentage of ingested coupons")
	flag.StringVar(&minimum, "minimum-price", "0", "minimum cart total of ingested coupons")
	flag.StringVar(&maxDsc, "maximum-discount", "500", "discount cap of ingested coupons")
	flag.IntVar(&opts.usageLimit, "usage-limit", 1, "uses per user")
	flag.IntVar(&opts.maxGlobalUsage, "max-global-usage", 1000, "uses across all users")
	flag.DurationVar(&opts.validFor, "valid-for", 90*24*time.Hour, "time until the coupons expire")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	for _, v := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"percentage", percentage, &opts.percentage},
		{"minimum-price", minimum, &opts.minimumPrice},
		{"maximum-discount", maxDsc, &opts.maximumDiscount},
	} {
		d, err := decimal.NewFromString(v.raw)
		if err != nil {
			slog.Error("invalid decimal flag", slog.String("flag", v.name), slog.String("error", err.Error()))
			os.Exit(1)
		}
		*v.dst = d
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, opts options) error {
	files, err := filepath.Glob(filepath.Join(opts.dataDir, opts.pattern))
	if err != nil {
		return errors.Wrap(err, "list code files")
	}
	switch {
	case len(files) < opts.minFiles:
		return errors.Errorf("found %d code files, need at least %d", len(files), opts.minFiles)
	case len(files) > maxFiles:
		return errors.Errorf("found %d code files, at most %d are supported", len(files), maxFiles)
	}
	sort.Strings(files)

	codes, err := findCodes(ctx, files, opts.capacity, opts.minFiles)
	if err != nil {
		return err
	}
	slog.Info("valid codes found", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	slog.Info("connecting to database")
	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := repository.NewCouponRepository(pool)
	return writeCoupons(ctx, codes, opts, repo.UpsertMany)
}

// findCodes returns the codes present in at least minFiles files, sorted.
//
// Pass 1 builds one bloom filter per file. Pass 2 re-reads each file and
// keeps the codes some other file's filter may contain, tagged with a bit
// per file. Merging the tags gives the exact file count of each candidate.
func findCodes(ctx context.Context, files []string, capacity uint, minFiles int) ([]string, error) {
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))
	filters, err := buildBloomFilters(ctx, files, capacity)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding candidate codes")
	results := make([]map[string]uint64, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			c, err := scanCandidates(gctx, i, f, filters)
			results[i] = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "find candidates")
	}

	merged := make(map[string]uint64)
	for _, r := range results {
		for code, mask := range r {
			merged[code] |= mask
		}
	}
	return selectCodes(merged, minFiles), nil
}

func selectCodes(merged map[string]uint64, minFiles int) []string {
	var valid []string
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= minFiles {
			valid = append(valid, code)
		}
	}
	sort.Strings(valid)
	return valid
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64
			if err := streamGzFile(ctx, path, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// scanCandidates tags every code of file idx that another file may contain.
func scanCandidates(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) (map[string]uint64, error) {
	candidates := make(map[string]uint64)
	fileBit := uint64(1) << uint(idx)
	var count uint64

	err := streamGzFile(ctx, path, func(code string) {
		count++
		if count%progressEvery == 0 {
			slog.Info("pass 2 progress", slog.Int("file", idx+1), slog.Uint64("codes", count))
		}
		for j, f := range filters {
			if j != idx && f.TestString(code) {
				candidates[code] |= fileBit
				return
			}
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}
	slog.Info("pass 2 complete",
		slog.Int("file", idx+1),
		slog.Uint64("total_codes", count),
		slog.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// streamGzFile calls fn for each well-formed code of a gzip-compressed list.
// Codes are trimmed and upper-cased.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if len(code) < minCodeLen || len(code) > maxCodeLen {
			continue
		}
		fn(code)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// writeCoupons upserts codes in batches with a bounded number of writers.
func writeCoupons(
	ctx context.Context,
	codes []string,
	opts options,
	upsert func(ctx context.Context, coupons []coupon.Coupon) error,
) error {
	slog.Info("writing coupons to database", slog.Int("count", len(codes)))

	expires := time.Now().Add(opts.validFor)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.writers, 1))
	size := max(opts.batchSize, 1)
	for start := 0; start < len(codes); start += size {
		batch := codes[start:min(start+size, len(codes))]
		g.Go(func() error {
			coupons := make([]coupon.Coupon, len(batch))
			for i, code := range batch {
				coupons[i] = coupon.Coupon{
					ID:              "ing_" + strings.ToLower(code),
					Code:            code,
					OfferPercentage: opts.percentage,
					MinimumPrice:    opts.minimumPrice,
					MaximumDiscount: opts.maximumDiscount,
					UsageLimit:      opts.usageLimit,
					MaxGlobalUsage:  opts.maxGlobalUsage,
					ExpiresOn:       expires,
					Active:          true,
				}
			}
			if err := upsert(ctx, coupons); err != nil {
				return errors.Wrapf(err, "write batch at %d", start)
			}
			slog.Info("write progress", slog.Int("written", start+len(batch)), slog.Int("total", len(codes)))
			return nil
		})
	}
	return g.Wait()
}
