package resolver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"wg-splitroute/internal/core"
	"wg-splitroute/internal/hosts"
)

const (
	defaultBatchSize   = 20
	defaultConcurrency = 10
	defaultBatchDelay  = 2 * time.Second
)

// DomainResolver resolves a single domain. Implemented by Client; swappable
// in tests.
type DomainResolver interface {
	Resolve(ctx context.Context, domain string) Result
}

var _ DomainResolver = (*Client)(nil)

// Summary is the end-of-run report of a batch run.
type Summary struct {
	Success int
	Fail    int
	// FailedDomains lists every domain that exhausted its retries.
	FailedDomains []string
}

// Coordinator drives batched, concurrent resolution of a domain list and
// produces the merged IP table. Batches run sequentially; domains within a
// batch run on a bounded worker pool.
type Coordinator struct {
	resolver DomainResolver
	cfg      core.BatchConfig
	retry    core.RetryPolicy
	log      *core.Logger
}

// NewCoordinator builds a coordinator over the given per-domain resolver.
func NewCoordinator(resolver DomainResolver, cfg core.BatchConfig, log *core.Logger) *Coordinator {
	return &Coordinator{
		resolver: resolver,
		cfg:      cfg,
		retry:    core.PolicyFromConfig(cfg.Retry),
		log:      log,
	}
}

// RunBatches executes the full resolution pipeline:
//
//	CheckLeftoverBackup → (Restore) → Backup → SplitBatches → [ResolveBatch]*
//	→ Merge → RestoreOriginalList → DeleteBackup → write table → Done
//
// The snapshot restore is deferred, so it also runs on cancellation or error;
// that is the crash-recovery guarantee the rest of the system leans on. The
// merged table is built in memory and flushed once, after all batches.
func (co *Coordinator) RunBatches(ctx context.Context, listPath, outPath string, batchSize, concurrency int) (Summary, error) {
	var summary Summary

	restored, err := RestoreLeftoverBackup(listPath, co.log)
	if err != nil {
		return summary, err
	}
	if restored {
		co.log.Infof("Resolve", "Recovered domain list from interrupted run")
	}

	records, err := LoadDomainList(listPath, co.log)
	if err != nil {
		return summary, err
	}
	if len(records) == 0 {
		co.log.Warnf("Resolve", "Domain list %s is empty, nothing to do", listPath)
		return summary, WriteTable(outPath, nil, co.log)
	}

	backup, err := createBackup(listPath, co.log)
	if err != nil {
		return summary, err
	}
	// Restore-before-exit: must run even on cancellation or a failed batch.
	restoreDone := false
	defer func() {
		if !restoreDone {
			if rerr := backup.restoreAndDelete(co.log); rerr != nil {
				co.log.Errorf("Resolve", "Restore on exit failed: %v", rerr)
			}
		}
	}()

	if batchSize <= 0 {
		batchSize = co.cfg.Size
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if concurrency <= 0 {
		concurrency = co.cfg.Concurrency
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	batches := splitBatches(records, batchSize)
	co.log.Infof("Resolve", "Resolving %d domains in %d batches (size=%d, concurrency=%d)",
		len(records), len(batches), batchSize, concurrency)

	merged := make(map[string]Result, len(records))

	for i, batch := range batches {
		select {
		case <-ctx.Done():
			return summary, fmt.Errorf("[Resolve] cancelled before batch %d/%d: %w", i+1, len(batches), ctx.Err())
		default:
		}

		if co.cfg.ExternalResolver != "" {
			if err := co.runExternalResolver(ctx, listPath, batch); err != nil {
				co.log.Warnf("Resolve", "External resolver failed for batch %d: %v", i+1, err)
			}
		}

		results := co.resolveBatch(ctx, batch, concurrency)
		for _, r := range results {
			// Later batch wins on duplicates (should not occur under
			// correct splitting).
			merged[r.Domain] = r
		}

		co.log.Infof("Resolve", "Batch %d/%d done", i+1, len(batches))
		if i < len(batches)-1 {
			delay := co.cfg.Delay.Or(defaultBatchDelay)
			select {
			case <-ctx.Done():
				return summary, fmt.Errorf("[Resolve] cancelled during inter-batch delay: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	// RestoreOriginalList + DeleteBackup, explicitly, so a failure here is
	// surfaced instead of swallowed by the defer.
	if err := backup.restoreAndDelete(co.log); err != nil {
		restoreDone = true // defer must not retry a failed restore
		return summary, err
	}
	restoreDone = true

	var entries []hosts.Entry
	for _, rec := range records {
		r, ok := merged[rec.Domain]
		if !ok || !r.OK() {
			summary.Fail++
			summary.FailedDomains = append(summary.FailedDomains, rec.Domain)
			continue
		}
		summary.Success++
		entries = append(entries, hosts.Entry{Addr: r.Selected, Domain: r.Domain})
	}

	if err := WriteTable(outPath, entries, co.log); err != nil {
		return summary, err
	}

	co.log.Infof("Resolve", "Run complete: %d resolved, %d failed", summary.Success, summary.Fail)
	return summary, nil
}

// resolveBatch resolves one batch on a bounded worker pool. Each worker writes
// only its own slot, so no locking is needed.
func (co *Coordinator) resolveBatch(ctx context.Context, batch []Record, concurrency int) []Result {
	results := make([]Result, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, rec := range batch {
		i, rec := i, rec
		g.Go(func() error {
			results[i] = co.resolveWithRetry(gctx, rec.Domain)
			return nil
		})
	}
	g.Wait()
	return results
}

// resolveWithRetry applies the shared retry policy around a soft-failing
// resolve. Exhaustion is recorded in the Result, never an error: a dead domain
// must not abort the batch.
func (co *Coordinator) resolveWithRetry(ctx context.Context, domain string) Result {
	var result Result
	attempts := 0
	err := co.retry.Do(ctx, func(attempt int) error {
		attempts = attempt
		result = co.resolver.Resolve(ctx, domain)
		if !result.OK() {
			return fmt.Errorf("no server resolved %s", domain)
		}
		return nil
	})
	result.Domain = domain
	result.Attempts = attempts
	if err != nil && ctx.Err() == nil {
		co.log.Warnf("Resolve", "%s: exhausted %d attempts", domain, attempts)
	}
	return result
}

// runExternalResolver reproduces the legacy whole-file contract: the batch
// subset is swapped over the real list file, the external command runs against
// it, and the caller's deferred snapshot restore puts the full list back. Kept
// only for compatibility; resolution results still come from the in-memory
// client.
func (co *Coordinator) runExternalResolver(ctx context.Context, listPath string, batch []Record) error {
	var b strings.Builder
	for _, rec := range batch {
		b.WriteString(rec.Domain)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("swap batch over %s: %w", listPath, err)
	}

	parts := strings.Fields(co.cfg.ExternalResolver)
	cmd := exec.CommandContext(ctx, parts[0], append(parts[1:], listPath)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (output: %s)", parts[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// WriteFailedReport writes the failed-domains report file, one domain per line.
func WriteFailedReport(path string, failed []string, log *core.Logger) error {
	if path == "" || len(failed) == 0 {
		return nil
	}
	data := strings.Join(failed, "\n") + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("[Resolve] write failed-domains report %s: %w", path, err)
	}
	log.Infof("Resolve", "Wrote %d failed domains to %s", len(failed), path)
	return nil
}

// splitBatches chunks records into fixed-size batches.
func splitBatches(records []Record, size int) [][]Record {
	var batches [][]Record
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		batches = append(batches, records[start:end])
	}
	return batches
}
