// Package whocan implements the Who-Can driver: a bounded worker pool
// that fans (principal, action, resource, resourceAccount) tuples out to
// a simulation kernel and collects the Allowed results. The kernel itself
// is an external collaborator (pkg/simkernel).
package whocan

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"github.com/mpvl/unique"
	"golang.org/x/sync/semaphore"

	"github.com/iamlens/iamlens/pkg/simkernel"
)

// WorkItem is one unit of simulation work: a principal attempting an
// action against a resource in resourceAccount.
type WorkItem struct {
	PrincipalArn    string
	Action          string
	ResourceArn     string
	ResourceAccount string
}

// Resolver materializes a WorkItem into a fully resolved simulation
// request — loading identity/resource/boundary/SCP/RCP policies and the
// request context. Context-key assembly and policy loading live outside
// this package; whocan only drives the fan-out.
type Resolver interface {
	Resolve(ctx context.Context, item WorkItem) (simkernel.Request, error)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(ctx context.Context, item WorkItem) (simkernel.Request, error)

func (f ResolverFunc) Resolve(ctx context.Context, item WorkItem) (simkernel.Request, error) {
	return f(ctx, item)
}

// Result is one Allowed tuple surfaced by a worker.
type Result struct {
	CorrelationID string
	WorkItem      WorkItem
	Decision      simkernel.Decision
}

// Driver fans WorkItems out across a bounded pool of workers, each running
// an independent simulation via Kernel. Concurrency defaults to the host's
// CPU count when unset.
type Driver struct {
	Kernel      simkernel.Kernel
	Resolver    Resolver
	Concurrency int
	// StableSort requests a deterministic output ordering; without it,
	// results may arrive in any order.
	StableSort bool
}

// Generator emits each work item on a channel, then closes it — the
// streaming queue workers pull tuples from.
func Generator(items []WorkItem) <-chan WorkItem {
	out := make(chan WorkItem)
	go func() {
		defer close(out)
		for _, item := range items {
			out <- item
		}
	}()
	return out
}

// Run drives every item through the kernel with bounded concurrency and
// returns only the items that resolved to Allowed.
func (d *Driver) Run(ctx context.Context, items []WorkItem) ([]Result, error) {
	if d.Kernel == nil {
		return nil, fmt.Errorf("whocan: Driver requires a Kernel")
	}
	if d.Resolver == nil {
		return nil, fmt.Errorf("whocan: Driver requires a Resolver")
	}

	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	in := Generator(items)
	results := make(chan Result, concurrency)
	errs := make(chan error, 1)

	sem := semaphore.NewWeighted(int64(concurrency))
	done := make(chan struct{})

	go func() {
		defer close(done)
		for item := range in {
			if err := sem.Acquire(ctx, 1); err != nil {
				select {
				case errs <- err:
				default:
				}
				return
			}
			go func(item WorkItem) {
				defer sem.Release(1)
				d.evaluateOne(ctx, item, results, errs)
			}(item)
		}
		// Drain all in-flight workers before closing results.
		if err := sem.Acquire(ctx, int64(concurrency)); err != nil {
			select {
			case errs <- err:
			default:
			}
			return
		}
		sem.Release(int64(concurrency))
	}()

	go func() {
		<-done
		close(results)
	}()

	var collected []Result
	for r := range results {
		collected = append(collected, r)
	}

	select {
	case err := <-errs:
		return nil, err
	default:
	}

	if d.StableSort {
		collected = dedupAndSort(collected)
	}

	return collected, nil
}

// dedupAndSort collapses duplicate (principal, action, resource) tuples —
// which a repeated entry in --actions can produce — and orders what's left
// deterministically. It keys each result, hands the keys to unique.Strings
// for the sorted-dedup pass (the same idiom pkg/pattern.Dedup uses), then
// reassembles results in that key order, first-seen wins on a collision.
func dedupAndSort(results []Result) []Result {
	byKey := make(map[string]Result, len(results))
	keys := make([]string, 0, len(results))
	for _, r := range results {
		k := r.WorkItem.PrincipalArn + "|" + r.WorkItem.Action + "|" + r.WorkItem.ResourceArn
		if _, seen := byKey[k]; !seen {
			byKey[k] = r
			keys = append(keys, k)
		}
	}

	unique.Strings(&keys)

	out := make([]Result, len(keys))
	for i, k := range keys {
		out[i] = byKey[k]
	}
	return out
}

func (d *Driver) evaluateOne(ctx context.Context, item WorkItem, results chan<- Result, errs chan<- error) {
	req, err := d.Resolver.Resolve(ctx, item)
	if err != nil {
		select {
		case errs <- fmt.Errorf("resolve %s %s on %s: %w", item.PrincipalArn, item.Action, item.ResourceArn, err):
		default:
		}
		return
	}

	decision, err := d.Kernel.Evaluate(ctx, req)
	if err != nil {
		select {
		case errs <- fmt.Errorf("simulate %s %s on %s: %w", item.PrincipalArn, item.Action, item.ResourceArn, err):
		default:
		}
		return
	}

	if decision != simkernel.Allowed {
		return
	}

	results <- Result{
		CorrelationID: uuid.NewString(),
		WorkItem:      item,
		Decision:      decision,
	}
}
