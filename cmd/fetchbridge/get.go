package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/reglet-dev/reglet-fetch/application/config"
	"github.com/reglet-dev/reglet-fetch/bridge"
	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/ports"
	"github.com/reglet-dev/reglet-fetch/host"
	"github.com/reglet-dev/reglet-fetch/hostloop"
)

// fetchHost starts bridged requests. host.Executor implements it.
type fetchHost interface {
	Fetch(ctx context.Context, res entities.Resource, src ports.Responder) (*bridge.Ref, error)
	Loop() *hostloop.Loop
}

type result struct {
	target  string
	resp    entities.Response
	elapsed time.Duration
	index   int
}

func getCommand(args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("get", stderr)
	timeout := fs.Duration("timeout", 0, "cancel requests still pending after this long (0 waits)")
	showBody := fs.Bool("body", false, "print response bodies")
	if err := fs.Parse(args); err != nil {
		return err
	}
	targets := fs.Args()
	if len(targets) == 0 {
		return errors.New("fetchbridge get: at least one url or path required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Log, stderr)

	ctx := context.Background()
	exec, err := host.NewExecutor(ctx, config.ExecutorOptions(cfg, logger)...)
	if err != nil {
		return err
	}
	defer func() { _ = exec.Close(ctx) }()

	results, err := runRequests(ctx, exec, targets, *timeout)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		fmt.Fprintln(stdout, formatResult(r))
		if *showBody && r.resp.Status == entities.StatusSuccess {
			fmt.Fprintln(stdout, string(r.resp.Data))
		}
		if r.resp.Status != entities.StatusSuccess {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d requests did not succeed", failed, len(results))
	}
	return nil
}

// resourceFor maps a command-line target to a resource; the kind is
// inferred from the scheme.
func resourceFor(target string) entities.Resource {
	return entities.Resource{URL: target}
}

// runRequests starts one bridge per target and waits for every response.
// Requests still pending when timeout elapses or ctx ends are torn down and
// reported as cancelled.
func runRequests(ctx context.Context, h fetchHost, targets []string, timeout time.Duration) ([]result, error) {
	start := time.Now()
	done := make(chan result, len(targets))
	refs := make([]*bridge.Ref, 0, len(targets))
	defer func() {
		for _, ref := range refs {
			ref.Release()
		}
	}()

	for i, target := range targets {
		src := ports.ResponderFunc(func(resp entities.Response) {
			done <- result{index: i, target: target, resp: resp, elapsed: time.Since(start)}
		})
		ref, err := h.Fetch(ctx, resourceFor(target), src)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	out := make([]result, len(targets))
	seen := make([]bool, len(targets))
	for pending := len(targets); pending > 0; {
		select {
		case r := <-done:
			out[r.index], seen[r.index] = r, true
			pending--
			continue
		case <-expired:
		case <-ctx.Done():
		}

		// Deliveries run on the loop, so tearing down there leaves every
		// bridge either delivered or inert.
		teardown := func() error {
			for _, ref := range refs {
				ref.Release()
			}
			return nil
		}
		if err := h.Loop().Do(context.WithoutCancel(ctx), teardown); err != nil {
			return nil, err
		}
		for drained := false; !drained; {
			select {
			case r := <-done:
				out[r.index], seen[r.index] = r, true
			default:
				drained = true
			}
		}
		for i := range out {
			if !seen[i] {
				out[i] = result{index: i, target: targets[i], resp: entities.Cancelled(), elapsed: time.Since(start)}
			}
		}
		break
	}
	return out, nil
}

func formatResult(r result) string {
	elapsed := mutedStyle.Render(r.elapsed.Round(time.Millisecond).String())
	switch r.resp.Status {
	case entities.StatusSuccess:
		detail := formatSize(len(r.resp.Data))
		if r.resp.NotModified {
			detail = "not modified"
		}
		return fmt.Sprintf("%s %s %s %s", successStyle.Render("ok"), r.target, mutedStyle.Render(detail), elapsed)
	case entities.StatusError:
		return fmt.Sprintf("%s %s %s %s", errorStyle.Render("error"), r.target,
			errorStyle.Render(fmt.Sprintf("%s: %s", r.resp.ErrorKind, r.resp.ErrorMessage)), elapsed)
	default:
		return fmt.Sprintf("%s %s %s", cancelStyle.Render("cancelled"), r.target, elapsed)
	}
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
