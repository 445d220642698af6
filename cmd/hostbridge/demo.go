package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/binding"
	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/examples/repository"
	"github.com/wippyai/hostbridge/heap"
	"github.com/wippyai/hostbridge/resource"
)

func newDemoCmd(a *app) *cobra.Command {
	var capacity int
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the repository bindings against an in-process host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("capacity") {
				capacity = a.cfg.Heap.Capacity
			}
			var opts []heap.Option
			if capacity > 0 {
				opts = append(opts, heap.WithCapacity(capacity))
			}
			opts = append(opts, heap.WithLogger(a.logger.Named("heap")))
			return runDemo(cmd.Context(), cmd.OutOrStdout(), a.logger, opts...)
		},
	}
	cmd.Flags().IntVar(&capacity, "capacity", 0, "maximum live wrappers (0 is unlimited)")
	return cmd
}

type demo struct {
	ctx context.Context
	out io.Writer
	h   *heap.Heap
	rt  *bridge.Runtime
	mod *binding.Module
}

func runDemo(ctx context.Context, out io.Writer, logger *zap.Logger, opts ...heap.Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	h := heap.New(opts...)
	defer h.Close()
	slots := resource.NewTable()
	slots.Subscribe(resource.NewLogObserver(logger.Named("slots")))
	rt := bridge.New(h, bridge.WithTable(slots))
	defer rt.Close()

	mod, err := repository.Bind(rt)
	if err != nil {
		return err
	}
	d := &demo{ctx: ctx, out: out, h: h, rt: rt, mod: mod}
	if err := d.remotes(); err != nil {
		return err
	}
	if err := d.styleSheets(); err != nil {
		return err
	}
	if err := rt.Wait(); err != nil {
		return err
	}
	stats := h.Stats()
	logger.Debug("demo finished", zap.Int("allocated", stats.Allocated), zap.Int("collected", stats.Collected))
	fmt.Fprintf(out, "%s %d live wrappers, %d allocated, %d collected\n",
		okColor.Sprint("done"), rt.Live(), stats.Allocated, stats.Collected)
	return nil
}

func (d *demo) step(format string, args ...any) {
	fmt.Fprintf(d.out, "%s %s\n", headerColor.Sprint("::"), fmt.Sprintf(format, args...))
}

func census(rt *bridge.Runtime) string {
	counts := rt.Census()
	classes := make([]string, 0, len(counts))
	for class := range counts {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	parts := make([]string, len(classes))
	for i, class := range classes {
		parts[i] = fmt.Sprintf("%s=%d", class, counts[class])
	}
	return strings.Join(parts, " ")
}

func (d *demo) collect() {
	d.h.GC()
	d.h.GC()
}

func (d *demo) remotes() error {
	repo, err := d.mod.Construct(d.ctx, repository.ClassRepo, "/src/hostbridge")
	if err != nil {
		return err
	}
	v, err := d.mod.Invoke(d.ctx, repository.ClassRepo, "remote", repo, repository.DefaultRemote)
	if err != nil {
		return err
	}
	remote := v.(resource.Slot)
	d.step("repo %d has remote %d", repo, remote)

	if err := d.h.Release(repo); err != nil {
		return err
	}
	d.collect()
	url, err := d.mod.Get(d.ctx, repository.ClassRemote, "url", remote)
	if err != nil {
		return err
	}
	d.step("repo released, remote still reads %s (live: %s)", url, census(d.rt))

	if err := d.h.Release(remote); err != nil {
		return err
	}
	d.collect()
	d.step("remote released (%d live)", d.rt.Live())
	return nil
}

func (d *demo) styleSheets() error {
	sheet, err := d.mod.Construct(d.ctx, repository.ClassStyleSheet, []string{"body { margin: 0 }"})
	if err != nil {
		return err
	}
	v, err := d.mod.Get(d.ctx, repository.ClassStyleSheet, "rules", sheet)
	if err != nil {
		return err
	}
	list := v.(resource.Slot)
	if _, err := d.mod.Invoke(d.ctx, repository.ClassStyleSheet, "insertRule", sheet, "p { color: red }"); err != nil {
		return err
	}

	if err := d.h.Release(sheet); err != nil {
		return err
	}
	d.collect()
	rules, err := d.mod.Invoke(d.ctx, repository.ClassRuleList, "getRules", list)
	if err != nil {
		return err
	}
	d.step("sheet released, rule list still reads %q", rules)

	if err := d.h.Release(list); err != nil {
		return err
	}
	d.collect()
	d.step("rule list released (%d live)", d.rt.Live())
	return nil
}
