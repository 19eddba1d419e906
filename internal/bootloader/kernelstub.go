package bootloader

import (
	"context"
	"fmt"
	"strings"

	"passthru/internal/kparams"
	"passthru/pkg/logging"
)

const (
	kernelstubSubsystem = "Kernelstub"
	kernelstubOptions   = "Kernel Boot Options:"
)

func (b *Backend) kernelstubParameters(ctx context.Context) ([]string, error) {
	out, err := b.fx.Run(ctx, b.opts.KernelstubBinary, "-p")
	if err != nil {
		return nil, fmt.Errorf("failed to read kernelstub configuration: %w", err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if _, after, ok := strings.Cut(line, kernelstubOptions); ok {
			return strings.Fields(after), nil
		}
	}
	return nil, nil
}

// kernelstubUpdate runs one kernelstub invocation per parameter. Failures are
// logged and collected in Result.Failed; the batch continues.
func (b *Backend) kernelstubUpdate(ctx context.Context, params []string, add bool, dryRun bool) (Result, error) {
	flag := "-d"
	if add {
		flag = "-a"
	}

	// Best effort: the current options let us skip no-op invocations and
	// remove the exact token a key refers to.
	current, err := b.kernelstubParameters(ctx)
	known := err == nil
	if !known {
		logging.Debug(kernelstubSubsystem, "Could not read current options: %v", err)
	}

	var res Result
	for _, param := range params {
		param = strings.TrimSpace(param)
		if param == "" {
			continue
		}

		targets := []string{param}
		if known {
			if add && !kparams.Add(current, targets).Changed {
				logging.Info(kernelstubSubsystem, "Parameter %s already present", param)
				continue
			}
			if !add {
				targets = kparams.Remove(current, targets).Removed
				if len(targets) == 0 {
					logging.Info(kernelstubSubsystem, "Parameter %s not present", param)
					continue
				}
			}
		}

		for _, target := range targets {
			if !b.runKernelstub(ctx, flag, target, dryRun) {
				res.Failed = append(res.Failed, target)
				continue
			}
			res.Changed = true
			if add {
				res.Added = append(res.Added, target)
				current = kparams.Add(current, []string{target}).Params
			} else {
				res.Removed = append(res.Removed, target)
				current = kparams.Remove(current, []string{target}).Params
			}
		}
	}
	return res, nil
}

// runKernelstub reports whether the invocation ran (or would run)
func (b *Backend) runKernelstub(ctx context.Context, flag, param string, dryRun bool) bool {
	if dryRun {
		logging.Info(kernelstubSubsystem, "[DRY RUN] Would execute: %s %s %s", b.opts.KernelstubBinary, flag, param)
		return true
	}

	logging.Info(kernelstubSubsystem, "Executing: %s %s %s", b.opts.KernelstubBinary, flag, param)
	if _, err := b.fx.Run(ctx, b.opts.KernelstubBinary, flag, param); err != nil {
		logging.Error(kernelstubSubsystem, err, "Failed to apply parameter %s", param)
		return false
	}
	return true
}

func (b *Backend) kernelstubActivate() error {
	logging.Info(kernelstubSubsystem, "kernelstub applies changes directly, nothing to regenerate")
	return nil
}
