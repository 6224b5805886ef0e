// Package doctor provides environment preflight checks for simscore.
package doctor

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// CheckpointFunc validates a checkpoint and returns a short description of
// what it holds.
type CheckpointFunc func(path string) (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// Workers is the tensor kernel worker count in effect.
	Workers int
	// CPUFeatures lists the SIMD extensions to report; nil uses DetectCPUFeatures.
	CPUFeatures func() []string
	// Checkpoints are the checkpoint paths to verify.
	Checkpoints []string
	// CheckCheckpoint opens and validates one checkpoint.
	CheckCheckpoint CheckpointFunc
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	fmt.Fprintf(w, "%s go runtime: %s %s/%s\n", PassMark, runtime.Version(), runtime.GOOS, runtime.GOARCH)

	// ---- CPU features -----------------------------------------------------
	detect := cfg.CPUFeatures
	if detect == nil {
		detect = DetectCPUFeatures
	}

	if feats := detect(); len(feats) == 0 {
		fmt.Fprintf(w, "%s cpu features: none detected (generic kernels)\n", PassMark)
	} else {
		fmt.Fprintf(w, "%s cpu features: %s\n", PassMark, strings.Join(feats, " "))
	}

	// ---- workers ----------------------------------------------------------
	if cfg.Workers < 1 {
		res.fail(fmt.Sprintf("workers: %d is not a usable worker count", cfg.Workers))
		fmt.Fprintf(w, "%s workers: %d\n", FailMark, cfg.Workers)
	} else {
		fmt.Fprintf(w, "%s workers: %d (GOMAXPROCS %d)\n", PassMark, cfg.Workers, runtime.GOMAXPROCS(0))
	}

	// ---- checkpoints ------------------------------------------------------
	for _, path := range cfg.Checkpoints {
		if _, err := os.Stat(path); err != nil {
			res.fail(fmt.Sprintf("checkpoint %q: %v", path, err))
			fmt.Fprintf(w, "%s checkpoint %s: not found\n", FailMark, path)

			continue
		}

		if cfg.CheckCheckpoint == nil {
			fmt.Fprintf(w, "%s checkpoint: %s\n", PassMark, path)
			continue
		}

		desc, err := cfg.CheckCheckpoint(path)
		if err != nil {
			res.fail(fmt.Sprintf("checkpoint %q: %v", path, err))
			fmt.Fprintf(w, "%s checkpoint %s: %v\n", FailMark, path, err)

			continue
		}

		fmt.Fprintf(w, "%s checkpoint %s: %s\n", PassMark, path, desc)
	}

	return res
}

// DetectCPUFeatures reports the SIMD extensions relevant to the float32
// kernels on this machine.
func DetectCPUFeatures() []string {
	var feats []string

	add := func(ok bool, name string) {
		if ok {
			feats = append(feats, name)
		}
	}

	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE3, "sse3")
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasFPHP, "fphp")
		add(cpu.ARM64.HasSVE, "sve")
	}

	return feats
}
