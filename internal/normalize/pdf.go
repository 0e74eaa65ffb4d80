package normalize

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/teamindigo/ragline/internal/pipeline"
)

// CommandRunner executes an external command and returns its stdout. It is
// a seam so tests can avoid depending on a pdftotext install.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", name, err)
	}
	return out, nil
}

// pdfExtractor shells out to pdftotext, which handles layout reconstruction
// far better than any pure-Go reader.
type pdfExtractor struct {
	runner CommandRunner
}

// Extract implements the extractor interface.
func (p pdfExtractor) Extract(result pipeline.FetchResult) (string, error) {
	tmp, err := os.CreateTemp("", "ragline-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp pdf: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(result.Body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp pdf: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := p.runner.Run(ctx, "pdftotext", "-layout", tmp.Name(), "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}
