package rembg

import (
	"context"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/chaos-io/whitebg/config"
	nhttp "github.com/chaos-io/whitebg/util/http"
)

// Remover takes encoded image bytes and returns encoded image bytes in which
// the background pixels are transparent.
type Remover interface {
	Remove(ctx context.Context, data []byte) ([]byte, error)
}

// RemoverFunc adapts a plain function to Remover.
type RemoverFunc func(ctx context.Context, data []byte) ([]byte, error)

func (f RemoverFunc) Remove(ctx context.Context, data []byte) ([]byte, error) {
	return f(ctx, data)
}

// New returns the remover selected by conf.Backend.
func New(conf *config.Config, logger *zap.Logger) (Remover, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	// The client-wide deadline is disabled; each backend bounds its own calls
	// with conf.Timeout.
	cli := nhttp.NewHTTPClient(nhttp.WithTimeout(0))

	switch conf.Backend {
	case config.BackendComfyUI:
		workflow := defaultWorkflow
		if conf.WorkflowPath != "" {
			data, err := os.ReadFile(conf.WorkflowPath)
			if err != nil {
				return nil, fmt.Errorf("read workflow: %w", err)
			}
			workflow = string(data)
		}
		return NewBiRefNetRemBG(cli, conf.Endpoint, workflow, conf.Timeout, conf.PollInterval, logger), nil
	default:
		return NewServerRemBG(cli, conf.Endpoint, conf.Model, conf.Timeout, logger), nil
	}
}

// uploadName builds a unique file name whose extension matches the content.
func uploadName(data []byte) string {
	return "whitebg_" + ksuid.New().String() + mimetype.Detect(data).Extension()
}
