package rembg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	nhttp "github.com/chaos-io/whitebg/util/http"
)

// ServerRemBG talks to the HTTP API exposed by `rembg s`.
type ServerRemBG struct {
	endpoint string
	model    string
	timeout  time.Duration
	cli      nhttp.IClient
	logger   *zap.Logger
}

func NewServerRemBG(cli nhttp.IClient, endpoint, model string, timeout time.Duration, logger *zap.Logger) *ServerRemBG {
	return &ServerRemBG{
		endpoint: endpoint,
		model:    model,
		timeout:  timeout,
		cli:      cli,
		logger:   logger,
	}
}

/*
	curl -X POST "$BASE_URL/api/remove" \
	  -F "file=@my_image.png" \
	  -F "model=u2net" -o out.png
*/
func (s *ServerRemBG) Remove(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}

	removeURL, err := url.JoinPath(s.endpoint, "api", "remove")
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", uploadName(data))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if s.model != "" {
		_ = writer.WriteField("model", s.model)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var out []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: removeURL,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   &out,
		Timeout:    s.timeout,
	}
	if err := s.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("empty response from rembg server")
	}

	s.logger.Debug("background removed", zap.String("model", s.model), zap.Int("bytes", len(out)))
	return out, nil
}
