package rembg

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	nhttp "github.com/chaos-io/whitebg/util/http"
)

// imagePlaceholder is replaced by the uploaded file name in the workflow.
const imagePlaceholder = "{{input_image}}"

//go:embed workflow.json
var defaultWorkflow string

// BiRefNetRemBG runs a BiRefNet workflow on a ComfyUI server.
type BiRefNetRemBG struct {
	endpoint     string
	workflow     string
	timeout      time.Duration
	pollInterval time.Duration
	cli          nhttp.IClient
	logger       *zap.Logger
}

func NewBiRefNetRemBG(cli nhttp.IClient, endpoint, workflow string, timeout, pollInterval time.Duration, logger *zap.Logger) *BiRefNetRemBG {
	return &BiRefNetRemBG{
		endpoint:     endpoint,
		workflow:     workflow,
		timeout:      timeout,
		pollInterval: pollInterval,
		cli:          cli,
		logger:       logger,
	}
}

func (b *BiRefNetRemBG) Remove(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	uploaded, err := b.uploadImage(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	name := uploaded.Name
	if uploaded.Subfolder != "" {
		name = uploaded.Subfolder + "/" + name
	}

	promptID, err := b.prompt(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("queue prompt: %w", err)
	}

	output, err := b.waitOutput(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("wait prompt %s: %w", promptID, err)
	}

	img, err := b.view(ctx, output)
	if err != nil {
		return nil, fmt.Errorf("fetch output %s: %w", output.Filename, err)
	}

	return img, nil
}

type imageRef struct {
	Name      string `json:"name,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

/*
	curl -X POST "$BASE_URL/api/upload/image" \
	  -F "image=@my_image.png" \
	  -F "type=input" \
	  -F "overwrite=true"

{"name": "my_image1.png", "subfolder": "", "type": "input"}%
*/
func (b *BiRefNetRemBG) uploadImage(ctx context.Context, data []byte) (*imageRef, error) {
	uploadURL, err := url.JoinPath(b.endpoint, "api", "upload", "image")
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", uploadName(data))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}

	_ = writer.WriteField("type", "input")
	_ = writer.WriteField("overwrite", "true")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	resp := &imageRef{}
	reqParam := &nhttp.RequestParam{
		RequestURI: uploadURL,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if resp.Name == "" {
		return nil, errors.New("upload response carries no file name")
	}

	b.logger.Debug("image uploaded", zap.String("name", resp.Name), zap.String("subfolder", resp.Subfolder))
	return resp, nil
}

type promptResp struct {
	PromptID   string                 `json:"prompt_id"`
	Number     int                    `json:"number"`
	NodeErrors map[string]interface{} `json:"node_errors"`
}

/*
	curl -X POST "$BASE_URL/api/prompt" \
	  -H "Content-Type: application/json" \
	  -d '{"prompt": '"$(cat workflow.json)"'}'
*/
func (b *BiRefNetRemBG) prompt(ctx context.Context, imageName string) (string, error) {
	promptURL, err := url.JoinPath(b.endpoint, "api", "prompt")
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}

	name, err := json.Marshal(imageName)
	if err != nil {
		return "", fmt.Errorf("marshal image name: %w", err)
	}
	// name is a quoted JSON string; the placeholder sits inside quotes too.
	workflow := strings.ReplaceAll(b.workflow, `"`+imagePlaceholder+`"`, string(name))

	wk := map[string]any{}
	if err := json.Unmarshal([]byte(workflow), &wk); err != nil {
		return "", fmt.Errorf("unmarshal workflow data: %w", err)
	}

	resp := &promptResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: promptURL,
		Method:     http.MethodPost,
		Body:       map[string]any{"prompt": wk, "client_id": ksuid.New().String()},
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	if len(resp.NodeErrors) > 0 {
		return "", fmt.Errorf("workflow rejected: %v", resp.NodeErrors)
	}
	if resp.PromptID == "" {
		return "", errors.New("prompt response carries no prompt_id")
	}

	b.logger.Debug("prompt queued", zap.String("prompt_id", resp.PromptID), zap.Int("number", resp.Number))
	return resp.PromptID, nil
}

type historyEntry struct {
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []imageRef `json:"images"`
	} `json:"outputs"`
}

// firstImage returns the first image of the lowest-numbered output node.
func (e *historyEntry) firstImage() *imageRef {
	ids := make([]string, 0, len(e.Outputs))
	for id := range e.Outputs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		if images := e.Outputs[id].Images; len(images) > 0 {
			return &images[0]
		}
	}
	return nil
}

// waitOutput polls the prompt history until the job has finished and returns
// its first output image.
func (b *BiRefNetRemBG) waitOutput(ctx context.Context, promptID string) (*imageRef, error) {
	historyURL, err := url.JoinPath(b.endpoint, "api", "history", promptID)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		history := map[string]historyEntry{}
		reqParam := &nhttp.RequestParam{
			RequestURI: historyURL,
			Method:     http.MethodGet,
			Response:   &history,
		}
		if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}

		if entry, ok := history[promptID]; ok {
			if entry.Status.StatusStr == "error" {
				return nil, errors.New("workflow execution failed")
			}
			if img := entry.firstImage(); img != nil {
				return img, nil
			}
			if entry.Status.Completed {
				return nil, errors.New("workflow produced no image")
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *BiRefNetRemBG) view(ctx context.Context, ref *imageRef) ([]byte, error) {
	viewURL, err := url.JoinPath(b.endpoint, "api", "view")
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}
	query := url.Values{}
	query.Set("filename", ref.Filename)
	query.Set("subfolder", ref.Subfolder)
	query.Set("type", ref.Type)

	var out []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: viewURL + "?" + query.Encode(),
		Method:     http.MethodGet,
		Response:   &out,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("empty output image")
	}

	return out, nil
}
