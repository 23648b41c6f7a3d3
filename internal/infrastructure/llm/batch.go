package llm

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"

	"CaseCurator/internal/config"
	"CaseCurator/internal/domain"
	"CaseCurator/internal/ports"
)

// BatchClient implements ports.BatchClient over the /files and /batches endpoints.
type BatchClient struct {
	client
}

var _ ports.BatchClient = (*BatchClient)(nil)

// NewBatchClient builds a client from configuration.
func NewBatchClient(cfg config.CompletionConfig) *BatchClient {
	return &BatchClient{client: newClient(cfg)}
}

type fileObject struct {
	ID string `json:"id"`
}

// UploadFile stores a JSONL input file with purpose "batch".
func (c *BatchClient) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("purpose", "batch"); err != nil {
		return "", fmt.Errorf("write purpose: %w", err)
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	raw, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}

	var obj fileObject
	if err := jsonDecode(raw, &obj); err != nil || obj.ID == "" {
		return "", fmt.Errorf("%w: upload returned no file id", ErrMalformedResponse)
	}
	return obj.ID, nil
}

type batchObject struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	OutputFileID  string `json:"output_file_id"`
	ErrorFileID   string `json:"error_file_id"`
	RequestCounts struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"request_counts"`
	Errors *struct {
		Data []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"data"`
	} `json:"errors"`
}

func (b batchObject) status() ports.BatchStatus {
	st := ports.BatchStatus{
		ID:           b.ID,
		Status:       b.Status,
		OutputFileID: b.OutputFileID,
		ErrorFileID:  b.ErrorFileID,
		Counts: domain.JobCounts{
			Total:     b.RequestCounts.Total,
			Completed: b.RequestCounts.Completed,
			Failed:    b.RequestCounts.Failed,
		},
	}
	if b.Errors != nil {
		for _, e := range b.Errors.Data {
			st.Errors = append(st.Errors, fmt.Sprintf("%s: %s", e.Code, e.Message))
		}
	}
	return st
}

// CreateBatch starts a batch over an uploaded input file.
func (c *BatchClient) CreateBatch(ctx context.Context, inputFileID, endpoint, window string, metadata map[string]string) (ports.BatchStatus, error) {
	if err := c.ready(); err != nil {
		return ports.BatchStatus{}, err
	}
	payload := map[string]any{
		"input_file_id":     inputFileID,
		"endpoint":          endpoint,
		"completion_window": window,
	}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}
	var obj batchObject
	if err := c.doJSON(ctx, http.MethodPost, "/batches", payload, &obj); err != nil {
		return ports.BatchStatus{}, fmt.Errorf("create batch: %w", err)
	}
	if obj.ID == "" {
		return ports.BatchStatus{}, fmt.Errorf("%w: batch without id", ErrMalformedResponse)
	}
	return obj.status(), nil
}

// GetBatch fetches the current status of a batch.
func (c *BatchClient) GetBatch(ctx context.Context, batchID string) (ports.BatchStatus, error) {
	if err := c.ready(); err != nil {
		return ports.BatchStatus{}, err
	}
	var obj batchObject
	if err := c.doJSON(ctx, http.MethodGet, "/batches/"+url.PathEscape(batchID), nil, &obj); err != nil {
		return ports.BatchStatus{}, fmt.Errorf("get batch %s: %w", batchID, err)
	}
	return obj.status(), nil
}

// FileContent downloads a file's raw bytes.
func (c *BatchClient) FileContent(ctx context.Context, fileID string) ([]byte, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID)+"/content", nil)
	if err != nil {
		return nil, err
	}
	raw, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("file content %s: %w", fileID, err)
	}
	return raw, nil
}
