package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

const (
	// FileField is the multipart field carrying the archive bytes.
	FileField = "file"

	// ProjectField is the multipart field carrying the project name.
	ProjectField = "project_name"
)

// DeployResponse is the server's answer to an upload.
type DeployResponse struct {
	Success    bool   `json:"success"`
	DeployPath string `json:"deploy_path,omitempty"`
	Message    string `json:"message,omitempty"`

	StatusCode int    `json:"-"`
	RequestID  string `json:"-"`
}

// deployBody distinguishes a missing "success" key from false.
type deployBody struct {
	Success    *bool  `json:"success"`
	DeployPath string `json:"deploy_path"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

// Upload streams the archive at path to POST /deploy as projectName.
//
// A nil error means the server gave a definitive answer; check
// DeployResponse.Success. Errors are one of:
//   - *LocalError: the file could not be opened or read
//   - *TransportError: the attempt may succeed if repeated
//   - the context's error, when ctx was cancelled
func (c *Client) Upload(ctx context.Context, path, projectName string) (*DeployResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &LocalError{Op: "open", Path: path, Err: err}
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, &LocalError{Op: "stat", Path: path, Err: err}
	}
	filename := filepath.Base(path)

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	writeDone := make(chan error, 1)

	go func() {
		defer file.Close()
		err := c.writeForm(form, &archiveReader{r: file, path: path}, filename, projectName, info.Size())
		pw.CloseWithError(err)
		writeDone <- err
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/deploy", pr)
	if err != nil {
		pr.CloseWithError(err)
		<-writeDone
		return nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set(RequestIDHeader, requestID)

	c.logger.Debug("Sending upload request", "url", req.URL.String(), "file", filename, "project", projectName, "request_id", requestID)

	start := time.Now()
	resp, doErr := c.httpClient.Do(req)

	var body []byte
	var readErr error
	if doErr == nil {
		body, readErr = io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
		resp.Body.Close()
	}

	// The server may answer before consuming the whole body; unblock the writer
	pr.CloseWithError(errUploadFinished)
	writeErr := <-writeDone

	var localErr *LocalError
	if errors.As(writeErr, &localErr) {
		return nil, localErr
	}

	if doErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Err: doErr}
	}
	if readErr != nil {
		return nil, &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", readErr)}
	}

	c.logger.Debug("Upload response received", "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds(), "request_id", requestID)

	return parseDeployResponse(resp.StatusCode, body, requestID)
}

var errUploadFinished = errors.New("upload finished")

// parseDeployResponse classifies a deploy response.
//
// 2xx with a JSON body is definitive. 4xx with a structured body carrying a
// "success" key is a definitive rejection. Anything else is retryable.
func parseDeployResponse(status int, body []byte, requestID string) (*DeployResponse, error) {
	var parsed deployBody
	jsonErr := json.Unmarshal(body, &parsed)

	message := parsed.Message
	if message == "" {
		message = parsed.Error
	}
	result := &DeployResponse{
		DeployPath: parsed.DeployPath,
		Message:    message,
		StatusCode: status,
		RequestID:  requestID,
	}

	switch {
	case status >= 200 && status < 300:
		if jsonErr != nil {
			return nil, &TransportError{Status: status, Err: fmt.Errorf("decode response: %w", jsonErr)}
		}
		result.Success = parsed.Success != nil && *parsed.Success
		return result, nil

	case status >= 400 && status < 500 && jsonErr == nil && parsed.Success != nil:
		result.Success = false
		return result, nil

	default:
		return nil, &TransportError{Status: status, Err: APIError{Status: status, Message: extractMessage(body)}}
	}
}

func (c *Client) writeForm(form *multipart.Writer, src io.Reader, filename, projectName string, size int64) error {
	if err := form.WriteField(ProjectField, projectName); err != nil {
		return err
	}

	part, err := form.CreateFormFile(FileField, filename)
	if err != nil {
		return err
	}

	var dst io.Writer = part
	if c.progress != nil {
		bar := progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(c.progress),
			progressbar.OptionSetDescription(filename),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer func() { _ = bar.Finish() }()
		dst = io.MultiWriter(part, bar)
	}

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return form.Close()
}

// archiveReader tags read failures as local so they are not mistaken for
// network errors on the pipe.
type archiveReader struct {
	r    io.Reader
	path string
}

func (a *archiveReader) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if err != nil && err != io.EOF {
		err = &LocalError{Op: "read", Path: a.path, Err: err}
	}
	return n, err
}
