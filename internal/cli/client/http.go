package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type APIClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// NewAPIClientWithCmd resolves credentials from the api-token and api-url
// flags, the environment and the global config, in that order.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	_ = godotenv.Load()

	var flagToken, flagURL string
	if cmd != nil {
		flagToken, _ = cmd.Flags().GetString("api-token")
		flagURL, _ = cmd.Flags().GetString("api-url")
	}

	creds, err := ResolveCredentials(flagToken, flagURL)
	if err != nil {
		return nil, err
	}
	if creds.Token == "" {
		return nil, fmt.Errorf("%s not set (run 'docuhub auth login' or set environment variable)", envAPIToken)
	}

	return NewAPIClientWithConfig(creds.Token, creds.URL), nil
}

// NewAPIClientWithConfig creates an APIClient with explicit settings.
// Generation can take a while, so the timeout is generous.
func NewAPIClientWithConfig(apiToken, baseURL string) *APIClient {
	return &APIClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Stage      string
	Kind       string
}

func (e *APIError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("API error (%d) during %s: %s", e.StatusCode, e.Stage, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

type errorBody struct {
	Detail string `json:"detail"`
	Stage  string `json:"stage"`
	Kind   string `json:"kind"`
}

// MeResponse is the identity the server resolved for the token.
type MeResponse struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

type answerBody struct {
	GeneratedAnswer string `json:"generated_answer"`
}

// ProgressFunc is a callback for reporting upload progress.
type ProgressFunc func(current, total int64)

// progressReader wraps an io.Reader and reports progress.
type progressReader struct {
	reader     io.Reader
	total      int64
	current    int64
	onProgress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	if pr.onProgress != nil {
		pr.onProgress(pr.current, pr.total)
	}
	return n, err
}

// Ask uploads a document with a question and returns the generated answer.
func (c *APIClient) Ask(ctx context.Context, filePath, question string, onProgress ProgressFunc) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("question", question); err != nil {
		return "", err
	}
	part, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	total := int64(body.Len())
	reader := &progressReader{reader: &body, total: total, onProgress: onProgress}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", reader)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.ContentLength = total

	var out answerBody
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.GeneratedAnswer, nil
}

// Me returns the principal bound to the client's token.
func (c *APIClient) Me(ctx context.Context) (*MeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var envelope struct {
		Data MeResponse `json:"data"`
	}
	if err := c.do(req, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

func (c *APIClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Detail != "" {
			apiErr.Message = eb.Detail
			apiErr.Stage = eb.Stage
			apiErr.Kind = eb.Kind
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
