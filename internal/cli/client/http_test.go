package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReader_ReportsProgress(t *testing.T) {
	data := []byte("hello world this is test data")
	reader := bytes.NewReader(data)

	var progressCalls []struct{ current, total int64 }
	pr := &progressReader{
		reader: reader,
		total:  int64(len(data)),
		onProgress: func(current, total int64) {
			progressCalls = append(progressCalls, struct{ current, total int64 }{current, total})
		},
	}

	result, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, data, result)

	// Progress should have been called at least once
	assert.NotEmpty(t, progressCalls)

	// Final progress should equal total
	lastCall := progressCalls[len(progressCalls)-1]
	assert.Equal(t, int64(len(data)), lastCall.current)
	assert.Equal(t, int64(len(data)), lastCall.total)
}

func TestProgressReader_NilCallback(t *testing.T) {
	data := []byte("hello world")
	reader := bytes.NewReader(data)

	pr := &progressReader{
		reader:     reader,
		total:      int64(len(data)),
		onProgress: nil, // No callback
	}

	result, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, data, result)
}

func TestProgressReader_SmallReads(t *testing.T) {
	data := []byte("hello world")
	reader := bytes.NewReader(data)

	var progressValues []int64
	pr := &progressReader{
		reader: reader,
		total:  int64(len(data)),
		onProgress: func(current, total int64) {
			progressValues = append(progressValues, current)
		},
	}

	// Read one byte at a time
	buf := make([]byte, 1)
	for {
		n, err := pr.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	// Progress should increase monotonically
	for i := 1; i < len(progressValues); i++ {
		assert.GreaterOrEqual(t, progressValues[i], progressValues[i-1])
	}
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestAsk_SendsMultipartUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		body, _ := io.ReadAll(file)

		assert.Equal(t, "contract.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.4 test", string(body))
		assert.Equal(t, "What is the notice period?", r.FormValue("question"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"generated_answer": "Thirty days."})
	}))
	defer srv.Close()

	path := writeDoc(t, "contract.pdf", "%PDF-1.4 test")
	client := NewAPIClientWithConfig(testToken, srv.URL+"/")

	var lastCurrent, lastTotal int64
	answer, err := client.Ask(context.Background(), path, "What is the notice period?", func(current, total int64) {
		lastCurrent, lastTotal = current, total
	})
	require.NoError(t, err)
	assert.Equal(t, "Thirty days.", answer)
	assert.Positive(t, lastTotal)
	assert.Equal(t, lastTotal, lastCurrent)
}

func TestAsk_PipelineErrorIsParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"no text could be extracted","stage":"extracting","kind":"EXTRACTION_FAILED"}`))
	}))
	defer srv.Close()

	path := writeDoc(t, "scan.png", "not really a png")
	_, err := NewAPIClientWithConfig(testToken, srv.URL).Ask(context.Background(), path, "anything?", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "no text could be extracted", apiErr.Message)
	assert.Equal(t, "extracting", apiErr.Stage)
	assert.Equal(t, "EXTRACTION_FAILED", apiErr.Kind)
	assert.Contains(t, err.Error(), "during extracting")
}

func TestAsk_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	path := writeDoc(t, "memo.mp3", "ID3")
	_, err := NewAPIClientWithConfig(testToken, srv.URL).Ask(context.Background(), path, "q", nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestAsk_MissingFile(t *testing.T) {
	client := NewAPIClientWithConfig(testToken, "http://127.0.0.1:0")
	_, err := client.Ask(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open file")
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"subject":"tok_0123456789ab","role":"lawyer"}}`))
	}))
	defer srv.Close()

	me, err := NewAPIClientWithConfig(testToken, srv.URL).Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok_0123456789ab", me.Subject)
	assert.Equal(t, "lawyer", me.Role)
}

func TestMe_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid or missing API token"}`))
	}))
	defer srv.Close()

	_, err := NewAPIClientWithConfig("bad", srv.URL).Me(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid or missing API token", apiErr.Message)
	assert.Empty(t, apiErr.Stage)
}

func TestNewAPIClientWithCmd_RequiresToken(t *testing.T) {
	useTempConfig(t)

	_, err := NewAPIClientWithCmd(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), envAPIToken)
}

func TestNewAPIClientWithCmd_UsesEnv(t *testing.T) {
	useTempConfig(t)
	t.Setenv(envAPIToken, testToken)
	t.Setenv(envAPIURL, "http://docs.internal:9000/")

	client, err := NewAPIClientWithCmd(nil)
	require.NoError(t, err)
	assert.Equal(t, testToken, client.apiToken)
	assert.Equal(t, "http://docs.internal:9000", client.baseURL)
}

func TestWriteAnswer(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, writeAnswer(out, "Thirty days.", false))
	assert.Equal(t, "Thirty days.\n", out.String())

	out.Reset()
	require.NoError(t, writeAnswer(out, "Thirty days.", true))
	var data map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &data))
	assert.Equal(t, "Thirty days.", data["generated_answer"])
}
