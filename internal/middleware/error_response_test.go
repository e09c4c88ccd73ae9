package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/brandpulse/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	apiErr := &model.APIError{
		Code:     "TEST_ERROR",
		Message:  "テストエラーです。",
		Category: "validation",
		Action:   "正しい値を入力してください。",
	}

	WriteErrorResponse(w, http.StatusBadRequest, apiErr)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	if body.Code != "TEST_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "TEST_ERROR")
	}
	if body.Message != "テストエラーです。" {
		t.Errorf("message = %q, want %q", body.Message, "テストエラーです。")
	}
	if body.Category != "validation" {
		t.Errorf("category = %q, want %q", body.Category, "validation")
	}
	if body.Action != "正しい値を入力してください。" {
		t.Errorf("action = %q, want %q", body.Action, "正しい値を入力してください。")
	}
}

// TestStatusForAPIError はエラーコードからHTTPステータスへのマッピングを検証する。
func TestStatusForAPIError(t *testing.T) {
	tests := []struct {
		apiErr *model.APIError
		want   int
	}{
		{model.NewJobNotFoundError("job-1"), http.StatusNotFound},
		{model.NewAPIKeyNotFoundError("key-1"), http.StatusNotFound},
		{model.NewInvalidSortError("bogus"), http.StatusBadRequest},
		{model.NewInvalidDateError("2026-13-99"), http.StatusBadRequest},
		{model.NewInvalidPeriodError("-1"), http.StatusBadRequest},
		{model.NewInvalidURLError("空のURL"), http.StatusBadRequest},
		{model.NewSSRFBlockedError(), http.StatusBadRequest},
		{model.NewJobNotCancellableError("job-1", model.JobStatusCompleted), http.StatusConflict},
		{model.NewBackendUnavailableError("timeout"), http.StatusBadGateway},
		{&model.APIError{Code: "UNKNOWN_CODE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.apiErr.Code, func(t *testing.T) {
			if got := StatusForAPIError(tt.apiErr); got != tt.want {
				t.Errorf("StatusForAPIError(%s) = %d, want %d", tt.apiErr.Code, got, tt.want)
			}
		})
	}
}

// TestWriteAPIError_APIError はAPIErrorが対応するステータスで書き込まれることを検証する。
func TestWriteAPIError_APIError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, fmt.Errorf("ジョブ取得に失敗: %w", model.NewJobNotFoundError("job-42")))

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeJobNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeJobNotFound)
	}
}

// TestWriteAPIError_PlainError はAPIErrorでないエラーが500に落ちることを検証する。
func TestWriteAPIError_PlainError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, fmt.Errorf("db connection lost"))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}
	if body.Message == "db connection lost" {
		t.Error("内部エラーの詳細をレスポンスに露出すべきではない")
	}
}

// TestInternalServerError_ReturnsSystemError は内部エラーが統一フォーマットで返ることを検証する。
func TestInternalServerError_ReturnsSystemError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
	if body.Category != "system" {
		t.Errorf("category = %q, want %q", body.Category, "system")
	}
	if body.Action == "" {
		t.Error("action should not be empty")
	}
}

// TestErrorResponseBody_AllFieldsPresent は全フィールドがJSONレスポンスに含まれることを検証する。
func TestErrorResponseBody_AllFieldsPresent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "CODE",
		Message:  "MSG",
		Category: "CAT",
		Action:   "ACT",
	})

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	requiredFields := []string{"code", "message", "category", "action"}
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
}
