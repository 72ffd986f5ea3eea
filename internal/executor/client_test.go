package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"factorlab/internal/domain"
	"factorlab/internal/util"
)

var testPrices = []domain.PricePoint{
	{Date: "2024-06-13", Close: 100},
	{Date: "2024-06-14", Close: 101},
}

func TestExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" {
			t.Errorf("path = %s, want /execute", r.URL.Path)
		}
		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Code != "df['factor'] = df['close']" {
			t.Errorf("code = %q", req.Code)
		}
		if len(req.Data.PriceData) != 2 || req.Data.Formula != "close" {
			t.Errorf("data = %+v", req.Data)
		}
		json.NewEncoder(w).Encode(executeResponse{
			Status: "success",
			Factor: []float64{0.5, -0.5},
			Stdout: "ok",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, util.NewLogger("error"))
	factor, err := c.Execute(context.Background(), "df['factor'] = df['close']", testPrices, "close")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(factor) != 2 || factor[0] != 0.5 || factor[1] != -0.5 {
		t.Errorf("factor = %v", factor)
	}
}

func TestExecuteSandboxError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(executeResponse{
			Status: "error",
			Error:  "NameError: name 'talib' is not defined",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, util.NewLogger("error"))
	_, err := c.Execute(context.Background(), "bad", testPrices, "f")

	var evalErr *domain.FactorEvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("err = %v, want FactorEvaluationError", err)
	}
	if evalErr.Reason != "NameError: name 'talib' is not defined" {
		t.Errorf("reason = %q, sandbox text must be preserved verbatim", evalErr.Reason)
	}
}

func TestExecuteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, util.NewLogger("error"))
	_, err := c.Execute(context.Background(), "code", testPrices, "f")

	var extErr *domain.ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("err = %v, want ExternalServiceError", err)
	}
	if extErr.Service != "executor" {
		t.Errorf("service = %q", extErr.Service)
	}
}

func TestExecuteUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second, util.NewLogger("error"))
	_, err := c.Execute(context.Background(), "code", testPrices, "f")

	var extErr *domain.ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("err = %v, want ExternalServiceError", err)
	}
}
