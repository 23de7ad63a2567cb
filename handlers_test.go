package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/gin-gonic/gin"
)

func TestRespondError_WrappedValidationKeepsFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/bills", nil)

	err := fmt.Errorf("create bill: %w",
		utils.NewFieldValidationError("invalid bill", map[string]string{"items": "min"}))
	respondError(c, err)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("malformed body: %v", err)
	}
	if body["kind"] != "ValidationError" {
		t.Fatalf("expected ValidationError kind, got %v", body["kind"])
	}
	fields, ok := body["fields"].(map[string]interface{})
	if !ok || fields["items"] != "min" {
		t.Fatalf("field detail lost through wrapping: %v", body["fields"])
	}
}

func TestRespondError_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
	}{
		{utils.NewValidationError("bad"), http.StatusBadRequest},
		{utils.NewInvalidStateError("bill", "Void", ""), http.StatusUnprocessableEntity},
		{utils.NewForbiddenError("no"), http.StatusForbidden},
		{utils.NewConflictError("race"), http.StatusConflict},
		{utils.NewNotFoundError("bill", "b1"), http.StatusNotFound},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/bills", nil)
		respondError(c, tc.err)
		if w.Code != tc.status {
			t.Fatalf("%T: expected %d, got %d", tc.err, tc.status, w.Code)
		}
	}
}
