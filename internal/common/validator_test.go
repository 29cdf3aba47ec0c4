package common

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type sample struct {
	Status string   `validate:"required,oneof=good broken"`
	Pair   []string `validate:"omitempty,len=2"`
}

func TestGenericEchoValidator(t *testing.T) {
	tests := []struct {
		name    string
		input   sample
		wantErr string
	}{
		{"valid", sample{Status: "good"}, ""},
		{"valid pair", sample{Status: "broken", Pair: []string{"a", "b"}}, ""},
		{"missing", sample{}, "Status is required"},
		{"not in set", sample{Status: "meh"}, "Status must be one of [good broken]"},
		{"wrong length", sample{Status: "good", Pair: []string{"a"}}, "Pair must have length 2"},
	}

	v := &GenericEchoValidator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var httpErr *echo.HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
			}
			if httpErr.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", httpErr.Code)
			}
			if msg, _ := httpErr.Message.(string); !strings.Contains(msg, tt.wantErr) {
				t.Errorf("expected message containing %q, got %q", tt.wantErr, msg)
			}
		})
	}
}
