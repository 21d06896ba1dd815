package validation

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type point struct {
	Latitude  *float64 `json:"latitude" validate:"required,lat"`
	Longitude *float64 `json:"longitude" validate:"required,lng"`
}

type payload struct {
	Name     string `json:"requester_name" validate:"required,max=10"`
	Level    string `json:"criticality" validate:"omitempty,oneof=HIGH MEDIUM LOW"`
	Location *point `json:"location" validate:"required"`
}

func f(v float64) *float64 { return &v }

func TestStruct_Valid(t *testing.T) {
	v := New()
	p := payload{Name: "Asha", Location: &point{Latitude: f(0), Longitude: f(0)}}
	if err := v.Struct(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStruct_Messages(t *testing.T) {
	v := New()
	tests := []struct {
		name string
		in   payload
		want string
	}{
		{"missing name", payload{Location: &point{Latitude: f(1), Longitude: f(1)}}, "requester_name is required"},
		{"missing location", payload{Name: "a"}, "location is required"},
		{"missing latitude", payload{Name: "a", Location: &point{Longitude: f(1)}}, "location.latitude is required"},
		{"latitude range", payload{Name: "a", Location: &point{Latitude: f(91), Longitude: f(1)}}, "location.latitude must be between -90 and 90"},
		{"longitude range", payload{Name: "a", Location: &point{Latitude: f(1), Longitude: f(-181)}}, "location.longitude must be between -180 and 180"},
		{"bad criticality", payload{Name: "a", Level: "URGENT", Location: &point{Latitude: f(1), Longitude: f(1)}}, "criticality must be one of [HIGH MEDIUM LOW]"},
		{"name too long", payload{Name: "abcdefghijk", Location: &point{Latitude: f(1), Longitude: f(1)}}, "requester_name must be at most 10 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.in)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidate_ReturnsBadRequest(t *testing.T) {
	err := New().Validate(payload{})
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", he.Code)
	}
}
