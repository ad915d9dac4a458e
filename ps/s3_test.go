package ps

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"
)

func TestMapS3Error(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"NoSuchKey", ErrNotFound},
		{"NotFound", ErrNotFound},
		{"NoSuchBucket", ErrNotFound},
		{"PreconditionFailed", ErrConflict},
		{"ConditionalRequestConflict", ErrConflict},
	}

	for _, tc := range cases {
		err := mapS3Error("put", "users/1.json", &smithy.GenericAPIError{Code: tc.code, Message: "x"})
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.code, tc.want, err)
		}
	}

	other := &smithy.GenericAPIError{Code: "AccessDenied"}
	err := mapS3Error("get", "users/1.json", other)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		t.Errorf("AccessDenied must not map to a sentinel, got %v", err)
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		t.Error("Expected the original API error to stay reachable")
	}
}

func TestS3Key(t *testing.T) {
	s := NewS3StoreWithClient(nil, "bucket", "/gitdb/", nil)
	if got := s.key("users/1.json"); got != "gitdb/users/1.json" {
		t.Errorf("Unexpected key %s", got)
	}
	if got := s.key(""); got != "gitdb" {
		t.Errorf("Unexpected root key %s", got)
	}

	bare := NewS3StoreWithClient(nil, "bucket", "", nil)
	if got := bare.key("users/1.json"); got != "users/1.json" {
		t.Errorf("Unexpected key %s", got)
	}
}

func TestContentType(t *testing.T) {
	if contentType("users/1.json") != "application/json" {
		t.Error("Expected json content type")
	}
	if contentType("README.md") != "text/markdown" {
		t.Error("Expected markdown content type")
	}
	if contentType("users/.gitkeep") != "application/octet-stream" {
		t.Error("Expected binary content type")
	}
}
