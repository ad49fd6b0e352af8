package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelnyxValidateMobile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"valid":true,"carrier":{"name":"T-Mobile","type":"mobile"}}}`))
	}))
	defer srv.Close()

	c := NewTelnyxClient("test-key", 0, nil).WithBaseURL(srv.URL)
	v, err := c.Validate(context.Background(), "(555) 123-4567")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.True(t, v.IsMobile())
	assert.Equal(t, "T-Mobile", v.CarrierName)
}

func TestTelnyxValidateFailsOpenWithoutKey(t *testing.T) {
	c := NewTelnyxClient("", 0, nil)
	v, err := c.Validate(context.Background(), "5551234567")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "unknown", v.LineType)
	assert.False(t, v.IsMobile())
}

func TestTelnyxValidateFailsOpenOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewTelnyxClient("test-key", 0, nil).WithBaseURL(srv.URL)
	v, err := c.Validate(context.Background(), "5551234567")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "unknown", v.LineType)
}

func TestTelnyxValidateFailsOpenOnBadNumber(t *testing.T) {
	c := NewTelnyxClient("test-key", 0, nil)
	v, err := c.Validate(context.Background(), "12345")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "unknown", v.LineType)
}
