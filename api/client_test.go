package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snag21205/unimerch/core"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

// TestBuildPath verifies parameter substitution and escaping
func TestBuildPath(t *testing.T) {
	tests := []struct {
		name     string
		template string
		params   map[string]string
		want     string
		wantErr  bool
	}{
		{"no params", "/api/cart", nil, "/api/cart", false},
		{"single param", "/api/products/:productId", map[string]string{"productId": "42"}, "/api/products/42", false},
		{"nested param", "/api/reviews/products/:productId/me", map[string]string{"productId": "7"}, "/api/reviews/products/7/me", false},
		{"escaped value", "/api/orders/:orderId", map[string]string{"orderId": "a/b"}, "/api/orders/a%2Fb", false},
		{"missing param", "/api/orders/:orderId", nil, "", true},
		{"empty param", "/api/orders/:orderId", map[string]string{"orderId": ""}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildPath(tt.template, tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL}), srv
}

// TestErrorMapping verifies every status class maps to its taxonomy error
func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"401 session expired", http.StatusUnauthorized, `{"success":false}`, func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, core.ErrSessionExpired))
		}},
		{"403 forbidden", http.StatusForbidden, `{"success":false}`, func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, core.ErrForbidden))
		}},
		{"404 not found", http.StatusNotFound, `{"success":false}`, func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, core.ErrNotFound))
		}},
		{"400 carries messages", http.StatusBadRequest, `{"success":false,"message":"validation failed","errors":["quantity must be positive"]}`, func(t *testing.T, err error) {
			var ve *core.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, []string{"quantity must be positive"}, ve.Messages)
		}},
		{"422 also validation", http.StatusUnprocessableEntity, `{"success":false,"message":"bad size"}`, func(t *testing.T, err error) {
			var ve *core.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, []string{"bad size"}, ve.Messages)
		}},
		{"500 server unavailable", http.StatusInternalServerError, `{"success":false}`, func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, core.ErrServerUnavailable))
		}},
		{"503 server unavailable", http.StatusServiceUnavailable, `oops`, func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, core.ErrServerUnavailable))
		}},
		{"418 unknown keeps status", http.StatusTeapot, `{}`, func(t *testing.T, err error) {
			var ue *core.UnknownAPIError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, http.StatusTeapot, ue.Status)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Do(context.Background(), Request{Endpoint: EndpointCart})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

// TestSessionExpiredHook verifies the global 401 side effect fires while the
// call itself still fails
func TestSessionExpiredHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	expired := 0
	client := New(Options{
		BaseURL:          srv.URL,
		OnSessionExpired: func() { expired++ },
	})

	_, err := client.Do(context.Background(), Request{Endpoint: EndpointCart, RequireAuth: true})
	assert.True(t, errors.Is(err, core.ErrSessionExpired))
	assert.Equal(t, 1, expired)
}

// TestAuthHeader verifies the bearer token is sent only when required and
// present
func TestAuthHeader(t *testing.T) {
	var gotAuth string
	handler := func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"success":true}`))
	}

	t.Run("attached when required", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(handler))
		defer srv.Close()
		client := New(Options{BaseURL: srv.URL, Tokens: staticToken("tok123")})
		_, err := client.Do(context.Background(), Request{Endpoint: EndpointCart, RequireAuth: true})
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok123", gotAuth)
	})

	t.Run("omitted when not required", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(handler))
		defer srv.Close()
		client := New(Options{BaseURL: srv.URL, Tokens: staticToken("tok123")})
		_, err := client.Do(context.Background(), Request{Endpoint: EndpointProducts})
		require.NoError(t, err)
		assert.Equal(t, "", gotAuth)
	})

	t.Run("omitted when token empty", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(handler))
		defer srv.Close()
		client := New(Options{BaseURL: srv.URL, Tokens: staticToken("")})
		_, err := client.Do(context.Background(), Request{Endpoint: EndpointCart, RequireAuth: true})
		require.NoError(t, err)
		assert.Equal(t, "", gotAuth)
	})
}

// TestDoInto verifies envelope decoding and the malformed-body path
func TestDoInto(t *testing.T) {
	t.Run("decodes data", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"id": 42, "name": "UEH Hoodie"},
			})
		})
		var out struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		}
		err := client.DoInto(context.Background(), Request{Endpoint: EndpointProducts}, &out)
		require.NoError(t, err)
		assert.Equal(t, int64(42), out.ID)
		assert.Equal(t, "UEH Hoodie", out.Name)
	})

	t.Run("nil out skips decoding", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":true}`))
		})
		err := client.DoInto(context.Background(), Request{Endpoint: EndpointProducts}, nil)
		assert.NoError(t, err)
	})

	t.Run("garbage 200 body is malformed", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>proxy error</html>`))
		})
		_, err := client.Do(context.Background(), Request{Endpoint: EndpointProducts})
		assert.True(t, errors.Is(err, core.ErrMalformedResponse))
	})
}

// TestRequestShape verifies method, path, query and body reach the wire
func TestRequestShape(t *testing.T) {
	var got struct {
		method, path, query, contentType string
		body                             map[string]interface{}
	}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	q := url.Values{}
	q.Set("search", "hoodie")
	_, err := client.Do(context.Background(), Request{Endpoint: EndpointProducts, Query: q})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/api/products", got.path)
	assert.Equal(t, "search=hoodie", got.query)

	_, err = client.Do(context.Background(), Request{
		Endpoint:   EndpointCartUpdateItem,
		PathParams: map[string]string{"itemId": "9"},
		Body:       map[string]int{"quantity": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/api/cart/items/9", got.path)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, float64(3), got.body["quantity"])
}
