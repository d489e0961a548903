package binder_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cutsync/pkg/binder"
)

type changePlanRequest struct {
	PriceID string `json:"price_id"`
}

func jsonRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	return r
}

func TestJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     *http.Request
		opts    []binder.JSONOption
		want    string
		wantErr error
	}{
		{
			name: "decodes and trims",
			req:  jsonRequest(`{"price_id":"  price_b "}`),
			want: "price_b",
		},
		{
			name:    "unknown field rejected",
			req:     jsonRequest(`{"price_id":"price_b","plan":"x"}`),
			wantErr: binder.ErrFailedToParseJSON,
		},
		{
			name: "unknown field allowed",
			req:  jsonRequest(`{"price_id":"price_b","plan":"x"}`),
			opts: []binder.JSONOption{binder.WithUnknownFields()},
			want: "price_b",
		},
		{
			name:    "trailing data",
			req:     jsonRequest(`{"price_id":"a"}{"price_id":"b"}`),
			wantErr: binder.ErrFailedToParseJSON,
		},
		{
			name:    "malformed",
			req:     jsonRequest(`{"price_id":`),
			wantErr: binder.ErrFailedToParseJSON,
		},
		{
			name:    "too large",
			req:     jsonRequest(`{"price_id":"` + strings.Repeat("x", 64) + `"}`),
			opts:    []binder.JSONOption{binder.WithMaxSize(16)},
			wantErr: binder.ErrRequestTooLarge,
		},
		{
			name: "wrong media type",
			req: func() *http.Request {
				r := jsonRequest(`{}`)
				r.Header.Set("Content-Type", "text/plain")
				return r
			}(),
			wantErr: binder.ErrUnsupportedMediaType,
		},
		{
			name: "missing content type",
			req: func() *http.Request {
				r := jsonRequest(`{}`)
				r.Header.Del("Content-Type")
				return r
			}(),
			wantErr: binder.ErrMissingContentType,
		},
		{
			name:    "empty body",
			req:     httptest.NewRequest(http.MethodPost, "/", nil),
			wantErr: binder.ErrFailedToParseJSON,
		},
		{
			name:    "empty body skipped",
			req:     httptest.NewRequest(http.MethodPost, "/", nil),
			opts:    []binder.JSONOption{binder.WithEmptyBody()},
			wantErr: binder.ErrBinderNotApplicable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got changePlanRequest
			err := binder.JSON(tt.opts...)(tt.req, &got)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.PriceID)
		})
	}
}
