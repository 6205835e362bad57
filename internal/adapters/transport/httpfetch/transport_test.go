package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/olivierlemasle/cloud-init/internal/errors"
)

func TestFetch(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/meta-data", r.URL.Path)
			w.Write([]byte("instance-id: i-1\n"))
		}))
		defer srv.Close()

		body, err := New().Fetch(context.Background(), srv.URL+"/meta-data", 0)
		require.NoError(t, err)
		assert.Equal(t, "instance-id: i-1\n", string(body))
	})

	t.Run("non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer srv.Close()

		_, err := New().Fetch(context.Background(), srv.URL, 0)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeFetchError, apperrors.GetCode(err))
	})

	t.Run("timeout classified", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		_, err := New().Fetch(context.Background(), srv.URL, 20*time.Millisecond)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeFetchTimeout, apperrors.GetCode(err))
	})

	t.Run("unreachable host", func(t *testing.T) {
		_, err := New().Fetch(context.Background(), "http://127.0.0.1:1/meta-data", 0)
		require.Error(t, err)
	})
}
