package directory_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/directory"
)

func TestLookup(t *testing.T) {
	t.Run("Batch", func(t *testing.T) {
		var gotIDs string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/profiles", r.URL.Path)
			gotIDs = r.URL.Query().Get("ids")
			assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
			json.NewEncoder(w).Encode(map[string]any{
				"profiles": []map[string]any{
					{"id": "u1", "name": "Ada", "kind": "user", "online": true},
					{"id": "b1", "name": "Acme Support", "kind": "business",
						"business_hours": map[string]string{"opens_at": "09:00", "closes_at": "17:00"}},
				},
			})
		}))
		defer srv.Close()

		client := directory.New(srv.URL, time.Second, zerolog.Nop())
		profiles, err := client.Lookup(context.Background(), []string{"u1", "b1", "missing"})
		require.NoError(t, err)

		assert.Equal(t, "u1,b1,missing", gotIDs)
		assert.Len(t, profiles, 2)
		assert.Equal(t, "Ada", profiles["u1"].Name)
		assert.True(t, profiles["u1"].Online)
		require.NotNil(t, profiles["b1"].BusinessHours)
		assert.Equal(t, "09:00", profiles["b1"].BusinessHours.OpensAt)
	})

	t.Run("MissingDegradesToFallback", func(t *testing.T) {
		profiles := map[string]directory.Profile{}
		p := directory.ProfileOr(profiles, "ghost")
		assert.Equal(t, "Unknown User", p.Name)
		assert.Equal(t, "ghost", p.ID)
		assert.Empty(t, p.AvatarURL)
	})

	t.Run("EmptyIDsSkipsRequest", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		}))
		defer srv.Close()

		client := directory.New(srv.URL, time.Second, zerolog.Nop())
		profiles, err := client.Lookup(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, profiles)
	})

	t.Run("ServerErrorSurfaced", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := directory.New(srv.URL, time.Second, zerolog.Nop())
		_, err := client.Lookup(context.Background(), []string{"u1"})
		assert.Error(t, err)
	})

	t.Run("TimeoutSurfaced", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(150 * time.Millisecond)
		}))
		defer srv.Close()

		client := directory.New(srv.URL, 20*time.Millisecond, zerolog.Nop())
		_, err := client.Lookup(context.Background(), []string{"u1"})
		assert.Error(t, err)
	})
}

func TestPing(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := directory.New(srv.URL, time.Second, zerolog.Nop())
		assert.NoError(t, client.Ping(context.Background()))
	})

	t.Run("Unconfigured", func(t *testing.T) {
		client := directory.New("", time.Second, zerolog.Nop())
		err := client.Ping(context.Background())
		assert.ErrorIs(t, err, directory.ErrNotConfigured)
	})
}
