package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/calliope/internal/track"
)

const guild = snowflake.ID(123456789012345678)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL, "secret", time.Second)
	c.SetSessionID("sess1")
	return c
}

func TestModifyPlayer_RequestShape(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"guildId":"123456789012345678","track":{"encoded":"abc","info":{"identifier":"id1","title":"Song"}},"volume":80,"paused":false,"state":{"time":1,"position":2,"connected":true,"ping":3},"voice":{"token":"t","endpoint":"e","sessionId":"s"},"filters":{}}`))
	})

	vol := 80
	p, err := c.ModifyPlayer(context.Background(), guild, PlayerUpdate{
		Track:  PlayTrack(track.Track{Encoded: "abc"}),
		Volume: &vol,
	}, true)
	require.NoError(t, err)

	assert.Equal(t, "/v4/sessions/sess1/players/123456789012345678", gotPath)
	assert.Equal(t, "noReplace=true", gotQuery)
	assert.Equal(t, "secret", gotAuth)
	assert.Equal(t, map[string]any{"encoded": "abc"}, gotBody["track"])
	assert.EqualValues(t, 80, gotBody["volume"])
	assert.NotContains(t, gotBody, "paused")

	require.NotNil(t, p.Track)
	assert.Equal(t, "id1", p.Track.Identifier())
	assert.Equal(t, guild, p.GuildID)
	assert.True(t, p.State.Connected)
	assert.Equal(t, "s", p.Voice.SessionID)
}

func TestStopTrack_EncodesNull(t *testing.T) {
	raw, err := json.Marshal(PlayerUpdate{Track: StopTrack()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"track":{"encoded":null}}`, string(raw))

	raw, err = json.Marshal(TrackUpdate{Identifier: "dQw4w9WgXcQ"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"identifier":"dQw4w9WgXcQ"}`, string(raw))
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			_, err := c.GetPlayer(context.Background(), guild)
			assert.ErrorIs(t, err, tc.want)
			assert.False(t, IsRetryable(err))
		})
	}

	t.Run("unmapped status is opaque", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("short and stout"))
		})
		_, err := c.Info(context.Background())
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusTeapot, se.StatusCode)
		assert.Equal(t, "short and stout", string(se.Body))
	})

	t.Run("no content is success", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		})
		assert.NoError(t, c.DestroyPlayer(context.Background(), guild))
	})
}

func TestTimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", 50*time.Millisecond)
	_, err := c.Stats(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsRetryable(err))
}

func TestSessionRoutesNeedSession(t *testing.T) {
	c := New("http://127.0.0.1:1", "secret", time.Second)
	_, err := c.ModifyPlayer(context.Background(), guild, PlayerUpdate{}, false)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, c.DestroyPlayer(context.Background(), guild), ErrNoSession)
}

func TestDecodeTracksAndLoad(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v4/decodetracks":
			var in []string
			_ = json.NewDecoder(r.Body).Decode(&in)
			out := make([]map[string]any, 0, len(in))
			for _, e := range in {
				out = append(out, map[string]any{"encoded": e, "info": map[string]any{"identifier": "id-" + e}})
			}
			_ = json.NewEncoder(w).Encode(out)
		case "/v4/loadtracks":
			assert.Equal(t, "ytsearch:never gonna", r.URL.Query().Get("identifier"))
			_, _ = w.Write([]byte(`{"loadType":"search","data":[{"encoded":"z","info":{"identifier":"zz"}}]}`))
		case "/version":
			_, _ = w.Write([]byte("4.0.8\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	tracks, err := c.DecodeTracks(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "id-b", tracks[1].Identifier())

	res, err := c.Search(context.Background(), YouTube, "never gonna")
	require.NoError(t, err)
	assert.Equal(t, track.LoadSearch, res.Type)

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4.0.8", v)
}

func TestInfoPluginVersions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":{"semver":"4.0.0","major":4},"git":{"branch":"main","commit":"abc"},"jvm":"21","lavaplayer":"2.0","sourceManagers":["youtube"],"filters":["equalizer"],"plugins":[{"name":"lavasrc","version":"4.1.0"}]}`))
	})
	info, err := c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, info.Version.Major)
	assert.Equal(t, map[string]string{"lavasrc": "4.1.0"}, info.PluginVersions())
}
