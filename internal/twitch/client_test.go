package twitch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, apiHandler http.HandlerFunc) *Client {
	t.Helper()
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant type", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"app-token-1","expires_in":3600}`))
	}))
	t.Cleanup(auth.Close)

	api := httptest.NewServer(apiHandler)
	t.Cleanup(api.Close)

	return NewClient(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		APIBaseURL:   api.URL,
		AuthURL:      auth.URL,
	}, nil)
}

func TestStreamSnapshotLive(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/streams" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer app-token-1" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Client-Id"); got != "client-id" {
			t.Errorf("Client-Id = %q", got)
		}
		if got := r.URL.Query().Get("user_id"); got != "123" {
			t.Errorf("user_id = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{
			"id":"9001","user_id":"123","user_login":"somelogin","user_name":"SomeStreamer",
			"game_name":"Just Chatting","type":"live","title":"hanging out",
			"tags":["English"],"viewer_count":777,"started_at":"2023-10-21T17:00:00Z","language":"en"
		}]}`))
	})

	snap, err := c.StreamSnapshot(context.Background(), "123")
	if err != nil {
		t.Fatalf("StreamSnapshot: %v", err)
	}
	if snap == nil {
		t.Fatal("expected a live snapshot")
	}
	if snap.StreamID != "9001" || snap.Login != "somelogin" || snap.Category != "Just Chatting" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.ViewerCount != 777 || snap.Language != "en" {
		t.Fatalf("snapshot = %+v", snap)
	}
	want, _ := time.Parse(time.RFC3339, "2023-10-21T17:00:00Z")
	if !snap.StartedAt.Equal(want) {
		t.Fatalf("started at = %v", snap.StartedAt)
	}
}

func TestStreamSnapshotOffline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[]}`))
	})
	snap, err := c.StreamSnapshot(context.Background(), "123")
	if err != nil {
		t.Fatalf("StreamSnapshot: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected nil for offline broadcaster, got %+v", snap)
	}
}

func TestStreamSnapshotIgnoresNonLiveEntries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"1","user_id":"123","type":"rerun"}]}`))
	})
	snap, err := c.StreamSnapshot(context.Background(), "123")
	if err != nil {
		t.Fatalf("StreamSnapshot: %v", err)
	}
	if snap != nil {
		t.Fatalf("rerun treated as live: %+v", snap)
	}
}

func TestStreamSnapshotUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	})
	if _, err := c.StreamSnapshot(context.Background(), "123"); err == nil {
		t.Fatal("expected error on upstream 500")
	}
}

func TestAppTokenReused(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[]}`))
	})

	for i := 0; i < 3; i++ {
		if _, err := c.StreamSnapshot(context.Background(), "123"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if calls != 3 {
		t.Fatalf("api calls = %d", calls)
	}
	if c.token != "app-token-1" {
		t.Fatalf("token = %q", c.token)
	}
}

func TestFollowedChannelsSinglePage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/followed" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("first"); got != "100" {
			t.Errorf("first = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"broadcaster_id":"123","broadcaster_login":"somelogin","broadcaster_name":"SomeStreamer"},
			{"broadcaster_id":"456","broadcaster_login":"otherlogin","broadcaster_name":"Other"}
		],"pagination":{}}`))
	})

	channels, err := c.FollowedChannels(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FollowedChannels: %v", err)
	}
	if len(channels) != 2 {
		t.Fatalf("got %d channels", len(channels))
	}
	if channels[0].BroadcasterID != "123" || channels[1].BroadcasterLogin != "otherlogin" {
		t.Fatalf("channels = %+v", channels)
	}
}
