package paceman

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	logx "pacewatch/pkg/logx"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{
		BaseURL:      srv.URL,
		LiveURL:      srv.URL + "/liveruns",
		RatePerSec:   100,
		LiveCacheTTL: time.Minute,
	}, NewMemoryCache(), logx.Nop())
	return c, srv
}

func TestRecentRunID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getRecentRuns/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") != "alpha" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[{"id": 91273, "time": 1767000000000}]`))
	})
	c, _ := testClient(t, mux)

	id, ok, err := c.RecentRunID(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("RecentRunID: %v", err)
	}
	if !ok || id != 91273 {
		t.Fatalf("id = %d ok=%v, want 91273 true", id, ok)
	}
}

func TestRecentRunIDEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getRecentRuns/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	c, _ := testClient(t, mux)

	_, ok, err := c.RecentRunID(context.Background(), "alpha")
	if err != nil || ok {
		t.Fatalf("want no run without error, got ok=%v err=%v", ok, err)
	}
}

func TestRunSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getWorld/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isLive": true, "data": {"nether": 179852, "bastion": null, "nickname": "alpha", "updateTime": 1767000000000}}`))
	})
	c, _ := testClient(t, mux)

	snap, err := c.RunSnapshot(context.Background(), 91273)
	if err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}
	if !snap.IsLive {
		t.Fatal("expected live snapshot")
	}
	if snap.Nickname() != "alpha" {
		t.Fatalf("Nickname = %q", snap.Nickname())
	}
	if snap.UpdateTime().IsZero() {
		t.Fatal("expected update time")
	}
	if v, ok := snap.Data["nether"].(float64); !ok || v != 179852 {
		t.Fatalf("raw split missing: %v", snap.Data["nether"])
	}
}

func TestRunSnapshotRetracted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getWorld/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	c, _ := testClient(t, mux)

	_, err := c.RunSnapshot(context.Background(), 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRunSnapshotServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getWorld/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	c, _ := testClient(t, mux)

	_, err := c.RunSnapshot(context.Background(), 1)
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v, want UpstreamError 500", err)
	}
}

func TestLiveEventsMatchingAndCache(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/liveruns", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[
			{"nickname": "Alpha", "user": {"liveAccount": "alpha_tv"},
			 "eventList": [{"eventId": "rsg.enter_nether", "igt": 179852, "rta": 200014}]}
		]`))
	})
	c, _ := testClient(t, mux)

	ctx := context.Background()
	ev, ok, err := c.LiveEvents(ctx, "alpha")
	if err != nil || !ok {
		t.Fatalf("LiveEvents: ok=%v err=%v", ok, err)
	}
	if got := ev["rsg.enter_nether"]; got.IGT != 179852 || got.RTA != 200014 {
		t.Fatalf("unexpected event times: %+v", got)
	}

	// Match by live account, served from cache.
	if _, ok, err := c.LiveEvents(ctx, "ALPHA_TV"); err != nil || !ok {
		t.Fatalf("live-account match failed: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := c.LiveEvents(ctx, "nobody"); ok {
		t.Fatal("unexpected match for unknown streamer")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("upstream called %d times, want 1 (cached)", n)
	}
}
