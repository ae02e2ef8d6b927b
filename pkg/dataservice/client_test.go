package dataservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kids-first/dataservice-utils/pkg/record"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func newTestClient(t *testing.T, handler http.Handler, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	// The test server never returns transient failures, so the plain client
	// keeps error-path tests from sitting in retry waits.
	opts = append([]ClientOption{WithHTTPClient(srv.Client())}, opts...)
	return NewClient(srv.URL, opts...)
}

func TestFetchByFilterPaginatesAndDeduplicates(t *testing.T) {
	bs1 := record.Record{"kf_id": "BS_00000001", "visible": true}
	bs2 := record.Record{"kf_id": "BS_00000002", "visible": true}
	bs3 := record.Record{"kf_id": "BS_00000003", "visible": false}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/biospecimens", r.URL.Path)
		require.Equal(t, "SD_11111111", r.URL.Query().Get("study_id"))

		switch r.URL.Query().Get("after") {
		case "":
			writeJSON(t, w, map[string]any{
				"total":   3,
				"results": []record.Record{bs1, bs2},
				"_links": map[string]any{
					"next": "/biospecimens?after=1556312&after_uuid=abc-123&study_id=SD_11111111",
				},
			})
		case "1556312":
			require.Equal(t, "abc-123", r.URL.Query().Get("after_uuid"))
			// bs2 repeats, as it does when the collection shifts under a
			// cursor. The scan must count it once.
			writeJSON(t, w, map[string]any{
				"total":   3,
				"results": []record.Record{bs2, bs3},
				"_links":  map[string]any{},
			})
		default:
			t.Fatalf("unexpected cursor %q", r.URL.RawQuery)
		}
	})

	var events []ProgressEvent
	c := newTestClient(t, handler, WithProgress(func(ev ProgressEvent) {
		events = append(events, ev)
	}))

	recs, err := c.FetchByFilter(context.Background(), record.Biospecimens, Filter{"study_id": "SD_11111111"})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, "BS_00000001", recs[0].KFID())
	require.Equal(t, "BS_00000002", recs[1].KFID())
	require.Equal(t, "BS_00000003", recs[2].KFID())

	require.Len(t, events, 3)
	require.Equal(t, ProgressEvent{Endpoint: record.Biospecimens, Fetched: 3, Total: 3}, events[2])
}

func TestFetchByFilterCountMismatchExhaustsRetryBudget(t *testing.T) {
	var scans atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scans.Add(1)
		writeJSON(t, w, map[string]any{
			"total":   5,
			"results": []record.Record{{"kf_id": "PT_00000001"}},
			"_links":  map[string]any{},
		})
	})

	c := newTestClient(t, handler, WithScanRetryBudget(50*time.Millisecond))

	_, err := c.FetchByFilter(context.Background(), record.Participants, nil)
	require.ErrorIs(t, err, ErrCountMismatch)
	require.GreaterOrEqual(t, scans.Load(), int32(1))
}

func TestFetchByFilterCountMismatchRecovers(t *testing.T) {
	var scans atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if scans.Add(1) == 1 {
			writeJSON(t, w, map[string]any{
				"total":   2,
				"results": []record.Record{{"kf_id": "PT_00000001"}},
				"_links":  map[string]any{},
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"total":   1,
			"results": []record.Record{{"kf_id": "PT_00000001"}},
			"_links":  map[string]any{},
		})
	})

	c := newTestClient(t, handler, WithScanRetryBudget(10*time.Second))

	recs, err := c.FetchByFilter(context.Background(), record.Participants, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, int32(2), scans.Load())
}

func TestFetchByFilterFailsLoudlyOnErrorStatus(t *testing.T) {
	var scans atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scans.Add(1)
		http.Error(w, "no such study", http.StatusBadRequest)
	})

	c := newTestClient(t, handler)

	_, err := c.FetchByFilter(context.Background(), record.Participants, Filter{"study_id": "SD_00000000"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
	require.Contains(t, err.Error(), "no such study")
	// A hard failure must not burn the retry budget.
	require.Equal(t, int32(1), scans.Load())
}

func TestFetchByIDs(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/biospecimens/BS_00000001":
			writeJSON(t, w, map[string]any{
				"results": record.Record{"kf_id": "BS_00000001", "visible": true},
				"_links":  map[string]any{"participant": "/participants/PT_00000001"},
			})
		case "/genomic-files/GF_00000001":
			writeJSON(t, w, map[string]any{
				"results": record.Record{"kf_id": "GF_00000001", "visible": false},
			})
		default:
			http.NotFound(w, r)
		}
	})

	c := newTestClient(t, handler)

	recs, err := c.FetchByIDs(context.Background(), []string{"BS_00000001", "GF_00000001"})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	byID := map[string]record.Record{}
	for _, r := range recs {
		byID[r.KFID()] = r
	}
	require.Equal(t, "PT_00000001", byID["BS_00000001"].LinkID("participant"))
	require.False(t, byID["GF_00000001"].Visible())
}

func TestFetchByIDsRejectsUnknownPrefix(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should be made for an unresolvable KF ID")
	}))

	_, err := c.FetchByIDs(context.Background(), []string{"ZZ_00000001"})
	require.ErrorIs(t, err, record.ErrUnknownPrefix)
}

func TestPatch(t *testing.T) {
	var got map[string]any

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/genomic-files/GF_00000001", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, map[string]any{"results": record.Record{"kf_id": "GF_00000001"}})
	})

	c := newTestClient(t, handler)

	err := c.Patch(context.Background(), "GF_00000001", map[string]any{"visible": false, "acl": []string{}})
	require.NoError(t, err)
	require.Equal(t, false, got["visible"])
}

func TestPatchSurfacesStatusAndBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "visible must be a boolean", http.StatusBadRequest)
	})

	c := newTestClient(t, handler)

	err := c.Patch(context.Background(), "GF_00000001", map[string]any{"visible": "nope"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
	require.Contains(t, err.Error(), "visible must be a boolean")
}

func TestDeleteToleratesMissingRecord(t *testing.T) {
	var testcases = map[string]struct {
		status  string
		code    int
		wantErr bool
	}{
		`deleted`:      {code: http.StatusOK},
		`already_gone`: {code: http.StatusNotFound},
		`rejected`:     {code: http.StatusBadRequest, wantErr: true},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodDelete, r.Method)
				w.WriteHeader(tc.code)
			})

			c := newTestClient(t, handler)

			err := c.Delete(context.Background(), "PT_00000001")
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestHost(t *testing.T) {
	require.Equal(t, "localhost", NewClient("http://localhost:5000/").Host())
	require.Equal(t, "kf-api-dataservice.kidsfirstdrc.org",
		NewClient("https://kf-api-dataservice.kidsfirstdrc.org").Host())
}
