package journal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPersistsAcrossReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sessions.db")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	j, err := Open("sqlite", dsn, nil)
	require.NoError(t, err)
	j.Record(Event{PlayerID: "a", Addr: "10.0.0.1:4000", Kind: "join", At: at})
	j.Record(Event{PlayerID: "b", Addr: "10.0.0.2:4000", Kind: "join", At: at})
	j.Record(Event{PlayerID: "a", Addr: "10.0.0.1:4000", Kind: "timeout", At: at.Add(6 * time.Second)})
	require.NoError(t, j.Close())

	j, err = Open("sqlite", dsn, nil)
	require.NoError(t, err)
	defer j.Close()

	events, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "timeout", events[0].Kind)
	assert.Equal(t, "a", events[0].PlayerID)
	assert.Equal(t, "b", events[1].PlayerID)
	assert.True(t, at.Equal(events[2].At))

	latest, err := j.Recent(1)
	require.NoError(t, err)
	assert.Len(t, latest, 1)
}

func TestRecordAfterCloseIsDropped(t *testing.T) {
	j, err := Open("sqlite", filepath.Join(t.TempDir(), "sessions.db"), nil)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.NotPanics(t, func() { j.Record(Event{PlayerID: "late"}) })
	assert.NoError(t, j.Close())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "whatever", nil)
	assert.Error(t, err)
}

func TestHandlerServesRecentEvents(t *testing.T) {
	j, err := Open("sqlite", filepath.Join(t.TempDir(), "sessions.db"), nil)
	require.NoError(t, err)
	defer j.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j.Record(Event{PlayerID: "a", Addr: "10.0.0.1:4000", Kind: "join", At: at})
	j.Record(Event{PlayerID: "a", Addr: "10.0.0.1:4000", Kind: "leave", At: at.Add(time.Second)})
	require.Eventually(t, func() bool {
		events, err := j.Recent(10)
		return err == nil && len(events) == 2
	}, 2*time.Second, 10*time.Millisecond)

	hs := httptest.NewServer(http.HandlerFunc(j.Handler))
	defer hs.Close()

	resp, err := http.Get(hs.URL + "/sessions?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var events []Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, "leave", events[0].Kind)

	post, err := http.Post(hs.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}
