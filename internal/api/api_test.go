package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/looploom/looploom/internal/engine"
	"github.com/looploom/looploom/internal/layer"
	"github.com/looploom/looploom/internal/render"
	"github.com/looploom/looploom/internal/types"
)

func newTestServer() (*engine.Engine, http.Handler) {
	e := engine.New(render.NewCapture())
	return e, NewServer(e).Handler()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetTransport(t *testing.T) {
	e, h := newTestServer()
	e.AddLayer(layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1, Time: 0},
	}, 960, types.Percussive))

	w := do(h, "GET", "/v1/transport", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var st transportState
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.False(t, st.Running)
	assert.Equal(t, 120.0, st.BPM)
	assert.Equal(t, int64(960), st.TimelineTicks)
	assert.InDelta(t, 1.0, st.TimelineSecs, 1e-9)
}

func TestTransportStartStop(t *testing.T) {
	e, h := newTestServer()

	assert.Equal(t, http.StatusNoContent, do(h, "POST", "/v1/transport/start", "").Code)
	assert.True(t, e.Clock.Running())

	assert.Equal(t, http.StatusNoContent, do(h, "POST", "/v1/transport/stop", "").Code)
	assert.False(t, e.Clock.Running())
}

func TestSetTempo(t *testing.T) {
	e, h := newTestServer()

	w := do(h, "POST", "/v1/tempo", `{"bpm": 95}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 95.0, e.Clock.BPM())

	assert.Equal(t, http.StatusBadRequest, do(h, "POST", "/v1/tempo", "{not json").Code)
}

func TestGetLayers(t *testing.T) {
	e, h := newTestServer()
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1, Time: 0},
	}, 960, types.Percussive)
	l.VolumeDB = -6
	e.AddLayer(l)

	w := do(h, "GET", "/v1/layers", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var out []layerInfo
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out, 1)
	assert.Equal(t, l.ID, out[0].ID)
	assert.Equal(t, "drums", out[0].Name)
	assert.Equal(t, int64(960), out[0].EffectiveDur)
	assert.Equal(t, -6.0, out[0].VolumeDB)
	assert.Equal(t, "percussive", out[0].Class)
	assert.Equal(t, 1, out[0].EventCount)
}

func TestMuteLayer(t *testing.T) {
	e, h := newTestServer()
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1, Time: 0},
	}, 960, types.Percussive)
	e.AddLayer(l)

	w := do(h, "POST", "/v1/layers/"+l.ID+"/mute", `{"muted": true}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, l.Muted)

	w = do(h, "POST", "/v1/layers/"+l.ID+"/mute", `{"muted": false}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, l.Muted)
}

func TestSetLayerVolume(t *testing.T) {
	e, h := newTestServer()
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1, Time: 0},
	}, 960, types.Percussive)
	e.AddLayer(l)

	w := do(h, "POST", "/v1/layers/"+l.ID+"/volume", `{"volume_db": -12.5}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, -12.5, l.VolumeDB)
}

func TestDeleteLayer(t *testing.T) {
	e, h := newTestServer()
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1, Time: 0},
	}, 960, types.Percussive)
	e.AddLayer(l)

	w := do(h, "DELETE", "/v1/layers/"+l.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, e.Layers.Len())
}

func TestMethodNotAllowed(t *testing.T) {
	_, h := newTestServer()
	w := do(h, "DELETE", "/v1/transport", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
