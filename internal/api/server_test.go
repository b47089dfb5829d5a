package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-audio/wav"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	sfontplayer "github.com/sevonj/sfontplayer-sub000"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type silentEngine struct{ rate uint32 }

func (e *silentEngine) ReceiveRaw(ch, cmd, d1, d2 uint8)  {}
func (e *silentEngine) Reset()                            {}
func (e *silentEngine) SampleRate() uint32                { return e.rate }
func (e *silentEngine) RenderFrame() (float32, float32) { return 0.5, -0.5 }

func testMIDI(t *testing.T) []byte {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(96)
	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName("lead"))
	tr.Add(0, midi.ProgramChange(0, 33))
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(96, midi.NoteOff(0, 60))
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func upload(t *testing.T, h http.Handler, path string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		fw, err := mw.CreateFormFile("file", "song.mid")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newTestServer() *Server {
	return New(Options{
		SampleRate: 8000,
		NewEngine: func(rate uint32) (sfontplayer.Engine, error) {
			return &silentEngine{rate: rate}, nil
		},
	})
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing cors header")
	}
}

func TestInspect(t *testing.T) {
	rec := upload(t, newTestServer().Handler(), "/api/v1/inspect", testMIDI(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var resp InspectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Division != "96 tpqn" || len(resp.Tracks) != 1 || resp.Tracks[0].Name != "lead" {
		t.Fatalf("summary = %+v", resp.Summary)
	}
	if len(resp.Programs) != 1 || resp.Programs[0] != 33 {
		t.Fatalf("programs = %v", resp.Programs)
	}
	if resp.LengthSeconds < 0.49 || resp.LengthSeconds > 0.51 {
		t.Fatalf("length = %v, want 0.5s", resp.LengthSeconds)
	}
}

func TestInspectRejectsBadUploads(t *testing.T) {
	h := newTestServer().Handler()
	if rec := upload(t, h, "/api/v1/inspect", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing file status = %d", rec.Code)
	}
	if rec := upload(t, h, "/api/v1/inspect", []byte("not midi")); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("garbage status = %d", rec.Code)
	}
}

func TestUploadSizeLimit(t *testing.T) {
	data := testMIDI(t)
	srv := New(Options{MaxUpload: int64(len(data) - 1)})
	if rec := upload(t, srv.Handler(), "/api/v1/inspect", data); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	srv = New(Options{MaxUpload: int64(len(data))})
	if rec := upload(t, srv.Handler(), "/api/v1/inspect", data); rec.Code != http.StatusOK {
		t.Fatalf("status at the limit = %d", rec.Code)
	}
}

func TestRenderRejectsOverlongSong(t *testing.T) {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(96)
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Close(0x0FFFFFFF)
	if err := s.Add(tr); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	rendered := false
	srv := New(Options{
		SampleRate: 8000,
		NewEngine: func(rate uint32) (sfontplayer.Engine, error) {
			rendered = true
			return &silentEngine{rate: rate}, nil
		},
	})
	rec := upload(t, srv.Handler(), "/api/v1/render", buf.Bytes())
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	if rendered {
		t.Fatal("engine was built for a song over the render limit")
	}
	// Inspect is cheap and still answers.
	if rec := upload(t, srv.Handler(), "/api/v1/inspect", buf.Bytes()); rec.Code != http.StatusOK {
		t.Fatalf("inspect status = %d", rec.Code)
	}
}

func TestRenderReturnsWAV(t *testing.T) {
	rec := upload(t, newTestServer().Handler(), "/api/v1/render?sampleRate=11025", testMIDI(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !bytes.Contains([]byte(cd), []byte("song.wav")) {
		t.Fatalf("content disposition = %q", cd)
	}
	dec := wav.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Format.SampleRate != 11025 || buf.Format.NumChannels != 2 {
		t.Fatalf("format = %+v", buf.Format)
	}
	frames := len(buf.Data) / 2
	if frames < 5000 || frames > 6000 {
		t.Fatalf("frames = %d, want about half a second", frames)
	}
}

func TestRenderValidatesSampleRate(t *testing.T) {
	rec := upload(t, newTestServer().Handler(), "/api/v1/render?sampleRate=12", testMIDI(t))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRenderWithoutSoundFont(t *testing.T) {
	rec := upload(t, New(Options{}).Handler(), "/api/v1/render", testMIDI(t))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	New(Options{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/soundfont", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("soundfont status = %d", rec.Code)
	}
}
