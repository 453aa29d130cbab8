package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rjboer/noisemap/internal/model"
)

func samplePoint(index int) Event {
	m := model.NewMeasurement(
		model.Position{Azimuth: float64(index), Elevation: 10},
		model.Position{Azimuth: float64(index) + 0.1, Elevation: 10.2},
		model.PsdSample{
			Timestamp:      time.Unix(1700000000+int64(index), 0),
			FrequencyStart: 1.41e9,
			FrequencyStop:  1.43e9,
			FrequencyStep:  1.25e6,
			SampleCount:    100,
			Levels:         []float64{-90, -80, -70},
		})
	return PointEvent("sweep-1", index, 4, m)
}

func TestHubHistoryIsBounded(t *testing.T) {
	hub := NewHub(3)
	for i := 0; i < 5; i++ {
		hub.Report(samplePoint(i))
	}
	history := hub.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 events, got %d", len(history))
	}
	if history[0].Index != 2 || history[2].Index != 4 {
		t.Fatalf("expected indices 2..4, got %d..%d", history[0].Index, history[2].Index)
	}
}

func TestHubStatusTracksSweep(t *testing.T) {
	hub := NewHub(10)
	hub.Report(Event{Kind: EventState, SweepID: "sweep-1", State: "measuring", Total: 4})
	hub.Report(samplePoint(0))
	hub.Report(Event{Kind: EventFault, SweepID: "sweep-1", Index: 1, Fault: FaultMeasurement, Error: "stalled"})
	hub.Report(samplePoint(1))

	status := hub.StatusSnapshot()
	if status.State != "measuring" {
		t.Fatalf("expected measuring, got %q", status.State)
	}
	if status.Completed != 2 || status.Total != 4 || status.Faults != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	hub.Report(Event{Kind: EventState, SweepID: "sweep-2", State: "acquiring"})
	status = hub.StatusSnapshot()
	if status.SweepID != "sweep-2" || status.Completed != 0 || status.Faults != 0 {
		t.Fatalf("expected status reset for new sweep, got %+v", status)
	}
}

func TestSubscribeReceivesEventsUntilCanceled(t *testing.T) {
	hub := NewHub(10)
	ch, cancel := hub.Subscribe()
	hub.Report(samplePoint(0))

	select {
	case e := <-ch:
		if e.Kind != EventPoint {
			t.Fatalf("expected point event, got %q", e.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}
	hub.Report(samplePoint(1))
}

func TestHandleHistoryReturnsJSON(t *testing.T) {
	hub := NewHub(10)
	hub.Report(samplePoint(0))

	rr := httptest.NewRecorder()
	hub.handleHistory(rr, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var events []Event
	if err := json.NewDecoder(rr.Body).Decode(&events); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(events) != 1 || events[0].Achieved == nil || events[0].Achieved.Elevation != 10.2 {
		t.Fatalf("unexpected history %+v", events)
	}
	if events[0].PowerMax != -70 {
		t.Fatalf("expected max -70, got %v", events[0].PowerMax)
	}
}

func TestHandleSetConfig(t *testing.T) {
	hub := NewHub(10)
	for i := 0; i < 8; i++ {
		hub.Report(samplePoint(i))
	}

	body := bytes.NewBufferString(`{"historyLimit":5}`)
	rr := httptest.NewRecorder()
	hub.handleSetConfig(rr, httptest.NewRequest(http.MethodPost, "/api/config/update", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	cfg := hub.ConfigSnapshot()
	if cfg.HistoryLimit != 5 || cfg.SubscriberBuffer != 64 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if got := len(hub.History()); got != 5 {
		t.Fatalf("expected history trimmed to 5, got %d", got)
	}
}

func TestHandleSetConfigRejectsInvalid(t *testing.T) {
	hub := NewHub(10)

	rr := httptest.NewRecorder()
	hub.handleSetConfig(rr, httptest.NewRequest(http.MethodPost, "/api/config/update", strings.NewReader(`{"historyLimit":-1}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	hub.handleSetConfig(rr, httptest.NewRequest(http.MethodGet, "/api/config/update", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestHandleLiveStreamsHistoryAndUpdates(t *testing.T) {
	hub := NewHub(10)
	hub.Report(samplePoint(0))

	srv := httptest.NewServer(http.HandlerFunc(hub.handleLive))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	first := readSSE(t, reader)
	if first.Index != 0 {
		t.Fatalf("expected history event first, got index %d", first.Index)
	}

	hub.Report(samplePoint(1))
	second := readSSE(t, reader)
	if second.Index != 1 {
		t.Fatalf("expected live event with index 1, got %d", second.Index)
	}
}

func readSSE(t *testing.T, r *bufio.Reader) Event {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		payload, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return e
	}
}
