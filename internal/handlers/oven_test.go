package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"reflow_oven/internal/door"
	"reflow_oven/internal/models"
	"reflow_oven/internal/process"
	"reflow_oven/internal/reflow"
	"reflow_oven/internal/service"
)

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header = authHeader("tok")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return m
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&service.Service{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || decode(t, w)["status"] != "ok" {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestOven_RequiresAuth(t *testing.T) {
	r := newTestRouter(&service.Service{Authorization: validAuth(), Monitoring: &mockMonitoring{}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/oven/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestOven_GetStatus(t *testing.T) {
	mon := &mockMonitoring{status: models.OvenStatus{Control: models.ControlState{TargetTempC: 150}}}
	r := newTestRouter(&service.Service{Authorization: validAuth(), Monitoring: mon})

	w := doJSON(t, r, http.MethodGet, "/api/v1/oven/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	control := decode(t, w)["control"].(map[string]any)
	if control["target_temp_c"].(float64) != 150 {
		t.Fatalf("unexpected control: %v", control)
	}

	mon.err = errors.New("boom")
	w = doJSON(t, r, http.MethodGet, "/api/v1/oven/status", "")
	if w.Code != http.StatusInternalServerError || decode(t, w)["error"] != errGetStatus {
		t.Fatalf("expected 500 with %q, got %d %s", errGetStatus, w.Code, w.Body.String())
	}
}

func TestOven_SetTarget(t *testing.T) {
	oven := &mockOven{}
	r := newTestRouter(&service.Service{Authorization: validAuth(), Oven: oven, Monitoring: &mockMonitoring{}})

	w := doJSON(t, r, http.MethodPost, "/api/v1/oven/target", `{"target_temp_c":150}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	m := decode(t, w)
	if m["status"] != statusAccepted || m["oven"] == nil {
		t.Fatalf("unexpected body: %v", m)
	}
	if oven.lastTarget != 150 {
		t.Fatalf("target not forwarded: %v", oven.lastTarget)
	}

	// zero is a valid setpoint; missing is not
	if w := doJSON(t, r, http.MethodPost, "/api/v1/oven/target", `{"target_temp_c":0}`); w.Code != http.StatusOK {
		t.Fatalf("zero target: %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/api/v1/oven/target", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing target: %d", w.Code)
	}
}

func TestOven_CommandErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"out_of_range", service.ErrOutOfRange, http.StatusBadRequest},
		{"process_active", service.ErrProcessActive, http.StatusConflict},
		{"calibration_active", service.ErrCalibrationActive, http.StatusConflict},
		{"unsafe_move", door.ErrUnsafeMove, http.StatusConflict},
		{"servo_disabled", door.ErrServoDisabled, http.StatusConflict},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			oven := &mockOven{doorErr: tc.err}
			r := newTestRouter(&service.Service{Authorization: validAuth(), Oven: oven})
			w := doJSON(t, r, http.MethodPost, "/api/v1/oven/door", `{"percent":40}`)
			if w.Code != tc.want {
				t.Fatalf("got %d, want %d", w.Code, tc.want)
			}
			if oven.lastDoor != 40 {
				t.Fatalf("percent not forwarded: %v", oven.lastDoor)
			}
		})
	}
}

func TestOven_StopAll(t *testing.T) {
	oven := &mockOven{}
	r := newTestRouter(&service.Service{Authorization: validAuth(), Oven: oven})

	w := doJSON(t, r, http.MethodPost, "/api/v1/oven/stop", "")
	if w.Code != http.StatusOK || decode(t, w)["status"] != statusStopped {
		t.Fatalf("stop: %d %s", w.Code, w.Body.String())
	}
	if oven.stopCalls != 1 {
		t.Fatalf("StopAll calls=%d", oven.stopCalls)
	}
}

func TestReflow_StartCancelReset(t *testing.T) {
	oven := &mockOven{}
	r := newTestRouter(&service.Service{Authorization: validAuth(), Oven: oven})

	w := doJSON(t, r, http.MethodPost, "/api/v1/reflow/start", `{"curve":"Sn63Pb37"}`)
	if w.Code != http.StatusOK || oven.lastCurve != "Sn63Pb37" {
		t.Fatalf("start: %d curve=%q", w.Code, oven.lastCurve)
	}
	if w := doJSON(t, r, http.MethodPost, "/api/v1/reflow/start", `{}`); w.Code != http.StatusOK || oven.lastCurve != "" {
		t.Fatalf("start without curve: %d curve=%q", w.Code, oven.lastCurve)
	}
	if w := doJSON(t, r, http.MethodPost, "/api/v1/reflow/start", `{"curve":`); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", w.Code)
	}

	oven.startErr = reflow.ErrUnknownCurve
	if w := doJSON(t, r, http.MethodPost, "/api/v1/reflow/start", `{"curve":"nope"}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown curve: %d", w.Code)
	}
	oven.startErr = process.ErrInvalidTransition
	if w := doJSON(t, r, http.MethodPost, "/api/v1/reflow/start", `{"curve":"Sn63Pb37"}`); w.Code != http.StatusConflict {
		t.Fatalf("busy start: %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/reflow/cancel", "")
	if w.Code != http.StatusOK || decode(t, w)["status"] != statusCancelled || oven.cancelCalls != 1 {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}
	oven.cancelErr = process.ErrBusy
	if w := doJSON(t, r, http.MethodPost, "/api/v1/reflow/cancel", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("cancel when mailbox full: %d", w.Code)
	}

	oven.resetErr = process.ErrInvalidTransition
	if w := doJSON(t, r, http.MethodPost, "/api/v1/reflow/reset", ""); w.Code != http.StatusConflict {
		t.Fatalf("reset: %d", w.Code)
	}
}
