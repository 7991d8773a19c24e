package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"reflow_oven/internal/models"
	"reflow_oven/internal/reflow"
	"reflow_oven/internal/repository"
	"reflow_oven/internal/service"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}

func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}

func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockOven struct {
	targetErr error
	doorErr   error
	stopErr   error
	startErr  error
	cancelErr error
	resetErr  error

	lastTarget  float64
	lastDoor    float64
	lastCurve   string
	stopCalls   int
	cancelCalls int
	resetCalls  int
}

func (m *mockOven) SetTargetTemperature(ctx context.Context, celsius float64) error {
	m.lastTarget = celsius
	return m.targetErr
}

func (m *mockOven) SetDoorPosition(ctx context.Context, percent float64) error {
	m.lastDoor = percent
	return m.doorErr
}

func (m *mockOven) StopAll(ctx context.Context) error {
	m.stopCalls++
	return m.stopErr
}

func (m *mockOven) StartReflow(ctx context.Context, curve string) error {
	m.lastCurve = curve
	return m.startErr
}

func (m *mockOven) CancelReflow(ctx context.Context) error {
	m.cancelCalls++
	return m.cancelErr
}

func (m *mockOven) ResetProcess(ctx context.Context) error {
	m.resetCalls++
	return m.resetErr
}

type mockMonitoring struct {
	status models.OvenStatus
	err    error
}

func (m *mockMonitoring) GetStatus(ctx context.Context) (models.OvenStatus, error) {
	return m.status, m.err
}

type mockCalibration struct {
	startErr error
	stopErr  error
	doorErr  error
	rates    service.RateEstimate
	ratesErr error
	state    models.CalibrationState
	profile  models.CalibrationProfile

	started     []string
	stopCalls   int
	lastOpen    float64
	lastClosed  float64
	lastRaw     float64
	lastJog     float64
	lastPercent float64
}

func (m *mockCalibration) StartSensorCalibration(ctx context.Context) error {
	m.started = append(m.started, "sensor")
	return m.startErr
}

func (m *mockCalibration) StartThermalCalibration(ctx context.Context) error {
	m.started = append(m.started, "thermal")
	return m.startErr
}

func (m *mockCalibration) StartDoorCalibration(ctx context.Context) error {
	m.started = append(m.started, "door")
	return m.startErr
}

func (m *mockCalibration) StopCalibration(ctx context.Context) error {
	m.stopCalls++
	return m.stopErr
}

func (m *mockCalibration) SetDoorOpenPosition(ctx context.Context, angle float64) error {
	m.lastOpen = angle
	return m.doorErr
}

func (m *mockCalibration) SetDoorClosedPosition(ctx context.Context, angle float64) error {
	m.lastClosed = angle
	return m.doorErr
}

func (m *mockCalibration) MoveDoorRaw(ctx context.Context, angle float64) error {
	m.lastRaw = angle
	return m.doorErr
}

func (m *mockCalibration) JogDoor(ctx context.Context, delta float64) error {
	m.lastJog = delta
	return m.doorErr
}

func (m *mockCalibration) ExpectedRates(ctx context.Context, percent float64) (service.RateEstimate, error) {
	m.lastPercent = percent
	return m.rates, m.ratesErr
}

func (m *mockCalibration) CalibrationState(ctx context.Context) models.CalibrationState {
	return m.state
}

func (m *mockCalibration) CalibrationProfile(ctx context.Context) models.CalibrationProfile {
	return m.profile
}

type mockCurves struct {
	curves []models.ReflowCurve
}

func (m *mockCurves) ListCurves(ctx context.Context) []models.ReflowCurve {
	return m.curves
}

func (m *mockCurves) GetCurve(ctx context.Context, name string) (models.ReflowCurve, error) {
	for _, c := range m.curves {
		if c.Name == name {
			return c, nil
		}
	}
	return models.ReflowCurve{}, reflow.ErrUnknownCurve
}

type mockRuns struct {
	runs      []models.RunRecord
	err       error
	lastLimit int
}

func (m *mockRuns) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	m.lastLimit = limit
	return m.runs, m.err
}

func (m *mockRuns) GetRun(ctx context.Context, id string) (models.RunRecord, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return models.RunRecord{}, repository.ErrRunNotFound
}

type mockEventLog struct {
	resp       []models.JournalEntry
	err        error
	lastFilter service.LogFilter
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.JournalEntry, error) {
	m.lastFilter = f
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

// validAuth accepts any bearer token as operator 1.
func validAuth() *mockAuth { return &mockAuth{parseID: 1} }

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
