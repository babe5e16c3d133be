package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/sleepstage/internal/config"
	"github.com/audiolibrelab/sleepstage/internal/errs"
	"github.com/audiolibrelab/sleepstage/internal/features"
	"github.com/audiolibrelab/sleepstage/internal/metrics"
	"github.com/audiolibrelab/sleepstage/internal/recording"
	"github.com/audiolibrelab/sleepstage/internal/service"
	"github.com/audiolibrelab/sleepstage/internal/staging"
	"github.com/audiolibrelab/sleepstage/internal/store"
)

type stubService struct {
	cfg      *config.Config
	stageErr error
	runs     []*store.Run
	gotName  string
	gotBody  []byte
	gotOpts  service.StageOptions
	profile  string
}

func (s *stubService) Features(string) (*features.Table, error) { return nil, nil }

func (s *stubService) Stage(string, service.StageOptions) (*service.StageResult, error) {
	return nil, fmt.Errorf("not used")
}

func (s *stubService) StageReader(name string, r io.ReadSeeker, opts service.StageOptions) (*service.StageResult, error) {
	s.gotName, s.gotOpts = name, opts
	s.gotBody, _ = io.ReadAll(r)
	if s.stageErr != nil {
		return nil, s.stageErr
	}
	return &service.StageResult{
		RunID:     "run-1",
		Recording: name,
		ModelRef:  "auto",
		Onsets:    []float64{0, 30},
		Hypnogram: []string{"W", "N2"},
		Probabilities: &staging.Probabilities{
			Labels: []string{"W", "N2"},
			Values: [][]float64{{0.8, 0.2}, {0.3, 0.7}},
		},
	}, nil
}

func (s *stubService) RunPipeline(string, string) error { return nil }

func (s *stubService) ListChannels(string) (*recording.Info, error) { return nil, nil }

func (s *stubService) GetLastError() string { return "" }

func (s *stubService) ListRuns() ([]*store.Run, error) { return s.runs, nil }

func (s *stubService) GetRun(id string) (*store.Run, error) {
	for _, run := range s.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
}

func (s *stubService) LoadProfile(profile string) error {
	if profile != "lab" {
		return fmt.Errorf("failed to load profile '%s'", profile)
	}
	s.profile = profile
	s.cfg.Profile = profile
	return nil
}

func (s *stubService) GetConfig() *config.Config { return s.cfg }

func (s *stubService) Close() error { return nil }

func newTestServer(t *testing.T, svc *stubService, configFile string) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.AddEpochs(3)
	srv := NewWithService(svc, configFile, "0", reg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func defaultStub() *stubService {
	cfg := config.Default()
	cfg.Profile = "default"
	cfg.Channels = []config.Channel{{Name: "c4", Label: "C4-M1", Role: "eeg"}}
	return &stubService{cfg: cfg}
}

func upload(t *testing.T, url, filename string, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("recording", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("0       edf bytes"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/api/stage", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandleStage(t *testing.T) {
	svc := defaultStub()
	ts := newTestServer(t, svc, "")

	resp := upload(t, ts.URL, "night1.edf", map[string]string{"majority_only": "true"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, true, body["success"])

	result := body["result"].(map[string]interface{})
	assert.Equal(t, []interface{}{"W", "N2"}, result["hypnogram"])
	assert.Equal(t, "run-1", result["run_id"])
	proba := result["probabilities"].(map[string]interface{})
	assert.Equal(t, []interface{}{"W", "N2"}, proba["labels"])

	assert.Equal(t, "night1.edf", svc.gotName)
	assert.Equal(t, "0       edf bytes", string(svc.gotBody))
	assert.True(t, svc.gotOpts.MajorityOnly)
	assert.True(t, svc.gotOpts.Save)
}

func TestHandleStage_BadRequests(t *testing.T) {
	ts := newTestServer(t, defaultStub(), "")

	resp := upload(t, ts.URL, "night1.wav", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, decode(t, resp)["success"])

	resp = upload(t, ts.URL, "night1.edf", map[string]string{"majority_only": "sometimes"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	get, err := http.Get(ts.URL + "/api/stage")
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)
}

func TestHandleStage_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{errs.Invalid("duration", "2.00 min", "at least 5 minutes of data is required"), http.StatusUnprocessableEntity},
		{fmt.Errorf("predict: %w", &errs.FeatureMismatchError{TableOnly: []string{"eeg_std"}}), http.StatusUnprocessableEntity},
		{&errs.ModelNotFoundError{Path: "/models/clf_eeg_lin_0.1.0.yaml"}, http.StatusNotFound},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := defaultStub()
		svc.stageErr = tc.err
		ts := newTestServer(t, svc, "")

		resp := upload(t, ts.URL, "night1.edf", nil)
		assert.Equal(t, tc.code, resp.StatusCode, tc.err.Error())
		body := decode(t, resp)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, tc.err.Error(), body["error"])
	}
}

func TestHandleRuns(t *testing.T) {
	svc := defaultStub()
	svc.runs = []*store.Run{
		{ID: "b", RecordingPath: "b.edf", Hypnogram: []string{"W", "W", "N1"}, CreatedAt: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
		{ID: "a", RecordingPath: "a.edf", Hypnogram: []string{"W"}, CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	ts := newTestServer(t, svc, "")

	resp, err := http.Get(ts.URL + "/api/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Runs  []RunSummary `json:"runs"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "b", list.Runs[0].ID)
	assert.Equal(t, 3, list.Runs[0].Epochs)

	one, err := http.Get(ts.URL + "/api/runs/a")
	require.NoError(t, err)
	defer one.Body.Close()
	require.Equal(t, http.StatusOK, one.StatusCode)
	var run store.Run
	require.NoError(t, json.NewDecoder(one.Body).Decode(&run))
	assert.Equal(t, "a.edf", run.RecordingPath)

	missing, err := http.Get(ts.URL + "/api/runs/zzz")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHandleStatusAndMetrics(t *testing.T) {
	ts := newTestServer(t, defaultStub(), "")

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "default", status.ActiveProfile)
	assert.Equal(t, 30.0, status.EpochSeconds)
	require.Len(t, status.Channels, 1)
	assert.Equal(t, "eeg", status.Channels[0].Role)

	m, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	text, err := io.ReadAll(m.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "sleepstage_pipeline_epochs_total 3")
}

func TestProfiles(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "sleepstage.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
active_config: default
definitions:
  channels:
    - id: c4
      label: C4-M1
      role: eeg
configs:
  default:
    channels:
      - ref: c4
  lab:
    channels:
      - ref: c4
    epoch:
      seconds: 20
`), 0644))

	svc := defaultStub()
	ts := newTestServer(t, svc, configFile)

	resp, err := http.Get(ts.URL + "/config/profiles")
	require.NoError(t, err)
	defer resp.Body.Close()
	body := decode(t, resp)
	assert.Equal(t, []interface{}{"default", "lab"}, body["profiles"])

	sel, err := http.PostForm(ts.URL+"/config/select", map[string][]string{"profile": {"lab"}})
	require.NoError(t, err)
	defer sel.Body.Close()
	require.Equal(t, http.StatusOK, sel.StatusCode)
	assert.Equal(t, "lab", svc.profile)

	data, err := os.ReadFile(configFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "active_config: lab"))

	bad, err := http.PostForm(ts.URL+"/config/select", map[string][]string{"profile": {"studio"}})
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}
