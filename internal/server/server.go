package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiolibrelab/sleepstage/internal/config"
	"github.com/audiolibrelab/sleepstage/internal/errs"
	"github.com/audiolibrelab/sleepstage/internal/metrics"
	"github.com/audiolibrelab/sleepstage/internal/service"
	"github.com/audiolibrelab/sleepstage/internal/store"
)

// maxUploadMemory is the part of a multipart upload kept in memory; the
// rest spills to temporary files.
const maxUploadMemory = 32 << 20

// Server exposes the staging service over HTTP
type Server struct {
	service    service.Service
	configFile string
	port       string
	registry   *prometheus.Registry
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status        string        `json:"status"`
	ActiveProfile string        `json:"active_profile"`
	Channels      []ChannelInfo `json:"channels"`
	EpochSeconds  float64       `json:"epoch_seconds"`
	Model         ModelInfo     `json:"model"`
	OutputFormat  string        `json:"output_format"`
	LastError     string        `json:"last_error,omitempty"`
}

// ChannelInfo represents channel information for clients
type ChannelInfo struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Role        string `json:"role"`
	Inheritance string `json:"inheritance,omitempty"` // "inherited" or "profile-specific"
}

type ModelInfo struct {
	Path      string `json:"path"`
	Directory string `json:"directory"`
	Version   string `json:"version"`
}

// RunSummary is one entry of the run listing
type RunSummary struct {
	ID            string    `json:"id"`
	RecordingPath string    `json:"recording_path"`
	Profile       string    `json:"profile,omitempty"`
	ModelRef      string    `json:"model_ref"`
	Epochs        int       `json:"epochs"`
	CreatedAt     time.Time `json:"created_at"`
}

// New creates a new web server instance
func New(configFile string, port string) (*Server, error) {
	// Load configuration with active profile from config file
	cfg, err := config.LoadWithProfile(configFile, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc := service.New(cfg, configFile, metrics.New(reg))

	return NewWithService(svc, configFile, port, reg), nil
}

// NewWithService wraps an existing service. reg backs the /metrics endpoint.
func NewWithService(svc service.Service, configFile, port string, reg *prometheus.Registry) *Server {
	return &Server{
		service:    svc,
		configFile: configFile,
		port:       port,
		registry:   reg,
	}
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stage", s.handleStage)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRun)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/config/profiles", s.handleProfiles)
	mux.HandleFunc("/config/select", s.handleSelectProfile)
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start starts the web server
func (s *Server) Start() error {
	defer s.service.Close()

	// Get local IP address
	localIP := getLocalIP()

	slog.Info("Starting SleepStage Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	return http.ListenAndServe(":"+s.port, s.Handler())
}

// handleStage stages an uploaded EDF recording
func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse multipart form", "error", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, handler, err := r.FormFile("recording")
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "No recording file provided")
		return
	}
	defer file.Close()

	if ext := strings.ToLower(filepath.Ext(handler.Filename)); ext != ".edf" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid recording format. Supported: EDF, EDF+")
		return
	}

	opts := service.StageOptions{ModelRef: r.FormValue("model"), Save: true}
	for name, dst := range map[string]*bool{"majority_only": &opts.MajorityOnly, "save": &opts.Save} {
		v := r.FormValue(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s value %q", name, v))
			return
		}
		*dst = b
	}

	slog.Debug("Stage request", "file", handler.Filename, "size", handler.Size, "majority_only", opts.MajorityOnly)
	result, err := s.service.StageReader(filepath.Base(handler.Filename), file, opts)
	if err != nil {
		s.sendErrorResponse(w, errorStatus(err), err.Error(), "file", handler.Filename)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  result,
	})
}

// handleRuns lists stored runs, newest first
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	runs, err := s.service.ListRuns()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list runs: %v", err))
		return
	}

	summaries := make([]RunSummary, len(runs))
	for i, run := range runs {
		summaries[i] = RunSummary{
			ID:            run.ID,
			RecordingPath: run.RecordingPath,
			Profile:       run.Profile,
			ModelRef:      run.ModelRef,
			Epochs:        len(run.Hypnogram),
			CreatedAt:     run.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  summaries,
		"count": len(summaries),
	})
}

// handleRun returns one stored run
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if id == "" || strings.Contains(id, "/") {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	run, err := s.service.GetRun(id)
	if err != nil {
		s.sendErrorResponse(w, errorStatus(err), err.Error(), "run_id", id)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := s.service.GetConfig()
	channels := make([]ChannelInfo, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		channels[i] = ChannelInfo{Name: ch.Name, Label: ch.Label, Role: ch.Role}
		if cfg.Inheritance != nil {
			channels[i].Inheritance = cfg.Inheritance.Channels
		}
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:        "ok",
		ActiveProfile: cfg.Profile,
		Channels:      channels,
		EpochSeconds:  cfg.Epoch.Seconds,
		Model:         ModelInfo{Path: cfg.Model.Path, Directory: cfg.Model.Directory, Version: cfg.Model.Version},
		OutputFormat:  cfg.Output.Format,
		LastError:     s.service.GetLastError(),
	})
}

// handleProfiles returns available configuration profiles
func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	profiles, err := s.availableProfiles()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read profiles: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": profiles,
		"active":   s.service.GetConfig().Profile,
	})
}

func (s *Server) availableProfiles() ([]string, error) {
	rootConfig, err := config.ValidateConfigurationFormat(s.configFile)
	if err != nil {
		return nil, err
	}
	profiles := make([]string, 0, len(rootConfig.Configs))
	for name := range rootConfig.Configs {
		profiles = append(profiles, name)
	}
	sort.Strings(profiles)
	return profiles, nil
}

func (s *Server) handleSelectProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Parse form data
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	profile := r.FormValue("profile")
	slog.Debug("Profile selection request", "profile", profile)

	if err := s.service.LoadProfile(profile); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "profile", profile)
		return
	}

	// Update the active_config in the config file
	if err := config.UpdateActiveConfig(s.configFile, profile); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to save profile selection to config file: %v", err))
		return
	}

	slog.Info("Profile changed", "profile", profile)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Profile changed to %s", profile),
		"profile": profile,
	})
}

// errorStatus maps service errors to HTTP status codes
func errorStatus(err error) int {
	var (
		ive *errs.InputValidationError
		fm  *errs.FeatureMismatchError
		nf  *errs.ModelNotFoundError
	)
	switch {
	case errors.As(err, &ive), errors.As(err, &fm):
		return http.StatusUnprocessableEntity
	case errors.As(err, &nf), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	// Log the error with structured context
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
