package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/sleepstage/internal/classifier"
	"github.com/audiolibrelab/sleepstage/internal/config"
	"github.com/audiolibrelab/sleepstage/internal/export"
	"github.com/audiolibrelab/sleepstage/internal/features"
	"github.com/audiolibrelab/sleepstage/internal/metrics"
	"github.com/audiolibrelab/sleepstage/internal/recording"
	"github.com/audiolibrelab/sleepstage/internal/staging"
	"github.com/audiolibrelab/sleepstage/internal/store"
)

// Service represents the core sleep staging service interface
type Service interface {
	// Staging operations
	Features(recordingPath string) (*features.Table, error)
	Stage(recordingPath string, opts StageOptions) (*StageResult, error)
	StageReader(name string, r io.ReadSeeker, opts StageOptions) (*StageResult, error)

	// Pipeline operations
	RunPipeline(recordingPath string, steps string) error

	// Information operations
	ListChannels(recordingPath string) (*recording.Info, error)
	GetLastError() string

	// Run history
	ListRuns() ([]*store.Run, error)
	GetRun(id string) (*store.Run, error)

	// Configuration operations
	LoadProfile(profile string) error
	GetConfig() *config.Config

	Close() error
}

// StageOptions tunes a single staging call
type StageOptions struct {
	// ModelRef overrides the configured model reference when set
	ModelRef     string
	MajorityOnly bool
	// Save records the run in the run store
	Save bool
}

// StageResult is the outcome of staging one recording
type StageResult struct {
	RunID          string                 `json:"run_id,omitempty"`
	Recording      string                 `json:"recording"`
	ModelRef       string                 `json:"model_ref"`
	EpochSeconds   float64                `json:"epoch_seconds"`
	Channels       map[string]string      `json:"channels"` // role -> recording label
	Onsets         []float64              `json:"onsets"`
	Hypnogram      []string               `json:"hypnogram"`
	Probabilities  *staging.Probabilities `json:"probabilities"`
	FeatureColumns []string               `json:"feature_columns"`
}

// SleepStageService is the main service implementation
type SleepStageService struct {
	cfg        *config.Config
	configFile string
	metrics    *metrics.Metrics
	resolver   staging.ClassifierResolver

	// Serialises staging work and configuration swaps
	mu    sync.Mutex
	store *store.Store

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a new service instance. m may be nil.
func New(cfg *config.Config, configFile string, m *metrics.Metrics) Service {
	return &SleepStageService{
		cfg:        cfg,
		configFile: configFile,
		metrics:    m,
		resolver:   resolverFor(cfg),
	}
}

func resolverFor(cfg *config.Config) staging.ClassifierResolver {
	return &classifier.ConventionResolver{Directory: cfg.Model.Directory, Version: cfg.Model.Version}
}

// labels returns the recording channels named by the configuration
func (s *SleepStageService) labels() []string {
	out := make([]string, len(s.cfg.Channels))
	for i, ch := range s.cfg.Channels {
		out[i] = ch.Label
	}
	return out
}

// newPipeline assigns roles from the configuration and builds a pipeline
func (s *SleepStageService) newPipeline(rec *recording.Recording) (*staging.Pipeline, error) {
	picks := make([]staging.ChannelPick, 0, len(s.cfg.Channels))
	for _, ch := range s.cfg.Channels {
		role, err := recording.ParseRole(ch.Role)
		if err != nil {
			return nil, err
		}
		picks = append(picks, staging.ChannelPick{Role: role, Label: ch.Label})
	}
	meta, err := s.cfg.SubjectMetadata()
	if err != nil {
		return nil, err
	}
	opts := features.Options{
		EpochSeconds:    s.cfg.Epoch.Seconds,
		CenteredMinutes: s.cfg.Smoothing.CenteredMinutes,
		PastMinutes:     s.cfg.Smoothing.PastMinutes,
	}
	return staging.New(rec, picks, meta, opts)
}

func (s *SleepStageService) fit(p *staging.Pipeline) error {
	start := time.Now()
	if err := p.Fit(); err != nil {
		return err
	}
	s.metrics.ObserveStep(metrics.StepFit, start)
	rows, _ := p.EpochOnsets()
	s.metrics.AddEpochs(len(rows))
	return nil
}

func (s *SleepStageService) predict(p *staging.Pipeline, ref string) (*staging.Probabilities, error) {
	start := time.Now()
	if _, err := p.PredictRef(s.resolver, ref); err != nil {
		return nil, err
	}
	proba, err := p.PredictProbaRef(s.resolver, ref)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveStep(metrics.StepPredict, start)
	return proba, nil
}

// Features extracts the feature table of a recording
func (s *SleepStageService) Features(recordingPath string) (*features.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLastError()

	rec, err := recording.LoadEDF(recordingPath, s.labels()...)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to load recording: %v", err))
		return nil, err
	}
	p, err := s.newPipeline(rec)
	if err != nil {
		s.setLastError(fmt.Sprintf("Invalid recording: %v", err))
		return nil, err
	}
	if err := s.fit(p); err != nil {
		s.setLastError(fmt.Sprintf("Feature extraction failed: %v", err))
		return nil, err
	}
	return p.Features()
}

// Stage loads a recording from disk and predicts its hypnogram
func (s *SleepStageService) Stage(recordingPath string, opts StageOptions) (*StageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLastError()

	rec, err := recording.LoadEDF(recordingPath, s.labels()...)
	if err != nil {
		s.metrics.RecordRun(err)
		s.setLastError(fmt.Sprintf("Failed to load recording: %v", err))
		return nil, err
	}
	return s.stage(recordingPath, rec, opts)
}

// StageReader stages an EDF stream such as an upload
func (s *SleepStageService) StageReader(name string, r io.ReadSeeker, opts StageOptions) (*StageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLastError()

	rec, err := recording.ReadEDF(r, s.labels()...)
	if err != nil {
		s.metrics.RecordRun(err)
		s.setLastError(fmt.Sprintf("Failed to read recording: %v", err))
		return nil, err
	}
	return s.stage(name, rec, opts)
}

func (s *SleepStageService) stage(name string, rec *recording.Recording, opts StageOptions) (*StageResult, error) {
	res, err := s.runStage(name, rec, opts)
	s.metrics.RecordRun(err)
	if err != nil {
		s.setLastError(fmt.Sprintf("Staging failed: %v", err))
		return nil, err
	}
	slog.Info("Recording staged", "recording", name, "epochs", len(res.Hypnogram), "model", res.ModelRef)
	return res, nil
}

func (s *SleepStageService) runStage(name string, rec *recording.Recording, opts StageOptions) (*StageResult, error) {
	ref := opts.ModelRef
	if ref == "" {
		ref = s.cfg.Model.Path
	}

	p, err := s.newPipeline(rec)
	if err != nil {
		return nil, err
	}
	if err := s.fit(p); err != nil {
		return nil, err
	}
	proba, err := s.predict(p, ref)
	if err != nil {
		return nil, err
	}
	hyp, _ := p.Hypnogram()
	onsets, _ := p.EpochOnsets()
	names, _ := p.FeatureNames()
	channels := make(map[string]string)
	for _, pick := range p.Picks() {
		channels[string(pick.Role)] = pick.Label
	}

	res := &StageResult{
		Recording:      name,
		ModelRef:       ref,
		EpochSeconds:   p.Options().EpochSeconds,
		Channels:       channels,
		Onsets:         onsets,
		Hypnogram:      hyp,
		Probabilities:  proba,
		FeatureColumns: names,
	}
	if opts.MajorityOnly {
		res.Probabilities = proba.MajorityOnly()
	}

	if opts.Save {
		id, err := s.saveRun(res, proba)
		if err != nil {
			return nil, err
		}
		res.RunID = id
	}
	return res, nil
}

func (s *SleepStageService) saveRun(res *StageResult, proba *staging.Probabilities) (string, error) {
	st, err := s.runStore()
	if err != nil {
		return "", err
	}
	run := &store.Run{
		RecordingPath:  res.Recording,
		Profile:        s.cfg.Profile,
		ModelRef:       res.ModelRef,
		EpochSeconds:   res.EpochSeconds,
		Onsets:         res.Onsets,
		Hypnogram:      res.Hypnogram,
		Classes:        proba.Labels,
		Probabilities:  proba.Values,
		FeatureColumns: res.FeatureColumns,
	}
	if err := st.Save(run); err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}
	slog.Debug("Run saved", "id", run.ID)
	return run.ID, nil
}

// RunPipeline executes a sequence of operations (f=features, h=hypnogram, p=probabilities)
// and writes each result to the output directory
func (s *SleepStageService) RunPipeline(recordingPath string, steps string) error {
	for _, step := range steps {
		if !strings.ContainsRune("fhp", step) {
			return fmt.Errorf("unknown pipeline step: '%c' (valid: f=features, h=hypnogram, p=probabilities)", step)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLastError()

	err := s.runPipeline(recordingPath, steps)
	if err != nil {
		s.setLastError(fmt.Sprintf("Pipeline failed: %v", err))
	}
	return err
}

func (s *SleepStageService) runPipeline(recordingPath, steps string) error {
	enc, ok := export.Lookup(s.cfg.Output.Format)
	if !ok {
		return fmt.Errorf("unknown output format %q", s.cfg.Output.Format)
	}
	if err := os.MkdirAll(s.cfg.Output.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	rec, err := recording.LoadEDF(recordingPath, s.labels()...)
	if err != nil {
		return err
	}
	p, err := s.newPipeline(rec)
	if err != nil {
		return err
	}
	if err := s.fit(p); err != nil {
		return err
	}

	outPath := func(kind string) string { return OutputPath(s.cfg, recordingPath, kind) }

	var predicted *staging.Probabilities
	for _, step := range steps {
		switch step {
		case 'f':
			table, err := p.Features()
			if err != nil {
				return err
			}
			if err := writeFile(outPath(KindFeatures), func(w io.Writer) error { return enc.Features(w, table) }); err != nil {
				return fmt.Errorf("pipeline features failed: %w", err)
			}
		case 'h', 'p':
			if predicted == nil {
				proba, err := s.predict(p, s.cfg.Model.Path)
				s.metrics.RecordRun(err)
				if err != nil {
					return fmt.Errorf("pipeline prediction failed: %w", err)
				}
				predicted = proba
			}
			onsets, _ := p.EpochOnsets()
			var err error
			if step == 'h' {
				hyp, _ := p.Hypnogram()
				h := export.Hypnogram{Onsets: onsets, Stages: hyp, Confidence: predicted.Confidence()}
				err = writeFile(outPath(KindHypnogram), func(w io.Writer) error { return enc.Hypnogram(w, h) })
			} else {
				err = writeFile(outPath(KindProbabilities), func(w io.Writer) error { return enc.Probabilities(w, predicted, onsets) })
			}
			if err != nil {
				return fmt.Errorf("pipeline export failed: %w", err)
			}
		}
	}

	if predicted != nil && s.cfg.Store.Path != "" {
		hyp, _ := p.Hypnogram()
		onsets, _ := p.EpochOnsets()
		names, _ := p.FeatureNames()
		res := &StageResult{
			Recording:      recordingPath,
			ModelRef:       s.cfg.Model.Path,
			EpochSeconds:   p.Options().EpochSeconds,
			Onsets:         onsets,
			Hypnogram:      hyp,
			FeatureColumns: names,
		}
		if _, err := s.saveRun(res, predicted); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("Output saved to", "file", path)
	return nil
}

// ListChannels returns the header information of a recording
func (s *SleepStageService) ListChannels(recordingPath string) (*recording.Info, error) {
	return recording.Inspect(recordingPath)
}

// ListRuns returns the stored runs, newest first
func (s *SleepStageService) ListRuns() ([]*store.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.runStore()
	if err != nil {
		return nil, err
	}
	return st.List()
}

func (s *SleepStageService) GetRun(id string) (*store.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.runStore()
	if err != nil {
		return nil, err
	}
	return st.Get(id)
}

// runStore opens the run store on first use. Callers hold s.mu.
func (s *SleepStageService) runStore() (*store.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	if s.cfg.Store.Path == "" {
		return nil, errors.New("no run store configured")
	}
	st, err := store.Open(s.cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	s.store = st
	return st, nil
}

// LoadProfile loads a new configuration profile
func (s *SleepStageService) LoadProfile(profile string) error {
	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Reopen the store lazily if the profile moved it
	if s.store != nil && newCfg.Store.Path != s.cfg.Store.Path {
		if err := s.store.Close(); err != nil {
			slog.Warn("Failed to close run store", "error", err)
		}
		s.store = nil
	}

	s.cfg = newCfg
	s.resolver = resolverFor(newCfg)
	return nil
}

// GetConfig returns the current configuration
func (s *SleepStageService) GetConfig() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *SleepStageService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}

// Output kinds written by RunPipeline
const (
	KindFeatures      = "features"
	KindHypnogram     = "hypnogram"
	KindProbabilities = "probabilities"
)

// OutputPath is where RunPipeline writes one kind of output for a recording
func OutputPath(cfg *config.Config, recordingPath, kind string) string {
	base := cleanFileName(strings.TrimSuffix(filepath.Base(recordingPath), filepath.Ext(recordingPath)))
	ext := cfg.Output.Format
	if enc, ok := export.Lookup(cfg.Output.Format); ok {
		ext = enc.Extension()
	}
	return filepath.Join(cfg.Output.Directory, fmt.Sprintf("%s_%s.%s", base, kind, ext))
}

// Helper functions

func cleanFileName(name string) string {
	// Keep letters, digits, dashes and underscores; spaces become underscores
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(result.String()), " ", "_")
}

// GetLastError returns the last error message (thread-safe)
func (s *SleepStageService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *SleepStageService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *SleepStageService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
