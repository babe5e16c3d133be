package recording

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/OpenPSG/edf"

	"github.com/audiolibrelab/sleepstage/internal/dsp"
	"github.com/audiolibrelab/sleepstage/internal/errs"
)

const annotationLabel = "EDF Annotations"

// SignalInfo describes one signal of an EDF file.
type SignalInfo struct {
	Index        int
	Label        string
	Transducer   string
	Dimension    string
	SamplingRate float64
	Samples      int
	Annotation   bool
}

// Info summarises an EDF file header.
type Info struct {
	Path           string
	PatientID      string
	RecordingID    string
	Start          time.Time
	Records        int
	RecordDuration time.Duration
	Signals        []SignalInfo
}

// Duration is the nominal length of the recording.
func (i *Info) Duration() time.Duration {
	return time.Duration(i.Records) * i.RecordDuration
}

// Inspect reads only the header of an EDF/EDF+ file.
func Inspect(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	hdr, err := readHeader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	info := headerInfo(hdr)
	info.Path = path
	return info, nil
}

// LoadEDF reads the named channels (all data channels when none are given)
// from an EDF/EDF+ file.
func LoadEDF(path string, labels ...string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	rec, err := ReadEDF(f, labels...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return rec, nil
}

// ReadEDF decodes an EDF/EDF+ stream. Samples are converted to volts and
// channels recorded at different rates are resampled to the highest one.
func ReadEDF(r io.ReadSeeker, labels ...string) (*Recording, error) {
	hdr, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if hdr.DataRecords < 0 {
		return nil, fmt.Errorf("unknown number of data records (file was not closed properly)")
	}
	if hdr.DataRecordDuration <= 0 {
		return nil, fmt.Errorf("invalid data record duration %s", hdr.DataRecordDuration)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind: %w", err)
	}
	er, err := edf.Open(r)
	if err != nil {
		return nil, err
	}

	indices, err := selectSignals(hdr, labels)
	if err != nil {
		return nil, err
	}

	rates := make([]float64, len(indices))
	channels := make([]Channel, len(indices))
	maxRate := 0.0
	for k, idx := range indices {
		sig := hdr.Signals[idx]
		rates[k] = float64(sig.SamplesPerRecord) / hdr.DataRecordDuration.Seconds()
		maxRate = math.Max(maxRate, rates[k])

		samples, err := readSignal(er, idx, sig.SamplesPerRecord*hdr.DataRecords)
		if err != nil {
			return nil, fmt.Errorf("failed to read signal %q: %w", sig.Label, err)
		}
		scale := voltsPerUnit(sig.PhysicalDimension)
		for i := range samples {
			samples[i] *= scale
		}
		channels[k] = Channel{Label: sig.Label, Dimension: sig.PhysicalDimension, Samples: samples}
	}

	for k := range channels {
		if rates[k] != maxRate {
			slog.Debug("Resampling channel", "channel", channels[k].Label, "from", rates[k], "to", maxRate)
			channels[k].Samples = dsp.Resample(channels[k].Samples, rates[k], maxRate)
		}
	}

	return &Recording{
		SamplingRate: maxRate,
		Start:        hdr.StartTime,
		Channels:     channels,
	}, nil
}

func selectSignals(hdr *edf.Header, labels []string) ([]int, error) {
	var available []string
	byLabel := make(map[string]int)
	for i, sig := range hdr.Signals {
		if sig.Label == annotationLabel {
			continue
		}
		available = append(available, sig.Label)
		if _, dup := byLabel[sig.Label]; !dup {
			byLabel[sig.Label] = i
		}
	}

	if len(labels) == 0 {
		indices := make([]int, 0, len(available))
		for i, sig := range hdr.Signals {
			if sig.Label != annotationLabel {
				indices = append(indices, i)
			}
		}
		if len(indices) == 0 {
			return nil, fmt.Errorf("recording has no data signals")
		}
		return indices, nil
	}

	indices := make([]int, 0, len(labels))
	seen := make(map[string]bool)
	for _, label := range labels {
		if seen[label] {
			continue
		}
		seen[label] = true
		idx, ok := byLabel[label]
		if !ok {
			return nil, errs.Invalid("channel", strconv.Quote(label), "not found in recording (available: %s)", strings.Join(available, ", "))
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

func readSignal(er *edf.Reader, idx, total int) ([]float64, error) {
	sr, err := er.Signal(idx)
	if err != nil {
		return nil, err
	}
	samples := make([]float64, total)
	n, err := sr.Read(samples)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return samples[:n], nil
}

// voltsPerUnit maps an EDF physical dimension to a factor converting to
// volts. An empty dimension is taken as microvolts. Non-electrical units
// such as bpm or g keep their values.
func voltsPerUnit(dim string) float64 {
	switch strings.ToLower(strings.TrimSpace(dim)) {
	case "v":
		return 1
	case "mv":
		return 1e-3
	case "uv", "µv", "μv", "":
		return 1e-6
	case "nv":
		return 1e-9
	default:
		return 1
	}
}

// isVoltage reports whether dim is converted to volts on load.
func isVoltage(dim string) bool {
	switch strings.ToLower(strings.TrimSpace(dim)) {
	case "v", "mv", "uv", "µv", "μv", "nv", "":
		return true
	}
	return false
}

func headerInfo(hdr *edf.Header) *Info {
	info := &Info{
		PatientID:      hdr.PatientID,
		RecordingID:    hdr.RecordingID,
		Start:          hdr.StartTime,
		Records:        hdr.DataRecords,
		RecordDuration: hdr.DataRecordDuration,
	}
	for i, sig := range hdr.Signals {
		si := SignalInfo{
			Index:      i,
			Label:      sig.Label,
			Transducer: sig.TransducerType,
			Dimension:  sig.PhysicalDimension,
			Samples:    sig.SamplesPerRecord * max(hdr.DataRecords, 0),
			Annotation: sig.Label == annotationLabel,
		}
		if hdr.DataRecordDuration > 0 {
			si.SamplingRate = float64(sig.SamplesPerRecord) / hdr.DataRecordDuration.Seconds()
		}
		info.Signals = append(info.Signals, si)
	}
	return info
}

// readHeader decodes the fixed-width EDF header into the edf package's
// Header type. The reader of that package keeps its header private, so the
// per-signal fields needed to select channels are parsed here.
func readHeader(r io.ReadSeeker) (*edf.Header, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind: %w", err)
	}

	fixed := make([]byte, 256)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}
	field := func(b []byte, from, to int) string {
		return strings.TrimSpace(string(b[from:to]))
	}

	hdr := &edf.Header{
		Version:     edf.Version(field(fixed, 0, 8)),
		PatientID:   field(fixed, 8, 88),
		RecordingID: field(fixed, 88, 168),
	}
	if start, err := time.Parse("02.01.06 15.04.05", field(fixed, 168, 176)+" "+field(fixed, 176, 184)); err == nil {
		hdr.StartTime = start
	}

	var err error
	if hdr.HeaderBytes, err = strconv.Atoi(field(fixed, 184, 192)); err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}
	if hdr.DataRecords, err = strconv.Atoi(field(fixed, 236, 244)); err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}
	seconds, err := strconv.ParseFloat(field(fixed, 244, 252), 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}
	hdr.DataRecordDuration = time.Duration(seconds * float64(time.Second))
	if hdr.SignalCount, err = strconv.Atoi(field(fixed, 252, 256)); err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}
	if hdr.SignalCount <= 0 {
		return nil, fmt.Errorf("invalid signal count %d", hdr.SignalCount)
	}

	ns := hdr.SignalCount
	block := make([]byte, 256*ns)
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, fmt.Errorf("error reading signal headers: %w", err)
	}

	// Signal fields are stored column by column: all labels, then all
	// transducers, and so on.
	widths := []int{16, 80, 8, 8, 8, 8, 8, 80, 8, 32}
	offsets := make([]int, len(widths))
	for i := 1; i < len(widths); i++ {
		offsets[i] = offsets[i-1] + widths[i-1]*ns
	}
	at := func(col, sig int) string {
		from := offsets[col] + sig*widths[col]
		return field(block, from, from+widths[col])
	}

	hdr.Signals = make([]edf.SignalHeader, ns)
	for i := range hdr.Signals {
		s := &hdr.Signals[i]
		s.Label = at(0, i)
		s.TransducerType = at(1, i)
		s.PhysicalDimension = at(2, i)
		s.PhysicalMin, _ = strconv.ParseFloat(at(3, i), 64)
		s.PhysicalMax, _ = strconv.ParseFloat(at(4, i), 64)
		s.DigitalMin, _ = strconv.Atoi(at(5, i))
		s.DigitalMax, _ = strconv.Atoi(at(6, i))
		s.Prefiltering = at(7, i)
		if s.SamplesPerRecord, err = strconv.Atoi(at(8, i)); err != nil {
			return nil, fmt.Errorf("error parsing samples per record of signal %d: %w", i, err)
		}
		s.Reserved = at(9, i)
	}
	return hdr, nil
}
