package recording

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/OpenPSG/edf"
)

// maxRecordBytes is the EDF recommendation for one data record.
const maxRecordBytes = 61440

// WriteEDF stores rec as an EDF file with one-second data records. Voltage
// channels are written in microvolts, others in their own dimension. The
// sampling rate must be a whole number of Hz.
func WriteEDF(w io.WriteSeeker, rec *Recording) error {
	sf := rec.SamplingRate
	if sf <= 0 || sf != math.Trunc(sf) {
		return fmt.Errorf("sampling rate %g Hz is not a whole number", sf)
	}
	if len(rec.Channels) == 0 {
		return fmt.Errorf("recording has no channels")
	}
	spr := int(sf)
	if spr*len(rec.Channels)*2 > maxRecordBytes {
		return fmt.Errorf("%d channels at %g Hz exceed the data record size limit", len(rec.Channels), sf)
	}

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          "X",
		RecordingID:        "sleepstage",
		StartTime:          rec.Start,
		DataRecordDuration: time.Second,
		SignalCount:        len(rec.Channels),
	}
	scales := make([]float64, len(rec.Channels))
	for i, ch := range rec.Channels {
		dim := "uV"
		scales[i] = 1e6
		if !isVoltage(ch.Dimension) {
			dim = ch.Dimension
			scales[i] = 1
		}
		lo, hi := physicalRange(ch.Samples, scales[i])
		hdr.Signals = append(hdr.Signals, edf.SignalHeader{
			Label:             ch.Label,
			PhysicalDimension: dim,
			PhysicalMin:       lo,
			PhysicalMax:       hi,
			DigitalMin:        math.MinInt16,
			DigitalMax:        math.MaxInt16,
			SamplesPerRecord:  spr,
		})
	}

	ew, err := edf.Create(w, hdr)
	if err != nil {
		return err
	}

	n := rec.Samples()
	record := make([][]float64, len(rec.Channels))
	for i := range record {
		record[i] = make([]float64, spr)
	}
	for start := 0; start+spr <= n; start += spr {
		for i, ch := range rec.Channels {
			for j := 0; j < spr; j++ {
				record[i][j] = ch.Samples[start+j] * scales[i]
			}
		}
		if err := ew.WriteRecord(record); err != nil {
			return fmt.Errorf("failed to write data record: %w", err)
		}
	}
	return ew.Close()
}

// SaveEDF writes rec to a new file at path.
func SaveEDF(path string, rec *Recording) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteEDF(f, rec); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// physicalRange returns whole-unit bounds enclosing the samples once
// multiplied by scale. Header fields are eight characters wide.
func physicalRange(samples []float64, scale float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range samples {
		lo = math.Min(lo, v*scale)
		hi = math.Max(hi, v*scale)
	}
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return -1, 1
	}
	lo, hi = math.Floor(lo)-1, math.Ceil(hi)+1
	return lo, hi
}
