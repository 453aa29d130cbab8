package sdr

import (
	"strconv"
	"strings"
	"time"

	"github.com/rjboer/noisemap/internal/model"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseLine decodes one acquisition output line:
//
//	date, time, freq_start, freq_stop, freq_step, sample_count, power_0, ..., power_{n-1}
//
// Timestamps are interpreted in local time, as written by the acquisition tool.
func ParseLine(line string) (model.PsdSample, error) {
	raw := line
	line = strings.TrimSpace(line)
	if line == "" {
		return model.PsdSample{}, &ParseError{Line: raw, Reason: "empty line"}
	}
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) < 6 {
		return model.PsdSample{}, &ParseError{Line: raw, Reason: "missing header fields"}
	}

	ts, err := parseTimestamp(fields[0] + " " + fields[1])
	if err != nil {
		return model.PsdSample{}, &ParseError{Line: raw, Reason: "bad timestamp"}
	}

	var header [3]float64
	for i := range header {
		v, err := strconv.ParseFloat(fields[2+i], 64)
		if err != nil {
			return model.PsdSample{}, &ParseError{Line: raw, Reason: "bad frequency field " + strconv.Itoa(2+i)}
		}
		header[i] = v
	}

	count, err := strconv.Atoi(fields[5])
	if err != nil || count < 0 {
		return model.PsdSample{}, &ParseError{Line: raw, Reason: "bad sample count"}
	}
	values := fields[6:]
	if len(values) != count {
		return model.PsdSample{}, &ParseError{Line: raw, Reason: "expected " + strconv.Itoa(count) + " power levels, got " + strconv.Itoa(len(values))}
	}

	levels := make([]float64, count)
	for i, s := range values {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.PsdSample{}, &ParseError{Line: raw, Reason: "bad power level " + strconv.Itoa(i)}
		}
		levels[i] = v
	}

	return model.PsdSample{
		Timestamp:      ts,
		FrequencyStart: header[0],
		FrequencyStop:  header[1],
		FrequencyStep:  header[2],
		SampleCount:    count,
		Levels:         levels,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	var err error
	for _, layout := range timestampLayouts {
		var ts time.Time
		ts, err = time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return ts, nil
		}
	}
	return time.Time{}, err
}

// FormatLine renders a sample in the acquisition output format.
func FormatLine(s model.PsdSample) string {
	var b strings.Builder
	b.WriteString(s.Timestamp.Format("2006-01-02, 15:04:05.000000"))
	for _, v := range []float64{s.FrequencyStart, s.FrequencyStop, s.FrequencyStep} {
		b.WriteString(", ")
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	b.WriteString(", ")
	b.WriteString(strconv.Itoa(len(s.Levels)))
	for _, v := range s.Levels {
		b.WriteString(", ")
		b.WriteString(strconv.FormatFloat(v, 'f', 2, 64))
	}
	return b.String()
}
