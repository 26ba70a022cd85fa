// internal/stream/deinterleave.go
package stream

// Record is one channel's time series. Values and Elapsed are aligned
// index for index; Elapsed is seconds since the first scan.
type Record struct {
	Values  []float64 `msgpack:"values" json:"values"`
	Elapsed []float64 `msgpack:"elapsed_s" json:"elapsed_s"`
}

// Len returns the number of samples in the record.
func (r Record) Len() int { return len(r.Values) }

// Deinterleave splits a round-robin sample sequence into per-channel records.
// Sample i belongs to channel i mod len(channels); its elapsed time is its
// index within that channel divided by scanRate.
func Deinterleave(flat []float64, channels []string, scanRate float64) map[string]Record {
	n := len(channels)
	out := make(map[string]Record, n)
	if n == 0 {
		return out
	}

	perChannel := (len(flat) + n - 1) / n
	values := make([][]float64, n)
	elapsed := make([][]float64, n)
	for c := range channels {
		values[c] = make([]float64, 0, perChannel)
		elapsed[c] = make([]float64, 0, perChannel)
	}

	for i, v := range flat {
		c := i % n
		local := i / n
		values[c] = append(values[c], v)
		elapsed[c] = append(elapsed[c], float64(local)/scanRate)
	}

	for c, name := range channels {
		out[name] = Record{Values: values[c], Elapsed: elapsed[c]}
	}
	return out
}

// Interleave is the inverse of Deinterleave over the values of records.
// Channels missing from records, or shorter than the longest one, stop the
// output at the first incomplete scan.
func Interleave(records map[string]Record, channels []string) []float64 {
	if len(channels) == 0 {
		return nil
	}
	scans := -1
	for _, name := range channels {
		l := records[name].Len()
		if scans < 0 || l < scans {
			scans = l
		}
	}
	out := make([]float64, 0, scans*len(channels))
	for s := 0; s < scans; s++ {
		for _, name := range channels {
			out = append(out, records[name].Values[s])
		}
	}
	return out
}
