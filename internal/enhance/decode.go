package enhance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"insight/internal/domain"
)

// ErrMalformedOutput marks a provider answer that does not match the
// required shape.
var ErrMalformedOutput = errors.New("malformed enhancement output")

// strictOutput uses pointers so a missing key is distinguishable from an
// empty array.
type strictOutput struct {
	Signals            *[]string `json:"signals"`
	Drift              *[]string `json:"drift"`
	DecisionPressure   *[]string `json:"decision_pressure"`
	RecommendedActions *[]string `json:"recommended_actions"`
	Watchlist          *[]string `json:"watchlist"`
}

// Decode parses a provider answer. Unknown keys, missing keys, non-string
// items and trailing content are all rejected.
func Decode(content []byte) (*domain.Enhancement, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()

	var out strictOutput
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing content", ErrMalformedOutput)
	}

	fields := []struct {
		name string
		val  *[]string
	}{
		{"signals", out.Signals},
		{"drift", out.Drift},
		{"decision_pressure", out.DecisionPressure},
		{"recommended_actions", out.RecommendedActions},
		{"watchlist", out.Watchlist},
	}
	for _, f := range fields {
		if f.val == nil {
			return nil, fmt.Errorf("%w: %s is required", ErrMalformedOutput, f.name)
		}
	}

	return &domain.Enhancement{
		Signals:            *out.Signals,
		Drift:              *out.Drift,
		DecisionPressure:   *out.DecisionPressure,
		RecommendedActions: *out.RecommendedActions,
		Watchlist:          *out.Watchlist,
	}, nil
}
