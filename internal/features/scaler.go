package features

import (
	"fmt"
	"time"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
)

// Counters are the engagement counters in column order.
var Counters = []string{"retweet_count", "reply_count", "like_count", "quote_count"}

func counterValues(e db.Engagement) [4]float64 {
	return [4]float64{float64(e.Retweets), float64(e.Replies), float64(e.Likes), float64(e.Quotes)}
}

// RobustScaler centers each counter on its median and divides by the
// interquartile range. A zero IQR scales by 1.
type RobustScaler struct {
	Center [4]float64
	Scale  [4]float64
}

// FitRobustScaler fits on every engagement observation.
func FitRobustScaler(obs []db.Engagement) (*RobustScaler, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("fitting scaler: no observations")
	}
	s := &RobustScaler{}
	col := make([]float64, len(obs))
	for c := range Counters {
		for i, e := range obs {
			col[i] = counterValues(e)[c]
		}
		sorted := sortedCopy(col)
		s.Center[c] = quantile(sorted, 0.5)
		iqr := quantile(sorted, 0.75) - quantile(sorted, 0.25)
		if iqr == 0 {
			iqr = 1
		}
		s.Scale[c] = iqr
	}
	return s, nil
}

// Transform returns the scaled counters in Counters order.
func (s *RobustScaler) Transform(e db.Engagement) [4]float64 {
	v := counterValues(e)
	for c := range v {
		v[c] = (v[c] - s.Center[c]) / s.Scale[c]
	}
	return v
}

// Params converts the scaler for persistence.
func (s *RobustScaler) Params(fittedAt time.Time) []db.ScalerParam {
	out := make([]db.ScalerParam, len(Counters))
	for c, name := range Counters {
		out[c] = db.ScalerParam{Counter: name, Center: s.Center[c], Scale: s.Scale[c], FittedAt: fittedAt}
	}
	return out
}

// ScalerFromParams restores a persisted scaler. ok is false when any counter
// is missing, meaning the scaler must be fitted.
func ScalerFromParams(params map[string]db.ScalerParam) (s *RobustScaler, ok bool) {
	s = &RobustScaler{}
	for c, name := range Counters {
		p, found := params[name]
		if !found || p.Scale == 0 {
			return nil, false
		}
		s.Center[c], s.Scale[c] = p.Center, p.Scale
	}
	return s, true
}
