package scoring

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/PolloDK/FK01-Encuestas/internal/config"
	"github.com/PolloDK/FK01-Encuestas/internal/features"
)

// Scorer maps complete feature vectors to one prediction each.
type Scorer interface {
	Predict(ctx context.Context, rows [][]float64) ([]float64, error)
}

// MinMax mirrors a fitted min-max scaler: scaled = x*Scale + Min.
type MinMax struct {
	Min   []float64 `yaml:"min"`
	Scale []float64 `yaml:"scale"`
}

// LinearModel is a model bundle exported to YAML: the feature names it was
// trained on, its coefficients and optional input/output scalers.
type LinearModel struct {
	Target       string    `yaml:"target"`
	FeatureNames []string  `yaml:"feature_names"`
	Intercept    float64   `yaml:"intercept"`
	Coefficients []float64 `yaml:"coefficients"`
	ScalerX      *MinMax   `yaml:"scaler_x,omitempty"`
	ScalerY      *MinMax   `yaml:"scaler_y,omitempty"`
}

// LoadModel reads and validates a YAML bundle.
func LoadModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m LinearModel
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing model %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &m, nil
}

func (m *LinearModel) Validate() error {
	n := len(m.FeatureNames)
	if n == 0 {
		return fmt.Errorf("no feature_names")
	}
	if len(m.Coefficients) != n {
		return fmt.Errorf("%d coefficients for %d features", len(m.Coefficients), n)
	}
	if m.ScalerX != nil && (len(m.ScalerX.Min) != n || len(m.ScalerX.Scale) != n) {
		return fmt.Errorf("scaler_x must have %d entries", n)
	}
	if m.ScalerY != nil {
		if len(m.ScalerY.Min) != 1 || len(m.ScalerY.Scale) != 1 {
			return fmt.Errorf("scaler_y must have exactly one entry")
		}
		if m.ScalerY.Scale[0] == 0 {
			return fmt.Errorf("scaler_y scale is zero")
		}
	}
	return nil
}

// Predict scales inputs, applies the linear model and inverts the output scaler.
func (m *LinearModel) Predict(ctx context.Context, rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, x := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(x) != len(m.Coefficients) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(x), len(m.Coefficients))
		}
		y := m.Intercept
		for j, v := range x {
			if m.ScalerX != nil {
				v = v*m.ScalerX.Scale[j] + m.ScalerX.Min[j]
			}
			y += m.Coefficients[j] * v
		}
		if m.ScalerY != nil {
			y = (y - m.ScalerY.Min[0]) / m.ScalerY.Scale[0]
		}
		out[i] = y
	}
	return out, nil
}

// LoadTargets loads each configured bundle and gates it on the model's
// feature names. A bundle that fails to load is reported in errs and left
// out so the other target can still run.
func LoadTargets(models []config.ModelConfig) (targets []TargetModel, errs []error) {
	for _, mc := range models {
		m, err := LoadModel(mc.Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", mc.Target, err))
			continue
		}
		if m.Target != "" && m.Target != mc.Target {
			errs = append(errs, fmt.Errorf("%s: bundle %s was trained for %q", mc.Target, mc.Path, m.Target))
			continue
		}
		horizon := mc.HorizonColumn
		if horizon == "" {
			horizon = features.RollingColumn(mc.Target)
		}
		targets = append(targets, TargetModel{
			Target: mc.Target,
			Scorer: m,
			Gate:   Gate{Required: m.FeatureNames, HorizonColumn: horizon},
		})
	}
	return targets, errs
}
