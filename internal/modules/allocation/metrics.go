package allocation

import (
	"math"

	"github.com/aristath/advisor/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Metrics are the expected risk/return characteristics of an allocation (annual, percent)
type Metrics struct {
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
}

// Metrics computes expected return, volatility and Sharpe ratio of a vector
// from the policy's class assumptions. Volatility is sqrt(wᵀΣw) with Σ built
// from class volatilities and the configured pairwise correlations.
func (m *Model) Metrics(v domain.Vector) (Metrics, error) {
	if err := v.Validate(); err != nil {
		return Metrics{}, err
	}

	classes := domain.AssetClasses()
	n := len(classes)
	returns := make([]float64, n)
	vols := make([]float64, n)
	for i, class := range classes {
		a := m.policy.ClassAssumptions[class]
		returns[i] = a.ExpectedReturn
		vols[i] = a.Volatility
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			corr := 1.0
			if i != j {
				corr = m.correlations[[2]domain.AssetClass{classes[i], classes[j]}]
			}
			cov.SetSym(i, j, vols[i]*vols[j]*corr)
		}
	}

	weights := v.Slice()
	w := mat.NewVecDense(n, weights)
	variance := mat.Inner(w, cov, w)

	metrics := Metrics{
		ExpectedReturn: floats.Dot(weights, returns),
		Volatility:     math.Sqrt(math.Max(variance, 0)),
	}
	if metrics.Volatility > 0 {
		metrics.SharpeRatio = (metrics.ExpectedReturn - m.policy.RiskFreeRate) / metrics.Volatility
	}
	return metrics, nil
}
