package alert

import "fmt"

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Alert is a single stock-level alert raised by the evaluator.
type Alert struct {
	Severity Severity
	Message  string
}

// Thresholds configures the evaluator. Zero values fall back to defaults.
type Thresholds struct {
	LowStock          int // below this, a low-stock warning fires
	SignificantChange int // absolute stock delta above this is reported
}

// DefaultThresholds are the stock rules used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{LowStock: 10, SignificantChange: 50}
}

// Evaluator raises stock alerts. It is a pure function of its inputs; the
// caller decides how alerts are delivered.
type Evaluator struct {
	thresholds Thresholds
}

// NewEvaluator creates an evaluator with the given thresholds.
func NewEvaluator(t Thresholds) *Evaluator {
	defaults := DefaultThresholds()
	if t.LowStock <= 0 {
		t.LowStock = defaults.LowStock
	}
	if t.SignificantChange <= 0 {
		t.SignificantChange = defaults.SignificantChange
	}
	return &Evaluator{thresholds: t}
}

// Evaluate returns the full set of alerts for a stock update. Multiple alerts
// may fire for a single update.
func (e *Evaluator) Evaluate(previousStock, newStock int, productName string) []Alert {
	var alerts []Alert

	if newStock < e.thresholds.LowStock {
		alerts = append(alerts, Alert{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("LOW STOCK: %s has only %d units remaining", productName, newStock),
		})
	}

	if newStock == 0 {
		alerts = append(alerts, Alert{
			Severity: SeverityError,
			Message:  fmt.Sprintf("OUT OF STOCK: %s is now out of stock", productName),
		})
	}

	diff := previousStock - newStock
	if diff < 0 {
		diff = -diff
	}
	if diff > e.thresholds.SignificantChange {
		alerts = append(alerts, Alert{
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("significant stock change for %s: %d units", productName, previousStock-newStock),
		})
	}

	return alerts
}
