package record

import "fmt"

// Tier health states. Degraded means the tier still answers but something
// behind it is off (slow backend, partial failure); unhealthy means it does
// not answer at all.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus is the result of a tier health check, or of combining
// several of them.
type HealthStatus struct {
	// Status is one of the Status* constants.
	Status string `json:"status"`

	// Message is a short human-readable explanation.
	Message string `json:"message,omitempty"`

	// Details carries backend-specific diagnostics, e.g. connection info
	// or the failing dependency.
	Details map[string]any `json:"details,omitempty"`
}

// IsHealthy reports whether the status is StatusHealthy.
func (h HealthStatus) IsHealthy() bool {
	return h.Status == StatusHealthy
}

// IsUnhealthy reports whether the status is StatusUnhealthy.
func (h HealthStatus) IsUnhealthy() bool {
	return h.Status == StatusUnhealthy
}

// NewHealthyStatus builds a healthy status.
func NewHealthyStatus(message string) HealthStatus {
	return HealthStatus{Status: StatusHealthy, Message: message}
}

// NewDegradedStatus builds a degraded status with optional diagnostics.
func NewDegradedStatus(message string, details map[string]any) HealthStatus {
	return HealthStatus{Status: StatusDegraded, Message: message, Details: details}
}

// NewUnhealthyStatus builds an unhealthy status with optional diagnostics.
func NewUnhealthyStatus(message string, details map[string]any) HealthStatus {
	return HealthStatus{Status: StatusUnhealthy, Message: message, Details: details}
}

// CombineHealth aggregates per-tier health checks into one status. Any
// unhealthy tier makes the result unhealthy; otherwise any degraded tier
// makes it degraded.
func CombineHealth(checks map[Tier]HealthStatus) HealthStatus {
	if len(checks) == 0 {
		return NewHealthyStatus("no tiers checked")
	}

	var unhealthy, degraded []string
	for tier, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			unhealthy = append(unhealthy, string(tier))
		case StatusDegraded:
			degraded = append(degraded, string(tier))
		}
	}

	if len(unhealthy) > 0 {
		return NewUnhealthyStatus(
			fmt.Sprintf("%d tier(s) unhealthy", len(unhealthy)),
			map[string]any{"unhealthy_tiers": unhealthy, "degraded_tiers": degraded},
		)
	}
	if len(degraded) > 0 {
		return NewDegradedStatus(
			fmt.Sprintf("%d tier(s) degraded", len(degraded)),
			map[string]any{"degraded_tiers": degraded},
		)
	}
	return NewHealthyStatus(fmt.Sprintf("all %d tier(s) healthy", len(checks)))
}
