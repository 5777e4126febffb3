// Package health: see health.go for the check functions and Report type.
//
// # Usage
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	report := health.NetworkCheck(ctx, "redis.internal", 6379)
//	if report.IsUnhealthy() {
//	    // fall back to the embedded backend
//	}
//
// Combine folds several reports into one, with Unhealthy taking precedence
// over Degraded taking precedence over Healthy.
package health
