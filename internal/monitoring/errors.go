// internal/monitoring/errors.go
package monitoring

import "errors"

var (
	ErrHostNotFound = errors.New("host not found")
	ErrStore        = errors.New("failed to store check record")
	ErrStopped      = errors.New("orchestrator is stopping")
)
