package workflow

import "fmt"

// ConfigurationError reports a product whose hub project locator is unset.
// It fails that product's generation only, never the whole run.
type ConfigurationError struct {
	Product string
	EnvVar  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("product %s has no hub project configured; set %s", e.Product, e.EnvVar)
}

// NotConnectedError means the acting user holds no hub credential. The run
// is aborted before anything is attempted.
type NotConnectedError struct {
	ActorID string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("actor %s is not connected to the task hub", e.ActorID)
}

// ValidationError reports malformed input data, such as a report kind no
// strategy can resolve.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
