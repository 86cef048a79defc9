package intelligence

// ModelClient is the contract an LLM provider integration fulfills. Provider
// client libraries live outside this module; the router only needs enough
// surface to probe whether a pipeline's backing model is usable.
type ModelClient interface {
	// Complete sends a prompt to the backing model and returns its reply.
	Complete(prompt string) (string, error)

	// HealthCheck verifies the model service is available.
	HealthCheck() error

	// IsEnabled returns whether the client is configured for use.
	IsEnabled() bool
}

// NoOpClient is a no-operation implementation.
type NoOpClient struct{}

// NewNoOpClient creates a no-op model client.
func NewNoOpClient() ModelClient {
	return &NoOpClient{}
}

// Complete returns an empty reply.
func (n *NoOpClient) Complete(prompt string) (string, error) {
	return "", nil
}

// HealthCheck always returns nil.
func (n *NoOpClient) HealthCheck() error {
	return nil
}

// IsEnabled returns false.
func (n *NoOpClient) IsEnabled() bool {
	return false
}
