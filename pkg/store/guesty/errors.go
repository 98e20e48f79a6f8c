package guesty

import "fmt"

// ConfigError reports unusable client configuration, e.g. missing
// credentials. It is fatal: retrying cannot help.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("guesty config: %s", e.Reason)
}

// AuthError reports a token exchange rejected by the upstream with a
// non-429 status. Body is truncated and never contains credentials.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("guesty token exchange failed (%d): %s", e.Status, e.Body)
}

// RateLimitedError reports a token exchange that kept hitting 429 until
// the retry budget ran out.
type RateLimitedError struct {
	Attempts int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("guesty token endpoint rate limited after %d attempts", e.Attempts)
}

// UpstreamError reports a failed or unparseable response from the data
// endpoint.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("guesty transactions request failed (%d): %s", e.Status, e.Body)
}
