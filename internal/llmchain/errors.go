package llmchain

import "fmt"

// errUnexpectedCall reports that the provider called a different function
// (or none) than the stage's declared function, treated as a retryable
// malformed-response case.
func errUnexpectedCall(gotName string) error {
	if gotName == "" {
		return fmt.Errorf("llmchain: provider returned no function call")
	}
	return fmt.Errorf("llmchain: provider called %q, expected a different function", gotName)
}
