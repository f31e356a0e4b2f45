package embedding

import "fmt"

// ServiceError reports a transport failure, a non-2xx status or an undecodable
// response from the embedding service.
type ServiceError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding service %s returned status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding service %s: %v", e.Endpoint, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ResponseFormatError reports a response item that is neither a vector nor an
// object carrying one under "embedding". Item is -1 when the data list itself is malformed.
type ResponseFormatError struct {
	Batch  int
	Item   int
	Reason string
}

func (e *ResponseFormatError) Error() string {
	if e.Item < 0 {
		return fmt.Sprintf("unexpected embedding response format in batch %d: %s", e.Batch, e.Reason)
	}
	return fmt.Sprintf("unexpected embedding format in batch %d item %d: %s", e.Batch, e.Item, e.Reason)
}

// ResponseCountError reports a batch whose response holds a different number of vectors than texts sent.
type ResponseCountError struct {
	Batch    int
	Expected int
	Got      int
}

func (e *ResponseCountError) Error() string {
	return fmt.Sprintf("expected %d embeddings in batch %d, got %d", e.Expected, e.Batch, e.Got)
}
