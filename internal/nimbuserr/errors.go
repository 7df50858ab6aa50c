// Package nimbuserr defines the typed error hierarchy shared by the bridge
// transport, upload, and download pipelines.
package nimbuserr

import "fmt"

// ConfigError reports an invalid option passed to a constructor.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Option, e.Reason)
}

// TransportError wraps a network or serialization failure talking to the bridge.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BridgeError reports an HTTP >= 400 response from the bridge.
type BridgeError struct {
	Status  int
	Message string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("bridge: status %d: %s", e.Status, e.Message)
}

// IOError wraps a file stat/read/write or temp-file failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("io: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("io: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ShardTransferError reports repeated failures transferring a single shard.
// It is recovered internally by blacklisting the farmer and re-framing; it
// should only escape to a caller wrapped inside UploadFailed.
type ShardTransferError struct {
	ShardIndex int
	NodeID     string
	Attempts   int
	Err        error
}

func (e *ShardTransferError) Error() string {
	return fmt.Sprintf("shard %d: transfer to farmer %s failed after %d attempts: %v",
		e.ShardIndex, e.NodeID, e.Attempts, e.Err)
}

func (e *ShardTransferError) Unwrap() error { return e.Err }

// UploadFailed is the terminal wrapper delivered to the caller's completion
// callback when recovery is exhausted.
type UploadFailed struct {
	BucketID string
	Err      error
}

func (e *UploadFailed) Error() string {
	return fmt.Sprintf("upload to bucket %s failed: %v", e.BucketID, e.Err)
}

func (e *UploadFailed) Unwrap() error { return e.Err }

// DownloadFailed is the terminal wrapper for an unrecoverable download error.
type DownloadFailed struct {
	BucketID string
	File     string
	Err      error
}

func (e *DownloadFailed) Error() string {
	return fmt.Sprintf("download %s/%s failed: %v", e.BucketID, e.File, e.Err)
}

func (e *DownloadFailed) Unwrap() error { return e.Err }

// Cancelled is the terminal wrapper delivered when the caller killed the
// upload state before it reached a natural terminal transition.
type Cancelled struct {
	Reason string
}

func (e *Cancelled) Error() string {
	if e.Reason == "" {
		return "cancelled"
	}
	return fmt.Sprintf("cancelled: %s", e.Reason)
}
