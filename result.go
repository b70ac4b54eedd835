package fatdisk

import "fmt"

// Result is the outcome of an Engine operation.
// Failed operations carry the error, successful ones may carry a payload.
type Result struct {
	Message string
	Payload string
	Err     error
}

// OK reports if the operation succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

func (r Result) String() string {
	if r.Err != nil {
		return "error: " + r.Message
	}
	return r.Message
}

// DiskSpaceInfo contains the usage of an open disk in bytes.
type DiskSpaceInfo struct {
	Variant Variant
	Total   int64
	Free    int64
	Used    int64
}

func (i DiskSpaceInfo) String() string {
	return fmt.Sprintf("%v, total: %d bytes, free: %d bytes, used: %d bytes", i.Variant, i.Total, i.Free, i.Used)
}
