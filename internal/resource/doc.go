// Package resource bounds the resources of a training run.
//
//   - Memory: the probability tables and the joint matrix are reserved once
//     per worker. AcquireMemory is non-blocking and fails fast with
//     ErrMemoryLimitExceeded.
//   - IO: snapshot and output writes are paced by a token bucket so that
//     frequent snapshots do not saturate a shared store.
//
// A nil *Controller is valid and imposes no limits.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   1 << 30,
//	    IOLimitBytesPerSec: 64 << 20,
//	})
//	if err := rc.AcquireMemory(tableBytes); err != nil {
//	    return err
//	}
//	defer rc.ReleaseMemory(tableBytes)
package resource
