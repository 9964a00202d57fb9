// Package tcp connects the workers of a run with a full TCP mesh.
//
// Every worker listens on its own entry of Config.Peers. During Connect, worker
// r dials every worker with a lower rank and accepts one connection from every
// worker with a higher rank; dial attempts are paced by a rate limiter while
// peers are still starting. A handshake exchanges ranks and the mesh size.
//
// Messages travel as CRC-checked frames, optionally LZ4 or Zstandard
// compressed. One reader goroutine per connection delivers frames to the
// worker's mailbox. A broken connection fails every pending and future Recv:
// the loss of any worker aborts the run.
package tcp
