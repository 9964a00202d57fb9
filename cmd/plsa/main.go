// Command plsa fits a probabilistic latent semantic model to a co-occurrence
// matrix of two vocabularies with distributed EM.
//
// Single process, four in-process workers:
//
//	plsa --cooccur pairs.txt --text --base out/model --clusters 20 --workers 4
//
// Three processes connected over TCP, one per host:
//
//	plsa --cooccur pairs.bin --base model --rank 0 --peers h0:7000,h1:7000,h2:7000
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
