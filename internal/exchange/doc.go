// Package exchange implements the collective operations of the distributed EM
// loop on top of a point-to-point transport.
//
// Worker 0 is the coordinator. Every message carries a tag
//
//	tag = iteration*10000 + kind*MaxClusters + cluster
//
// so that messages of different iterations, tables and clusters never match
// each other's receives. With a single worker every operation is a no-op.
package exchange
