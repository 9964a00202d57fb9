// Package store holds the double-buffered probability tables of the EM engine.
//
// A Generation bundles the three log-probability tables of one EM iteration:
//
//	W1    [clusters × termsA]  log p(w1 | z)
//	W2    [clusters × termsB]  log p(w2 | z)
//	Prior [clusters]           log p(z)
//
// The Store keeps two generations in named slots, current and previous. Swap
// exchanges the slot handles in O(1); the backing storage is allocated once and
// never copied.
package store
