//go:build !unix

package plsago

func peakRSS() int64 { return 0 }
