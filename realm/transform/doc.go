// Package transform implements the source rewriting pipeline run before
// every confined evaluation.
//
// A pipeline is a list of Transform values applied in order to a State
// (source plus endowments). The two Mandatory transforms always run last
// and reject sources with HTML-like comments or import expressions, with
// the line of the first offending match.
package transform
