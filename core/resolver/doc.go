// Package resolver pairs records across two systems when no shared key exists.
//
// Names are normalized and scored with a Ratcliff/Obershelp ratio; pairs below
// MinSimilarity are discarded. Coordinates, when both sides carry them, are
// compared with the Haversine distance and a matching secondary code raises
// the confidence. Candidate pairs are then sorted by tier and similarity and
// accepted greedily so that every record appears in at most one match.
//
// The assignment is a heuristic. Pairs with identical tier and similarity keep
// the order in which they were generated, which callers must not rely on.
package resolver
