// Package roadmap provides the road graph the delivery core plans on.
//
// Provider is the contract consumed by agents and the depot: shortest-path
// distances, shortest-path node sequences and node coordinates. Graph is the
// gonum-backed implementation; it is built either from a synthetic grid
// region ("grid:12x12") or from a JSON/YAML region file. Shortest-path trees
// are computed once per source node and cached, so repeated queries against
// a fixed graph always return the same answer.
package roadmap
