// Package analysis inspects the label-induced subgraphs of a built index.
//
// ProfileOf reports restricted degree statistics and how much of a label's
// subgraph a walk from its best-connected members reaches.
// StronglyConnected splits the same subgraph into strongly connected
// components. Both only read the graph.
package analysis
