// Package cnp implements the depot side of the contract net protocol: it
// announces every pending package, collects the agents' bids and awards each
// task to the cheapest feasible bidder.
package cnp
