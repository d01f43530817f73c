// Package domain holds the value types shared by the segmentation, campaign
// and delivery packages: contacts, audiences and their rule trees,
// campaigns with their recipient snapshots and events, suppressions and
// settings.
//
// Nothing here talks to a database or the network. The only behavior is
// small pure helpers (status predicates, the rule tree wire codec) so every
// layer can depend on this package without pulling in another.
package domain
