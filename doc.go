// Package pmtree is the root of a typed, transactional key-value tree
// framework over persistent memory: a family of B-Tree "classes" (NV, UV, EC)
// storing name/UUID/epoch-keyed records inside a pool managed by an abstract
// Persistent Memory Manager (see subpackage pmm), with the ability to embed
// child trees as the value of a parent record (see subpackage nesting).
//
// This package holds only the types shared across every subpackage:
// persistent identifiers (UUID), the error taxonomy surfaced at the façade
// boundary (Error/ErrorCode), store configuration (StoreOptions), and process
// logging setup (ConfigureLogging). The engine lives in subpackage btree, the
// record classes in subpackage classes, and the native-typed public surface
// in subpackage facade.
package pmtree

// Transactional discipline
//
// Every operation that may mutate persistent state must run inside an active
// pmm.Manager transaction (the caller's responsibility — see pmm.Manager.TxStage).
// Engine operations never abort the transaction themselves: a failed
// mutation returns its error and leaves the transaction open, and the caller
// decides whether to abort it and whether to retry.
// NonExistent is never an abort condition: it is informational, returned to
// the caller without touching transaction state.
