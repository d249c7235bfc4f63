// Package backends groups the store clients the provisioner allocates
// per-project resources in. Each subpackage implements core.StoreClient with
// allocate-or-adopt semantics and core.HandleResolver for deterministic
// handles.
package backends
