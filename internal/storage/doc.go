// Package storage persists the file contents held by a storage node.
//
// # Overview
//
// A storage node keeps one copy of each file it was chosen for. The Store
// interface covers exactly what the node protocol needs: write a file of
// known size, stream it back, delete it and list what is held.
//
// # Implementations
//
// DiskStore: one regular file per name inside a directory
//   - Uploads land in a temporary file and are renamed into place
//   - Survives restarts; leftover temporary files are cleaned on open
//
// MemoryStore: in-memory map guarded by sync.RWMutex
//   - No persistence; used by tests and throwaway nodes
//
// # Names
//
// Names arrive from the network. ValidateName rejects empty names, path
// separators and "..", so a name can never address a path outside the
// store. Every implementation validates before touching its backing data.
//
// # Errors
//
// ErrFileNotFound: the name is not held (Open, Delete)
// ErrInvalidName: the name failed ValidateName
//
// # Usage
//
//	store, err := storage.NewDiskStore("/var/lib/replistore/node-1")
//	if err != nil {
//	    return err
//	}
//	if err := store.Put("report.pdf", conn, size); err != nil {
//	    return err
//	}
//	rc, size, err := store.Open("report.pdf")
package storage
