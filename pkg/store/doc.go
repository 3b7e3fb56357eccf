// Package store manages the on-disk activity mirror.
//
// The store keeps one JSON file per activity under activities/ plus an
// ordered index at metadata/activity_index.json. The index is the source
// of truth for what has been fetched: membership checks during a sync are
// O(1) against an in-memory id set loaded from it.
//
// Write ordering matters for crash safety: the activity file is written
// first, then the index entry is appended in memory, and the index is
// flushed periodically and at run end. A crash between file write and
// index flush leaves an orphaned activity file, which is harmless; the
// activity is refetched and overwritten on the next run.
//
// Filenames are derived deterministically from the activity id, start
// date and sanitized name, so the same activity always maps to the same
// file. Stream files share the activity's base name with a
// _streams_<type> suffix, which lets StoredStreamTypes recover the set of
// fetched stream types from a directory scan alone.
//
// All file writes go through a temp-file-and-rename so readers never see
// a partially written document.
package store
