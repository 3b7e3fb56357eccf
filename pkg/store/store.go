package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"stravasync/pkg/logger"
	"stravasync/pkg/strava"
)

const (
	activitiesDirName = "activities"
	metadataDirName   = "metadata"
	indexFileName     = "activity_index.json"

	// formatVersion is stamped into every written file's metadata block.
	formatVersion = 1
)

// FetchMetadata is the local block appended to every stored activity file.
type FetchMetadata struct {
	FetchedDate   string `json:"fetched_date"`
	FileIndex     int    `json:"file_index"`
	FileName      string `json:"file_name"`
	FormatVersion int    `json:"format_version"`
}

// StreamFile is the on-disk document for one stream type of one activity.
type StreamFile struct {
	ActivityID int64           `json:"activity_id"`
	StreamType string          `json:"stream_type"`
	Data       json.RawMessage `json:"data"`
	SeriesType string          `json:"series_type"`
	Resolution string          `json:"resolution"`
	Metadata   FetchMetadata   `json:"metadata"`
}

// PutResult reports the outcome of storing one activity.
type PutResult struct {
	Filename string
	OK       bool
	Err      error
}

// Store is the durable per-activity file store plus its searchable index.
// The index lives in memory during a run and is flushed periodically; the
// set of ids in the index is always a subset of the ids with a file on
// disk (files are written before their entries are appended).
type Store struct {
	dataDir       string
	activitiesDir string
	metadataDir   string
	nameMaxLen    int

	index []IndexEntry
	ids   map[int64]struct{}

	logger logger.Logger

	now func() time.Time
}

// New creates a store rooted at dataDir, creating its directories if needed.
func New(dataDir string, nameMaxLen int, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	s := &Store{
		dataDir:       dataDir,
		activitiesDir: filepath.Join(dataDir, activitiesDirName),
		metadataDir:   filepath.Join(dataDir, metadataDirName),
		nameMaxLen:    nameMaxLen,
		ids:           make(map[int64]struct{}),
		logger:        log,
		now:           time.Now,
	}

	for _, dir := range []string{s.activitiesDir, s.metadataDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return s, nil
}

// IndexPath returns the path of the persisted index file.
func (s *Store) IndexPath() string {
	return filepath.Join(s.metadataDir, indexFileName)
}

// MetadataDir returns the directory holding index, state and summary files.
func (s *Store) MetadataDir() string {
	return s.metadataDir
}

// ActivitiesDir returns the directory holding activity and stream files.
func (s *Store) ActivitiesDir() string {
	return s.activitiesDir
}

// LoadIndex reads the persisted index. An absent index is a fresh start,
// never an error.
func (s *Store) LoadIndex() error {
	data, err := os.ReadFile(s.IndexPath())
	if err != nil {
		if os.IsNotExist(err) {
			s.index = nil
			s.ids = make(map[int64]struct{})
			s.logger.Debug("no activity index found, starting fresh")
			return nil
		}
		return fmt.Errorf("failed to read activity index: %w", err)
	}

	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// An unreadable index is a fresh start; files on disk stay valid
		// and missing entries are healed by refetch, idempotent by id.
		s.logger.WithError(err).Warn("activity index unreadable, starting fresh")
		s.index = nil
		s.ids = make(map[int64]struct{})
		return nil
	}

	s.index = entries
	s.ids = make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		s.ids[e.ID] = struct{}{}
	}

	s.logger.InfoWithFields("activity index loaded", map[string]interface{}{
		"entries": len(entries),
	})

	return nil
}

// Exists reports whether an activity id is already indexed. O(1), never
// touches per-activity files.
func (s *Store) Exists(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of indexed activities.
func (s *Store) Len() int {
	return len(s.index)
}

// Entries returns the index in insertion order.
func (s *Store) Entries() []IndexEntry {
	return s.index
}

// Put writes an activity, plus its local metadata block, to an immutable
// per-activity file. The filename derives purely from the activity's own
// fields. On failure the caller must not append an index entry.
func (s *Store) Put(activity strava.Activity) PutResult {
	if s.Exists(activity.ID) {
		return PutResult{
			OK:  false,
			Err: fmt.Errorf("activity %d already stored", activity.ID),
		}
	}

	filename := ActivityFilename(activity.ID, activity.StartDate, activity.Name, s.nameMaxLen)

	doc, err := s.activityDocument(activity, filename)
	if err != nil {
		return PutResult{Filename: filename, OK: false, Err: err}
	}

	if err := writeFileAtomic(filepath.Join(s.activitiesDir, filename), doc); err != nil {
		return PutResult{Filename: filename, OK: false, Err: err}
	}

	return PutResult{Filename: filename, OK: true}
}

// activityDocument merges the activity payload with the fetch metadata block.
func (s *Store) activityDocument(activity strava.Activity, filename string) ([]byte, error) {
	payload, err := json.Marshal(activity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode activity %d: %w", activity.ID, err)
	}

	doc := make(map[string]json.RawMessage)
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to re-read activity %d: %w", activity.ID, err)
	}

	meta, err := json.Marshal(FetchMetadata{
		FetchedDate:   s.now().UTC().Format(time.RFC3339),
		FileIndex:     len(s.index),
		FileName:      filename,
		FormatVersion: formatVersion,
	})
	if err != nil {
		return nil, err
	}
	doc["_fetch_metadata"] = meta

	return json.MarshalIndent(doc, "", "  ")
}

// Append records a stored activity in the in-memory index, positioned at
// the current index length. It does not flush; flushing is periodic.
func (s *Store) Append(activity strava.Activity, filename string) IndexEntry {
	entry := IndexEntry{
		ID:         activity.ID,
		Name:       activity.Name,
		Type:       activity.Type,
		StartDate:  activity.StartDate.UTC().Format(time.RFC3339),
		Distance:   activity.Distance,
		MovingTime: activity.MovingTime,
		Filename:   filename,
		FileIndex:  len(s.index),
	}

	s.index = append(s.index, entry)
	s.ids[activity.ID] = struct{}{}

	return entry
}

// FlushIndex persists the in-memory index atomically, insertion order
// preserved.
func (s *Store) FlushIndex() error {
	entries := s.index
	if entries == nil {
		entries = []IndexEntry{}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode activity index: %w", err)
	}

	if err := writeFileAtomic(s.IndexPath(), data); err != nil {
		return fmt.Errorf("failed to write activity index: %w", err)
	}

	s.logger.DebugWithFields("activity index flushed", map[string]interface{}{
		"entries": len(entries),
	})

	return nil
}

// Get loads the full stored activity for an indexed id.
func (s *Store) Get(id int64) (*strava.Activity, error) {
	var entry *IndexEntry
	for i := range s.index {
		if s.index[i].ID == id {
			entry = &s.index[i]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("activity %d not found in index", id)
	}

	data, err := os.ReadFile(filepath.Join(s.activitiesDir, entry.Filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read activity file %s: %w", entry.Filename, err)
	}

	var activity strava.Activity
	if err := json.Unmarshal(data, &activity); err != nil {
		return nil, fmt.Errorf("failed to parse activity file %s: %w", entry.Filename, err)
	}

	return &activity, nil
}

// Find returns index entries matching the predicate, in insertion order.
func (s *Store) Find(match func(IndexEntry) bool) []IndexEntry {
	var out []IndexEntry
	for _, e := range s.index {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

// ByType returns index entries of the given activity type.
func (s *Store) ByType(activityType string) []IndexEntry {
	return s.Find(func(e IndexEntry) bool {
		return strings.EqualFold(e.Type, activityType)
	})
}

// ByDateRange returns index entries whose start falls in [start, end).
func (s *Store) ByDateRange(start, end time.Time) []IndexEntry {
	return s.Find(func(e IndexEntry) bool {
		t := e.Start()
		if t.IsZero() {
			return false
		}
		return !t.Before(start) && t.Before(end)
	})
}

// StoredStreamTypes derives the set of stream types already stored for an
// activity by scanning filenames for the {id}_..._streams_{type}.json
// pattern. No file contents are read.
func (s *Store) StoredStreamTypes(id int64) (map[string]struct{}, error) {
	entries, err := os.ReadDir(s.activitiesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read activities directory: %w", err)
	}

	prefix := strconv.FormatInt(id, 10) + "_"
	types := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		marker := strings.LastIndex(name, "_streams_")
		if marker < 0 {
			continue
		}
		streamType := strings.TrimSuffix(name[marker+len("_streams_"):], ".json")
		if streamType != "" {
			types[streamType] = struct{}{}
		}
	}

	return types, nil
}

// PutStream writes one stream type for an activity next to its activity
// file, using the shared base filename plus the stream suffix.
func (s *Store) PutStream(entry IndexEntry, streamType string, stream strava.Stream) error {
	doc := StreamFile{
		ActivityID: entry.ID,
		StreamType: streamType,
		Data:       stream.Data,
		SeriesType: stream.SeriesType,
		Resolution: stream.Resolution,
		Metadata: FetchMetadata{
			FetchedDate:   s.now().UTC().Format(time.RFC3339),
			FileIndex:     entry.FileIndex,
			FileName:      StreamFilename(entry.Filename, streamType),
			FormatVersion: formatVersion,
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode stream %s for activity %d: %w", streamType, entry.ID, err)
	}

	path := filepath.Join(s.activitiesDir, StreamFilename(entry.Filename, streamType))
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write stream file: %w", err)
	}

	return nil
}

// TypeCounts returns per-type activity counts from the index, sorted by type.
func (s *Store) TypeCounts() []TypeCount {
	byType := make(map[string]*TypeCount)
	for _, e := range s.index {
		tc, ok := byType[e.Type]
		if !ok {
			tc = &TypeCount{Type: e.Type}
			byType[e.Type] = tc
		}
		tc.Count++
		tc.Distance += e.Distance
		tc.MovingTime += e.MovingTime
	}

	out := make([]TypeCount, 0, len(byType))
	for _, tc := range byType {
		out = append(out, *tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })

	return out
}

// TypeCount aggregates the index for one activity type.
type TypeCount struct {
	Type       string  `json:"type"`
	Count      int     `json:"count"`
	Distance   float64 `json:"distance"`
	MovingTime int64   `json:"moving_time"`
}

// writeFileAtomic writes data via a temporary file and rename so readers
// never observe a partial document.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}
