package kstate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/go-logr/logr"
	"github.com/google/btree"
	"go.uber.org/multierr"
)

// SegmentFactory creates the raw store backing one segment. The returned
// store is initialized by the segmented store with a context rooted at the
// segmented store's own directory.
type SegmentFactory func(segmentName string) KeyValueBytesStore

type segment struct {
	id    int64
	name  string
	store KeyValueBytesStore
}

func segmentLess(a, b *segment) bool {
	return a.id < b.id
}

// SegmentedBytesStore is a WindowBytesStore that partitions time into
// segments of SegmentInterval milliseconds, each backed by its own
// KeyValueBytesStore. Segment id = windowStart / segmentInterval.
//
// Segments are created on first write and dropped once their upper bound
// falls below observedMaxTimestamp - retention. Expiry runs on every write.
// Reads never see windows older than observedMaxTimestamp - retention + 1,
// whether or not their segment is still on disk.
type SegmentedBytesStore struct {
	name            string
	retention       int64
	windowSize      int64
	segmentInterval int64
	persistent      bool
	newSegment      SegmentFactory

	lc          Lifecycle
	log         logr.Logger
	dir         string
	segmentCtx  kprocessor.StateStoreContext
	segments    *btree.BTreeG[*segment]
	observedMax int64
	expired     int64
}

// NewSegmentedBytesStore creates a segmented window store. retention,
// windowSize and segmentInterval are in milliseconds and must be positive.
func NewSegmentedBytesStore(
	name string,
	retention, windowSize, segmentInterval int64,
	persistent bool,
	newSegment SegmentFactory,
) (*SegmentedBytesStore, error) {
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: store name is empty", ErrInvalidParameter)
	case windowSize <= 0:
		return nil, fmt.Errorf("%w: window size of store %s must be positive, got %d", ErrInvalidParameter, name, windowSize)
	case retention <= 0:
		return nil, fmt.Errorf("%w: retention of store %s must be positive, got %d", ErrInvalidParameter, name, retention)
	case segmentInterval <= 0:
		return nil, fmt.Errorf("%w: segment interval of store %s must be positive, got %d", ErrInvalidParameter, name, segmentInterval)
	case newSegment == nil:
		return nil, fmt.Errorf("%w: store %s has no segment factory", ErrInvalidParameter, name)
	}
	return &SegmentedBytesStore{
		name:            name,
		retention:       retention,
		windowSize:      windowSize,
		segmentInterval: segmentInterval,
		persistent:      persistent,
		newSegment:      newSegment,
		log:             logr.Discard(),
		observedMax:     -1,
	}, nil
}

func (s *SegmentedBytesStore) Name() string { return s.name }

func (s *SegmentedBytesStore) Persistent() bool { return s.persistent }

func (s *SegmentedBytesStore) IsOpen() bool { return s.lc.IsOpen() }

func (s *SegmentedBytesStore) WindowSize() int64 { return s.windowSize }

func (s *SegmentedBytesStore) Retention() int64 { return s.retention }

func (s *SegmentedBytesStore) SegmentInterval() int64 { return s.segmentInterval }

// ObservedMaxTimestamp is the largest window start written so far, or -1.
func (s *SegmentedBytesStore) ObservedMaxTimestamp() int64 { return s.observedMax }

// ExpiredRecordsDropped counts writes skipped because their window had
// already left the retention period.
func (s *SegmentedBytesStore) ExpiredRecordsDropped() int64 { return s.expired }

// SegmentIDs returns the ids of live segments in ascending order.
func (s *SegmentedBytesStore) SegmentIDs() []int64 {
	if s.segments == nil {
		return nil
	}
	ids := make([]int64, 0, s.segments.Len())
	s.segments.Ascend(func(seg *segment) bool {
		ids = append(ids, seg.id)
		return true
	})
	return ids
}

func (s *SegmentedBytesStore) Init(ctx kprocessor.StateStoreContext) error {
	if s.lc.IsOpen() {
		return nil
	}
	s.log = ctx.Logger().WithValues("store", s.name)
	s.dir = filepath.Join(ctx.StateDir(), s.name)
	s.segmentCtx = kprocessor.WithStateDir(ctx, s.dir)
	s.segments = btree.NewG[*segment](8, segmentLess)
	s.observedMax = -1

	if s.persistent {
		if err := s.openExisting(); err != nil {
			return multierr.Append(err, s.closeSegments())
		}
	}

	s.lc.MarkOpen()
	s.log.V(1).Info("Initialized segmented store", "segments", s.segments.Len(), "observed_max", s.observedMax)
	return nil
}

// openExisting reopens segments found on disk and restores
// observedMaxTimestamp from the newest non-empty one.
func (s *SegmentedBytesStore) openExisting() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return EngineError(s.name, "list segments", err)
	}

	prefix := s.name + "."
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		start, err := strconv.ParseInt(strings.TrimPrefix(entry.Name(), prefix), 10, 64)
		if err != nil || start < 0 || start%s.segmentInterval != 0 {
			s.log.Info("Ignoring unrecognized segment directory", "dir", entry.Name())
			continue
		}
		if _, err := s.openSegment(start / s.segmentInterval); err != nil {
			return err
		}
	}

	var scanErr error
	s.segments.Descend(func(seg *segment) bool {
		maxTs, err := maxWindowStart(seg.store)
		if err != nil {
			scanErr = fmt.Errorf("recover segment %s: %w", seg.name, err)
			return false
		}
		if maxTs >= 0 {
			s.observedMax = maxTs
			return false
		}
		return true
	})
	if scanErr != nil {
		return scanErr
	}
	return s.cleanupExpired()
}

func maxWindowStart(store KeyValueBytesStore) (int64, error) {
	it, err := store.All()
	if err != nil {
		return -1, err
	}
	maxTs := int64(-1)
	err = ForEach(it, func(k Bytes, _ []byte) error {
		_, ts, err := splitWindowStoreKey(k)
		if err != nil {
			return err
		}
		if ts > maxTs {
			maxTs = ts
		}
		return nil
	})
	return maxTs, err
}

func (s *SegmentedBytesStore) segmentName(id int64) string {
	return fmt.Sprintf("%s.%d", s.name, id*s.segmentInterval)
}

func (s *SegmentedBytesStore) openSegment(id int64) (*segment, error) {
	name := s.segmentName(id)
	store := s.newSegment(name)
	if err := store.Init(s.segmentCtx); err != nil {
		return nil, fmt.Errorf("open segment %s: %w", name, err)
	}
	seg := &segment{id: id, name: name, store: store}
	s.segments.ReplaceOrInsert(seg)
	s.log.V(1).Info("Opened segment", "segment", name)
	return seg, nil
}

func (s *SegmentedBytesStore) getSegment(id int64) (*segment, bool) {
	return s.segments.Get(&segment{id: id})
}

// liveFrom is the smallest window start still inside retention.
func (s *SegmentedBytesStore) liveFrom() int64 {
	if s.observedMax < 0 {
		return 0
	}
	from := s.observedMax - s.retention + 1
	if from < 0 {
		return 0
	}
	return from
}

func (s *SegmentedBytesStore) Put(key Bytes, value []byte, windowStart int64) error {
	if err := s.lc.Check(s.name); err != nil {
		return err
	}
	if windowStart < 0 {
		return fmt.Errorf("store %s: window start %d: %w", s.name, windowStart, ErrInvalidTimestamp)
	}

	if windowStart > s.observedMax {
		s.observedMax = windowStart
	}
	if windowStart < s.liveFrom() {
		s.expired++
		s.log.V(1).Info("Skipping record for expired window",
			"window_start", windowStart,
			"observed_max", s.observedMax)
		return nil
	}

	id := windowStart / s.segmentInterval
	seg, ok := s.getSegment(id)
	if !ok {
		if value == nil {
			return s.cleanupExpired()
		}
		var err error
		if seg, err = s.openSegment(id); err != nil {
			return err
		}
	}

	if err := seg.store.Put(windowStoreKey(key, windowStart), value); err != nil {
		return err
	}
	return s.cleanupExpired()
}

// cleanupExpired drops every segment whose last millisecond is older than
// observedMaxTimestamp - retention.
func (s *SegmentedBytesStore) cleanupExpired() error {
	if s.observedMax < 0 {
		return nil
	}
	cutoff := s.observedMax - s.retention

	var expired []*segment
	s.segments.Ascend(func(seg *segment) bool {
		if seg.id < cutoff/s.segmentInterval {
			expired = append(expired, seg)
			return true
		}
		return false
	})

	var err error
	for _, seg := range expired {
		s.segments.Delete(seg)
		err = multierr.Append(err, s.dropSegment(seg))
	}
	return err
}

func (s *SegmentedBytesStore) dropSegment(seg *segment) error {
	err := seg.store.Close()
	if d, ok := seg.store.(Destroyer); ok && err == nil {
		err = d.Destroy()
	}
	if err != nil {
		s.log.Error(err, "Failed to drop expired segment", "segment", seg.name)
		return fmt.Errorf("drop segment %s: %w", seg.name, err)
	}
	s.log.V(1).Info("Dropped expired segment", "segment", seg.name, "observed_max", s.observedMax)
	return nil
}

func (s *SegmentedBytesStore) Get(key Bytes, windowStart int64) ([]byte, error) {
	if err := s.lc.Check(s.name); err != nil {
		return nil, err
	}
	if windowStart < s.liveFrom() {
		return nil, nil
	}
	seg, ok := s.getSegment(windowStart / s.segmentInterval)
	if !ok {
		return nil, nil
	}
	return seg.store.Get(windowStoreKey(key, windowStart))
}

// segmentsFor returns the live segments overlapping [timeFrom, timeTo] in
// ascending order.
func (s *SegmentedBytesStore) segmentsFor(timeFrom, timeTo int64) []*segment {
	var res []*segment
	s.segments.AscendGreaterOrEqual(&segment{id: timeFrom / s.segmentInterval}, func(seg *segment) bool {
		if seg.id > timeTo/s.segmentInterval {
			return false
		}
		res = append(res, seg)
		return true
	})
	return res
}

func (s *SegmentedBytesStore) clampRange(timeFrom, timeTo int64) (int64, int64, bool) {
	if live := s.liveFrom(); timeFrom < live {
		timeFrom = live
	}
	return timeFrom, timeTo, timeFrom <= timeTo
}

func (s *SegmentedBytesStore) Fetch(key Bytes, timeFrom, timeTo int64) (KeyValueIterator[int64, []byte], error) {
	if err := s.lc.Check(s.name); err != nil {
		return nil, err
	}
	timeFrom, timeTo, ok := s.clampRange(timeFrom, timeTo)
	if !ok {
		return EmptyIterator[int64, []byte](), nil
	}

	lower, upper := windowStoreKey(key, timeFrom), windowStoreKey(key, timeTo)
	var iters []KeyValueIterator[Bytes, []byte]
	for _, seg := range s.segmentsFor(timeFrom, timeTo) {
		it, err := seg.store.Range(lower, upper)
		if err != nil {
			return nil, multierr.Append(err, newConcatIterator(iters).Close())
		}
		iters = append(iters, it)
	}

	return Transform[Bytes, []byte, int64, []byte](newConcatIterator(iters), func(kv KeyValue[Bytes, []byte]) (KeyValue[int64, []byte], bool, error) {
		if !isWindowOf(kv.Key, key) {
			return KeyValue[int64, []byte]{}, false, nil
		}
		_, ts, err := splitWindowStoreKey(kv.Key)
		if err != nil {
			return KeyValue[int64, []byte]{}, false, CodecError(s.name, "decode window key", err)
		}
		return KeyValue[int64, []byte]{Key: ts, Value: kv.Value}, true, nil
	}), nil
}

// FetchAll merges the segments overlapping [timeFrom, timeTo] by window
// store key. See WindowBytesStore.FetchAll for the resulting order.
func (s *SegmentedBytesStore) FetchAll(timeFrom, timeTo int64) (KeyValueIterator[Windowed[Bytes], []byte], error) {
	if err := s.lc.Check(s.name); err != nil {
		return nil, err
	}
	timeFrom, timeTo, ok := s.clampRange(timeFrom, timeTo)
	if !ok {
		return EmptyIterator[Windowed[Bytes], []byte](), nil
	}

	var iters []KeyValueIterator[Bytes, []byte]
	for _, seg := range s.segmentsFor(timeFrom, timeTo) {
		it, err := seg.store.All()
		if err != nil {
			return nil, multierr.Append(err, newMergeIterator(iters).Close())
		}
		iters = append(iters, it)
	}

	return Transform[Bytes, []byte, Windowed[Bytes], []byte](newMergeIterator(iters), func(kv KeyValue[Bytes, []byte]) (KeyValue[Windowed[Bytes], []byte], bool, error) {
		key, ts, err := splitWindowStoreKey(kv.Key)
		if err != nil {
			return KeyValue[Windowed[Bytes], []byte]{}, false, CodecError(s.name, "decode window key", err)
		}
		if ts < timeFrom || ts > timeTo {
			return KeyValue[Windowed[Bytes], []byte]{}, false, nil
		}
		return KeyValue[Windowed[Bytes], []byte]{
			Key:   Windowed[Bytes]{Key: key, Window: s.windowAt(ts)},
			Value: kv.Value,
		}, true, nil
	}), nil
}

func (s *SegmentedBytesStore) windowAt(start int64) Window {
	end := start + s.windowSize
	if end < start {
		end = math.MaxInt64
	}
	return Window{Start: start, End: end}
}

func (s *SegmentedBytesStore) All() (KeyValueIterator[Windowed[Bytes], []byte], error) {
	return s.FetchAll(0, math.MaxInt64)
}

func (s *SegmentedBytesStore) ApproximateNumEntries() (int64, error) {
	if err := s.lc.Check(s.name); err != nil {
		return 0, err
	}
	var total int64
	var err error
	s.segments.Ascend(func(seg *segment) bool {
		var n int64
		n, err = seg.store.ApproximateNumEntries()
		if err != nil {
			return false
		}
		total += n
		return true
	})
	return total, err
}

func (s *SegmentedBytesStore) Flush(ctx context.Context) error {
	if err := s.lc.Check(s.name); err != nil {
		return err
	}
	var err error
	s.segments.Ascend(func(seg *segment) bool {
		err = multierr.Append(err, seg.store.Flush(ctx))
		return true
	})
	return err
}

func (s *SegmentedBytesStore) Close() error {
	if !s.lc.IsOpen() {
		return nil
	}
	err := s.closeSegments()
	s.lc.MarkClosed()
	s.log.V(1).Info("Closed segmented store")
	return err
}

func (s *SegmentedBytesStore) closeSegments() error {
	var err error
	s.segments.Ascend(func(seg *segment) bool {
		err = multierr.Append(err, seg.store.Close())
		return true
	})
	s.segments.Clear(false)
	return err
}

// Destroy removes the store directory with all its segments. Only valid
// after Close.
func (s *SegmentedBytesStore) Destroy() error {
	if s.lc.IsOpen() {
		return fmt.Errorf("destroy store %s: %w", s.name, ErrStoreOpen)
	}
	if s.dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return EngineError(s.name, "destroy", err)
	}
	return nil
}

var _ WindowBytesStore = (*SegmentedBytesStore)(nil)
