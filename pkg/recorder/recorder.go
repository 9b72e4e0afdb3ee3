// Package recorder buffers decoded readings and periodically appends them to per-device log
// files. Each file covers a window of wall-clock time; once a window has run for its configured
// length, the next reading starts a new file.
//
// Readings are added from the goroutine that decodes notifications and written by a separate
// flush goroutine (see [Recorder.Run]), so file I/O never stalls the transport. The pending buffer
// is the only state the two share.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/imu-telemetry/imu-logger/internal/log"
	"github.com/imu-telemetry/imu-logger/pkg/protocol"
)

const (
	DefaultWindow        = 600 * time.Second
	DefaultFlushInterval = 6 * time.Second
	fileExtension        = ".csv"
)

// Options control window rotation and flush cadence. Zero values select the defaults.
type Options struct {
	Window        time.Duration
	FlushInterval time.Duration
	// Now replaces the wall clock, mostly useful in tests.
	Now func() time.Time
	// Tag prefixes log messages.
	Tag string
}

// Recorder buffers readings from one sensor and persists them to windowed log files.
type Recorder struct {
	dir      string
	window   time.Duration
	interval time.Duration
	now      func() time.Time
	tag      string

	lock        sync.Mutex
	pending     []protocol.Reading
	path        string
	windowStart time.Time
}

// DeviceDir returns the directory that holds log files for the sensor at address.
func DeviceDir(root, address string) string {
	return filepath.Join(root, strings.NewReplacer(":", "_", "-", "_").Replace(address))
}

// New creates the sensor's log directory under root and returns a Recorder that writes there.
func New(root, address string, opts Options) (*Recorder, error) {
	dir := DeviceDir(root, address)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &protocol.StorageError{Path: dir, Err: err}
	}
	r := &Recorder{
		dir:      dir,
		window:   opts.Window,
		interval: opts.FlushInterval,
		now:      opts.Now,
		tag:      opts.Tag,
	}
	if r.window <= 0 {
		r.window = DefaultWindow
	}
	if r.interval <= 0 {
		r.interval = DefaultFlushInterval
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.tag == "" {
		r.tag = address
	}
	return r, nil
}

// Dir returns the directory log files are written to.
func (r *Recorder) Dir() string {
	return r.dir
}

// Add queues a reading for the next flush. It never blocks on I/O. The first reading added while
// no window is active opens a new one.
func (r *Recorder) Add(reading protocol.Reading) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.path == "" {
		r.windowStart = r.now()
		r.path = filepath.Join(r.dir, strconv.FormatInt(r.windowStart.UnixMilli(), 10)+fileExtension)
		log.Debug("[%s] Opened log window %s", r.tag, r.path)
	}
	r.pending = append(r.pending, reading)
}

// Window returns the path of the active window's file, if any.
func (r *Recorder) Window() (string, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.path, r.path != ""
}

// Pending returns the number of readings waiting to be flushed.
func (r *Recorder) Pending() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.pending)
}

// Flush appends all pending readings to the active window's file. On failure nothing is
// persisted, the readings stay queued for the next attempt and the window is not rotated. After a
// successful flush, a window that has been open for at least the configured length is closed.
//
// Flush returns protocol.ErrNoWindow if no window is active.
func (r *Recorder) Flush() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.path == "" {
		return protocol.ErrNoWindow
	}
	if len(r.pending) == 0 {
		return nil
	}
	if err := appendRows(r.path, r.pending); err != nil {
		return err
	}
	log.Info("[%s] Wrote %d records to %s", r.tag, len(r.pending), r.path)
	r.pending = r.pending[:0]

	if r.now().Sub(r.windowStart) >= r.window {
		log.Debug("[%s] Closing log window %s", r.tag, r.path)
		r.path = ""
	}
	return nil
}

// Run flushes pending readings every flush interval until ctx is done. It returns as soon as ctx
// is done without a final flush; callers that want one call Flush after Run returns.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Flush(); err != nil && !errors.Is(err, protocol.ErrNoWindow) {
				log.Warning("[%s] Flush failed, keeping %d records for retry: %s", r.tag, r.Pending(), err)
			}
		}
	}
}

// FormatRow renders a reading as one space-delimited log row, without a line terminator.
func FormatRow(reading protocol.Reading) string {
	fields := []string{
		strconv.FormatInt(reading.Timestamp, 10),
		formatFloat(reading.AccX),
		formatFloat(reading.AccY),
		formatFloat(reading.AccZ),
		formatFloat(reading.GyroX),
		formatFloat(reading.GyroY),
		formatFloat(reading.GyroZ),
	}
	return strings.Join(fields, " ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(protocol.Round(v, protocol.Precision), 'f', -1, 64)
}

var closeFile = (*os.File).Close

// appendRows writes readings with a single write call. If the write fails, the file is truncated
// back to its previous length so a retry does not duplicate rows.
func appendRows(path string, readings []protocol.Reading) error {
	var buffer bytes.Buffer
	for _, reading := range readings {
		buffer.WriteString(FormatRow(reading))
		buffer.WriteByte('\n')
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return &protocol.StorageError{Path: path, Err: err}
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return &protocol.StorageError{Path: path, Err: err}
	}

	n, err := file.Write(buffer.Bytes())
	if err == nil && n != buffer.Len() {
		err = fmt.Errorf("short write: %d of %d bytes", n, buffer.Len())
	}
	if err != nil {
		if truncErr := file.Truncate(info.Size()); truncErr != nil {
			log.Error("Failed to roll back partial write to %s: %s", path, truncErr)
		}
		file.Close()
		return &protocol.StorageError{Path: path, Err: err}
	}
	// The rows are on disk at this point, so a close error does not fail the flush.
	if err := closeFile(file); err != nil {
		log.Warning("Failed to close %s after writing %d bytes: %s", path, n, err)
	}
	return nil
}
