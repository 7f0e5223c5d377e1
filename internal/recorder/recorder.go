// Package recorder provides recording and replay of pose frame logs.
//
// A log is a JSON-lines stream: one LogHeader line followed by one
// pose.Frame per line. Paths ending in FileExtension are zstd-compressed;
// any other path is read and written as plain JSON lines.
package recorder

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/banshee-data/rehab.report/internal/pose"
)

// FileExtension is the extension for compressed frame logs.
const FileExtension = ".jsonl.zst"

// FormatVersion is written to every log header.
const FormatVersion = "1.0"

// maxLineBytes bounds a single encoded frame.
const maxLineBytes = 1 << 20

var (
	// ErrClosed is returned when recording into a closed Recorder.
	ErrClosed = errors.New("recorder is closed")
	// ErrOutOfOrder is returned for a frame older than its predecessor.
	ErrOutOfOrder = errors.New("frame timestamp precedes previous frame")
)

// LogHeader describes a recorded log.
type LogHeader struct {
	Version    string `json:"version"`
	CreatedNs  int64  `json:"created_ns"`
	ExerciseID string `json:"exercise_id,omitempty"`
	Source     string `json:"source,omitempty"`
}

// Recorder appends frames to a log file.
type Recorder struct {
	path   string
	header LogHeader

	file *os.File
	zw   *zstd.Encoder
	bw   *bufio.Writer
	enc  *json.Encoder

	frameCount uint64
	lastTs     time.Time

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates the log at path and writes its header. If path is
// empty, a timestamped compressed log is created in the temp directory.
func NewRecorder(path, exerciseID, source string) (*Recorder, error) {
	now := time.Now()
	if path == "" {
		path = filepath.Join(os.TempDir(), fmt.Sprintf("frames_%s_%d%s", exerciseID, now.Unix(), FileExtension))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create log: %w", err)
	}

	r := &Recorder{
		path: path,
		file: f,
		header: LogHeader{
			Version:    FormatVersion,
			CreatedNs:  now.UnixNano(),
			ExerciseID: exerciseID,
			Source:     source,
		},
	}
	var w io.Writer = f
	if IsCompressed(path) {
		r.zw, err = zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		w = r.zw
	}
	r.bw = bufio.NewWriter(w)
	r.enc = json.NewEncoder(r.bw)

	if err := r.enc.Encode(r.header); err != nil {
		r.abort()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return r, nil
}

// Record appends one frame. Frames must arrive in timestamp order.
func (r *Recorder) Record(frame pose.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.frameCount > 0 && frame.Timestamp.Before(r.lastTs) {
		return fmt.Errorf("%w: %s < %s", ErrOutOfOrder,
			frame.Timestamp.Format(time.RFC3339Nano), r.lastTs.Format(time.RFC3339Nano))
	}
	if err := r.enc.Encode(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	r.lastTs = frame.Timestamp
	r.frameCount++
	return nil
}

// Close flushes and finalises the log. Closing twice is a no-op.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.bw.Flush(); err != nil {
		r.abort()
		return fmt.Errorf("flush log: %w", err)
	}
	if r.zw != nil {
		if err := r.zw.Close(); err != nil {
			r.file.Close()
			return fmt.Errorf("finalize compression: %w", err)
		}
	}
	return r.file.Close()
}

func (r *Recorder) abort() {
	if r.zw != nil {
		r.zw.Close()
	}
	r.file.Close()
}

// Path returns the log path.
func (r *Recorder) Path() string {
	return r.path
}

// Header returns the header written at the start of the log.
func (r *Recorder) Header() LogHeader {
	return r.header
}

// FrameCount returns the number of frames recorded.
func (r *Recorder) FrameCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameCount
}

// IsCompressed reports whether path names a zstd-compressed log.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, FileExtension)
}

// Replayer reads frames back from a log.
type Replayer struct {
	path    string
	header  LogHeader
	file    *os.File
	zr      *zstd.Decoder
	scanner *bufio.Scanner
	line    int
	frames  uint64
}

// NewReplayer opens the log at path and reads its header.
func NewReplayer(path string) (*Replayer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	r := &Replayer{path: path, file: f}

	var src io.Reader = f
	if IsCompressed(path) {
		r.zr, err = zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		src = r.zr
	}
	r.scanner = bufio.NewScanner(src)
	r.scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line, err := r.next()
	if err != nil {
		r.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: missing log header", path)
		}
		return nil, err
	}
	if err := json.Unmarshal(line, &r.header); err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	if r.header.Version == "" {
		r.Close()
		return nil, fmt.Errorf("%s: log header has no version", path)
	}
	return r, nil
}

func (r *Replayer) next() ([]byte, error) {
	for r.scanner.Scan() {
		r.line++
		b := r.scanner.Bytes()
		if len(strings.TrimSpace(string(b))) == 0 {
			continue
		}
		return b, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return nil, io.EOF
}

// Header returns the log header.
func (r *Replayer) Header() LogHeader {
	return r.header
}

// FramesRead returns the number of frames returned so far.
func (r *Replayer) FramesRead() uint64 {
	return r.frames
}

// ReadFrame returns the next frame, or io.EOF at the end of the log.
func (r *Replayer) ReadFrame() (pose.Frame, error) {
	line, err := r.next()
	if err != nil {
		return pose.Frame{}, err
	}
	var f pose.Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return pose.Frame{}, fmt.Errorf("%s:%d: failed to parse frame: %w", r.path, r.line, err)
	}
	r.frames++
	return f, nil
}

// Close releases the underlying file.
func (r *Replayer) Close() error {
	if r.zr != nil {
		r.zr.Close()
		r.zr = nil
	}
	return r.file.Close()
}

// ReadAll loads every frame of the log at path.
func ReadAll(path string) (LogHeader, []pose.Frame, error) {
	r, err := NewReplayer(path)
	if err != nil {
		return LogHeader{}, nil, err
	}
	defer r.Close()

	var frames []pose.Frame
	for {
		f, err := r.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.header, nil, err
		}
		frames = append(frames, f)
	}
	return r.header, frames, nil
}
