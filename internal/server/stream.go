package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// FrameBuffer keeps the latest annotated frame as JPEG.
type FrameBuffer struct {
	mu   sync.RWMutex
	jpeg []byte
	seq  uint64
}

// NewFrameBuffer creates an empty FrameBuffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Put encodes frame and replaces the stored image. Encoding errors keep the
// previous frame.
func (b *FrameBuffer) Put(frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return
	}
	defer buf.Close()

	b.set(append([]byte(nil), buf.GetBytes()...))
}

func (b *FrameBuffer) set(data []byte) {
	b.mu.Lock()
	b.jpeg = data
	b.seq++
	b.mu.Unlock()
}

// Latest returns the stored JPEG and its sequence number. seq is zero
// until the first frame arrives.
func (b *FrameBuffer) Latest() ([]byte, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.jpeg, b.seq
}

// StreamHandler serves MJPEG frames from a FrameBuffer.
type StreamHandler struct {
	frames *FrameBuffer
	period time.Duration
}

// NewStreamHandler creates a new StreamHandler polling frames fps times a second.
func NewStreamHandler(frames *FrameBuffer, fps int) *StreamHandler {
	if fps <= 0 {
		fps = DefaultStreamFPS
	}
	return &StreamHandler{frames: frames, period: time.Second / time.Duration(fps)}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.period)
	defer ticker.Stop()

	var last uint64
	for {
		if data, seq := h.frames.Latest(); seq != last {
			last = seq

			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data))
			if _, err := w.Write(data); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")

			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
