package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/afero"

	"github.com/audiolibrelab/voicememo/internal/audio"
	"github.com/audiolibrelab/voicememo/internal/library"
	"github.com/audiolibrelab/voicememo/internal/screen"
)

const wsWriteTimeout = 5 * time.Second

// Controller is the recorder screen as seen by the web surface.
type Controller interface {
	View() screen.View
	Subscribe() (<-chan screen.View, func())
	RefreshClipList(ctx context.Context) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	PlayAudio(ctx context.Context, path string) error
	StopAudio(ctx context.Context) error
}

// ClipStore resolves clip names inside the recordings directory.
type ClipStore interface {
	Directory() string
	Extension() string
	Resolve(name string) (string, error)
	Open(name string) (afero.File, os.FileInfo, error)
}

// RecorderStatus reports the state of the capture process itself.
type RecorderStatus interface {
	GetStatus() (audio.Status, *audio.SessionInfo)
}

// Server exposes the recorder screen over HTTP and a websocket feed.
type Server struct {
	screen   Controller
	clips    ClipStore
	recorder RecorderStatus
	port     string
	upgrader websocket.Upgrader
}

// StatusResponse represents the status API response
type StatusResponse struct {
	Status   string             `json:"status"`
	Message  string             `json:"message,omitempty"`
	View     screen.View        `json:"view"`
	Recorder audio.Status       `json:"recorder,omitempty"`
	Session  *audio.SessionInfo `json:"recorder_session,omitempty"`
}

// ClipInfo represents a clip for the web UI
type ClipInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Duration     float64   `json:"duration"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	StreamURL    string    `json:"stream_url"`
	Playing      bool      `json:"playing"`
}

// ClipsResponse represents the clip list API response
type ClipsResponse struct {
	Clips     []ClipInfo `json:"clips"`
	Total     int        `json:"total_count"`
	Directory string     `json:"directory"`
	Extension string     `json:"extension"`
}

// PlayRequest selects the clip to play, by name.
type PlayRequest struct {
	Name string `json:"name"`
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// New creates a new web server instance. recorder may be nil.
func New(ctl Controller, clips ClipStore, recorder RecorderStatus, port string) *Server {
	return &Server{
		screen:   ctl,
		clips:    clips,
		recorder: recorder,
		port:     port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routes of the web server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/record", s.handleStartRecording)
	mux.HandleFunc("/stop", s.handleStopRecording)
	mux.HandleFunc("/api/clips", s.handleClips)
	mux.HandleFunc("/api/clips/refresh", s.handleRefresh)
	mux.HandleFunc("/api/clips/stream/", s.handleClipStream)
	mux.HandleFunc("/api/play", s.handlePlay)
	mux.HandleFunc("/api/play/stop", s.handleStopPlayback)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting VoiceMemo Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleIndex serves the main web UI
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

// handleStatus returns the current screen state
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}

	view := s.screen.View()
	response := StatusResponse{
		Status:  view.Mode.String(),
		Message: statusMessage(view),
		View:    view,
	}
	if s.recorder != nil {
		response.Recorder, response.Session = s.recorder.GetStatus()
	}
	writeJSON(w, http.StatusOK, response)
}

// handleClips lists the recorded clips in directory order
func (s *Server) handleClips(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}

	view := s.screen.View()
	clips := make([]ClipInfo, 0, len(view.Clips))
	for _, clip := range view.Clips {
		clips = append(clips, ClipInfo{
			Name:         clip.Name,
			Path:         clip.Path,
			Duration:     clip.Duration,
			Size:         clip.Size,
			SizeHuman:    formatBytes(clip.Size),
			ModTime:      clip.ModTime,
			ModTimeHuman: clip.ModTime.Format("2006-01-02 15:04:05"),
			StreamURL:    "/api/clips/stream/" + clip.Name,
			Playing:      view.IsPlaying && view.IsCurrent(clip.Path),
		})
	}

	writeJSON(w, http.StatusOK, ClipsResponse{
		Clips:     clips,
		Total:     len(clips),
		Directory: s.clips.Directory(),
		Extension: s.clips.Extension(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}
	if err := s.screen.RefreshClipList(r.Context()); err != nil {
		s.sendOperationError(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Clip list refreshed"})
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}
	if err := s.screen.StartRecording(r.Context()); err != nil {
		s.sendOperationError(w, "start_recording", err)
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Recording started"})
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}
	if err := s.screen.StopRecording(r.Context()); err != nil {
		s.sendOperationError(w, "stop_recording", err)
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Recording stopped"})
}

// handlePlay accepts the clip name as JSON or form value
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	var req PlayRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "operation", "play")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form", "operation", "play")
			return
		}
		req.Name = r.FormValue("name")
	}

	if req.Name == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Clip name is required", "operation", "play")
		return
	}

	path, err := s.clips.Resolve(req.Name)
	if err != nil {
		s.sendClipError(w, "play", err)
		return
	}

	if err := s.screen.PlayAudio(r.Context(), path); err != nil {
		s.sendOperationError(w, "play", err)
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Playing " + req.Name})
}

func (s *Server) handleStopPlayback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}
	if err := s.screen.StopAudio(r.Context()); err != nil {
		s.sendOperationError(w, "stop_playback", err)
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Playback stopped"})
}

// handleClipStream streams a clip to the browser
func (s *Server) handleClipStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/clips/stream/")
	if name == "" {
		http.Error(w, "Filename required", http.StatusBadRequest)
		return
	}

	file, info, err := s.clips.Open(name)
	if err != nil {
		switch {
		case errors.Is(err, library.ErrInvalidName):
			http.Error(w, "Invalid filename", http.StatusBadRequest)
		case errors.Is(err, library.ErrClipNotFound):
			http.Error(w, "File not found", http.StatusNotFound)
		default:
			slog.Error("Failed to open clip", "clip", name, "error", err)
			http.Error(w, "Error opening file", http.StatusInternalServerError)
		}
		return
	}
	defer file.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "audio/aac"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, name, info.ModTime(), file)
}

// handleWebSocket pushes a View to the client after every state change
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	views, cancel := s.screen.Subscribe()
	defer cancel()

	// the client never sends anything we act on; reading detects disconnects
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	slog.Debug("WebSocket client connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-gone:
			slog.Debug("WebSocket client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case view, ok := <-views:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "screen closed"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(view); err != nil {
				slog.Debug("WebSocket write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, GenericResponse{Success: false, Error: "Method not allowed"})
}

// sendOperationError maps screen errors to HTTP status codes
func (s *Server) sendOperationError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, screen.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, screen.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	s.sendErrorResponse(w, status, err.Error(), "operation", op)
}

func (s *Server) sendClipError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, library.ErrInvalidName):
		status = http.StatusBadRequest
	case errors.Is(err, library.ErrClipNotFound):
		status = http.StatusNotFound
	}
	s.sendErrorResponse(w, status, err.Error(), "operation", op)
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...any) {
	logFields := []any{"error_message", errorMsg, "status_code", statusCode}
	logFields = append(logFields, logContext...)
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, GenericResponse{Success: false, Error: errorMsg})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func statusMessage(v screen.View) string {
	switch {
	case v.IsRecording:
		return fmt.Sprintf("Recording %s (%ds)", filepath.Base(v.RecordingFile), v.RecordingSeconds)
	case v.IsPlaying:
		return fmt.Sprintf("Playing %s (%ds)", filepath.Base(v.CurrentClip), v.PlaybackSeconds)
	case v.LastError != "":
		return v.LastError
	default:
		return "Ready"
	}
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
