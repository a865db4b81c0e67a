package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spf13/viper"

	"github.com/AIGelman23/Connectify-sub001/internal/config"
	"github.com/AIGelman23/Connectify-sub001/internal/media"
	"github.com/AIGelman23/Connectify-sub001/internal/recorder"
	"github.com/AIGelman23/Connectify-sub001/internal/service"
)

// Server exposes the studio service over HTTP
type Server struct {
	service    service.Service
	configFile string
	port       string
	upgrader   websocket.Upgrader

	profileMu     sync.RWMutex
	activeProfile string
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status        service.Status `json:"status"`
	Message       string         `json:"message,omitempty"`
	ActiveProfile string         `json:"active_profile"`
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse is sent for every failed request
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable"`
}

// SoundsResponse represents the JSON response for sounds endpoint
type SoundsResponse struct {
	Sounds        []service.SoundInfo `json:"sounds"`
	TotalCount    int                 `json:"total_count"`
	SelectedSound string              `json:"selected_sound,omitempty"`
}

// ClipsResponse represents the JSON response for clips endpoint
type ClipsResponse struct {
	Clips           []service.ClipInfo `json:"clips"`
	TotalCount      int                `json:"total_count"`
	OutputDirectory string             `json:"output_directory"`
}

type openCameraRequest struct {
	Facing string `json:"facing"`
}

type zoomRequest struct {
	Level float64 `json:"level"`
}

type torchRequest struct {
	On bool `json:"on"`
}

type selectSoundRequest struct {
	ID string `json:"id"`
}

type startRecordingRequest struct {
	Name string `json:"name"`
}

type trimRequest struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms" binding:"required"`
}

type selectProfileRequest struct {
	Profile string `json:"profile" binding:"required"`
}

// New creates a new web server for svc
func New(svc service.Service, configFile string, port string) *Server {
	return &Server{
		service:       svc,
		configFile:    configFile,
		port:          port,
		activeProfile: getActiveProfileName(configFile),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler builds the gin engine serving the API
func (s *Server) Handler() http.Handler {
	g := gin.New()
	g.Use(
		gin.CustomRecovery(func(c *gin.Context, err any) {
			slog.ErrorContext(c.Request.Context(), "panic", "err", err, "stack", string(debug.Stack()))
			c.AbortWithStatus(http.StatusInternalServerError)
		}),
		requestLogger(),
		cors.New(cors.Config{
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Accept", "Content-Length", "Content-Type", "Range", "Origin", "Cache-Control", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
			AllowOriginFunc: func(_ string) bool {
				return true
			},
		}),
	)
	g.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
	})

	api := g.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/events", s.handleEvents)

	api.GET("/profiles", s.handleProfiles)
	api.POST("/profiles/select", s.handleSelectProfile)

	camera := api.Group("/camera")
	camera.POST("/open", s.handleOpenCamera)
	camera.POST("/flip", s.handleFlipCamera)
	camera.POST("/close", s.handleCloseCamera)
	camera.POST("/zoom", s.handleZoom)
	camera.POST("/torch", s.handleTorch)

	api.GET("/sounds", s.handleSounds)
	api.GET("/sounds/selected", s.handleSelectedSound)
	api.POST("/sounds/select", s.handleSelectSound)
	api.GET("/sounds/:id/waveform", s.handleWaveform)

	rec := api.Group("/recording")
	rec.POST("/start", s.handleStartRecording)
	rec.POST("/pause", s.handlePauseRecording)
	rec.POST("/resume", s.handleResumeRecording)
	rec.POST("/stop", s.handleStopRecording)
	rec.POST("/discard", s.handleDiscardRecording)

	api.GET("/clips", s.handleClips)
	api.GET("/clips/:name", s.handleClipDownload)
	api.POST("/clips/:name/trim", s.handleTrim)

	return g
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting ReelCapture Web Server",
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

	slog.Info("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down web server: %w", err)
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.Method == http.MethodOptions {
			return
		}
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	status := s.service.GetStatus()
	c.JSON(http.StatusOK, StatusResponse{
		Status:        status,
		Message:       s.generateStatusMessage(status),
		ActiveProfile: s.getActiveProfile(),
	})
}

// handleEvents streams a status snapshot on connect and after every change
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.service.Subscribe()
	defer cancel()

	// The read loop only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.writeStatus(conn, s.service.GetStatus()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			slog.Debug("Event client disconnected", "remote", c.Request.RemoteAddr)
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := s.writeStatus(conn, status); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeStatus(conn *websocket.Conn, status service.Status) error {
	data, err := sonic.Marshal(StatusResponse{
		Status:        status,
		Message:       s.generateStatusMessage(status),
		ActiveProfile: s.getActiveProfile(),
	})
	if err != nil {
		slog.Error("Failed to encode status event", "error", err)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("Failed to write status event", "error", err)
		return err
	}
	return nil
}

func (s *Server) handleProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"profiles":       s.getAvailableProfiles(),
		"active_profile": s.getActiveProfile(),
	})
}

func (s *Server) handleSelectProfile(c *gin.Context) {
	var req selectProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendErrorResponse(c, http.StatusBadRequest, "Profile name is required", "operation", "profile_selection")
		return
	}
	slog.Debug("Profile selection request", "profile", req.Profile)

	if err := s.service.LoadProfile(req.Profile); err != nil {
		code := statusCodeFor(err)
		if code == http.StatusInternalServerError {
			code = http.StatusBadRequest
		}
		s.sendServiceError(c, code, fmt.Errorf("failed to load profile '%s': %w", req.Profile, err), "profile", req.Profile)
		return
	}

	if s.configFile != "" {
		if err := config.UpdateActiveConfig(s.configFile, req.Profile); err != nil {
			s.sendErrorResponse(c, http.StatusInternalServerError,
				fmt.Sprintf("Failed to save profile selection to config file: %v", err), "profile", req.Profile)
			return
		}
	}

	s.profileMu.Lock()
	s.activeProfile = req.Profile
	s.profileMu.Unlock()

	slog.Info("Profile changed", "profile", req.Profile)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Profile changed to %s", req.Profile),
	})
}

func (s *Server) handleOpenCamera(c *gin.Context) {
	var req openCameraRequest
	if !s.bindOptionalJSON(c, &req) {
		return
	}
	sess, err := s.service.OpenCamera(c.Request.Context(), req.Facing)
	if err != nil {
		s.sendServiceError(c, statusCodeFor(err), err, "operation", "open_camera")
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleFlipCamera(c *gin.Context) {
	sess, err := s.service.FlipCamera(c.Request.Context())
	if err != nil {
		s.sendServiceError(c, statusCodeFor(err), err, "operation", "flip_camera")
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleCloseCamera(c *gin.Context) {
	if err := s.service.CloseCamera(); err != nil {
		s.sendServiceError(c, statusCodeFor(err), err, "operation", "close_camera")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Camera closed"})
}

func (s *Server) handleZoom(c *gin.Context) {
	var req zoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendErrorResponse(c, http.StatusBadRequest, "Invalid zoom request")
		return
	}
	applied, err := s.service.SetZoom(req.Level)
	if err != nil {
		s.sendServiceError(c, statusCodeFor(err), err, "operation", "zoom", "level", req.Level)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "zoom": applied})
}

func (s *Server) handleTorch(c *gin.Context) {
	var req torchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendErrorResponse(c, http.StatusBadRequest, "Invalid torch request")
		return
	}
	if err := s.service.SetTorch(req.On); err != nil {
		s.sendServiceError(c, statusCodeFor(err), err, "operation", "torch")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "torch": req.On})
}

func (s *Server) handleSounds(c *gin.Context) {
	sounds, err := s.service.ListSounds()
	if err != nil {
		s.sendServiceError(c, http.StatusInternalServerError, err, "operation", "list_sounds")
		return
	}
	resp := SoundsResponse{Sounds: sounds, TotalCount: len(sounds)}
	for _, snd := range sounds {
		if snd.IsSelected {
			resp.SelectedSound = snd.ID
			break
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSelectedSound(c *gin.Context) {
	snd, err := s.service.GetSelectedSound()
	if err != nil {
		s.sendServiceError(c, http.StatusInternalServerError, err, "operation", "selected_sound")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sound": snd})
}

func (s *Server) handleSelectSound(c *gin.Context) {
	var req selectSoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendErrorResponse(c, http.StatusBadRequest, "Invalid sound selection request")
		return
	}
	if err := s.service.SelectSound(c.Request.Context(), req.ID); err != nil {
		s.sendServiceError(c, statusCodeFor(err), err, "sound", req.ID)
		return
	}
	msg := "Sound selection cleared"
	if req.ID != "" {
		msg = fmt.Sprintf("Sound %s selected", req.ID)
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: msg})
}

func (s *Server) handleWaveform(c *gin.Context) {
	buckets := 0
	if q := c.Query("buckets"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			s.sendErrorResponse(c, http.StatusBadRequest, "buckets must be a positive integer", "buckets", q)
			return
		}
		buckets = n
	}
	wf, err := s.service.Waveform(c.Request.Context(), c.Param("id"), buckets)
	if err != nil {
		s.sendServiceError(c, statusCodeFor(err), err, "sound", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (s *Server) handleStartRecording(c *gin.Context) {
	var req startRecordingRequest
	if !s.bindOptionalJSON(c, &req) {
		return
	}
	if err := s.service.StartRecording(req.Name); err != nil {
		s.sendServiceError(c, statusCodeFor(err), err, "operation", "start_recording")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Recording started"})
}

func (s *Server) handlePauseRecording(c *gin.Context) {
	if err := s.service.PauseRecording(); err != nil {
		s.sendServiceError(c, statusCodeFor(err), err, "operation", "pause_recording")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Recording paused"})
}

func (s *Server) handleResumeRecording(c *gin.Context) {
	if err := s.service.ResumeRecording(); err != nil {
		s.sendServiceError(c, statusCodeFor(err), err, "operation", "resume_recording")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Recording resumed"})
}

func (s *Server) handleStopRecording(c *gin.Context) {
	clip, err := s.service.StopRecording(c.Request.Context())
	if err != nil && clip == nil {
		s.sendServiceError(c, statusCodeFor(err), err, "operation", "stop_recording")
		return
	}
	resp := gin.H{"success": err == nil, "clip": clip}
	if err != nil {
		// The partial clip was kept.
		resp["error"] = err.Error()
		resp["retryable"] = isRetryable(err)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDiscardRecording(c *gin.Context) {
	s.service.DiscardRecording()
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Recording discarded"})
}

func (s *Server) handleClips(c *gin.Context) {
	clips, err := s.service.ListClips()
	if err != nil {
		s.sendServiceError(c, http.StatusInternalServerError, err, "operation", "list_clips")
		return
	}
	c.JSON(http.StatusOK, ClipsResponse{
		Clips:           clips,
		TotalCount:      len(clips),
		OutputDirectory: s.service.GetConfig().Output.Directory,
	})
}

func (s *Server) handleClipDownload(c *gin.Context) {
	name := c.Param("name")
	clip, err := s.findClip(name)
	if err != nil {
		s.sendServiceError(c, statusCodeFor(err), err, "clip", name)
		return
	}
	if _, err := os.Stat(clip.Path); err != nil {
		s.sendErrorResponse(c, http.StatusNotFound, "File not found", "clip", name)
		return
	}
	c.Header("Content-Type", clip.MimeType)
	c.FileAttachment(clip.Path, clip.Name)
}

func (s *Server) handleTrim(c *gin.Context) {
	var req trimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendErrorResponse(c, http.StatusBadRequest, "start_ms and end_ms are required")
		return
	}
	name := c.Param("name")
	res, err := s.service.Trim(c.Request.Context(), name,
		time.Duration(req.StartMs)*time.Millisecond, time.Duration(req.EndMs)*time.Millisecond)
	if err != nil {
		s.sendServiceError(c, statusCodeFor(err), err, "clip", name)
		return
	}
	c.JSON(http.StatusOK, res)
}

// findClip resolves name against the listed clips so only files the
// service produced can be served.
func (s *Server) findClip(name string) (*service.ClipInfo, error) {
	clips, err := s.service.ListClips()
	if err != nil {
		return nil, err
	}
	for i := range clips {
		if clips[i].Name == name {
			return &clips[i], nil
		}
	}
	return nil, fmt.Errorf("clip %w: %s", service.ErrNotFound, name)
}

// bindOptionalJSON binds the request body when one was sent
func (s *Server) bindOptionalJSON(c *gin.Context, obj any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		s.sendErrorResponse(c, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) getActiveProfile() string {
	s.profileMu.RLock()
	defer s.profileMu.RUnlock()
	return s.activeProfile
}

func (s *Server) getAvailableProfiles() []string {
	profiles := []string{}

	if s.configFile != "" {
		if _, err := os.Stat(s.configFile); err == nil {
			// Create a new viper instance to avoid interfering with global config
			v := viper.New()
			v.SetConfigFile(s.configFile)

			if err := v.ReadInConfig(); err == nil {
				var rootConfig config.RootConfig
				if err := v.Unmarshal(&rootConfig); err == nil {
					for profileName := range rootConfig.Configs {
						profiles = append(profiles, profileName)
					}
				} else {
					slog.Debug("Failed to unmarshal config for profiles", "error", err)
				}
			} else {
				slog.Debug("Failed to read config file for profiles", "error", err)
			}
		}
	}

	sort.Strings(profiles)
	slog.Debug("Available profiles loaded", "profiles", profiles, "config_file", s.configFile)
	return profiles
}

func getActiveProfileName(configFile string) string {
	if configFile == "" {
		return ""
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		slog.Warn("Failed to read config file for active profile", "error", err)
		return ""
	}

	var rootConfig config.RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		slog.Warn("Failed to unmarshal config for active profile", "error", err)
		return ""
	}

	if rootConfig.ActiveConfig == "" {
		if _, ok := rootConfig.Configs["default"]; ok {
			return "default"
		}
		return ""
	}
	return rootConfig.ActiveConfig
}

func (s *Server) generateStatusMessage(status service.Status) string {
	switch status.Recorder.State {
	case recorder.StateRecording:
		return fmt.Sprintf("Recording in progress - %ds left", int(status.Remaining.Seconds()))
	case recorder.StatePaused:
		return "Recording paused"
	case recorder.StateError:
		if status.LastError != "" {
			return status.LastError
		}
		return "An error occurred during the operation"
	}
	return status.LastError
}

// statusCodeFor maps a service error to an HTTP status code
func statusCodeFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, media.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, media.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch media.KindOf(err) {
	case media.KindPermissionDenied:
		return http.StatusForbidden
	case media.KindNoDevice:
		return http.StatusNotFound
	case media.KindDeviceBusy:
		return http.StatusConflict
	case media.KindUnsupported:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func isRetryable(err error) bool {
	var me *media.Error
	return errors.As(err, &me) && me.Retryable()
}

// sendServiceError sends err with its kind and retry hint
func (s *Server) sendServiceError(c *gin.Context, statusCode int, err error, logContext ...any) {
	kind := ""
	if k := media.KindOf(err); k != media.KindUnknown {
		kind = k.String()
	}
	logFields := []any{"error_message", err.Error(), "status_code", statusCode, "kind", kind}
	logFields = append(logFields, logContext...)
	slog.Error("Sending error response to client", logFields...)

	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		Error:     err.Error(),
		Kind:      kind,
		Retryable: isRetryable(err),
	})
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(c *gin.Context, statusCode int, errorMsg string, logContext ...any) {
	logFields := []any{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	c.AbortWithStatusJSON(statusCode, ErrorResponse{Error: errorMsg})
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
