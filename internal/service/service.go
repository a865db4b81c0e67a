package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"

	"github.com/AIGelman23/Connectify-sub001/internal/capture"
	"github.com/AIGelman23/Connectify-sub001/internal/config"
	"github.com/AIGelman23/Connectify-sub001/internal/media"
	"github.com/AIGelman23/Connectify-sub001/internal/media/virtual"
	"github.com/AIGelman23/Connectify-sub001/internal/mix"
	"github.com/AIGelman23/Connectify-sub001/internal/platform"
	"github.com/AIGelman23/Connectify-sub001/internal/recorder"
	"github.com/AIGelman23/Connectify-sub001/internal/trim"
	"github.com/AIGelman23/Connectify-sub001/internal/waveform"
)

// Errors returned for requests naming unknown or malformed items.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Service represents the core reel capture service interface
type Service interface {
	// Camera operations
	OpenCamera(ctx context.Context, facing string) (capture.Session, error)
	FlipCamera(ctx context.Context) (capture.Session, error)
	CloseCamera() error
	SetZoom(level float64) (float64, error)
	SetTorch(on bool) error

	// Sound operations
	ListSounds() ([]SoundInfo, error)
	GetSelectedSound() (*SoundInfo, error)
	SelectSound(ctx context.Context, id string) error

	// Recording operations
	StartRecording(name string) error
	PauseRecording() error
	ResumeRecording() error
	StopRecording(ctx context.Context) (*ClipInfo, error)
	DiscardRecording()

	// Clip operations
	ListClips() ([]ClipInfo, error)
	Trim(ctx context.Context, clipName string, start, end time.Duration) (*TrimResult, error)
	Waveform(ctx context.Context, soundID string, buckets int) (waveform.Waveform, error)

	// Configuration operations
	LoadProfile(profile string) error
	GetConfig() *config.Config

	// Information operations
	GetStatus() Status
	GetLastError() string
	Subscribe() (<-chan Status, func())

	Close() error
}

// SoundInfo describes a selectable background sound
type SoundInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Artist       string    `json:"artist,omitempty"`
	URL          string    `json:"url"`
	Volume       float64   `json:"volume"`
	Source       string    `json:"source"` // "catalog" or "library"
	Size         int64     `json:"size,omitempty"`
	SizeHuman    string    `json:"size_human,omitempty"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human,omitempty"`
	IsSelected   bool      `json:"is_selected"`
	WaveformURL  string    `json:"waveform_url"`
}

// ClipInfo contains information about a recorded or trimmed clip file
type ClipInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	// Partial is set when the encoder faulted before the clip was complete.
	Partial     bool   `json:"partial,omitempty"`
	DownloadURL string `json:"download_url"`
}

// TrimResult reports a trim. When Fallback is set the trim failed and Clip
// is the original, untrimmed clip.
type TrimResult struct {
	Clip        ClipInfo      `json:"clip"`
	Start       time.Duration `json:"start"`
	End         time.Duration `json:"end"`
	Frames      int           `json:"frames"`
	AudioRouted bool          `json:"audio_routed"`
	Fallback    bool          `json:"fallback"`
	Error       string        `json:"error,omitempty"`
}

// MixStatus describes the live audio graph
type MixStatus struct {
	Mode  mix.Mode `json:"mode"`
	Mixed bool     `json:"mixed"`
	Graph string   `json:"graph,omitempty"`
}

// Status is a snapshot of the whole studio
type Status struct {
	Backend   string           `json:"backend"`
	Camera    capture.Session  `json:"camera"`
	Recorder  recorder.Session `json:"recorder"`
	Remaining time.Duration    `json:"remaining"`
	Mix       MixStatus        `json:"mix"`
	Sound     *SoundInfo       `json:"sound,omitempty"`
	LastClip  *ClipInfo        `json:"last_clip,omitempty"`
	LastError string           `json:"last_error,omitempty"`
}

// SoundSelection represents the sound selection stored in conf.yaml
type SoundSelection struct {
	SelectedSound string `yaml:"selected_sound"`
	LastUpdated   string `yaml:"last_updated"`
}

// Options configures a Studio. Zero values select the configured backend
// and the real clock.
type Options struct {
	Platform media.Platform
	Clock    clockwork.Clock
}

// Studio is the main service implementation
type Studio struct {
	configFile string
	platform   media.Platform
	clock      clockwork.Clock

	camera *capture.Manager
	mixer  *mix.Mixer

	mu          sync.Mutex
	cfg         *config.Config
	recorder    *recorder.Recorder
	trimmer     *trim.Engine
	waveforms   *waveform.Extractor
	sound       *SoundInfo
	music       media.MediaElement
	pendingName string
	saved       map[string]*ClipInfo
	lastClip    *ClipInfo

	// Sound selection file
	selectionMutex sync.RWMutex

	subsMu sync.Mutex
	subs   map[chan Status]struct{}

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a new studio service instance
func New(cfg *config.Config, configFile string, opts Options) (*Studio, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	p := opts.Platform
	if p == nil {
		var err error
		p, err = platform.New(cfg.Platform.Backend, virtual.Options{Clock: opts.Clock})
		if err != nil {
			return nil, fmt.Errorf("failed to create media platform: %w", err)
		}
	}

	s := &Studio{
		cfg:        cfg,
		configFile: configFile,
		platform:   p,
		clock:      opts.Clock,
		camera:     capture.NewManager(p.Devices(), cfg.CaptureOptions()),
		mixer:      mix.New(p.NewAudioContext, cfg.MixOptions()),
		saved:      make(map[string]*ClipInfo),
		subs:       make(map[chan Status]struct{}),
	}
	s.applyConfigLocked(cfg)
	s.camera.OnStreamChange(s.onStreamChange)

	if id, err := s.getSelectedSoundID(); err != nil {
		slog.Warn("Failed to read sound selection", "error", err)
	} else if id != "" {
		if info, ok := s.resolveSound(id); ok {
			s.sound = info
		}
	}

	slog.Debug("Studio created", "backend", p.Name(), "output", cfg.Output.Directory)
	return s, nil
}

// applyConfigLocked builds the config-dependent components. The recorder is
// only replaced while idle.
func (s *Studio) applyConfigLocked(cfg *config.Config) {
	recOpts := cfg.RecorderOptions()
	recOpts.Clock = s.clock
	s.recorder = recorder.New(s.platform.Encoders(), recOpts)
	s.recorder.OnStop(s.onRecordingStopped)

	trimOpts := cfg.TrimOptions()
	trimOpts.Clock = s.clock
	s.trimmer = trim.NewEngine(s.platform, trimOpts)

	s.waveforms = waveform.New(s.platform.Decoder(), cfg.WaveformOptions())
}

// ===== CAMERA =====

// OpenCamera acquires the camera facing the given way. An empty facing uses
// the configured one.
func (s *Studio) OpenCamera(ctx context.Context, facing string) (capture.Session, error) {
	slog.Debug("Service.OpenCamera called", "facing", facing)
	s.clearLastError()

	if s.isRecording() {
		return s.camera.Session(), fmt.Errorf("open camera: %w: recording in progress", media.ErrInvalidState)
	}
	f := s.GetConfig().FacingMode()
	if facing != "" {
		var ok bool
		if f, ok = media.ParseFacingMode(facing); !ok {
			return s.camera.Session(), fmt.Errorf("%w: facing mode %q (must be 'user' or 'environment')", ErrInvalidArgument, facing)
		}
	}

	if err := s.ensureMusic(ctx); err != nil {
		slog.Warn("Selected sound unavailable, continuing without music", "error", err)
	}

	sess, err := s.camera.Acquire(ctx, f)
	if err != nil {
		s.setLastError(fmt.Sprintf("Camera unavailable: %v", err))
		return sess, err
	}
	s.broadcast()
	return sess, nil
}

// FlipCamera switches to the opposite camera.
func (s *Studio) FlipCamera(ctx context.Context) (capture.Session, error) {
	if s.isRecording() {
		return s.camera.Session(), fmt.Errorf("flip camera: %w: recording in progress", media.ErrInvalidState)
	}
	sess, err := s.camera.Flip(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Camera flip failed: %v", err))
		return sess, err
	}
	s.broadcast()
	return sess, nil
}

// CloseCamera releases the camera. An active recording must be stopped
// first.
func (s *Studio) CloseCamera() error {
	if s.isRecording() {
		return fmt.Errorf("close camera: %w: recording in progress", media.ErrInvalidState)
	}
	s.camera.Release()
	s.broadcast()
	return nil
}

// SetZoom applies a zoom level and returns the applied value.
func (s *Studio) SetZoom(level float64) (float64, error) {
	z, err := s.camera.SetZoom(level)
	if err != nil {
		return z, err
	}
	s.broadcast()
	return z, nil
}

// SetTorch switches the torch.
func (s *Studio) SetTorch(on bool) error {
	if err := s.camera.SetTorch(on); err != nil {
		return err
	}
	s.broadcast()
	return nil
}

// onStreamChange rebuilds the mix graph for the new base stream.
func (s *Studio) onStreamChange(stream media.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuildLocked(stream)
}

func (s *Studio) rebuildLocked(stream media.Stream) {
	if _, err := s.mixer.Rebuild(stream, s.music); err != nil {
		s.setLastError(fmt.Sprintf("Music mix unavailable, recording camera audio: %v", err))
	}
}

// ===== SOUNDS =====

// getSoundsDirectory returns the resolved sounds directory path
func (s *Studio) getSoundsDirectory() string {
	cfg := s.GetConfig()
	dir := cfg.Output.SoundsDirectory
	if dir == "" {
		dir = filepath.Join(cfg.Output.Directory, "Sounds")
	}
	return dir
}

// ListSounds returns the configured catalog followed by the audio files in
// the sounds directory. The selected sound comes first.
func (s *Studio) ListSounds() ([]SoundInfo, error) {
	s.selectionMutex.RLock()
	defer s.selectionMutex.RUnlock()

	selected, err := s.getSelectedSoundID()
	if err != nil {
		slog.Warn("Failed to read sound selection", "error", err)
	}

	var sounds []SoundInfo
	for _, snd := range s.GetConfig().Sounds {
		info := catalogSound(snd)
		info.IsSelected = info.ID == selected
		sounds = append(sounds, info)
	}

	library, err := s.scanLibrary()
	if err != nil {
		return nil, err
	}
	for _, info := range library {
		info.IsSelected = info.ID == selected
		sounds = append(sounds, info)
	}

	// Catalog order is kept; library files newest first; selected one on top
	sort.SliceStable(sounds, func(i, j int) bool {
		if sounds[i].IsSelected != sounds[j].IsSelected {
			return sounds[i].IsSelected
		}
		if sounds[i].Source == "library" && sounds[j].Source == "library" {
			return sounds[i].ModTime.After(sounds[j].ModTime)
		}
		return false
	})

	return sounds, nil
}

func catalogSound(snd config.Sound) SoundInfo {
	var info SoundInfo
	if err := copier.Copy(&info, &snd); err != nil {
		slog.Error("Copy", "err", err)
	}
	info.Source = "catalog"
	info.WaveformURL = fmt.Sprintf("/api/sounds/%s/waveform", snd.ID)
	return info
}

// scanLibrary lists supported audio files in the sounds directory
func (s *Studio) scanLibrary() ([]SoundInfo, error) {
	dir := s.getSoundsDirectory()

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sounds directory: %w", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sounds directory: %w", err)
	}

	exts := config.GetSupportedAudioExtensions(s.configFile)
	var sounds []SoundInfo
	for _, file := range files {
		if file.IsDir() || !config.IsSupportedAudioFile(file.Name(), exts) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			slog.Warn("Failed to get file info", "file", file.Name(), "error", err)
			continue
		}
		sounds = append(sounds, SoundInfo{
			ID:           file.Name(),
			Name:         strings.TrimSuffix(file.Name(), filepath.Ext(file.Name())),
			URL:          filepath.Join(dir, file.Name()),
			Volume:       1,
			Source:       "library",
			Size:         info.Size(),
			SizeHuman:    formatBytes(info.Size()),
			ModTime:      info.ModTime(),
			ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
			WaveformURL:  fmt.Sprintf("/api/sounds/%s/waveform", file.Name()),
		})
	}
	return sounds, nil
}

// resolveSound finds a catalog entry or a library file by ID.
func (s *Studio) resolveSound(id string) (*SoundInfo, bool) {
	if snd, ok := s.GetConfig().FindSound(id); ok {
		info := catalogSound(snd)
		return &info, true
	}
	if filepath.Base(id) != id {
		return nil, false
	}
	library, err := s.scanLibrary()
	if err != nil {
		slog.Warn("Failed to scan sounds directory", "error", err)
		return nil, false
	}
	for _, info := range library {
		if info.ID == id {
			return &info, true
		}
	}
	return nil, false
}

// GetSelectedSound returns the currently selected sound, or nil.
func (s *Studio) GetSelectedSound() (*SoundInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sound == nil {
		return nil, nil // No sound selected
	}
	info := *s.sound
	info.IsSelected = true
	return &info, nil
}

// SelectSound selects the background sound by ID and rebuilds the mix
// graph. An empty ID clears the selection. The choice is persisted.
func (s *Studio) SelectSound(ctx context.Context, id string) error {
	slog.Debug("Service.SelectSound called", "id", id)
	if s.isRecording() {
		return fmt.Errorf("select sound: %w: recording in progress", media.ErrInvalidState)
	}

	var info *SoundInfo
	var music media.MediaElement
	if id != "" {
		var ok bool
		if info, ok = s.resolveSound(id); !ok {
			return fmt.Errorf("sound %w: %s", ErrNotFound, id)
		}
		var err error
		music, err = s.platform.NewAudioElement(ctx, info.URL)
		if err != nil {
			s.setLastError(fmt.Sprintf("Failed to load sound %s: %v", id, err))
			return fmt.Errorf("failed to load sound %s: %w", id, err)
		}
	}

	s.mu.Lock()
	s.installMusicLocked(info, music)
	s.rebuildLocked(s.camera.Stream())
	s.mu.Unlock()

	if err := s.saveSoundSelection(id); err != nil {
		slog.Warn("Failed to persist sound selection", "error", err)
	}
	slog.Info("Sound selected", "id", id)
	s.broadcast()
	return nil
}

// installMusicLocked replaces the music element. The sound's volume scales
// the configured music volume.
func (s *Studio) installMusicLocked(info *SoundInfo, music media.MediaElement) {
	if s.music != nil {
		s.music.Close()
	}
	s.sound = info
	s.music = music
	s.applyMixOptionsLocked()
}

func (s *Studio) applyMixOptionsLocked() {
	opts := s.cfg.MixOptions()
	if s.sound != nil {
		opts.MusicVolume *= s.sound.Volume
	}
	s.mixer.SetOptions(opts)
}

// ensureMusic loads the element for a persisted selection that has not
// been opened yet.
func (s *Studio) ensureMusic(ctx context.Context) error {
	s.mu.Lock()
	info, loaded := s.sound, s.music != nil
	s.mu.Unlock()
	if info == nil || loaded {
		return nil
	}
	music, err := s.platform.NewAudioElement(ctx, info.URL)
	if err != nil {
		return fmt.Errorf("failed to load sound %s: %w", info.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.music != nil || s.sound == nil || s.sound.ID != info.ID {
		music.Close()
		return nil
	}
	s.installMusicLocked(info, music)
	return nil
}

// Helper methods for the sound selection file

func (s *Studio) getSelectionPath() string {
	return filepath.Join(s.getSoundsDirectory(), "conf.yaml")
}

func (s *Studio) getSelectedSoundID() (string, error) {
	data, err := os.ReadFile(s.getSelectionPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil // No config file = no selection
		}
		return "", fmt.Errorf("failed to read sound selection: %w", err)
	}

	var selection SoundSelection
	if err := yaml.Unmarshal(data, &selection); err != nil {
		return "", fmt.Errorf("failed to parse sound selection: %w", err)
	}
	return selection.SelectedSound, nil
}

func (s *Studio) saveSoundSelection(id string) error {
	s.selectionMutex.Lock()
	defer s.selectionMutex.Unlock()

	path := s.getSelectionPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(&SoundSelection{
		SelectedSound: id,
		LastUpdated:   s.clock.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sound selection: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write sound selection: %w", err)
	}
	return nil
}

// ===== RECORDING =====

func (s *Studio) rec() *recorder.Recorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder
}

func (s *Studio) isRecording() bool {
	switch s.rec().State() {
	case recorder.StateRecording, recorder.StatePaused:
		return true
	}
	return false
}

// StartRecording records the mixed stream into a clip called name. An empty
// name uses a timestamp.
func (s *Studio) StartRecording(name string) error {
	slog.Debug("Service.StartRecording called", "name", name)
	s.clearLastError() // Clear any previous errors when starting a new operation

	base := s.camera.Stream()
	if base == nil {
		err := fmt.Errorf("start recording: %w: camera is not open", media.ErrInvalidState)
		s.setLastError(err.Error())
		return err
	}
	stream := base
	if g := s.mixer.Current(); g != nil {
		stream = g.Stream()
	}

	clean := cleanFileName(name)
	if clean == "" {
		clean = "reel_" + s.clock.Now().Format("20060102_150405")
	}

	s.mu.Lock()
	r, music := s.recorder, s.music
	s.pendingName = clean
	s.mu.Unlock()

	if err := r.Start(stream); err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return err
	}
	if music != nil {
		if err := music.Seek(context.Background(), 0); err != nil {
			slog.Warn("Failed to rewind music", "error", err)
		}
		if err := music.Play(); err != nil {
			slog.Warn("Failed to play music", "error", err)
		}
	}
	s.broadcast()
	return nil
}

// PauseRecording pauses the recording and the music.
func (s *Studio) PauseRecording() error {
	if err := s.rec().Pause(); err != nil {
		return err
	}
	s.pauseMusic(false)
	s.broadcast()
	return nil
}

// ResumeRecording resumes the recording and the music.
func (s *Studio) ResumeRecording() error {
	if err := s.rec().Resume(); err != nil {
		return err
	}
	s.mu.Lock()
	music := s.music
	s.mu.Unlock()
	if music != nil {
		if err := music.Play(); err != nil {
			slog.Warn("Failed to resume music", "error", err)
		}
	}
	s.broadcast()
	return nil
}

// StopRecording stops the recording and writes the clip. Stopping an idle
// recorder returns the last clip. On an encoder fault the partial clip is
// written and returned together with the error.
func (s *Studio) StopRecording(ctx context.Context) (*ClipInfo, error) {
	r := s.rec()
	blob, err := r.Stop(ctx)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.pauseMusic(true)
	sess := r.Session()
	if sess.ID == "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.lastClip, nil
	}

	clip, saveErr := s.saveClip(sess.ID, blob, err != nil)
	if saveErr != nil {
		s.setLastError(saveErr.Error())
		return nil, saveErr
	}
	if err != nil {
		s.setLastError(fmt.Sprintf("Recording failed, partial clip kept: %v", err))
		return clip, err
	}
	return clip, nil
}

// DiscardRecording drops the current recording without writing a clip.
func (s *Studio) DiscardRecording() {
	s.rec().Clear()
	s.pauseMusic(true)
	s.broadcast()
}

// onRecordingStopped runs after every stop, including the automatic stop at
// the duration limit.
func (s *Studio) onRecordingStopped(sess recorder.Session, blob media.Blob, err error, auto bool) {
	s.pauseMusic(true)
	if _, saveErr := s.saveClip(sess.ID, blob, err != nil); saveErr != nil {
		s.setLastError(saveErr.Error())
	} else if err != nil {
		s.setLastError(fmt.Sprintf("Recording failed, partial clip kept: %v", err))
	}
	if auto {
		slog.Info("Recording reached the duration limit", "session", sess.ID, "elapsed", sess.Elapsed)
	}
	s.broadcast()
}

func (s *Studio) pauseMusic(rewind bool) {
	s.mu.Lock()
	music := s.music
	s.mu.Unlock()
	if music == nil {
		return
	}
	music.Pause()
	if rewind {
		if err := music.Seek(context.Background(), 0); err != nil {
			slog.Debug("Failed to rewind music", "error", err)
		}
	}
}

// saveClip writes blob once per recorder session.
func (s *Studio) saveClip(sessionID string, blob media.Blob, partial bool) (*ClipInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if clip, ok := s.saved[sessionID]; ok {
		return clip, nil
	}
	if blob.Empty() {
		return nil, fmt.Errorf("recording %s produced no data", sessionID)
	}

	dir := s.cfg.Output.Directory
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	name := s.pendingName
	if name == "" {
		name = "reel_" + s.clock.Now().Format("20060102_150405")
	}
	path := uniquePath(dir, name, extensionFor(blob.MimeType))
	if err := os.WriteFile(path, blob.Data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write clip: %w", err)
	}

	clip, err := clipInfo(path, blob.MimeType)
	if err != nil {
		return nil, err
	}
	clip.Partial = partial
	s.saved[sessionID] = clip
	s.lastClip = clip
	slog.Info("Clip saved", "file", path, "size", clip.SizeHuman, "partial", partial)
	return clip, nil
}

// ===== CLIPS =====

// ListClips returns the clips in the output directory, newest first.
func (s *Studio) ListClips() ([]ClipInfo, error) {
	dir := s.GetConfig().Output.Directory

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	var clips []ClipInfo
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		mime := mimeFor(file.Name())
		if mime == "" {
			continue
		}
		clip, err := clipInfo(filepath.Join(dir, file.Name()), mime)
		if err != nil {
			slog.Warn("Failed to get file info", "file", file.Name(), "error", err)
			continue
		}
		clips = append(clips, *clip)
	}

	sort.Slice(clips, func(i, j int) bool {
		return clips[i].ModTime.After(clips[j].ModTime)
	})
	return clips, nil
}

// Trim cuts the named clip to [start, end], adjusted to a valid selection,
// and writes <name>_trim.<ext>. A failed trim is not an error: the result
// falls back to the original clip and records the failure.
func (s *Studio) Trim(ctx context.Context, clipName string, start, end time.Duration) (*TrimResult, error) {
	slog.Debug("Service.Trim called", "clip", clipName, "start", start, "end", end)
	s.clearLastError()

	if clipName == "" || filepath.Base(clipName) != clipName {
		return nil, fmt.Errorf("%w: clip name %q", ErrInvalidArgument, clipName)
	}
	s.mu.Lock()
	cfg, engine := s.cfg, s.trimmer
	s.mu.Unlock()

	path := filepath.Join(cfg.Output.Directory, clipName)
	original, err := clipInfo(path, mimeFor(clipName))
	if err != nil {
		return nil, fmt.Errorf("clip %w: %s", ErrNotFound, clipName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip: %w", err)
	}
	blob := media.Blob{Data: data, MimeType: original.MimeType}

	fallback := func(err error) (*TrimResult, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.setLastError(fmt.Sprintf("Trim failed, keeping original clip: %v", err))
		return &TrimResult{Clip: *original, Fallback: true, Error: err.Error()}, nil
	}

	duration, err := s.probeDuration(ctx, blob)
	if err != nil {
		return fallback(err)
	}
	sel := trim.NewSelection(duration, cfg.MinSelection())
	sel.SetStart(start)
	sel.SetEnd(end)

	res, err := engine.Trim(ctx, blob, sel.Start(), sel.End())
	if err != nil {
		return fallback(err)
	}

	name := strings.TrimSuffix(clipName, filepath.Ext(clipName)) + "_trim"
	outPath := uniquePath(cfg.Output.Directory, name, extensionFor(res.Blob.MimeType))
	if err := os.WriteFile(outPath, res.Blob.Data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write trimmed clip: %w", err)
	}
	clip, err := clipInfo(outPath, res.Blob.MimeType)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastClip = clip
	s.mu.Unlock()
	s.broadcast()

	return &TrimResult{
		Clip:        *clip,
		Start:       res.Start,
		End:         res.End,
		Frames:      res.Frames,
		AudioRouted: res.AudioRouted,
	}, nil
}

func (s *Studio) probeDuration(ctx context.Context, blob media.Blob) (time.Duration, error) {
	el, err := s.platform.LoadElement(ctx, blob)
	if err != nil {
		return 0, media.NewError(media.KindDecodeFailure, "probe clip", err)
	}
	defer el.Close()
	return el.Duration(), nil
}

// Waveform returns the amplitude envelope of a sound. Sources that cannot
// be decoded yield synthetic data.
func (s *Studio) Waveform(ctx context.Context, soundID string, buckets int) (waveform.Waveform, error) {
	info, ok := s.resolveSound(soundID)
	if !ok {
		return waveform.Waveform{}, fmt.Errorf("sound %w: %s", ErrNotFound, soundID)
	}
	s.mu.Lock()
	x := s.waveforms
	if buckets <= 0 {
		buckets = s.cfg.Waveform.Buckets
	}
	s.mu.Unlock()
	return x.Extract(ctx, info.URL, buckets), nil
}

// ===== CONFIGURATION =====

// LoadProfile loads a new configuration profile. Capture options apply the
// next time the camera opens.
func (s *Studio) LoadProfile(profile string) error {
	if s.isRecording() {
		return fmt.Errorf("load profile: %w: recording in progress", media.ErrInvalidState)
	}
	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}

	s.mu.Lock()
	s.recorder.Clear()
	s.cfg = newCfg
	s.applyConfigLocked(newCfg)
	s.applyMixOptionsLocked()
	s.rebuildLocked(s.camera.Stream())
	s.mu.Unlock()

	s.camera.SetOptions(newCfg.CaptureOptions())
	slog.Info("Profile loaded", "profile", profile)
	s.broadcast()
	return nil
}

// GetConfig returns the current configuration
func (s *Studio) GetConfig() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// ===== STATUS =====

// GetStatus returns a snapshot of the studio.
func (s *Studio) GetStatus() Status {
	s.mu.Lock()
	r := s.recorder
	st := Status{
		Backend: s.platform.Name(),
		Mix:     MixStatus{Mode: s.mixer.Options().Mode},
	}
	if s.sound != nil {
		snd := *s.sound
		snd.IsSelected = true
		st.Sound = &snd
	}
	if s.lastClip != nil {
		clip := *s.lastClip
		st.LastClip = &clip
	}
	s.mu.Unlock()

	st.Camera = s.camera.Session()
	st.Camera.Stream = nil
	st.Recorder = r.Session()
	st.Remaining = r.Remaining()
	if g := s.mixer.Current(); g != nil {
		st.Mix.Mixed = g.Mixed()
		st.Mix.Graph = g.ID()
	}
	st.LastError = s.GetLastError()
	return st
}

// Subscribe returns a channel receiving a status snapshot after every state
// change, and a function that cancels the subscription. Slow subscribers
// miss snapshots rather than blocking the studio.
func (s *Studio) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 8)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			// Close may already have closed it.
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
}

func (s *Studio) broadcast() {
	st := s.GetStatus()
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- st:
		default:
			slog.Debug("Status subscriber is slow, dropping update")
		}
	}
}

// GetLastError returns the last error message (thread-safe)
func (s *Studio) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *Studio) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	// Log all errors for debugging and monitoring
	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *Studio) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// Close stops an active recording, keeping the clip, and releases every
// device and audio resource.
func (s *Studio) Close() error {
	var errs []error
	if s.isRecording() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := s.StopRecording(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	s.camera.Release()
	if err := s.mixer.Close(); err != nil {
		errs = append(errs, err)
	}

	s.mu.Lock()
	if s.music != nil {
		if err := s.music.Close(); err != nil {
			errs = append(errs, err)
		}
		s.music = nil
	}
	s.mu.Unlock()

	s.subsMu.Lock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	s.subsMu.Unlock()
	return errors.Join(errs...)
}

// Helper functions

func cleanFileName(name string) string {
	// Remove special characters and replace spaces with underscores
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(result.String()), " ", "_")
}

// extensionFor maps a container mime type to a file extension.
func extensionFor(mime string) string {
	if strings.HasPrefix(mime, "video/mp4") {
		return "mp4"
	}
	return "webm"
}

// mimeFor maps a clip file name to its container mime type, or "" for
// files that are not clips.
func mimeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".webm":
		return "video/webm"
	case ".mp4":
		return "video/mp4"
	default:
		return ""
	}
}

// uniquePath returns dir/name.ext, numbering the name when taken.
func uniquePath(dir, name, ext string) string {
	path := filepath.Join(dir, name+"."+ext)
	for i := 2; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.%s", name, i, ext))
	}
}

func clipInfo(path, mime string) (*ClipInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat clip: %w", err)
	}
	name := filepath.Base(path)
	return &ClipInfo{
		Name:         name,
		Path:         path,
		MimeType:     mime,
		Size:         info.Size(),
		SizeHuman:    formatBytes(info.Size()),
		ModTime:      info.ModTime(),
		ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
		DownloadURL:  fmt.Sprintf("/api/clips/%s", name),
	}, nil
}

// formatBytes formats bytes in human readable format
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
