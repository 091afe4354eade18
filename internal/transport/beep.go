package transport

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/versecast/versecast/internal/resolve"
)

const resampleQuality = 4

// Beep plays local files and remote streams through the beep speaker.
type Beep struct {
	mu sync.Mutex

	state     State
	ctrl      *beep.Ctrl
	resampler *beep.Resampler
	streamer  beep.StreamSeekCloser
	format    beep.Format
	rate      float64

	startGen uint64
	finished chan uint64
	faults   chan error

	httpClient *http.Client
}

// The speaker is initialized once at a fixed sample rate; every track is
// resampled to it.
var (
	speakerInitialized bool
	speakerSampleRate  beep.SampleRate
)

// NewBeep creates a beep-backed transport.
func NewBeep() *Beep {
	return &Beep{
		state:      Inactive,
		rate:       1.0,
		finished:   make(chan uint64, 1),
		faults:     make(chan error, 1),
		httpClient: &http.Client{},
	}
}

// Start loads the source and begins playback at offset.
func (b *Beep) Start(src resolve.Source, offset time.Duration) error {
	b.Stop()

	streamer, format, err := b.open(src)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !speakerInitialized {
		speakerSampleRate = format.SampleRate
		if err := speaker.Init(speakerSampleRate, speakerSampleRate.N(time.Second/10)); err != nil {
			streamer.Close()
			return fmt.Errorf("speaker init: %w", err)
		}
		speakerInitialized = true
	}

	if offset > 0 && streamer.Len() > 0 {
		pos := format.SampleRate.N(offset)
		if pos >= streamer.Len() {
			pos = streamer.Len() - 1
		}
		if err := streamer.Seek(pos); err != nil {
			streamer.Close()
			return fmt.Errorf("seek to offset: %w", err)
		}
	}

	b.streamer = streamer
	b.format = format
	b.ctrl, b.resampler = playChain(streamer, format.SampleRate, speakerSampleRate, b.rate)
	b.startGen++
	gen := b.startGen
	b.state = Playing

	speaker.Play(beep.Seq(b.resampler, beep.Callback(func() {
		// A decode error ends the stream the same way a clean finish
		// does; tell them apart through the streamer's error state.
		if err := streamer.Err(); err != nil {
			b.reportFault(fmt.Errorf("%w: %v", ErrTransient, err))
			return
		}
		select {
		case b.finished <- gen:
		default:
		}
	})))

	return nil
}

// playChain builds the streamer chain feeding the speaker: a per-track
// resample to the fixed speaker rate when the decoded rate differs, then
// the pause control, then the playback-rate resampler.
func playChain(streamer beep.StreamSeekCloser, trackRate, speakerRate beep.SampleRate, rate float64) (*beep.Ctrl, *beep.Resampler) {
	var s beep.Streamer = streamer
	if trackRate != speakerRate {
		s = beep.Resample(resampleQuality, trackRate, speakerRate, streamer)
	}
	ctrl := &beep.Ctrl{Streamer: s}
	return ctrl, beep.ResampleRatio(resampleQuality, rate, ctrl)
}

// open produces a decoded streamer for the source.
func (b *Beep) open(src resolve.Source) (beep.StreamSeekCloser, beep.Format, error) {
	switch src.Kind {
	case resolve.KindLocal:
		return openLocal(src.Path)
	case resolve.KindRemote:
		return b.openRemote(src)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported source kind: %v", src.Kind)
	}
}

func openLocal(path string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format

	switch ext {
	case ".flac":
		streamer, format, err = flac.Decode(f)
	default:
		// The catalog serves MP3 variants; cached bodies use the .mp3
		// extension.
		streamer, format, err = mp3.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return streamer, format, nil
}

// openRemote fetches the stream URL and decodes it incrementally. Network
// failures are transient: the engine may retry once.
func (b *Beep) openRemote(src resolve.Source) (beep.StreamSeekCloser, beep.Format, error) {
	req, err := http.NewRequest(http.MethodGet, src.URL, http.NoBody)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("create request: %w", err)
	}
	for k, v := range src.Headers {
		req.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, beep.Format{}, fmt.Errorf("%w: status %s", ErrTransient, resp.Status)
		}
		return nil, beep.Format{}, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	streamer, format, err := decodeStream(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, beep.Format{}, fmt.Errorf("decode stream: %w", err)
	}
	return streamer, format, nil
}

// Stop halts playback and releases the current streamer.
func (b *Beep) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Inactive {
		return
	}

	speaker.Clear()

	if b.streamer != nil {
		b.streamer.Close()
		b.streamer = nil
	}
	b.ctrl = nil
	b.resampler = nil
	b.state = Inactive
}

// Pause pauses playback.
func (b *Beep) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Playing || b.ctrl == nil {
		return
	}
	speaker.Lock()
	b.ctrl.Paused = true
	speaker.Unlock()
	b.state = Paused
}

// Resume resumes paused playback.
func (b *Beep) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Paused || b.ctrl == nil {
		return
	}
	speaker.Lock()
	b.ctrl.Paused = false
	speaker.Unlock()
	b.state = Playing
}

// State returns the transport state.
func (b *Beep) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Position returns the current playback position.
func (b *Beep) Position() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.streamer == nil {
		return 0
	}
	return b.format.SampleRate.D(b.streamer.Position())
}

// Duration returns the decoded track length, 0 for unbounded streams.
func (b *Beep) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.streamer == nil || b.streamer.Len() <= 0 {
		return 0
	}
	return b.format.SampleRate.D(b.streamer.Len())
}

// SeekTo moves playback to an absolute position.
func (b *Beep) SeekTo(pos time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.streamer == nil || b.state == Inactive {
		return nil
	}
	if b.streamer.Len() <= 0 {
		return fmt.Errorf("source is not seekable")
	}

	target := b.format.SampleRate.N(pos)
	target = max(target, 0)
	if target >= b.streamer.Len() {
		target = b.streamer.Len() - 1
	}

	speaker.Lock()
	err := b.streamer.Seek(target)
	speaker.Unlock()
	if err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	return nil
}

// SetRate changes the playback speed ratio.
func (b *Beep) SetRate(rate float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rate = rate
	if b.resampler == nil {
		return
	}
	speaker.Lock()
	b.resampler.SetRatio(rate)
	speaker.Unlock()
}

// Finished delivers the start generation of each track that plays to its
// end.
func (b *Beep) Finished() <-chan uint64 {
	return b.finished
}

// Faults delivers asynchronous mid-playback errors.
func (b *Beep) Faults() <-chan error {
	return b.faults
}

// reportFault publishes an asynchronous fault (non-blocking).
func (b *Beep) reportFault(err error) {
	select {
	case b.faults <- err:
	default:
	}
}

// Verify Beep implements Interface at compile time.
var _ Interface = (*Beep)(nil)
