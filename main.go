package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/versecast/versecast/internal/cache"
	"github.com/versecast/versecast/internal/catalog"
	"github.com/versecast/versecast/internal/config"
	"github.com/versecast/versecast/internal/download"
	"github.com/versecast/versecast/internal/favorites"
	"github.com/versecast/versecast/internal/logger"
	"github.com/versecast/versecast/internal/mpris"
	"github.com/versecast/versecast/internal/playback"
	"github.com/versecast/versecast/internal/resolve"
	"github.com/versecast/versecast/internal/state"
	"github.com/versecast/versecast/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// directory hands track records to the resolver. Tracks seen in listings or
// restored from the saved queue are served locally; anything else goes to
// the catalog.
type directory struct {
	mu     sync.RWMutex
	known  map[string]catalog.Track
	client *catalog.Client
}

func newDirectory(client *catalog.Client) *directory {
	return &directory{known: make(map[string]catalog.Track), client: client}
}

func (d *directory) remember(tracks ...catalog.Track) {
	d.mu.Lock()
	for _, t := range tracks {
		d.known[t.ID] = t
	}
	d.mu.Unlock()
}

func (d *directory) Lookup(trackID string) (*catalog.Track, bool) {
	d.mu.RLock()
	t, ok := d.known[trackID]
	d.mu.RUnlock()
	if ok {
		return &t, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	track, err := d.client.Track(ctx, trackID)
	if err != nil {
		return nil, false
	}
	d.remember(*track)
	return track, true
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.ParseLogLevel(cfg.LogLevel))
	defer log.Sync() //nolint:errcheck // best-effort flush on exit

	stateMgr, err := openState(cfg)
	if err != nil {
		return err
	}
	defer stateMgr.Close()

	mediaDir := cfg.CacheDir
	if mediaDir == "" {
		mediaDir = filepath.Join(xdg.CacheHome, "versecast", "media")
	}
	store, err := cache.NewStore(mediaDir, stateMgr.DB())
	if err != nil {
		return err
	}

	client, err := catalog.New(cfg.APIBaseURL, cfg.SessionToken)
	if err != nil {
		return err
	}
	dir := newDirectory(client)

	resolver := resolve.New(store, dir, client.AuthHeaders)
	downloads := download.NewManager(store, client.AuthHeaders, cfg.Download.Concurrency, log)
	defer downloads.Close()

	engine := playback.New(transport.NewBeep(), resolver, log, playback.Options{
		MinRate: cfg.Playback.MinRate,
		MaxRate: cfg.Playback.MaxRate,
		Retry:   playback.RetryPolicy(cfg.Playback.Retry),
	})
	defer engine.Close()

	bridge, err := mpris.New(engine)
	if err != nil {
		log.Warn("remote control bridge unavailable")
	} else {
		defer bridge.Close()
	}

	ledger := favorites.New(stateMgr.DB())

	// Restore the last session's queue without starting playback.
	if saved, err := stateMgr.LoadQueue(); err == nil && len(saved.Tracks) > 0 {
		dir.remember(saved.Tracks...)
		if err := engine.RestoreQueue(saved.Tracks, saved.CurrentIndex); err != nil {
			log.Warn("queue restore failed", zap.Error(err))
		}
	}

	app := &cli{
		cfg:       cfg,
		engine:    engine,
		downloads: downloads,
		ledger:    ledger,
		store:     store,
		client:    client,
		dir:       dir,
		stateMgr:  stateMgr,
	}
	go app.printEvents()
	return app.loop()
}

func openState(cfg *config.Config) (*state.Manager, error) {
	if cfg.DataDir != "" {
		return state.OpenPath(filepath.Join(cfg.DataDir, "versecast.db"))
	}
	return state.Open()
}

type cli struct {
	cfg       *config.Config
	engine    playback.Service
	downloads *download.Manager
	ledger    *favorites.Ledger
	store     *cache.Store
	client    *catalog.Client
	dir       *directory
	stateMgr  *state.Manager

	listing []catalog.Track
}

func (c *cli) printEvents() {
	sub := c.engine.Subscribe()
	for {
		select {
		case <-sub.Done:
			return
		case e := <-sub.StateChanged:
			if e.Previous == e.Current {
				continue
			}
			title := ""
			if e.Session.Track != nil {
				title = " " + e.Session.Track.Title
			}
			fmt.Printf("[%s]%s\n", e.Current, title)
		case e := <-sub.Error:
			fmt.Printf("[error] %s: %v\n", e.Operation, e.Err)
		}
	}
}

func (c *cli) watchDownload(ch <-chan download.Progress) {
	for p := range ch {
		switch p.Status {
		case download.StatusComplete:
			fmt.Printf("[download] %s complete (%s)\n", p.TrackID, humanize.IBytes(uint64(p.BytesDone)))
		case download.StatusFailed:
			fmt.Printf("[download] %s failed: %v\n", p.TrackID, p.Err)
		case download.StatusCanceled:
			fmt.Printf("[download] %s canceled\n", p.TrackID)
		case download.StatusActive:
			if p.BytesTotal > 0 {
				fmt.Printf("[download] %s %s / %s\n", p.TrackID,
					humanize.IBytes(uint64(p.BytesDone)), humanize.IBytes(uint64(p.BytesTotal)))
			}
		}
	}
}

func (c *cli) loop() error {
	fmt.Println("versecast - type 'help' for commands")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "quit", "q":
			c.saveQueue()
			return nil
		case "help":
			printHelp()
		case "list":
			c.cmdList(args)
		case "play":
			c.cmdPlay(args)
		case "video":
			c.cmdVideo(args)
		case "pause", "p":
			c.engine.PlayPause()
		case "next", "n":
			c.reportErr(c.engine.SkipNext())
		case "prev":
			c.reportErr(c.engine.SkipPrevious())
		case "seek":
			c.cmdSeek(args)
		case "rate":
			c.cmdRate(args)
		case "retry":
			c.reportErr(c.engine.Retry())
		case "stop":
			c.engine.Stop()
		case "fav":
			c.cmdFav(args)
		case "favs":
			c.cmdFavs()
		case "dl":
			c.cmdDownload(args)
		case "cancel":
			c.cmdCancel(args)
		case "cache":
			c.cmdCache()
		case "status":
			c.cmdStatus()
		default:
			fmt.Printf("unknown command: %s\n", cmd)
		}
	}
	c.saveQueue()
	return scanner.Err()
}

func printHelp() {
	fmt.Println(`  list [endpoint] [page]  fetch a catalog listing (default: recordings)
  play [n]                play the listing (optionally starting at item n)
  video <n>               play item n's video surface
  pause                   toggle play/pause
  next / prev             queue navigation
  seek <seconds>          relative seek (negative to replay)
  rate <value>            playback speed
  retry                   retry after a playback error
  fav <n>                 toggle favorite for listing item n
  favs                    list favorite track ids
  dl <n>                  download listing item n for offline playback
  cancel <id>             cancel a download
  cache                   show cached media
  status                  show the playback session
  quit`)
}

func (c *cli) cmdList(args []string) {
	endpoint := catalog.EndpointNew
	page := 1
	if len(args) > 0 {
		endpoint = args[0]
	}
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			page = n
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	result, err := c.client.List(ctx, endpoint, page)
	if err != nil {
		fmt.Printf("list failed: %v\n", err)
		return
	}

	c.listing = result.Tracks
	c.dir.remember(result.Tracks...)
	for i, t := range result.Tracks {
		fmt.Printf("%3d. %s - %s (%s)\n", i+1, t.Artist, t.Title, t.Duration.Round(time.Second))
	}
	if result.HasMore {
		fmt.Printf("     more: list %s %d\n", endpoint, result.Next)
	}
}

func (c *cli) pickTrack(args []string) (*catalog.Track, bool) {
	if len(args) == 0 || len(c.listing) == 0 {
		fmt.Println("no listing; run 'list' first")
		return nil, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(c.listing) {
		fmt.Println("invalid item number")
		return nil, false
	}
	return &c.listing[n-1], true
}

func (c *cli) cmdPlay(args []string) {
	if len(c.listing) == 0 {
		fmt.Println("no listing; run 'list' first")
		return
	}
	startID := ""
	if len(args) > 0 {
		if t, ok := c.pickTrack(args); ok {
			startID = t.ID
		} else {
			return
		}
	}
	c.reportErr(c.engine.PlayQueue(c.listing, startID))
}

func (c *cli) cmdVideo(args []string) {
	t, ok := c.pickTrack(args)
	if !ok {
		return
	}
	if !t.HasVideo() {
		fmt.Println("no video for this recording")
		return
	}
	c.reportErr(c.engine.PlayVideo(*t))
}

func (c *cli) cmdSeek(args []string) {
	if len(args) == 0 {
		return
	}
	secs, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println("invalid seek delta")
		return
	}
	c.reportErr(c.engine.SeekRelative(time.Duration(secs) * time.Second))
}

func (c *cli) cmdRate(args []string) {
	if len(args) == 0 {
		return
	}
	rate, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Println("invalid rate")
		return
	}
	fmt.Printf("rate: %.2f\n", c.engine.SetRate(rate))
}

func (c *cli) cmdFav(args []string) {
	t, ok := c.pickTrack(args)
	if !ok {
		return
	}
	isFav, err := c.ledger.Toggle(t.ID)
	if err != nil {
		fmt.Printf("favorite failed: %v\n", err)
		return
	}
	if isFav {
		fmt.Printf("favorited %s\n", t.Title)
	} else {
		fmt.Printf("unfavorited %s\n", t.Title)
	}
}

func (c *cli) cmdFavs() {
	ids, err := c.ledger.All()
	if err != nil {
		fmt.Printf("favorites failed: %v\n", err)
		return
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

func (c *cli) cmdDownload(args []string) {
	t, ok := c.pickTrack(args)
	if !ok {
		return
	}
	_, ch := c.downloads.Request(*t)
	go c.watchDownload(ch)
	fmt.Printf("downloading %s\n", t.Title)
}

func (c *cli) cmdCancel(args []string) {
	if len(args) == 0 {
		return
	}
	c.downloads.Cancel(args[0])
}

func (c *cli) cmdCache() {
	media, err := c.store.List()
	if err != nil {
		fmt.Printf("cache listing failed: %v\n", err)
		return
	}
	for _, m := range media {
		fmt.Printf("%s  %s  %s\n", m.TrackID, humanize.IBytes(uint64(m.Size)), m.DownloadedAt.Format("2006-01-02"))
	}
	if usage, err := c.store.DiskUsage(); err == nil {
		fmt.Printf("total: %s\n", humanize.IBytes(uint64(usage)))
	}
}

func (c *cli) cmdStatus() {
	s := c.engine.Session()
	if s.Track == nil {
		fmt.Printf("[%s]\n", s.State)
		return
	}
	fmt.Printf("[%s] %s - %s  %s/%s  rate %.2f  source %s  (%d/%d)\n",
		s.State, s.Track.Artist, s.Track.Title,
		s.Position.Round(time.Second), s.Duration.Round(time.Second),
		s.Rate, s.SourceKind, s.QueueIndex+1, s.QueueLen)
}

func (c *cli) saveQueue() {
	_ = c.stateMgr.SaveQueue(state.SavedQueue{
		CurrentIndex: c.engine.QueueIndex(),
		Tracks:       c.engine.QueueTracks(),
	})
}

func (c *cli) reportErr(err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
}
