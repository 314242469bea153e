// Command boxtrack tracks a box drawn on one frame of an image sequence
// forward through the sequence and stores the resulting track in SQLite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/boxtrack/internal/annotation"
	"github.com/banshee-data/boxtrack/internal/annotation/annotationdb"
	"github.com/banshee-data/boxtrack/internal/config"
	"github.com/banshee-data/boxtrack/internal/notice"
	"github.com/banshee-data/boxtrack/internal/report"
	"github.com/banshee-data/boxtrack/internal/tracking"
	"github.com/banshee-data/boxtrack/internal/tracking/cvtrack"
	"github.com/banshee-data/boxtrack/internal/version"
	"github.com/banshee-data/boxtrack/internal/video"
)

var (
	framesDir  = flag.String("frames", "", "Directory of frame images (png, jpeg, webp) in playback order")
	fps        = flag.Float64("fps", 25, "Frame rate of the sequence")
	dbPath     = flag.String("db", "boxtrack.db", "SQLite database holding annotations")
	videoID    = flag.String("video-id", "", "Video id used in the database (default: frames directory name)")
	configPath = flag.String("config", "", "Tracking config JSON (default: built-in defaults)")
	boxFlag    = flag.String("box", "", "Root box to track as x,y,w,h in frame pixels")
	at         = flag.Float64("at", 0, "Time in seconds of the frame the box is drawn on")
	reportPath = flag.String("report", "", "Write a track coverage plot to this file (.png, .svg, .pdf)")
	previewDir = flag.String("preview", "", "Write frames with tracked boxes drawn on them to this directory")
	listen     = flag.String("listen", "", "Serve admin/debug routes on this address until interrupted")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println(version.String())
		return
	}
	log.Print(version.String())
	if err := run(); err != nil {
		log.Fatalf("boxtrack: %v", err)
	}
}

func run() error {
	if *framesDir == "" {
		return errors.New("-frames is required")
	}
	vid := *videoID
	if vid == "" {
		vid = filepath.Base(filepath.Clean(*framesDir))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	frames, err := video.LoadFrames(*framesDir)
	if err != nil {
		return err
	}
	player, err := video.NewPlayer(frames, *fps)
	if err != nil {
		return err
	}
	log.Printf("loaded %d frames (%.2fs) from %s", player.Len(), player.Duration(), *framesDir)

	db, err := annotationdb.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	store := annotation.NewMemoryStore()
	records, err := db.LoadVideo(vid)
	if err != nil {
		return fmt.Errorf("load video %s: %w", vid, err)
	}
	if err := store.Load(records); err != nil {
		return err
	}
	journal := annotationdb.NewJournal(db, store, nil)
	defer journal.Close()

	notices := notice.NewMux()
	defer notices.Close()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := notices.Subscribe()
		defer notices.Unsubscribe(id)
		for n := range c {
			log.Printf("notice: %s", n)
		}
	}()

	factory, factoryErr := cvtrack.New()
	if factoryErr != nil {
		factory = func(*image.RGBA, int, annotation.Region) (tracking.Algorithm, error) {
			return nil, factoryErr
		}
	}
	mgr := tracking.NewManager(vid, store, player, factory, tracking.Options{Config: cfg, Notices: notices})
	defer mgr.Close()

	if *boxFlag != "" {
		if factoryErr != nil {
			return fmt.Errorf("cannot track: %w (rebuild with -tags gocv)", factoryErr)
		}
		region, err := parseBox(*boxFlag)
		if err != nil {
			return err
		}
		if err := trackBox(store, player, mgr, vid, *at, region); err != nil {
			return err
		}
	}

	for _, v := range store.Videos() {
		if err := db.SaveVideo(v, store.Records(v)); err != nil {
			return fmt.Errorf("save video %s: %w", v, err)
		}
	}

	summaries := report.Summarise(mgr.Tracks(), store)
	for _, s := range summaries {
		log.Printf("track %s: %d segments, %d boxes, %.2fs covered (%.3f-%.3f)", s.Root, s.Segments, s.Boxes, s.Covered, s.Start, s.End)
	}
	if *reportPath != "" {
		if err := report.SaveCoverage(*reportPath, vid, summaries); err != nil {
			return err
		}
		log.Printf("wrote coverage plot %s", *reportPath)
	}
	if *previewDir != "" {
		n, err := writePreview(*previewDir, player, store.Records(vid))
		if err != nil {
			return err
		}
		log.Printf("wrote %d preview frames to %s", n, *previewDir)
	}

	if *listen != "" {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		mux := http.NewServeMux()
		db.AttachAdminRoutes(mux)
		notices.AttachAdminRoutes(mux)
		report.AttachAdminRoutes(mux, mgr, store)
		if err := serve(ctx, *listen, mux); err != nil {
			return err
		}
	}

	notices.Close()
	wg.Wait()
	return nil
}

func loadConfig(path string) (*config.TrackingConfig, error) {
	cfg := config.EmptyTrackingConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadTrackingConfig(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseBox parses "x,y,w,h".
func parseBox(s string) (annotation.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return annotation.Region{}, fmt.Errorf("invalid box %q: want x,y,w,h", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return annotation.Region{}, fmt.Errorf("invalid box %q: %w", s, err)
		}
		v[i] = f
	}
	r := annotation.Region{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	if r.Empty() {
		return annotation.Region{}, fmt.Errorf("invalid box %q: empty region", s)
	}
	return r, nil
}

// trackBox seeks to t, draws a root box there and tracks it to the end of
// its segment or the media.
func trackBox(store annotation.Store, player *video.Player, mgr *tracking.Manager, vid string, t float64, region annotation.Region) error {
	player.RequestSeek(t)
	player.Pump()

	if _, err := store.AddRecord(vid, []float64{player.CurrentTime()}, annotation.ShapeRect, region, nil, annotation.Linkage{}); err != nil {
		return fmt.Errorf("draw root box: %w", err)
	}
	if !mgr.Session().Armed() {
		return errors.New("tracker could not be initialised on the drawn box")
	}
	started := time.Now()
	if err := mgr.Start(); err != nil {
		return err
	}
	n := player.Pump()
	log.Printf("tracking finished after %d seeks in %v", n, time.Since(started).Round(time.Millisecond))
	return nil
}

// writePreview writes one PNG per frame that carries at least one box,
// with every box of that frame outlined and labelled with its track.
func writePreview(dir string, player *video.Player, records []annotation.Record) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	byFrame := make(map[int][]annotation.Record)
	for _, r := range records {
		if r.IsBox() {
			i := player.FrameIndex(r.Start())
			byFrame[i] = append(byFrame[i], r)
		}
	}

	palette := []color.Color{
		color.RGBA{255, 82, 82, 255},
		color.RGBA{64, 196, 255, 255},
		color.RGBA{105, 240, 174, 255},
		color.RGBA{255, 215, 64, 255},
	}
	colors := make(map[string]color.Color)

	for i, boxes := range byFrame {
		src := player.Frame(i)
		dst := image.NewRGBA(src.Bounds())
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
		for _, b := range boxes {
			root := b.TrackRoot()
			c, ok := colors[root]
			if !ok {
				c = palette[len(colors)%len(palette)]
				colors[root] = c
			}
			label := root
			if len(label) > 8 {
				label = label[:8]
			}
			video.Overlay(dst, b.Region, c, label)
		}
		if err := writePNG(filepath.Join(dir, fmt.Sprintf("frame_%05d.png", i)), dst); err != nil {
			return 0, err
		}
	}
	return len(byFrame), nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func serve(ctx context.Context, addr string, mux *http.ServeMux) error {
	server := &http.Server{Addr: addr, Handler: mux}
	errc := make(chan error, 1)
	go func() {
		log.Printf("serving admin routes on %s/debug/", addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	return nil
}
