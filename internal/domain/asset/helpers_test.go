package asset

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"commerce/internal/logger"
	"commerce/internal/pkg/imageproc"
	"commerce/internal/tenant"
)

var (
	testScope  = tenant.Scope{ChannelID: 7, ActorID: 42}
	otherScope = tenant.Scope{ChannelID: 8, ActorID: 43}
	dbSeq      atomic.Int64
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:asset_%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := gorm.Open(gormsqlite.New(gormsqlite.Config{DriverName: "sqlite", DSN: dsn}),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return db
}

func encodeTestImage(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

var testVariants = []imageproc.SizeSpec{
	{Key: "thumb", Width: 100, Height: 100, Mode: imageproc.ModeCrop},
	{Key: "large", Width: 800, Height: 0, Mode: imageproc.ModeResize},
}

type testEnv struct {
	db        *gorm.DB
	dir       string
	storage   *LocalStorage
	inspector *imageproc.Inspector
	svc       *Service
	events    *recordingPublisher
}

type envOption func(*envConfig)

type envConfig struct {
	opts     Options
	variants []imageproc.SizeSpec
	renderer func(inner VariantRenderer) VariantRenderer
}

func withOptions(fn func(*Options)) envOption {
	return func(c *envConfig) { fn(&c.opts) }
}

func withVariants(v []imageproc.SizeSpec) envOption {
	return func(c *envConfig) { c.variants = v }
}

func withRenderer(wrap func(inner VariantRenderer) VariantRenderer) envOption {
	return func(c *envConfig) { c.renderer = wrap }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{
		opts: Options{
			MaxFileSizeMB:   10,
			CanonicalExt:    ".jpg",
			VariantsEnabled: true,
			PublicBaseURL:   "/static/assets",
			TxTimeout:       30 * time.Second,
		},
		variants: testVariants,
	}
	for _, o := range opts {
		o(&cfg)
	}

	inspector, err := imageproc.NewInspector(cfg.opts.CanonicalExt, 85)
	require.NoError(t, err)
	var renderer VariantRenderer = inspector
	if cfg.renderer != nil {
		renderer = cfg.renderer(inspector)
	}

	dir := t.TempDir() + "/assets"
	storage, err := NewLocalStorage(dir, cfg.variants, renderer, logger.Discard())
	require.NoError(t, err)

	db := openTestDB(t)
	events := &recordingPublisher{}
	svc := NewService(db, NewRepository(db), storage, inspector, cfg.opts, logger.Discard()).WithPublisher(events)
	return &testEnv{db: db, dir: dir, storage: storage, inspector: inspector, svc: svc, events: events}
}

func (e *testEnv) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, en := range entries {
		names = append(names, en.Name())
	}
	return names
}

func (e *testEnv) rowCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&Asset{}).Count(&n).Error)
	return n
}

// failOnCall fails the n-th RenderVariant call.
type failOnCall struct {
	inner VariantRenderer
	n     int
	mu    sync.Mutex
	calls int
}

func (r *failOnCall) RenderVariant(buf []byte, spec imageproc.SizeSpec) ([]byte, error) {
	r.mu.Lock()
	r.calls++
	call := r.calls
	r.mu.Unlock()
	if call == r.n {
		return nil, errors.New("disk quota exceeded")
	}
	return r.inner.RenderVariant(buf, spec)
}

// failOnBuffer fails every render of one specific buffer.
type failOnBuffer struct {
	inner  VariantRenderer
	poison []byte
}

func (r *failOnBuffer) RenderVariant(buf []byte, spec imageproc.SizeSpec) ([]byte, error) {
	if bytes.Equal(buf, r.poison) {
		return nil, errors.New("renderer crashed")
	}
	return r.inner.RenderVariant(buf, spec)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
