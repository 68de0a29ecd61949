package asset

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"commerce/internal/config"
	"commerce/internal/logger"
	"commerce/internal/pkg/imageproc"
	"commerce/internal/pkg/metrics"
	"commerce/internal/tenant"
)

const (
	DefaultTake = 20
	MaxTake     = 100
)

// ImageInspector decodes uploaded images and converts them to the canonical format.
type ImageInspector interface {
	Inspect(buf []byte) (imageproc.Metadata, error)
	Transcode(buf []byte) ([]byte, imageproc.Metadata, error)
}

// Publisher receives committed asset changes.
type Publisher interface {
	Publish(e Event)
}

type Options struct {
	MaxFileSizeMB    int
	CanonicalExt     string
	VariantsEnabled  bool
	PublicBaseURL    string
	TxTimeout        time.Duration
	AtomicBulkDelete bool
}

func OptionsFromConfig(cfg *config.AssetConfig) Options {
	return Options{
		MaxFileSizeMB:    cfg.MaxFileSizeMB,
		CanonicalExt:     cfg.CanonicalImageExt,
		VariantsEnabled:  cfg.VariantsEnabled,
		PublicBaseURL:    cfg.PublicBaseURL,
		TxTimeout:        cfg.TxTimeout,
		AtomicBulkDelete: cfg.AtomicBulkDelete,
	}
}

func (o Options) maxFileSize() int64 {
	return int64(o.MaxFileSizeMB) * 1024 * 1024
}

// Service sequences one upload into a single all-or-nothing unit: the
// database transaction is the source of truth and files written for a
// transaction that does not commit are deleted again.
type Service struct {
	db      *gorm.DB
	repo    Repository
	storage Storage
	images  ImageInspector
	opts    Options
	events  Publisher
	metrics *metrics.AssetMetrics
	log     *logger.Log
}

func NewService(db *gorm.DB, repo Repository, storage Storage, images ImageInspector, opts Options, log *logger.Log) *Service {
	if log == nil {
		log = logger.Get()
	}
	return &Service{
		db:      db,
		repo:    repo,
		storage: storage,
		images:  images,
		opts:    opts,
		log:     log.WithEntryName("AssetService"),
	}
}

func (s *Service) WithPublisher(p Publisher) *Service {
	s.events = p
	return s
}

func (s *Service) WithMetrics(m *metrics.AssetMetrics) *Service {
	s.metrics = m
	return s
}

// Upload stores one file and its record. Nothing is left behind on failure.
func (s *Service) Upload(ctx context.Context, scope tenant.Scope, f *File) (Fields, error) {
	start := time.Now()
	a, buf, err := s.prepare(f, scope)
	if err != nil {
		s.metrics.RecordUpload("", 0, time.Since(start), err)
		return Fields{}, err
	}

	err = s.inTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return s.persist(ctx, s.repo.WithTx(tx), &sync.Mutex{}, a, buf)
	})
	if err != nil {
		s.compensate(ctx, a)
		s.metrics.RecordUpload(string(a.Type), a.FileSize, time.Since(start), err)
		s.log.WithErr(err).WithField("name", a.Name).WithField("channel_id", scope.ChannelID).Warn("upload failed")
		return Fields{}, err
	}

	s.metrics.RecordUpload(string(a.Type), a.FileSize, time.Since(start), nil)
	s.log.WithFields(map[string]interface{}{
		"asset_id":   a.ID,
		"name":       a.Name,
		"type":       a.Type,
		"channel_id": scope.ChannelID,
	}).Info("asset uploaded")
	s.publish(EventAssetCreated, scope.ChannelID, a)
	return a.Fields(), nil
}

// UploadMany stores every file in one transaction. Members are processed
// concurrently; if any of them fails the whole batch is undone.
func (s *Service) UploadMany(ctx context.Context, scope tenant.Scope, files []*File) ([]Fields, error) {
	if len(files) == 0 {
		return nil, ErrNoFileUploaded
	}
	start := time.Now()

	assets := make([]*Asset, len(files))
	buffers := make([][]byte, len(files))
	for i, f := range files {
		a, buf, err := s.prepare(f, scope)
		if err != nil {
			s.metrics.RecordUpload("", 0, time.Since(start), err)
			return nil, fmt.Errorf("file %d: %w", i+1, err)
		}
		assets[i], buffers[i] = a, buf
	}

	err := s.inTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		// one connection per transaction, so statements on it take turns
		var dbMu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for i := range assets {
			a, buf := assets[i], buffers[i]
			g.Go(func() error {
				if err := s.persist(gctx, repo, &dbMu, a, buf); err != nil {
					return fmt.Errorf("%s: %w", a.OriginalName, err)
				}
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		for _, a := range assets {
			s.compensate(ctx, a)
		}
		s.metrics.RecordUpload("", 0, time.Since(start), err)
		s.log.WithErr(err).WithField("count", len(files)).WithField("channel_id", scope.ChannelID).Warn("batch upload failed")
		return nil, err
	}

	out := make([]Fields, 0, len(assets))
	for _, a := range assets {
		s.metrics.RecordUpload(string(a.Type), a.FileSize, time.Since(start), nil)
		s.publish(EventAssetCreated, scope.ChannelID, a)
		out = append(out, a.Fields())
	}
	s.log.WithField("count", len(out)).WithField("channel_id", scope.ChannelID).Info("batch uploaded")
	return out, nil
}

// prepare runs the checks and transformations that need no I/O and
// returns the unpersisted record with the bytes to store.
func (s *Service) prepare(f *File, scope tenant.Scope) (*Asset, []byte, error) {
	if f == nil || len(f.Buffer) == 0 {
		return nil, nil, ErrNoFileUploaded
	}
	if !scope.Valid() {
		return nil, nil, ErrNoChannel
	}
	if max := s.opts.maxFileSize(); int64(len(f.Buffer)) > max {
		return nil, nil, &FileTooLargeError{MaxMB: s.opts.MaxFileSizeMB}
	}

	t := Classify(f.Buffer)
	name, err := NormalizeFilename(f.Filename, t, s.opts.CanonicalExt)
	if err != nil {
		return nil, nil, err
	}
	pc := newProcessingContext(f, t).withNormalizedName(name)

	if t == TypeImage {
		out, meta, err := s.images.Transcode(f.Buffer)
		if err != nil {
			return nil, nil, err
		}
		pc.withBuffer(out).withMetadata(FileMetadata{
			MimeType: meta.MimeType,
			FileSize: int64(len(out)),
			Width:    meta.Width,
			Height:   meta.Height,
		})
	} else {
		pc.withBuffer(f.Buffer).withMetadata(ExtractMetadata(f.Buffer, f.Filename))
	}

	a, err := NewFromContext(pc, scope)
	if err != nil {
		return nil, nil, err
	}
	return a, pc.Buffer, nil
}

// persist inserts the record, writes its bytes, then attaches the preview URL.
func (s *Service) persist(ctx context.Context, repo Repository, dbMu *sync.Mutex, a *Asset, buf []byte) error {
	dbMu.Lock()
	err := repo.Create(ctx, a)
	dbMu.Unlock()
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}

	if a.IsImage() && s.opts.VariantsEnabled {
		err = s.storage.SaveWithVariants(ctx, a, buf)
	} else {
		err = s.storage.Save(ctx, a, buf)
	}
	if err != nil {
		return fmt.Errorf("store asset: %w", err)
	}

	preview := s.previewURL(a.Name)
	if err := a.Edit(EditProps{Preview: &preview}); err != nil {
		return err
	}

	dbMu.Lock()
	err = repo.Update(ctx, a)
	dbMu.Unlock()
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	return nil
}

// compensate removes the files of an asset whose transaction did not commit.
func (s *Service) compensate(ctx context.Context, a *Asset) {
	if a == nil || a.Source == "" {
		return
	}
	if err := s.storage.Delete(context.WithoutCancel(ctx), a); err != nil {
		s.log.WithErr(err).WithField("name", a.Name).Error("failed to remove files of rolled back upload")
		return
	}
	a.Source = ""
}

func (s *Service) previewURL(name string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/" + name
}

// Delete removes the stored files first and the row second, so a storage
// failure keeps the record. It returns the record as it was before deletion.
func (s *Service) Delete(ctx context.Context, scope tenant.Scope, id string) (Fields, error) {
	start := time.Now()
	a, err := s.repo.FindByID(ctx, scope.ChannelID, id, true)
	if err != nil {
		s.metrics.RecordDelete(time.Since(start), err)
		return Fields{}, err
	}
	err = s.remove(ctx, s.repo, a)
	s.metrics.RecordDelete(time.Since(start), err)
	if err != nil {
		return Fields{}, err
	}
	s.publish(EventAssetDeleted, scope.ChannelID, a)
	return a.Fields(), nil
}

func (s *Service) remove(ctx context.Context, repo Repository, a *Asset) error {
	if err := s.storage.Delete(ctx, a); err != nil {
		return fmt.Errorf("delete files of %s: %w", a.ID, err)
	}
	if err := s.inTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return repo.WithTx(tx).Delete(ctx, a.ID)
	}); err != nil {
		return err
	}
	s.log.WithField("asset_id", a.ID).WithField("name", a.Name).Info("asset deleted")
	return nil
}

// DeleteMany deletes each id on its own unless Options.AtomicBulkDelete is
// set, in which case either all rows go or none do. In the independent mode
// the returned slice holds every asset that was deleted and a
// *BulkDeleteError lists the rest. In the atomic mode a *FileCleanupError
// may accompany a complete result.
func (s *Service) DeleteMany(ctx context.Context, scope tenant.Scope, ids []string) ([]Fields, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: ids are required", ErrInvalidInput)
	}
	if s.opts.AtomicBulkDelete {
		return s.deleteManyAtomic(ctx, scope, ids)
	}

	out := make([]Fields, 0, len(ids))
	failures := map[string]error{}
	for _, id := range ids {
		f, err := s.Delete(ctx, scope, id)
		if err != nil {
			failures[id] = err
			continue
		}
		out = append(out, f)
	}
	if len(failures) > 0 {
		return out, &BulkDeleteError{Failures: failures}
	}
	return out, nil
}

// deleteManyAtomic deletes every row in one transaction, then removes the
// files of the committed deletes. A file that cannot be removed is reported
// in a *FileCleanupError; the rows stay deleted so no record ever points at
// missing bytes.
func (s *Service) deleteManyAtomic(ctx context.Context, scope tenant.Scope, ids []string) ([]Fields, error) {
	start := time.Now()
	var deleted []*Asset
	err := s.inTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		assets := make([]*Asset, 0, len(ids))
		for _, id := range ids {
			a, err := repo.FindByID(ctx, scope.ChannelID, id, true)
			if err != nil {
				return fmt.Errorf("asset %s: %w", id, err)
			}
			assets = append(assets, a)
		}
		for _, a := range assets {
			if err := repo.Delete(ctx, a.ID); err != nil {
				return fmt.Errorf("asset %s: %w", a.ID, err)
			}
		}
		deleted = assets
		return nil
	})
	if err != nil {
		s.metrics.RecordDelete(time.Since(start), err)
		return nil, err
	}

	failures := map[string]error{}
	for _, a := range deleted {
		if err := s.storage.Delete(context.WithoutCancel(ctx), a); err != nil {
			s.log.WithErr(err).WithField("asset_id", a.ID).WithField("name", a.Name).
				Warn("record deleted but its files were left in storage")
			failures[a.ID] = err
		}
	}

	out := make([]Fields, 0, len(deleted))
	for _, a := range deleted {
		s.publish(EventAssetDeleted, scope.ChannelID, a)
		out = append(out, a.Fields())
	}
	s.log.WithField("count", len(out)).Info("assets deleted")
	if len(failures) > 0 {
		cleanupErr := &FileCleanupError{Failures: failures}
		s.metrics.RecordDelete(time.Since(start), cleanupErr)
		return out, cleanupErr
	}
	s.metrics.RecordDelete(time.Since(start), nil)
	return out, nil
}

// ListParams carries raw, caller-supplied paging values.
type ListParams struct {
	Take   string
	Skip   string
	Type   string
	Search string
}

type Page struct {
	Items []Fields `json:"items"`
	Total int64    `json:"total"`
	Take  int      `json:"take"`
	Skip  int      `json:"skip"`
}

func (s *Service) FindMany(ctx context.Context, scope tenant.Scope, p ListParams) (Page, error) {
	q, err := parseListParams(p)
	if err != nil {
		return Page{}, err
	}
	assets, total, err := s.repo.List(ctx, scope.ChannelID, q)
	if err != nil {
		return Page{}, err
	}
	items := make([]Fields, 0, len(assets))
	for _, a := range assets {
		items = append(items, a.Fields())
	}
	return Page{Items: items, Total: total, Take: q.Take, Skip: q.Skip}, nil
}

func parseListParams(p ListParams) (ListQuery, error) {
	q := ListQuery{Take: DefaultTake, Search: p.Search}
	if v := strings.TrimSpace(p.Take); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return ListQuery{}, ErrInvalidPagination
		}
		if n > 0 {
			q.Take = n
		}
	}
	if q.Take > MaxTake {
		q.Take = MaxTake
	}
	if v := strings.TrimSpace(p.Skip); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return ListQuery{}, ErrInvalidPagination
		}
		q.Skip = n
	}
	if v := strings.TrimSpace(p.Type); v != "" {
		t := Type(strings.ToUpper(v))
		switch t {
		case TypeImage, TypeVideo, TypeAudio, TypeBinary:
			q.Type = t
		default:
			return ListQuery{}, fmt.Errorf("%w: unknown asset type %q", ErrInvalidInput, v)
		}
	}
	return q, nil
}

func (s *Service) FindByID(ctx context.Context, scope tenant.Scope, id string) (Fields, error) {
	a, err := s.repo.FindByID(ctx, scope.ChannelID, id, false)
	if err != nil {
		return Fields{}, err
	}
	return a.Fields(), nil
}

// Read returns the stored primary file.
func (s *Service) Read(ctx context.Context, scope tenant.Scope, id string) ([]byte, Fields, error) {
	a, err := s.repo.FindByID(ctx, scope.ChannelID, id, false)
	if err != nil {
		return nil, Fields{}, err
	}
	data, err := s.storage.Read(ctx, a)
	if err != nil {
		return nil, Fields{}, err
	}
	return data, a.Fields(), nil
}

type UpdateInput struct {
	OriginalName    *string
	FocalPoint      *FocalPoint
	ClearFocalPoint bool
}

func (s *Service) Update(ctx context.Context, scope tenant.Scope, id string, in UpdateInput) (Fields, error) {
	return s.mutate(ctx, scope, id, false, func(a *Asset) error {
		return a.Edit(EditProps{
			OriginalName:    in.OriginalName,
			FocalPoint:      in.FocalPoint,
			ClearFocalPoint: in.ClearFocalPoint,
			ActorID:         scope.ActorID,
		})
	})
}

// SoftDelete hides the asset from listings but keeps its files.
func (s *Service) SoftDelete(ctx context.Context, scope tenant.Scope, id string) (Fields, error) {
	f, err := s.mutate(ctx, scope, id, true, func(a *Asset) error {
		return a.SoftDelete(scope.ActorID)
	})
	if err == nil && s.events != nil {
		s.events.Publish(Event{Type: EventAssetSoftDeleted, ChannelID: scope.ChannelID, Asset: f})
	}
	return f, err
}

func (s *Service) Recover(ctx context.Context, scope tenant.Scope, id string) (Fields, error) {
	return s.mutate(ctx, scope, id, true, func(a *Asset) error {
		if err := a.SoftRecover(); err != nil {
			return err
		}
		a.UpdatedBy = scope.ActorID
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, scope tenant.Scope, id string, includeDeleted bool, fn func(a *Asset) error) (Fields, error) {
	var out Fields
	err := s.inTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		a, err := repo.FindByID(ctx, scope.ChannelID, id, includeDeleted)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		if err := repo.Update(ctx, a); err != nil {
			return err
		}
		out = a.Fields()
		return nil
	})
	return out, err
}

// PurgeSoftDeleted hard-deletes up to limit assets soft-deleted before
// cutoff. Failures are logged and skipped; the count of purged assets is
// returned together with the joined failures.
func (s *Service) PurgeSoftDeleted(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = MaxTake
	}
	assets, err := s.repo.ListSoftDeletedBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list soft-deleted assets: %w", err)
	}

	purged := 0
	var errs []error
	for _, a := range assets {
		start := time.Now()
		err := s.remove(ctx, s.repo, a)
		s.metrics.RecordDelete(time.Since(start), err)
		if err != nil {
			s.log.WithErr(err).WithField("asset_id", a.ID).Warn("purge of asset failed")
			errs = append(errs, err)
			continue
		}
		purged++
	}
	return purged, errors.Join(errs...)
}

// WipeStorage removes every stored file. Records are left untouched.
func (s *Service) WipeStorage(ctx context.Context) error {
	return s.storage.DeleteAll(ctx)
}

// inTx runs fn in a transaction bounded by Options.TxTimeout.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if s.opts.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TxTimeout)
		defer cancel()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
}

func (s *Service) publish(eventType string, channelID int64, a *Asset) {
	if s.events == nil {
		return
	}
	s.events.Publish(Event{Type: eventType, ChannelID: channelID, Asset: a.Fields()})
}
