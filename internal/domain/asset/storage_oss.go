package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"

	"commerce/internal/config"
	"commerce/internal/logger"
	"commerce/internal/pkg/imageproc"
)

// OSSStorage keeps assets in an Aliyun OSS bucket under "<prefix>/<name>".
type OSSStorage struct {
	client   *oss.Client
	bucket   string
	prefix   string
	variants []imageproc.SizeSpec
	renderer VariantRenderer
	log      *logger.Log
}

func NewOSSStorage(cfg config.OSSConfig, variants []imageproc.SizeSpec, renderer VariantRenderer, log *logger.Log) (*OSSStorage, error) {
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("oss storage config is incomplete")
	}
	if log == nil {
		log = logger.Get()
	}

	provider := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, "")
	ossCfg := oss.LoadDefaultConfig().
		WithCredentialsProvider(provider).
		WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		ossCfg = ossCfg.WithEndpoint(cfg.Endpoint)
	}

	return &OSSStorage{
		client:   oss.NewClient(ossCfg),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		variants: variants,
		renderer: renderer,
		log:      log.WithEntryName("OSSStorage"),
	}, nil
}

func (s *OSSStorage) Mode() string { return "oss" }

func (s *OSSStorage) Save(ctx context.Context, a *Asset, buf []byte) error {
	if err := s.put(ctx, a.Name, buf); err != nil {
		return fmt.Errorf("write primary object: %w", err)
	}
	a.Source = s.locate(a.Name)
	return nil
}

func (s *OSSStorage) SaveWithVariants(ctx context.Context, a *Asset, buf []byte) error {
	return saveWithVariants(ctx, s, s.renderer, s.variants, a, buf, s.log)
}

func (s *OSSStorage) Delete(ctx context.Context, a *Asset) error {
	return deleteStored(ctx, s, s.variants, a, s.log)
}

func (s *OSSStorage) DeleteAll(ctx context.Context) error {
	req := &oss.ListObjectsV2Request{Bucket: oss.Ptr(s.bucket)}
	if s.prefix != "" {
		req.Prefix = oss.Ptr(s.prefix + "/")
	}
	p := s.client.NewListObjectsV2Paginator(req)
	deleted := 0
	for p.HasNext() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if _, err := s.client.DeleteObject(ctx, &oss.DeleteObjectRequest{
				Bucket: oss.Ptr(s.bucket),
				Key:    obj.Key,
			}); err != nil && !isOSSNotFound(err) {
				return fmt.Errorf("delete %s: %w", oss.ToString(obj.Key), err)
			}
			deleted++
		}
	}
	s.log.WithField("count", deleted).Info("bucket prefix emptied")
	return nil
}

func (s *OSSStorage) Read(ctx context.Context, a *Asset) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &oss.GetObjectRequest{
		Bucket: oss.Ptr(s.bucket),
		Key:    oss.Ptr(s.key(a.Name)),
	})
	if isOSSNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrStorageObjectNotFound, a.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", a.Name, err)
	}
	defer result.Body.Close()
	return io.ReadAll(result.Body)
}

func (s *OSSStorage) put(ctx context.Context, name string, data []byte) error {
	if err := validateStoredName(name); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &oss.PutObjectRequest{
		Bucket: oss.Ptr(s.bucket),
		Key:    oss.Ptr(s.key(name)),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *OSSStorage) remove(ctx context.Context, name string) error {
	if err := validateStoredName(name); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &oss.DeleteObjectRequest{
		Bucket: oss.Ptr(s.bucket),
		Key:    oss.Ptr(s.key(name)),
	})
	if isOSSNotFound(err) {
		return fmt.Errorf("%w: %s", ErrStorageObjectNotFound, name)
	}
	return err
}

func (s *OSSStorage) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *OSSStorage) locate(name string) string {
	return "oss://" + s.bucket + "/" + s.key(name)
}

func isOSSNotFound(err error) bool {
	var serr *oss.ServiceError
	if errors.As(err, &serr) {
		return serr.StatusCode == http.StatusNotFound || serr.Code == "NoSuchKey"
	}
	return false
}
