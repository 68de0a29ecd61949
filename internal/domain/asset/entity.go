package asset

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"commerce/internal/pkg/validator"
	"commerce/internal/tenant"
)

type Type string

const (
	TypeImage  Type = "IMAGE"
	TypeVideo  Type = "VIDEO"
	TypeAudio  Type = "AUDIO"
	TypeBinary Type = "BINARY"
)

type State string

const (
	StateActive      State = "active"
	StateSoftDeleted State = "soft_deleted"
)

// FocalPoint is a relative position (0..1 on both axes) that croppers should keep in frame.
type FocalPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Asset is one uploaded artifact. Source and Preview stay empty until the
// bytes have been written by a Storage.
type Asset struct {
	ID           string         `gorm:"column:id;primaryKey;size:36"`
	Name         string         `gorm:"column:name;uniqueIndex;not null"`
	OriginalName string         `gorm:"column:original_name;not null"`
	Type         Type           `gorm:"column:type;size:16;index"`
	MimeType     string         `gorm:"column:mime_type;not null"`
	FileSize     int64          `gorm:"column:file_size"`
	Checksum     string         `gorm:"column:checksum;size:64"`
	Source       string         `gorm:"column:source"`
	Preview      string         `gorm:"column:preview"`
	Width        *int           `gorm:"column:width"`
	Height       *int           `gorm:"column:height"`
	FocalPoint   *FocalPoint    `gorm:"column:focal_point;serializer:json"`
	State        State          `gorm:"column:state;size:16;index"`
	DeletedAt    *time.Time     `gorm:"column:deleted_at"`
	DeletedBy    *int64         `gorm:"column:deleted_by"`
	CreatedBy    int64          `gorm:"column:created_by"`
	UpdatedBy    int64          `gorm:"column:updated_by"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at"`
	Channels     []AssetChannel `gorm:"foreignKey:AssetID;constraint:OnDelete:CASCADE"`
}

func (Asset) TableName() string { return "assets" }

// AssetChannel links an asset to one channel (tenant scope).
type AssetChannel struct {
	AssetID   string `gorm:"column:asset_id;primaryKey;size:36"`
	ChannelID int64  `gorm:"column:channel_id;primaryKey;index"`
}

func (AssetChannel) TableName() string { return "asset_channels" }

func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Props are the inputs to New.
type Props struct {
	Name         string
	OriginalName string
	Type         Type
	MimeType     string
	FileSize     int64
	Checksum     string
	Width        *int
	Height       *int
	FocalPoint   *FocalPoint
	ChannelIDs   []int64
	ActorID      int64
}

// EditProps holds the fields Edit may change; nil means "leave as is".
// Name is the storage key and cannot be edited.
type EditProps struct {
	OriginalName    *string
	Source          *string
	Preview         *string
	FocalPoint      *FocalPoint
	ClearFocalPoint bool
	ActorID         int64
}

// New builds an unpersisted Asset, rejecting it with a *ValidationError
// that lists every broken rule.
func New(p Props) (*Asset, error) {
	a := &Asset{
		Name:         strings.TrimSpace(p.Name),
		OriginalName: strings.TrimSpace(p.OriginalName),
		Type:         p.Type,
		MimeType:     strings.TrimSpace(p.MimeType),
		FileSize:     p.FileSize,
		Checksum:     p.Checksum,
		Width:        p.Width,
		Height:       p.Height,
		FocalPoint:   p.FocalPoint,
		State:        StateActive,
		CreatedBy:    p.ActorID,
		UpdatedBy:    p.ActorID,
	}
	for _, id := range p.ChannelIDs {
		a.Channels = append(a.Channels, AssetChannel{ChannelID: id})
	}
	if err := validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

// NewFromContext builds the Asset for an upload in progress and assigns it to scope's channel.
func NewFromContext(pc *ProcessingContext, scope tenant.Scope) (*Asset, error) {
	p := Props{
		Name:         pc.NormalizedName,
		OriginalName: pc.OriginalBaseName(),
		Type:         pc.Type,
		MimeType:     pc.Metadata.MimeType,
		FileSize:     pc.Metadata.FileSize,
		Checksum:     pc.Checksum,
		ActorID:      scope.ActorID,
	}
	if scope.ChannelID > 0 {
		p.ChannelIDs = []int64{scope.ChannelID}
	}
	if pc.Type == TypeImage {
		w, h := pc.Metadata.Width, pc.Metadata.Height
		p.Width, p.Height = &w, &h
	}
	return New(p)
}

// Edit merges the provided fields and re-validates the whole record. On
// failure the asset is left untouched.
func (a *Asset) Edit(p EditProps) error {
	next := *a
	if p.OriginalName != nil {
		next.OriginalName = strings.TrimSpace(*p.OriginalName)
	}
	if p.Source != nil {
		next.Source = *p.Source
	}
	if p.Preview != nil {
		next.Preview = *p.Preview
	}
	if p.ClearFocalPoint {
		next.FocalPoint = nil
	} else if p.FocalPoint != nil {
		fp := *p.FocalPoint
		next.FocalPoint = &fp
	}
	if p.ActorID != 0 {
		next.UpdatedBy = p.ActorID
	}
	if err := validate(&next); err != nil {
		return err
	}
	*a = next
	return nil
}

func (a *Asset) SoftDelete(actorID int64) error {
	if a.State == StateSoftDeleted {
		return ErrInvalidTransition
	}
	now := time.Now()
	a.State = StateSoftDeleted
	a.DeletedAt = &now
	a.DeletedBy = &actorID
	a.UpdatedBy = actorID
	return nil
}

func (a *Asset) SoftRecover() error {
	if a.State != StateSoftDeleted {
		return ErrInvalidTransition
	}
	a.State = StateActive
	a.DeletedAt = nil
	a.DeletedBy = nil
	return nil
}

func (a *Asset) IsImage() bool { return a.Type == TypeImage }

func (a *Asset) ChannelIDs() []int64 {
	ids := make([]int64, 0, len(a.Channels))
	for _, c := range a.Channels {
		ids = append(ids, c.ChannelID)
	}
	return ids
}

// VariantName is the stored name of a rendition: "<stem>-<key><ext>".
func (a *Asset) VariantName(key string) string {
	ext := filepath.Ext(a.Name)
	return strings.TrimSuffix(a.Name, ext) + "-" + key + ext
}

type recordRules struct {
	Name         string  `json:"name" validate:"required"`
	OriginalName string  `json:"original_name" validate:"required"`
	Type         Type    `json:"type" validate:"oneof=IMAGE VIDEO AUDIO BINARY"`
	MimeType     string  `json:"mime_type" validate:"required"`
	FileSize     int64   `json:"file_size" validate:"gte=0"`
	Width        *int    `json:"width" validate:"omitempty,gte=0"`
	Height       *int    `json:"height" validate:"omitempty,gte=0"`
	Channels     []int64 `json:"channels" validate:"min=1"`
}

func validate(a *Asset) error {
	fields := validator.Validate(recordRules{
		Name:         a.Name,
		OriginalName: a.OriginalName,
		Type:         a.Type,
		MimeType:     a.MimeType,
		FileSize:     a.FileSize,
		Width:        a.Width,
		Height:       a.Height,
		Channels:     a.ChannelIDs(),
	})
	if fields == nil {
		fields = map[string]string{}
	}

	if a.Type != TypeImage {
		if a.Width != nil {
			fields["width"] = "is allowed only for IMAGE assets"
		}
		if a.Height != nil {
			fields["height"] = "is allowed only for IMAGE assets"
		}
	}
	if fp := a.FocalPoint; fp != nil && (fp.X < 0 || fp.X > 1 || fp.Y < 0 || fp.Y > 1) {
		fields["focal_point"] = "coordinates must be within 0..1"
	}
	if a.Name != "" && strings.ContainsAny(a.Name, `/\`) {
		fields["name"] = "must not contain path separators"
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// Fields is the public projection returned to callers.
type Fields struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	OriginalName string      `json:"original_name"`
	Type         Type        `json:"type"`
	MimeType     string      `json:"mime_type"`
	FileSize     int64       `json:"file_size"`
	Checksum     string      `json:"checksum"`
	Source       string      `json:"source"`
	Preview      string      `json:"preview"`
	Width        *int        `json:"width,omitempty"`
	Height       *int        `json:"height,omitempty"`
	FocalPoint   *FocalPoint `json:"focal_point,omitempty"`
	State        State       `json:"state"`
	ChannelIDs   []int64     `json:"channel_ids"`
	CreatedBy    int64       `json:"created_by"`
	UpdatedBy    int64       `json:"updated_by"`
	DeletedBy    *int64      `json:"deleted_by,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	DeletedAt    *time.Time  `json:"deleted_at,omitempty"`
}

func (a *Asset) Fields() Fields {
	return Fields{
		ID:           a.ID,
		Name:         a.Name,
		OriginalName: a.OriginalName,
		Type:         a.Type,
		MimeType:     a.MimeType,
		FileSize:     a.FileSize,
		Checksum:     a.Checksum,
		Source:       a.Source,
		Preview:      a.Preview,
		Width:        a.Width,
		Height:       a.Height,
		FocalPoint:   a.FocalPoint,
		State:        a.State,
		ChannelIDs:   a.ChannelIDs(),
		CreatedBy:    a.CreatedBy,
		UpdatedBy:    a.UpdatedBy,
		DeletedBy:    a.DeletedBy,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
		DeletedAt:    a.DeletedAt,
	}
}
