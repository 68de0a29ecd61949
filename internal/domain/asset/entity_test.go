package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce/internal/tenant"
)

func validProps() Props {
	w, h := 10, 20
	return Props{
		Name:         "chair-1700000000000-abcd1234.jpg",
		OriginalName: "chair",
		Type:         TypeImage,
		MimeType:     "image/jpeg",
		FileSize:     1024,
		Width:        &w,
		Height:       &h,
		ChannelIDs:   []int64{1},
		ActorID:      9,
	}
}

func TestNew_Valid(t *testing.T) {
	a, err := New(validProps())
	require.NoError(t, err)
	assert.Equal(t, StateActive, a.State)
	assert.Equal(t, []int64{1}, a.ChannelIDs())
	assert.EqualValues(t, 9, a.CreatedBy)
	assert.Empty(t, a.Source)
}

func TestNew_ReportsEveryViolation(t *testing.T) {
	p := validProps()
	p.Name = ""
	p.FileSize = -1
	p.MimeType = " "
	p.ChannelIDs = nil

	_, err := New(p)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "file_size")
	assert.Contains(t, verr.Fields, "mime_type")
	assert.Contains(t, verr.Fields, "channels")
	assert.Len(t, verr.Fields, 4)
}

func TestNew_DimensionsOnlyForImages(t *testing.T) {
	p := validProps()
	p.Type = TypeVideo
	_, err := New(p)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "width")
	assert.Contains(t, verr.Fields, "height")

	neg := -5
	p = validProps()
	p.Width = &neg
	_, err = New(p)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "width")
}

func TestNew_RejectsUnknownTypeAndPathNames(t *testing.T) {
	p := validProps()
	p.Type = "DOCUMENT"
	p.Width, p.Height = nil, nil
	p.Name = "../etc/passwd"
	_, err := New(p)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "type")
	assert.Contains(t, verr.Fields, "name")
}

func TestNewFromContext(t *testing.T) {
	pc := newProcessingContext(&File{Buffer: []byte("x"), Filename: `C:\photos\Red Chair.png`}, TypeImage).
		withNormalizedName("red-chair-1-abcdef12.jpg").
		withMetadata(FileMetadata{MimeType: "image/jpeg", FileSize: 1, Width: 3, Height: 4}).
		withBuffer([]byte("x"))

	a, err := NewFromContext(pc, tenant.Scope{ChannelID: 5, ActorID: 2})
	require.NoError(t, err)
	assert.Equal(t, "Red Chair", a.OriginalName)
	assert.Equal(t, []int64{5}, a.ChannelIDs())
	require.NotNil(t, a.Width)
	assert.Equal(t, 3, *a.Width)
	assert.Len(t, a.Checksum, 64)

	_, err = NewFromContext(pc, tenant.Scope{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "channels")
}

func TestEdit_IsAtomic(t *testing.T) {
	a, err := New(validProps())
	require.NoError(t, err)

	preview := "/static/assets/chair.jpg"
	empty := ""
	err = a.Edit(EditProps{Preview: &preview, OriginalName: &empty, ActorID: 3})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "original_name")

	assert.Empty(t, a.Preview)
	assert.Equal(t, "chair", a.OriginalName)
	assert.EqualValues(t, 9, a.UpdatedBy)

	require.NoError(t, a.Edit(EditProps{Preview: &preview, ActorID: 3}))
	assert.Equal(t, preview, a.Preview)
	assert.EqualValues(t, 3, a.UpdatedBy)
}

func TestEdit_FocalPoint(t *testing.T) {
	a, err := New(validProps())
	require.NoError(t, err)

	require.NoError(t, a.Edit(EditProps{FocalPoint: &FocalPoint{X: 0.5, Y: 0.5}}))
	require.NotNil(t, a.FocalPoint)

	err = a.Edit(EditProps{FocalPoint: &FocalPoint{X: -0.1, Y: 0.5}})
	assert.Error(t, err)
	assert.Equal(t, 0.5, a.FocalPoint.X)

	require.NoError(t, a.Edit(EditProps{ClearFocalPoint: true}))
	assert.Nil(t, a.FocalPoint)
}

func TestLifecycleTransitions(t *testing.T) {
	a, err := New(validProps())
	require.NoError(t, err)

	assert.ErrorIs(t, a.SoftRecover(), ErrInvalidTransition)

	require.NoError(t, a.SoftDelete(11))
	assert.Equal(t, StateSoftDeleted, a.State)
	require.NotNil(t, a.DeletedBy)
	assert.EqualValues(t, 11, *a.DeletedBy)
	assert.NotNil(t, a.DeletedAt)

	assert.ErrorIs(t, a.SoftDelete(11), ErrInvalidTransition)

	require.NoError(t, a.SoftRecover())
	assert.Equal(t, StateActive, a.State)
	assert.Nil(t, a.DeletedAt)
	assert.Nil(t, a.DeletedBy)
}

func TestVariantName(t *testing.T) {
	a := &Asset{Name: "chair-1700000000000-abcd1234.jpg"}
	assert.Equal(t, "chair-1700000000000-abcd1234-thumb.jpg", a.VariantName("thumb"))

	b := &Asset{Name: "readme"}
	assert.Equal(t, "readme-large", b.VariantName("large"))
}

func TestValidationError_MessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"width": "w", "name": "n"}}
	assert.Equal(t, "asset validation failed: name n; width w", err.Error())
}
