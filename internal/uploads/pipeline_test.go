package uploads

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider mints a distinct target per call so retries are observable.
type fakeProvider struct {
	calls int
	err   error
}

func (f *fakeProvider) GetUploadTarget(ctx context.Context, fileName, contentType string) (*UploadTarget, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &UploadTarget{
		UploadURL: fmt.Sprintf("https://signed.example/%s?n=%d", fileName, f.calls),
		PublicURL: fmt.Sprintf("https://public.example/%s?n=%d", fileName, f.calls),
	}, nil
}

func TestPipeline_HappyPath(t *testing.T) {
	p := NewPipeline(&fakeProvider{})

	u := p.Add("photo.png", "image/png")
	assert.Equal(t, StatusPending, u.Status)

	target, err := p.Begin(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, target.UploadURL)

	got, ok := p.Get(u.ID)
	require.True(t, ok)
	assert.Equal(t, StatusUploading, got.Status)

	p.SetProgress(u.ID, 40)
	p.Complete(u.ID)

	got, _ = p.Get(u.ID)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, target.PublicURL, got.URL)
}

func TestPipeline_BeginUnknownUpload(t *testing.T) {
	p := NewPipeline(&fakeProvider{})
	_, err := p.Begin(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownUpload)
}

func TestPipeline_ProviderFailureMarksError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("signing down")}
	p := NewPipeline(provider)
	u := p.Add("doc.pdf", "application/pdf")

	_, err := p.Begin(context.Background(), u.ID)
	require.Error(t, err)

	got, _ := p.Get(u.ID)
	assert.Equal(t, StatusError, got.Status)
	assert.NotEmpty(t, got.Reason)
}

func TestPipeline_RetryGetsFreshTarget(t *testing.T) {
	provider := &fakeProvider{}
	p := NewPipeline(provider)
	u := p.Add("photo.png", "image/png")

	first, err := p.Begin(context.Background(), u.ID)
	require.NoError(t, err)
	p.Fail(u.ID, "Network error occurred during upload")

	second, err := p.Begin(context.Background(), u.ID)
	require.NoError(t, err)

	assert.NotEqual(t, first.UploadURL, second.UploadURL)
	assert.Equal(t, 2, provider.calls)

	got, _ := p.Get(u.ID)
	assert.Equal(t, StatusUploading, got.Status)
	assert.Empty(t, got.Reason)
	assert.Zero(t, got.Progress)
}

func TestPipeline_ProgressClampedAndGated(t *testing.T) {
	p := NewPipeline(&fakeProvider{})
	u := p.Add("photo.png", "image/png")

	// progress before uploading is ignored
	p.SetProgress(u.ID, 50)
	got, _ := p.Get(u.ID)
	assert.Zero(t, got.Progress)

	_, err := p.Begin(context.Background(), u.ID)
	require.NoError(t, err)

	p.SetProgress(u.ID, -5)
	got, _ = p.Get(u.ID)
	assert.Zero(t, got.Progress)

	p.SetProgress(u.ID, 150)
	got, _ = p.Get(u.ID)
	assert.Equal(t, 100, got.Progress)
}

func TestPipeline_RemoveIgnoresLateResults(t *testing.T) {
	p := NewPipeline(&fakeProvider{})
	u := p.Add("photo.png", "image/png")
	_, err := p.Begin(context.Background(), u.ID)
	require.NoError(t, err)

	p.Remove(u.ID)

	// events that arrive after removal must all be no-ops
	p.SetProgress(u.ID, 90)
	p.Complete(u.ID)
	p.Fail(u.ID, "too late")

	_, ok := p.Get(u.ID)
	assert.False(t, ok)
	assert.Empty(t, p.List())
}

func TestPipeline_CompleteAfterFailIgnored(t *testing.T) {
	p := NewPipeline(&fakeProvider{})
	u := p.Add("photo.png", "image/png")
	_, err := p.Begin(context.Background(), u.ID)
	require.NoError(t, err)

	p.Fail(u.ID, "connection reset")
	p.Complete(u.ID)

	got, _ := p.Get(u.ID)
	assert.Equal(t, StatusError, got.Status)
	assert.Empty(t, got.URL)
}

func TestPipeline_ListKeepsInsertionOrder(t *testing.T) {
	p := NewPipeline(&fakeProvider{})
	a := p.Add("a.png", "image/png")
	b := p.Add("b.png", "image/png")
	c := p.Add("c.png", "image/png")
	p.Remove(b.ID)

	list := p.List()
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, c.ID, list[1].ID)
}

func TestPipeline_DrainTakesOnlySuccesses(t *testing.T) {
	p := NewPipeline(&fakeProvider{})
	ctx := context.Background()

	done := p.Add("done.png", "image/png")
	_, err := p.Begin(ctx, done.ID)
	require.NoError(t, err)
	p.Complete(done.ID)

	inflight := p.Add("inflight.png", "image/png")
	_, err = p.Begin(ctx, inflight.ID)
	require.NoError(t, err)

	failed := p.Add("failed.pdf", "application/pdf")
	_, err = p.Begin(ctx, failed.ID)
	require.NoError(t, err)
	p.Fail(failed.ID, "Network error occurred during upload")

	attachments := p.Drain()
	require.Len(t, attachments, 1)
	assert.Equal(t, "done.png", attachments[0].Name)
	assert.Equal(t, "image/png", attachments[0].ContentType)
	assert.NotEmpty(t, attachments[0].URL)

	// successes leave; in-flight and errored stay for the next message
	_, ok := p.Get(done.ID)
	assert.False(t, ok)
	_, ok = p.Get(inflight.ID)
	assert.True(t, ok)
	_, ok = p.Get(failed.ID)
	assert.True(t, ok)

	// a second drain with nothing new is empty
	assert.Empty(t, p.Drain())
}
