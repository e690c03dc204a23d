// Package uploads tracks per-file upload state feeding into outgoing message
// construction. Files upload straight to object storage through short-lived
// presigned URLs; the pipeline only tracks their progress.
package uploads

import (
	"context"
	"errors"
	"sync"

	"chatsync-backend/internal/models"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

var ErrUnknownUpload = errors.New("unknown upload")

// UploadTarget is a single-use presigned destination. Never cached: a retry
// must request a fresh one.
type UploadTarget struct {
	UploadURL string `json:"upload_url"`
	PublicURL string `json:"public_url"`
}

// TargetProvider hands out presigned upload destinations.
type TargetProvider interface {
	GetUploadTarget(ctx context.Context, fileName, contentType string) (*UploadTarget, error)
}

// Upload is the tracked state of one file.
type Upload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Status      Status `json:"status"`
	Progress    int    `json:"progress"`
	URL         string `json:"url,omitempty"`
	Reason      string `json:"reason,omitempty"`

	publicURL string
}

// Pipeline tracks the files attached to the next outgoing message. Each file
// progresses independently; an errored file never blocks sending text.
type Pipeline struct {
	mu      sync.Mutex
	targets TargetProvider
	uploads map[string]*Upload
	order   []string
}

func NewPipeline(targets TargetProvider) *Pipeline {
	return &Pipeline{
		targets: targets,
		uploads: make(map[string]*Upload),
	}
}

// Add registers a file in pending state and returns its tracking entry.
func (p *Pipeline) Add(name, contentType string) *Upload {
	p.mu.Lock()
	defer p.mu.Unlock()

	u := &Upload{
		ID:          uuid.NewString(),
		Name:        name,
		ContentType: contentType,
		Status:      StatusPending,
	}
	p.uploads[u.ID] = u
	p.order = append(p.order, u.ID)
	cp := *u
	return &cp
}

// Begin requests a fresh presigned target and moves the file to uploading.
// Also the retry path for errored files; the previous target is discarded.
func (p *Pipeline) Begin(ctx context.Context, id string) (*UploadTarget, error) {
	p.mu.Lock()
	u, ok := p.uploads[id]
	if !ok {
		p.mu.Unlock()
		return nil, ErrUnknownUpload
	}
	name, contentType := u.Name, u.ContentType
	p.mu.Unlock()

	// presigned URLs are short-lived and single-use, so this always hits the
	// provider, even on retry
	target, err := p.targets.GetUploadTarget(ctx, name, contentType)
	if err != nil {
		p.Fail(id, "Failed to prepare upload destination")
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok = p.uploads[id]
	if !ok {
		// removed while we were fetching the target; drop the result
		return nil, ErrUnknownUpload
	}
	u.Status = StatusUploading
	u.Progress = 0
	u.URL = ""
	u.Reason = ""
	u.publicURL = target.PublicURL
	return target, nil
}

func (p *Pipeline) SetProgress(id string, progress int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.uploads[id]
	if !ok || u.Status != StatusUploading {
		return
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	u.Progress = progress
}

// Complete marks the file uploaded. A completion arriving after Remove is
// ignored.
func (p *Pipeline) Complete(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.uploads[id]
	if !ok || u.Status != StatusUploading {
		return
	}
	u.Status = StatusSuccess
	u.Progress = 100
	u.URL = u.publicURL
}

// Fail keeps the entry with a human-readable reason so the user can retry or
// remove it. Text-only sends are unaffected.
func (p *Pipeline) Fail(id string, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.uploads[id]
	if !ok {
		return
	}
	u.Status = StatusError
	u.Reason = reason
	u.URL = ""
}

// Remove drops the file. Any in-flight result for this id is ignored from
// here on, and an already-produced attachment URL goes with it.
func (p *Pipeline) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.uploads[id]; !ok {
		return
	}
	delete(p.uploads, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Get returns a copy of one upload's state.
func (p *Pipeline) Get(id string) (*Upload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.uploads[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

// List returns all tracked uploads in insertion order.
func (p *Pipeline) List() []Upload {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Upload, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.uploads[id])
	}
	return out
}

// Drain returns the successful attachments for the outgoing message and
// removes them from the pipeline. Pending and errored entries stay.
func (p *Pipeline) Drain() []models.Attachment {
	p.mu.Lock()
	defer p.mu.Unlock()

	var attachments []models.Attachment
	kept := p.order[:0]
	for _, id := range p.order {
		u := p.uploads[id]
		if u.Status == StatusSuccess {
			attachments = append(attachments, models.Attachment{
				Name:        u.Name,
				ContentType: u.ContentType,
				URL:         u.URL,
			})
			delete(p.uploads, id)
			continue
		}
		kept = append(kept, id)
	}
	p.order = kept
	return attachments
}
