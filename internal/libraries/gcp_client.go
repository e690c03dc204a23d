package libraries

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"

	"chatsync-backend/internal/uploads"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

type Clients struct {
	GCS          *storage.Client
	Vertex       *aiplatform.PredictionClient
	ProjectID    string
	VertexRegion string
	Bucket       string
}

var clients *Clients

func GetClients() *Clients {
	return clients
}

func NewClients(ctx context.Context) (*Clients, error) {
	// read base64 encoded JSON
	encoded := os.Getenv("GCP_SERVICE_ACCOUNT_CREDENTIALS")
	if encoded == "" {
		return nil, fmt.Errorf("GCP_SERVICE_ACCOUNT_CREDENTIALS not set")
	}

	// decode JSON
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode service account json: %w", err)
	}

	// parse JSON
	credOpt := option.WithCredentialsJSON(decoded)

	// create GCS client
	gcsClient, err := storage.NewClient(ctx, credOpt)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}

	// create Vertex AI Prediction client
	vertexClient, err := aiplatform.NewPredictionClient(ctx, credOpt)
	if err != nil {
		return nil, fmt.Errorf("vertex.NewPredictionClient: %w", err)
	}

	clients = &Clients{
		GCS:          gcsClient,
		Vertex:       vertexClient,
		ProjectID:    os.Getenv("GOOGLE_CLOUD_PROJECT_ID"),
		VertexRegion: os.Getenv("GOOGLE_CLOUD_VERTEXAI_LOCATION"),
		Bucket:       os.Getenv("GCS_ATTACHMENTS_BUCKET"),
	}

	return clients, nil
}

// GetUploadTarget signs a fresh single-use PUT URL for one attachment. The
// object key is prefixed with a random id so file names can never collide.
func (c *Clients) GetUploadTarget(ctx context.Context, fileName, contentType string) (*uploads.UploadTarget, error) {
	if c.Bucket == "" {
		return nil, fmt.Errorf("GCS_ATTACHMENTS_BUCKET not set")
	}

	object := fmt.Sprintf("attachments/%s/%s", uuid.NewString(), fileName)
	signed, err := c.GCS.Bucket(c.Bucket).SignedURL(object, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		Expires:     time.Now().Add(15 * time.Minute),
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("sign upload url: %w", err)
	}

	return &uploads.UploadTarget{
		UploadURL: signed,
		PublicURL: fmt.Sprintf("https://storage.googleapis.com/%s/%s", c.Bucket, object),
	}, nil
}

func (c *Clients) Close() {
	c.GCS.Close()
	c.Vertex.Close()
}
