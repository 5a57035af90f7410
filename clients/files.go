package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ThreeDotsLabs/go-event-driven/common/clients"
	"github.com/ThreeDotsLabs/go-event-driven/common/clients/files"
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

type FilesClient struct {
	client files.ClientWithResponsesInterface
}

func NewFilesClient(c *clients.Clients) FilesClient {
	return FilesClient{
		client: c.Files,
	}
}

// UploadFile stores content under fileID. Uploading the same file twice is
// not an error.
func (c FilesClient) UploadFile(ctx context.Context, fileID string, content string) error {
	res, err := c.client.PutFilesFileIdContentWithTextBodyWithResponse(ctx, fileID, content)
	if err != nil {
		return fmt.Errorf("put file request: %w", err)
	}

	if res.StatusCode() == http.StatusConflict {
		log.FromContext(ctx).Infof("file %s already exists", fileID)
		return nil
	}

	if res.StatusCode() != http.StatusOK && res.StatusCode() != http.StatusCreated {
		return fmt.Errorf("unexpected status code: %d", res.StatusCode())
	}

	return nil
}
