package receipt

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveStorage uploads receipt images to a Google Drive folder using a
// service account. It is the preferred backend because it survives
// ephemeral filesystems.
type DriveStorage struct {
	svc      *drive.Service
	folderID string
}

// NewDriveStorage creates a DriveStorage from service-account credentials
// JSON. folderID is the Drive folder receipts are uploaded into.
func NewDriveStorage(ctx context.Context, credentialsJSON []byte, folderID string) (*DriveStorage, error) {
	if len(credentialsJSON) == 0 {
		return nil, fmt.Errorf("drive credentials are required")
	}
	svc, err := drive.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(drive.DriveFileScope),
	)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return &DriveStorage{svc: svc, folderID: folderID}, nil
}

// Upload stores the file on Drive and returns a shareable link. The
// year/month partition is encoded into the file name since Drive files
// live flat inside the configured folder.
func (d *DriveStorage) Upload(ctx context.Context, filename, year, month string, data []byte) (string, error) {
	meta := &drive.File{Name: path.Join(year, month, filename)}
	if d.folderID != "" {
		meta.Parents = []string{d.folderID}
	}

	created, err := d.svc.Files.Create(meta).
		Media(bytes.NewReader(data)).
		Fields("id, webViewLink, webContentLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("uploading to drive: %w", err)
	}

	if created.WebContentLink != "" {
		return created.WebContentLink, nil
	}
	if created.WebViewLink != "" {
		return created.WebViewLink, nil
	}
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}
