// Package gdrive backs up the daily audit log to a Google Drive folder as
// plain-text Google Docs, one document per day.
package gdrive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/gback-app/coach-engine/internal/storage"
)

const docMimeType = "application/vnd.google-apps.document"

// AuditSource is the read side of the audit log.
type AuditSource interface {
	GetSessionsByDate(date string) ([]storage.Session, error)
	GetToolInvocations(sessionID string) ([]storage.ToolInvocation, error)
}

type fileService interface {
	create(ctx context.Context, name, folderID string, media io.Reader) (string, error)
	update(ctx context.Context, fileID string, media io.Reader) error
}

type Syncer struct {
	files    fileService
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewSyncer(ctx context.Context, credPath, folderID string) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return newSyncer(driveFiles{svc: svc}, folderID), nil
}

func newSyncer(files fileService, folderID string) *Syncer {
	return &Syncer{
		files:    files,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}
}

// Sync renders the audit log for date (YYYY-MM-DD) and uploads it. The first
// sync of a date creates the document and later syncs replace its content.
// Days without sessions are skipped.
func (s *Syncer) Sync(ctx context.Context, src AuditSource, date string) error {
	report, err := Render(src, date)
	if err != nil {
		return err
	}
	if report == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if fileID, ok := s.fileIDs[date]; ok {
		if err := s.files.update(ctx, fileID, strings.NewReader(report)); err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	fileID, err := s.files.create(ctx, "coach-engine-"+date, s.folderID, strings.NewReader(report))
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}
	s.fileIDs[date] = fileID
	return nil
}

// Render formats one day of the audit log. It returns "" when the day has no
// sessions.
func Render(src AuditSource, date string) (string, error) {
	sessions, err := src.GetSessionsByDate(date)
	if err != nil {
		return "", fmt.Errorf("load sessions for %s: %w", date, err)
	}
	if len(sessions) == 0 {
		return "", nil
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "Coach sessions %s\n", date)
	for _, sess := range sessions {
		fmt.Fprintf(&b, "\n%s [%s] %s", sess.ID, sess.Mode, sess.StartedAt.UTC().Format(time.TimeOnly))
		if sess.EndedAt != nil {
			fmt.Fprintf(&b, " to %s", sess.EndedAt.UTC().Format(time.TimeOnly))
		}
		fmt.Fprintf(&b, " %s", sess.Status)
		if sess.Error != "" {
			fmt.Fprintf(&b, " (%s)", sess.Error)
		}
		b.WriteByte('\n')

		invocations, err := src.GetToolInvocations(sess.ID)
		if err != nil {
			return "", fmt.Errorf("load tool invocations for %s: %w", sess.ID, err)
		}
		for _, inv := range invocations {
			outcome := "ok"
			if !inv.OK {
				outcome = "failed"
			}
			fmt.Fprintf(&b, "  %s %s %s %s: %s\n",
				inv.At.UTC().Format(time.TimeOnly), inv.Name, inv.Arguments, outcome, inv.Result)
		}
	}
	return b.String(), nil
}

type driveFiles struct {
	svc *drive.Service
}

func (d driveFiles) create(ctx context.Context, name, folderID string, media io.Reader) (string, error) {
	doc, err := d.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: docMimeType,
		Parents:  []string{folderID},
	}).Media(media).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return doc.Id, nil
}

func (d driveFiles) update(ctx context.Context, fileID string, media io.Reader) error {
	_, err := d.svc.Files.Update(fileID, &drive.File{}).Media(media).Context(ctx).Do()
	return err
}
