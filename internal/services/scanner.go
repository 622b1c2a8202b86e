package services

import (
	"context"
	"fmt"
	"io"

	clamd "github.com/dutchcoders/go-clamd"
	"go.uber.org/zap"

	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
)

// Antivirus scans a byte stream. signature is set when infected is true.
type Antivirus interface {
	Scan(r io.Reader) (infected bool, signature string, err error)
}

// ClamdScanner streams data to clamd with INSTREAM.
type ClamdScanner struct {
	client *clamd.Clamd
}

func NewClamdScanner(address string) *ClamdScanner {
	return &ClamdScanner{client: clamd.NewClamd(address)}
}

func (c *ClamdScanner) Ping() error {
	return c.client.Ping()
}

func (c *ClamdScanner) Scan(r io.Reader) (bool, string, error) {
	abort := make(chan bool)
	defer close(abort)

	results, err := c.client.ScanStream(r, abort)
	if err != nil {
		return false, "", err
	}

	infected := false
	signature := ""
	var scanErr error
	for res := range results {
		switch res.Status {
		case clamd.RES_FOUND:
			infected = true
			signature = res.Description
		case clamd.RES_ERROR, clamd.RES_PARSE_ERROR:
			scanErr = fmt.Errorf("clamd: %s", res.Description)
		}
	}
	if infected {
		return true, signature, nil
	}
	return false, "", scanErr
}

// ScanStatusUpdater records the scan verdict on a file record.
type ScanStatusUpdater interface {
	UpdateScanStatus(ctx context.Context, fileID string, status models.ScanStatus) error
}

// Scanner scans uploaded originals, records the verdict and deletes infected
// objects.
type Scanner struct {
	av     Antivirus
	blobs  BlobStore
	store  ScanStatusUpdater
	logger *zap.Logger
}

func NewScanner(av Antivirus, blobs BlobStore, store ScanStatusUpdater, logger *zap.Logger) *Scanner {
	return &Scanner{av: av, blobs: blobs, store: store, logger: logger.Named("scan")}
}

// ScanObject scans objectName and stores the result on fileID.
func (s *Scanner) ScanObject(ctx context.Context, fileID, objectName string) (models.ScanStatus, error) {
	log := s.logger.With(zap.String("file_id", fileID), zap.String("object", objectName))

	body, _, err := s.blobs.Get(ctx, objectName)
	if err != nil {
		return models.ScanError, s.record(ctx, fileID, models.ScanError, fmt.Errorf("fetch object: %w", err))
	}
	defer body.Close()

	infected, signature, err := s.av.Scan(body)
	if err != nil {
		log.Warn("scan failed", zap.Error(err))
		return models.ScanError, s.record(ctx, fileID, models.ScanError, err)
	}

	status := models.ScanClean
	if infected {
		status = models.ScanInfected
		log.Warn("virus detected", zap.String("signature", signature))
		if err := s.blobs.Delete(ctx, objectName); err != nil {
			log.Error("failed to delete infected object", zap.Error(err))
		}
	}

	if err := s.store.UpdateScanStatus(ctx, fileID, status); err != nil {
		return status, fmt.Errorf("update scan status: %w", err)
	}
	log.Info("scan finished", zap.String("status", string(status)))
	return status, nil
}

func (s *Scanner) record(ctx context.Context, fileID string, status models.ScanStatus, cause error) error {
	if err := s.store.UpdateScanStatus(ctx, fileID, status); err != nil {
		return fmt.Errorf("%v; update scan status: %w", cause, err)
	}
	return cause
}
