// Package roster manages enrollment on top of the in-memory embedding store,
// keeping Postgres and object storage in step with it.
package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/your-org/coachwatch/internal/identity"
	"github.com/your-org/coachwatch/internal/observability"
)

// ErrBackupUnavailable is returned by backup operations when no object store
// is configured.
var ErrBackupUnavailable = errors.New("roster backup storage not configured")

// Embedder turns a still image into the embedding of its best face.
type Embedder interface {
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
}

// Repository persists enrollments across restarts.
type Repository interface {
	SaveEnrollment(ctx context.Context, id identity.Identity, embedding []float32, sourceKey string) error
	DeleteIdentity(ctx context.Context, id string) (bool, error)
	LoadEnrollments(ctx context.Context) ([]identity.Sample, error)
}

// ImageStore keeps the source images enrollments were made from.
type ImageStore interface {
	PutEnrollmentImage(ctx context.Context, identityID string, data []byte, contentType string) (string, error)
	DeleteEnrollmentImages(ctx context.Context, identityID string) error
}

// BackupStore holds exported roster snapshots.
type BackupStore interface {
	PutRosterBackup(ctx context.Context, data []byte) (string, error)
	GetRosterBackup(ctx context.Context, key string) ([]byte, error)
}

// Options wires the optional persistence collaborators. Nil fields disable
// the corresponding behavior.
type Options struct {
	Repository Repository
	Images     ImageStore
	Backups    BackupStore
}

type Service struct {
	store    *identity.Store
	embedder Embedder
	repo     Repository
	images   ImageStore
	backups  BackupStore
}

func NewService(store *identity.Store, embedder Embedder, opts Options) *Service {
	s := &Service{
		store:    store,
		embedder: embedder,
		repo:     opts.Repository,
		images:   opts.Images,
		backups:  opts.Backups,
	}
	s.updateGauge()
	return s
}

// EnrollResult describes one successful enrollment.
type EnrollResult struct {
	IdentityID string `json:"identity_id"`
	Embeddings int    `json:"embeddings"`
	SourceKey  string `json:"source_key,omitempty"`
}

// EnrollImage embeds the highest-confidence face in image and enrolls it
// under meta. The enrollment is persisted before it becomes matchable.
func (s *Service) EnrollImage(ctx context.Context, meta identity.Identity, image []byte, contentType string) (EnrollResult, error) {
	role, err := identity.ParseRole(string(meta.Role))
	if err != nil {
		return EnrollResult{}, err
	}
	meta.Role = role
	if err := meta.Validate(); err != nil {
		return EnrollResult{}, err
	}

	emb, err := s.embedder.EmbedImage(ctx, image)
	if err != nil {
		return EnrollResult{}, fmt.Errorf("embed enrollment image: %w", err)
	}
	if len(emb) != s.store.Dimension() {
		return EnrollResult{}, fmt.Errorf("%w: got %d, want %d", identity.ErrInvalidEmbeddingDimension, len(emb), s.store.Dimension())
	}
	if meta.ID == "" {
		meta.ID = uuid.New().String()
	}

	var res EnrollResult
	if s.images != nil {
		key, err := s.images.PutEnrollmentImage(ctx, meta.ID, image, contentType)
		if err != nil {
			slog.Warn("store enrollment image", "identity_id", meta.ID, "error", err)
		} else {
			res.SourceKey = key
		}
	}

	if s.repo != nil {
		if err := s.repo.SaveEnrollment(ctx, meta, emb, res.SourceKey); err != nil {
			return EnrollResult{}, fmt.Errorf("persist enrollment: %w", err)
		}
	}

	id, err := s.store.Enroll(meta, emb)
	if err != nil {
		return EnrollResult{}, err
	}
	s.updateGauge()

	_, n, _ := s.store.Get(id)
	res.IdentityID = id
	res.Embeddings = n
	slog.Info("identity enrolled", "identity_id", id, "role", meta.Role, "embeddings", n)
	return res, nil
}

// Remove deletes the identity everywhere. It reports whether it existed.
func (s *Service) Remove(ctx context.Context, id string) (bool, error) {
	var persisted bool
	if s.repo != nil {
		var err error
		persisted, err = s.repo.DeleteIdentity(ctx, id)
		if err != nil {
			return false, fmt.Errorf("delete identity: %w", err)
		}
	}
	removed := s.store.Remove(id)
	s.updateGauge()

	if s.images != nil && (removed || persisted) {
		if err := s.images.DeleteEnrollmentImages(ctx, id); err != nil {
			slog.Warn("delete enrollment images", "identity_id", id, "error", err)
		}
	}
	if removed || persisted {
		slog.Info("identity removed", "identity_id", id)
	}
	return removed || persisted, nil
}

// List returns every identity in enrollment order.
func (s *Service) List() []identity.Summary {
	return s.store.List()
}

func (s *Service) Get(id string) (identity.Summary, bool) {
	ident, n, ok := s.store.Get(id)
	if !ok {
		return identity.Summary{}, false
	}
	return identity.Summary{Identity: ident, Embeddings: n}, true
}

// Count returns the number of enrolled embeddings.
func (s *Service) Count() int {
	return s.store.Count()
}

func (s *Service) Export() []identity.Record {
	return s.store.Export()
}

// Import enrolls the well-formed records and persists what was accepted.
// Persistence failures are logged; the records stay matchable.
func (s *Service) Import(ctx context.Context, records []identity.Record) identity.ImportResult {
	res := s.store.Import(records)
	s.updateGauge()

	if s.repo != nil {
		for _, smp := range res.Samples {
			if err := s.repo.SaveEnrollment(ctx, smp.Identity, smp.Vector, ""); err != nil {
				slog.Error("persist imported enrollment", "identity_id", smp.Identity.ID, "error", err)
			}
		}
	}
	slog.Info("roster imported", "imported", res.Imported, "failed", res.Failed)
	return res
}

// Backup writes the exported roster to object storage and returns its key.
func (s *Service) Backup(ctx context.Context) (string, int, error) {
	if s.backups == nil {
		return "", 0, ErrBackupUnavailable
	}
	records := s.store.Export()
	data, err := json.Marshal(records)
	if err != nil {
		return "", 0, fmt.Errorf("marshal roster: %w", err)
	}
	key, err := s.backups.PutRosterBackup(ctx, data)
	if err != nil {
		return "", 0, fmt.Errorf("store roster backup: %w", err)
	}
	slog.Info("roster backed up", "key", key, "records", len(records))
	return key, len(records), nil
}

// RestoreBackup imports a roster previously written by Backup.
func (s *Service) RestoreBackup(ctx context.Context, key string) (identity.ImportResult, error) {
	if s.backups == nil {
		return identity.ImportResult{}, ErrBackupUnavailable
	}
	data, err := s.backups.GetRosterBackup(ctx, key)
	if err != nil {
		return identity.ImportResult{}, fmt.Errorf("fetch roster backup: %w", err)
	}
	records, err := decodeRecords(data)
	if err != nil {
		return identity.ImportResult{}, err
	}
	return s.Import(ctx, records), nil
}

// LoadFromRepository fills the store from persisted enrollments.
func (s *Service) LoadFromRepository(ctx context.Context) (loaded, failed int, err error) {
	if s.repo == nil {
		return 0, 0, nil
	}
	samples, err := s.repo.LoadEnrollments(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load enrollments: %w", err)
	}
	loaded, failed = s.store.Load(samples)
	s.updateGauge()
	slog.Info("enrollments restored", "loaded", loaded, "failed", failed)
	return loaded, failed, nil
}

// SeedFile imports a JSON array of portable records from path.
func (s *Service) SeedFile(ctx context.Context, path string) (identity.ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return identity.ImportResult{}, fmt.Errorf("read seed file: %w", err)
	}
	records, err := decodeRecords(data)
	if err != nil {
		return identity.ImportResult{}, err
	}
	return s.Import(ctx, records), nil
}

func decodeRecords(data []byte) ([]identity.Record, error) {
	var records []identity.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrMalformedRecord, err)
	}
	return records, nil
}

func (s *Service) updateGauge() {
	observability.EnrolledEmbeddings.Set(float64(s.store.Count()))
}
