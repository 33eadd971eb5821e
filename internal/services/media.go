package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/studiofolio/portfolio/backend/internal/models"
	"github.com/studiofolio/portfolio/backend/internal/store"
	"golang.org/x/sync/errgroup"
)

// cascadeWorkers bounds concurrent file removals in a cascade or sweep.
const cascadeWorkers = 8

// stagedPrefix marks an upload whose record is being deleted. The file is
// unlinked once the index no longer references it and moved back when the
// index write fails.
const stagedPrefix = ".deleting-"

var allowedMimeTypes = map[string]models.MediaKind{
	"image/jpeg":      models.MediaImage,
	"image/jpg":       models.MediaImage,
	"image/png":       models.MediaImage,
	"image/gif":       models.MediaImage,
	"image/webp":      models.MediaImage,
	"image/avif":      models.MediaImage,
	"image/svg+xml":   models.MediaImage,
	"video/mp4":       models.MediaVideo,
	"video/webm":      models.MediaVideo,
	"video/quicktime": models.MediaVideo,
	"video/ogg":       models.MediaVideo,
}

var safeExt = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// errNoChange aborts a table update without writing.
var errNoChange = errors.New("no change")

// UploadInput is everything the media service needs from an upload.
type UploadInput struct {
	Data         []byte
	OriginalName string
	MimeType     string
	Size         int64
	ProjectID    string
	// Duration in seconds, videos only.
	Duration *float64
}

// SavedMedia is the outcome of SaveFile.
type SavedMedia struct {
	Kind models.MediaKind `json:"kind"`
	models.MediaFile
	Duration *float64 `json:"duration,omitempty"`
}

// SweepReport describes one orphan sweep. Directories and dotfiles such as
// .gitkeep are never scanned or removed, except leftovers of interrupted
// deletes: those are removed when unreferenced and listed in Restored when
// their record still exists.
type SweepReport struct {
	Scanned    int               `json:"scanned"`
	Referenced int               `json:"referenced"`
	Removed    []string          `json:"removed"`
	Restored   []string          `json:"restored,omitempty"`
	Failed     map[string]string `json:"failed,omitempty"`
	DryRun     bool              `json:"dryRun"`
}

// MediaStats summarizes the media index.
type MediaStats struct {
	Images     int   `json:"images"`
	Videos     int   `json:"videos"`
	TotalBytes int64 `json:"totalBytes"`
}

type MediaOptions struct {
	UploadDir      string
	PublicPrefix   string
	MaxUploadBytes int64
	Logger         zerolog.Logger
	Now            func() time.Time
}

// MediaService stores uploaded files and keeps the per-project image and
// video index. Every record is backed by exactly one file in UploadDir.
type MediaService struct {
	table        *store.Table[models.MediaIndex]
	uploadDir    string
	publicPrefix string
	maxBytes     int64
	log          zerolog.Logger
	now          func() time.Time

	// uploads and deletes hold the read side while a file and its record
	// disagree; the orphan sweep takes the write side.
	sweepMu sync.RWMutex

	removeFile func(name string) error
	renameFile func(oldpath, newpath string) error
}

// OpenMediaIndex opens the media table, seeding an empty index on first run.
func OpenMediaIndex(ctx context.Context, path string, w *store.Writer, log zerolog.Logger) (*store.Table[models.MediaIndex], error) {
	return store.OpenTable(ctx, path, w, log, models.NewMediaIndex, models.NewMediaIndex)
}

func NewMediaService(table *store.Table[models.MediaIndex], opts MediaOptions) (*MediaService, error) {
	if opts.UploadDir == "" {
		return nil, errors.New("upload directory is required")
	}
	if err := os.MkdirAll(opts.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if opts.PublicPrefix == "" {
		opts.PublicPrefix = "/uploads"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &MediaService{
		table:        table,
		uploadDir:    opts.UploadDir,
		publicPrefix: strings.TrimSuffix(opts.PublicPrefix, "/"),
		maxBytes:     opts.MaxUploadBytes,
		log:          opts.Logger,
		now:          opts.Now,
		removeFile:   os.Remove,
		renameFile:   os.Rename,
	}, nil
}

func (s *MediaService) UploadDir() string { return s.uploadDir }

// SaveFile validates an upload, writes it to the upload directory and
// appends its record to the project's image or video list. It does not
// check that the project exists; callers serving requests go through
// ProjectService.AddMedia.
func (s *MediaService) SaveFile(ctx context.Context, in UploadInput) (*SavedMedia, error) {
	if strings.TrimSpace(in.ProjectID) == "" {
		return nil, invalid("projectId", "is required")
	}
	if len(in.Data) == 0 {
		return nil, invalid("file", "is empty")
	}
	size := int64(len(in.Data))
	if in.Size > 0 && in.Size != size {
		s.log.Debug().Int64("declared", in.Size).Int64("actual", size).Msg("declared upload size differs from payload")
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, &ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("exceeds the %s limit", FormatFileSize(s.maxBytes)),
			Err:     ErrFileTooLarge,
		}
	}

	mimeType := normalizeMime(in.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeMime(mimetype.Detect(in.Data).String())
	}
	kind, ok := allowedMimeTypes[mimeType]
	if !ok {
		return nil, invalid("file", "unsupported file type %q", mimeType)
	}

	id := uuid.NewString()
	filename := id + extensionFor(in.OriginalName, mimeType)
	file := models.MediaFile{
		ID:           id,
		Filename:     filename,
		OriginalName: displayName(in.OriginalName, filename),
		URL:          path.Join(s.publicPrefix, filename),
		Size:         size,
		MimeType:     mimeType,
		UploadedAt:   s.now(),
	}

	s.sweepMu.RLock()
	defer s.sweepMu.RUnlock()

	full := filepath.Join(s.uploadDir, filename)
	if err := writeNewFile(full, in.Data); err != nil {
		return nil, fmt.Errorf("write upload %s: %w", filename, err)
	}

	err := s.table.Update(ctx, func(cur models.MediaIndex) (models.MediaIndex, error) {
		next := cloneIndex(cur)
		if kind == models.MediaImage {
			list := append([]models.ProjectImage{}, next.Images[in.ProjectID]...)
			next.Images[in.ProjectID] = append(list, models.ProjectImage{MediaFile: file})
		} else {
			list := append([]models.ProjectVideo{}, next.Videos[in.ProjectID]...)
			next.Videos[in.ProjectID] = append(list, models.ProjectVideo{MediaFile: file, Duration: in.Duration})
		}
		return next, nil
	})
	if err != nil {
		if rmErr := s.removeFile(full); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.log.Error().Str("file", filename).Err(rmErr).Msg("could not remove upload after index write failed")
		}
		return nil, err
	}

	s.log.Info().
		Str("project_id", in.ProjectID).
		Str("media_id", id).
		Str("kind", string(kind)).
		Int64("size", size).
		Msg("media saved")

	saved := &SavedMedia{Kind: kind, MediaFile: file}
	if kind == models.MediaVideo {
		saved.Duration = in.Duration
	}
	return saved, nil
}

// GetProjectImages returns a copy of the project's images, never nil.
func (s *MediaService) GetProjectImages(projectID string) []models.ProjectImage {
	out := []models.ProjectImage{}
	s.table.Read(func(idx models.MediaIndex) {
		out = append(out, idx.Images[projectID]...)
	})
	return out
}

// GetProjectVideos returns a copy of the project's videos, never nil.
func (s *MediaService) GetProjectVideos(projectID string) []models.ProjectVideo {
	out := []models.ProjectVideo{}
	s.table.Read(func(idx models.MediaIndex) {
		out = append(out, idx.Videos[projectID]...)
	})
	return out
}

// DeleteMedia removes one record and its file. It reports false when the
// project has no media with that ID.
func (s *MediaService) DeleteMedia(ctx context.Context, mediaID, projectID string) (bool, error) {
	s.sweepMu.RLock()
	defer s.sweepMu.RUnlock()

	var staged string
	err := s.table.Update(ctx, func(cur models.MediaIndex) (models.MediaIndex, error) {
		images := cur.Images[projectID]
		for i, img := range images {
			if img.ID != mediaID {
				continue
			}
			if err := s.stageFile(img.Filename); err != nil {
				return cur, err
			}
			staged = img.Filename
			next := cloneIndex(cur)
			next.Images[projectID] = append(append([]models.ProjectImage{}, images[:i]...), images[i+1:]...)
			return next, nil
		}

		videos := cur.Videos[projectID]
		for i, vid := range videos {
			if vid.ID != mediaID {
				continue
			}
			if err := s.stageFile(vid.Filename); err != nil {
				return cur, err
			}
			staged = vid.Filename
			next := cloneIndex(cur)
			next.Videos[projectID] = append(append([]models.ProjectVideo{}, videos[:i]...), videos[i+1:]...)
			return next, nil
		}

		return cur, errNoChange
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		if staged != "" {
			s.restoreStaged([]string{staged})
		}
		return false, err
	}

	s.commitStaged(ctx, []string{staged})
	s.log.Info().Str("project_id", projectID).Str("media_id", mediaID).Str("file", staged).Msg("media deleted")
	return true, nil
}

// DeleteAllProjectMedia removes every file the project owns and drops its
// index entries in one write. Files that cannot be removed keep their
// records and are reported in a *CascadeError.
func (s *MediaService) DeleteAllProjectMedia(ctx context.Context, projectID string) error {
	residual, err := s.removeProjectMedia(ctx, projectID, true)
	if err != nil {
		return err
	}

	if len(residual) > 0 {
		cerr := &CascadeError{ProjectID: projectID, Residual: residual}
		s.log.Error().Str("project_id", projectID).Err(cerr).Msg("cascade delete left files behind")
		return cerr
	}

	s.log.Info().Str("project_id", projectID).Msg("project media deleted")
	return nil
}

// DiscardProjectMedia drops every index entry stored under projectID, which
// must not belong to a live project. Files that cannot be removed lose their
// records anyway and are left for the orphan sweep.
func (s *MediaService) DiscardProjectMedia(ctx context.Context, projectID string) error {
	residual, err := s.removeProjectMedia(ctx, projectID, false)
	if err != nil {
		return err
	}
	for _, r := range residual {
		s.log.Warn().Str("project_id", projectID).Str("file", r.Filename).Err(r.Err).Msg("unowned media file left for the orphan sweep")
	}
	return nil
}

// removeProjectMedia stages the project's files, drops their records and
// unlinks them after the write. With keepFailed, records of files that
// could not be staged stay in the index.
func (s *MediaService) removeProjectMedia(ctx context.Context, projectID string, keepFailed bool) ([]ResidualFile, error) {
	s.sweepMu.RLock()
	defer s.sweepMu.RUnlock()

	var (
		residual []ResidualFile
		staged   []string
	)

	err := s.table.Update(ctx, func(cur models.MediaIndex) (models.MediaIndex, error) {
		images, hasImages := cur.Images[projectID]
		videos, hasVideos := cur.Videos[projectID]
		if !hasImages && !hasVideos {
			return cur, errNoChange
		}

		names := make([]string, 0, len(images)+len(videos))
		for _, img := range images {
			names = append(names, img.Filename)
		}
		for _, vid := range videos {
			names = append(names, vid.Filename)
		}

		failed := forEachFile(ctx, names, s.stageFile)
		for _, name := range names {
			if _, ok := failed[name]; !ok {
				staged = append(staged, name)
			}
		}

		next := cloneIndex(cur)
		delete(next.Images, projectID)
		delete(next.Videos, projectID)

		var keptImages []models.ProjectImage
		for _, img := range images {
			if err, ok := failed[img.Filename]; ok {
				keptImages = append(keptImages, img)
				residual = append(residual, ResidualFile{MediaID: img.ID, Filename: img.Filename, Err: err})
			}
		}
		var keptVideos []models.ProjectVideo
		for _, vid := range videos {
			if err, ok := failed[vid.Filename]; ok {
				keptVideos = append(keptVideos, vid)
				residual = append(residual, ResidualFile{MediaID: vid.ID, Filename: vid.Filename, Err: err})
			}
		}
		if keepFailed && len(keptImages) > 0 {
			next.Images[projectID] = keptImages
		}
		if keepFailed && len(keptVideos) > 0 {
			next.Videos[projectID] = keptVideos
		}

		return next, nil
	})
	if errors.Is(err, errNoChange) {
		return nil, nil
	}
	if err != nil {
		s.restoreStaged(staged)
		return nil, err
	}

	s.commitStaged(ctx, staged)
	return residual, nil
}

// RekeyProjects moves index entries from old to new project IDs after the
// project table has been renumbered. Keys absent from mapping are kept.
func (s *MediaService) RekeyProjects(ctx context.Context, mapping map[string]string) error {
	identity := true
	for oldID, newID := range mapping {
		if oldID != newID {
			identity = false
			break
		}
	}
	if identity {
		return nil
	}

	err := s.table.Update(ctx, func(cur models.MediaIndex) (models.MediaIndex, error) {
		next := models.NewMediaIndex()
		changed := false

		for id, list := range cur.Images {
			if newID, ok := mapping[id]; ok {
				changed = changed || newID != id
				next.Images[newID] = list
			}
		}
		for id, list := range cur.Videos {
			if newID, ok := mapping[id]; ok {
				changed = changed || newID != id
				next.Videos[newID] = list
			}
		}

		// entries for IDs no project owns: keep them unless a renumbered
		// project now claims the key
		for id, list := range cur.Images {
			if _, ok := mapping[id]; ok {
				continue
			}
			if _, taken := next.Images[id]; taken {
				s.log.Warn().Str("key", id).Msg("dropping unowned image entries shadowed by a renumbered project")
				changed = true
				continue
			}
			next.Images[id] = list
		}
		for id, list := range cur.Videos {
			if _, ok := mapping[id]; ok {
				continue
			}
			if _, taken := next.Videos[id]; taken {
				s.log.Warn().Str("key", id).Msg("dropping unowned video entries shadowed by a renumbered project")
				changed = true
				continue
			}
			next.Videos[id] = list
		}

		if !changed {
			return cur, errNoChange
		}
		return next, nil
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

// CleanOrphanedFiles deletes every file in the upload directory that no
// media record references. Directories and dotfiles are left alone, apart
// from files staged by a delete that never finished: those are removed, or
// moved back when their record survived. This is destructive when the index
// is stale, so it only runs on demand.
func (s *MediaService) CleanOrphanedFiles(ctx context.Context, dryRun bool) (*SweepReport, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	referenced := map[string]struct{}{}
	s.table.Read(func(idx models.MediaIndex) {
		for _, list := range idx.Images {
			for _, img := range list {
				referenced[img.Filename] = struct{}{}
			}
		}
		for _, list := range idx.Videos {
			for _, vid := range list {
				referenced[vid.Filename] = struct{}{}
			}
		}
	})

	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return nil, fmt.Errorf("list upload directory: %w", err)
	}

	report := &SweepReport{Referenced: len(referenced), Removed: []string{}, DryRun: dryRun}
	var orphans, restore []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if original, ok := strings.CutPrefix(name, stagedPrefix); ok {
			report.Scanned++
			if _, live := referenced[original]; live {
				restore = append(restore, original)
			} else {
				orphans = append(orphans, name)
			}
			continue
		}
		if strings.HasPrefix(name, ".") {
			continue
		}
		report.Scanned++
		if _, ok := referenced[name]; !ok {
			orphans = append(orphans, name)
		}
	}

	if dryRun {
		report.Removed = append(report.Removed, orphans...)
		report.Restored = restore
		return report, nil
	}

	for _, name := range restore {
		if err := s.unstageFile(name); err != nil {
			if report.Failed == nil {
				report.Failed = map[string]string{}
			}
			report.Failed[stagedPrefix+name] = err.Error()
			continue
		}
		report.Restored = append(report.Restored, name)
	}

	failed := forEachFile(ctx, orphans, s.deleteFile)
	for _, name := range orphans {
		if err, ok := failed[name]; ok {
			if report.Failed == nil {
				report.Failed = map[string]string{}
			}
			report.Failed[name] = err.Error()
			continue
		}
		report.Removed = append(report.Removed, name)
	}

	s.log.Info().
		Int("scanned", report.Scanned).
		Int("removed", len(report.Removed)).
		Int("restored", len(report.Restored)).
		Int("failed", len(report.Failed)).
		Msg("orphan sweep finished")
	return report, nil
}

// GetProjectMediaSize sums the sizes of all the project's media.
func (s *MediaService) GetProjectMediaSize(projectID string) int64 {
	var total int64
	s.table.Read(func(idx models.MediaIndex) {
		for _, img := range idx.Images[projectID] {
			total += img.Size
		}
		for _, vid := range idx.Videos[projectID] {
			total += vid.Size
		}
	})
	return total
}

func (s *MediaService) Stats() MediaStats {
	var st MediaStats
	s.table.Read(func(idx models.MediaIndex) {
		for _, list := range idx.Images {
			st.Images += len(list)
			for _, img := range list {
				st.TotalBytes += img.Size
			}
		}
		for _, list := range idx.Videos {
			st.Videos += len(list)
			for _, vid := range list {
				st.TotalBytes += vid.Size
			}
		}
	})
	return st
}

// FormatFileSize renders bytes as B, KB, MB or GB rounded to two decimals
// with trailing zeros dropped: 1536 -> "1.5 KB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	v := float64(bytes) / math.Pow(1024, float64(i))
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + units[i]
}

// deleteFile removes one upload, treating an already missing file as done.
func (s *MediaService) deleteFile(filename string) error {
	err := s.removeFile(filepath.Join(s.uploadDir, filename))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", filename, err)
	}
	return nil
}

// stageFile moves an upload aside before its record is dropped. A file
// that is already gone needs no staging.
func (s *MediaService) stageFile(filename string) error {
	err := s.renameFile(filepath.Join(s.uploadDir, filename), filepath.Join(s.uploadDir, stagedPrefix+filename))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", filename, err)
	}
	return nil
}

func (s *MediaService) unstageFile(filename string) error {
	err := s.renameFile(filepath.Join(s.uploadDir, stagedPrefix+filename), filepath.Join(s.uploadDir, filename))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("restore %s: %w", filename, err)
	}
	return nil
}

// commitStaged unlinks staged files once the index no longer references
// them. Failures are logged; the orphan sweep removes what is left.
func (s *MediaService) commitStaged(ctx context.Context, filenames []string) {
	staged := make([]string, len(filenames))
	for i, name := range filenames {
		staged[i] = stagedPrefix + name
	}
	for name, err := range forEachFile(context.WithoutCancel(ctx), staged, s.deleteFile) {
		s.log.Warn().Str("file", name).Err(err).Msg("staged media file not removed")
	}
}

// restoreStaged moves staged files back after the index write failed, so
// every record still in the index keeps its file.
func (s *MediaService) restoreStaged(filenames []string) {
	for _, name := range filenames {
		if err := s.unstageFile(name); err != nil {
			s.log.Error().Str("file", name).Err(err).Msg("media record left without its file")
		}
	}
}

// forEachFile runs op on every filename concurrently and returns the
// failures by filename.
func forEachFile(ctx context.Context, filenames []string, op func(string) error) map[string]error {
	var (
		mu     sync.Mutex
		failed = map[string]error{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cascadeWorkers)
	for _, name := range filenames {
		name := name
		g.Go(func() error {
			err := gctx.Err()
			if err == nil {
				err = op(name)
			}
			if err != nil {
				mu.Lock()
				failed[name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

func cloneIndex(idx models.MediaIndex) models.MediaIndex {
	next := models.NewMediaIndex()
	for k, v := range idx.Images {
		next.Images[k] = v
	}
	for k, v := range idx.Videos {
		next.Videos[k] = v
	}
	return next
}

func normalizeMime(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

// extensionFor keeps the uploaded extension when it is sane, otherwise
// derives one from the MIME type.
func extensionFor(originalName, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if safeExt.MatchString(ext) {
		return ext
	}
	if m := mimetype.Lookup(mimeType); m != nil {
		return m.Extension()
	}
	return ""
}

func displayName(originalName, fallback string) string {
	name := filepath.Base(strings.ReplaceAll(originalName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return fallback
	}
	return name
}

func writeNewFile(name string, data []byte) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return err
	}
	return f.Close()
}
