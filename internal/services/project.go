package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/studiofolio/portfolio/backend/internal/models"
	"github.com/studiofolio/portfolio/backend/internal/store"
)

// ProjectService owns the projects table. Media lists on returned projects
// are always joined live from the media service.
type ProjectService struct {
	table      *store.Table[[]models.Project]
	media      *MediaService
	compactIDs bool
	now        func() time.Time
	log        zerolog.Logger
}

type ProjectOptions struct {
	// CompactIDs renumbers the remaining projects 1..N after a delete.
	CompactIDs bool
	Logger     zerolog.Logger
	Now        func() time.Time
}

type ProjectListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status" binding:"omitempty,oneof=draft published archived"`
	Query    string `form:"q"`
}

type ProjectListResponse struct {
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type CreateProjectInput struct {
	Title        string               `json:"title" binding:"required"`
	Description  string               `json:"description"`
	Technologies []string             `json:"technologies"`
	Tags         []string             `json:"tags"`
	Status       models.ProjectStatus `json:"status"`
	Featured     bool                 `json:"featured"`
	CoverImage   string               `json:"coverImage"`
	Duration     string               `json:"duration"`
	TeamSize     string               `json:"teamSize"`
	Scope        string               `json:"scope"`
}

// OpenProjectTable opens the projects table. A missing file is seeded with
// example projects when seedExamples is set, otherwise with an empty list.
func OpenProjectTable(ctx context.Context, path string, w *store.Writer, log zerolog.Logger, seedExamples bool) (*store.Table[[]models.Project], error) {
	empty := func() []models.Project { return []models.Project{} }
	seed := empty
	if seedExamples {
		seed = func() []models.Project { return exampleProjects(time.Now()) }
	}
	return store.OpenTable(ctx, path, w, log, seed, empty)
}

func NewProjectService(table *store.Table[[]models.Project], media *MediaService, opts ProjectOptions) *ProjectService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ProjectService{
		table:      table,
		media:      media,
		compactIDs: opts.CompactIDs,
		now:        opts.Now,
		log:        opts.Logger,
	}
}

// GetAll returns every project in table order.
func (s *ProjectService) GetAll() []models.Project {
	projects := s.snapshot()
	for i := range projects {
		s.join(&projects[i])
	}
	return projects
}

// List filters and paginates projects for the admin API.
func (s *ProjectService) List(req *ProjectListRequest) *ProjectListResponse {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := strings.ToLower(strings.TrimSpace(req.Query))
	matched := []models.Project{}
	for _, p := range s.snapshot() {
		if req.Status != "" && string(p.Status) != req.Status {
			continue
		}
		if query != "" && !matchesQuery(p, query) {
			continue
		}
		matched = append(matched, p)
	}

	total := len(matched)
	start := (req.Page - 1) * req.PageSize
	if start > total {
		start = total
	}
	end := start + req.PageSize
	if end > total {
		end = total
	}

	items := matched[start:end]
	for i := range items {
		s.join(&items[i])
	}

	return &ProjectListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}
}

// ListPublished returns published projects for the public site, featured
// ones first, otherwise in table order.
func (s *ProjectService) ListPublished() []models.Project {
	out := []models.Project{}
	for _, p := range s.snapshot() {
		if p.Status == models.StatusPublished {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Featured && !out[j].Featured
	})
	for i := range out {
		s.join(&out[i])
	}
	return out
}

func (s *ProjectService) GetByID(id string) (*models.Project, bool) {
	var (
		found models.Project
		ok    bool
	)
	s.table.Read(func(projects []models.Project) {
		if i := indexOfProject(projects, id); i >= 0 {
			found = projects[i].Clone()
			ok = true
		}
	})
	if !ok {
		return nil, false
	}
	s.join(&found)
	return &found, true
}

// Exists reports whether a project with id is stored.
func (s *ProjectService) Exists(id string) bool {
	ok := false
	s.table.Read(func(projects []models.Project) {
		ok = indexOfProject(projects, id) >= 0
	})
	return ok
}

func (s *ProjectService) Create(ctx context.Context, in CreateProjectInput) (*models.Project, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title", "is required")
	}
	status := in.Status
	if status == "" {
		status = models.StatusDraft
	}
	if !status.Valid() {
		return nil, invalid("status", "must be one of draft, published, archived")
	}

	now := s.now()
	var created models.Project
	err := s.table.Update(ctx, func(cur []models.Project) ([]models.Project, error) {
		id := nextProjectID(cur)
		// a new project starts without media, whatever the index still holds
		// under its ID
		if err := s.media.DiscardProjectMedia(ctx, id); err != nil {
			return cur, err
		}

		created = models.Project{
			ID:           id,
			Title:        title,
			Description:  in.Description,
			Technologies: in.Technologies,
			Tags:         in.Tags,
			Status:       status,
			Featured:     in.Featured,
			CoverImage:   in.CoverImage,
			Duration:     in.Duration,
			TeamSize:     in.TeamSize,
			Scope:        in.Scope,
			CreatedAt:    now,
			UpdatedAt:    now,
		}.Clone()

		next := make([]models.Project, 0, len(cur)+1)
		next = append(next, cur...)
		return append(next, created), nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("project_id", created.ID).Str("title", created.Title).Msg("project created")
	out := created.Clone()
	return &out, nil
}

// Update merges patch into the stored project. The boolean is false when
// no project has that ID.
func (s *ProjectService) Update(ctx context.Context, id string, patch models.ProjectPatch) (*models.Project, bool, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, false, invalid("title", "must not be empty")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, false, invalid("status", "must be one of draft, published, archived")
	}

	var updated models.Project
	err := s.table.Update(ctx, func(cur []models.Project) ([]models.Project, error) {
		i := indexOfProject(cur, id)
		if i < 0 {
			return cur, errNoChange
		}
		p := cur[i].Clone()
		patch.Apply(&p)
		p.UpdatedAt = s.now()
		updated = p

		next := append([]models.Project{}, cur...)
		next[i] = p
		return next, nil
	})
	if errors.Is(err, errNoChange) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.log.Info().Str("project_id", id).Msg("project updated")
	s.join(&updated)
	return &updated, true, nil
}

// AddMedia stores an upload for the project. The project is looked up under
// the projects read lock, so a concurrent delete or renumbering cannot leave
// the file filed under a stale ID. The boolean is false when no project has
// that ID.
func (s *ProjectService) AddMedia(ctx context.Context, projectID string, in UploadInput) (*SavedMedia, bool, error) {
	var (
		saved *SavedMedia
		found bool
		err   error
	)
	s.table.Read(func(projects []models.Project) {
		if indexOfProject(projects, projectID) < 0 {
			return
		}
		found = true
		in.ProjectID = projectID
		saved, err = s.media.SaveFile(ctx, in)
	})
	return saved, found, err
}

// SetCoverImage stores url as the cover. It is not checked against the
// project's media.
func (s *ProjectService) SetCoverImage(ctx context.Context, id, url string) (*models.Project, bool, error) {
	return s.Update(ctx, id, models.ProjectPatch{CoverImage: &url})
}

// Delete removes a project after deleting all of its media. When a media
// file cannot be removed the project is kept and a *CascadeError returned.
// With ID compaction on, the remaining projects are renumbered 1..N and
// their media index entries follow them.
func (s *ProjectService) Delete(ctx context.Context, id string) (bool, error) {
	var mapping map[string]string

	err := s.table.Update(ctx, func(cur []models.Project) ([]models.Project, error) {
		i := indexOfProject(cur, id)
		if i < 0 {
			return cur, errNoChange
		}

		if err := s.media.DeleteAllProjectMedia(ctx, id); err != nil {
			return cur, err
		}

		next := make([]models.Project, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)

		if s.compactIDs {
			var m map[string]string
			next, m = compactProjectIDs(next, s.now())
			if err := s.media.RekeyProjects(ctx, m); err != nil {
				return cur, err
			}
			mapping = m
		}
		return next, nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		if mapping != nil {
			s.restoreMediaKeys(ctx, mapping)
		}
		return false, err
	}

	s.log.Info().Str("project_id", id).Msg("project deleted")
	return true, nil
}

// restoreMediaKeys undoes a rekey after the projects table failed to persist.
func (s *ProjectService) restoreMediaKeys(ctx context.Context, mapping map[string]string) {
	reverse := make(map[string]string, len(mapping))
	for oldID, newID := range mapping {
		reverse[newID] = oldID
	}
	if err := s.media.RekeyProjects(context.WithoutCancel(ctx), reverse); err != nil {
		s.log.Error().Err(err).Msg("could not restore media keys after failed project write")
	}
}

func (s *ProjectService) Count() int {
	n := 0
	s.table.Read(func(projects []models.Project) { n = len(projects) })
	return n
}

func (s *ProjectService) snapshot() []models.Project {
	var out []models.Project
	s.table.Read(func(projects []models.Project) {
		out = make([]models.Project, len(projects))
		for i, p := range projects {
			out[i] = p.Clone()
		}
	})
	return out
}

func (s *ProjectService) join(p *models.Project) {
	p.Images = s.media.GetProjectImages(p.ID)
	p.Videos = s.media.GetProjectVideos(p.ID)
}

func indexOfProject(projects []models.Project, id string) int {
	for i := range projects {
		if projects[i].ID == id {
			return i
		}
	}
	return -1
}

// nextProjectID is one more than the largest numeric ID, or "1".
// Non-numeric IDs never collide with generated ones and are skipped.
func nextProjectID(projects []models.Project) string {
	highest := 0
	for _, p := range projects {
		n, err := strconv.Atoi(p.ID)
		if err != nil || n < 0 {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return strconv.Itoa(highest + 1)
}

// compactProjectIDs renumbers projects 1..N in order. Records whose ID
// changes get a fresh UpdatedAt. The returned mapping covers every project.
func compactProjectIDs(projects []models.Project, now time.Time) ([]models.Project, map[string]string) {
	mapping := make(map[string]string, len(projects))
	out := make([]models.Project, len(projects))
	for i, p := range projects {
		newID := strconv.Itoa(i + 1)
		mapping[p.ID] = newID
		if p.ID != newID {
			p = p.Clone()
			p.ID = newID
			p.UpdatedAt = now
		}
		out[i] = p
	}
	return out, mapping
}

func matchesQuery(p models.Project, query string) bool {
	if strings.Contains(strings.ToLower(p.Title), query) ||
		strings.Contains(strings.ToLower(p.Description), query) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.EqualFold(tag, query) {
			return true
		}
	}
	for _, tech := range p.Technologies {
		if strings.EqualFold(tech, query) {
			return true
		}
	}
	return false
}

func exampleProjects(now time.Time) []models.Project {
	seeds := []models.Project{
		{
			Title:        "Harbor Coffee Rebrand",
			Description:  "Identity, packaging and signage for a specialty roaster opening its third location.",
			Technologies: []string{"Figma", "Illustrator"},
			Tags:         []string{"branding", "packaging"},
			Status:       models.StatusPublished,
			Featured:     true,
			Duration:     "10 weeks",
			TeamSize:     "3",
			Scope:        "Brand identity",
		},
		{
			Title:        "Atlas Field App",
			Description:  "Offline-first inspection app for utility crews, from research to shipped product.",
			Technologies: []string{"React Native", "TypeScript"},
			Tags:         []string{"mobile", "product"},
			Status:       models.StatusPublished,
			Duration:     "6 months",
			TeamSize:     "5",
			Scope:        "Product design and development",
		},
		{
			Title:        "Northwind Annual Report",
			Description:  "Interactive annual report with animated data stories.",
			Technologies: []string{"D3", "Svelte"},
			Tags:         []string{"editorial", "data"},
			Status:       models.StatusDraft,
			Duration:     "8 weeks",
			TeamSize:     "2",
			Scope:        "Web",
		},
	}
	for i := range seeds {
		seeds[i].ID = strconv.Itoa(i + 1)
		seeds[i].CreatedAt = now
		seeds[i].UpdatedAt = now
		seeds[i] = seeds[i].Clone()
	}
	return seeds
}
