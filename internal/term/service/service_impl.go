package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	termdomain "github.com/smallbiznis/panelbilling/internal/term/domain"
	"github.com/smallbiznis/panelbilling/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  termdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  termdomain.Repository
}

func New(p Params) termdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("term.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req termdomain.CreateRequest) (*termdomain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, termdomain.ErrInvalidName
	}
	termSlug := strings.TrimSpace(req.Slug)
	if termSlug == "" {
		termSlug = name
	}
	termSlug = slug.Make(termSlug)
	if termSlug == "" {
		return nil, termdomain.ErrInvalidSlug
	}
	if req.DurationDays <= 0 {
		return nil, termdomain.ErrInvalidDuration
	}
	if !req.Multiplier.IsPositive() {
		return nil, termdomain.ErrInvalidMultiplier
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	if req.IsDefault && !active {
		return nil, termdomain.ErrInactive
	}

	now := time.Now().UTC()
	entity := &termdomain.Term{
		ID:           s.genID.Generate(),
		Slug:         termSlug,
		Name:         name,
		DurationDays: req.DurationDays,
		Multiplier:   req.Multiplier,
		Active:       active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, entity); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return termdomain.ErrDuplicateSlug
			}
			return err
		}
		if !req.IsDefault {
			return nil
		}
		if err := s.promote(ctx, tx, entity.ID, now); err != nil {
			return err
		}
		entity.IsDefault = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	return toResponse(entity), nil
}

func (s *Service) Update(ctx context.Context, id string, patch termdomain.Patch) (*termdomain.Response, error) {
	termID, err := parseID(id)
	if err != nil {
		return nil, termdomain.ErrInvalidID
	}

	var updated *termdomain.Term
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entity, err := s.repo.FindByIDForUpdate(ctx, tx, termID)
		if err != nil {
			return err
		}
		if entity == nil {
			return termdomain.ErrNotFound
		}

		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return termdomain.ErrInvalidName
			}
			entity.Name = name
		}
		if patch.DurationDays != nil {
			if *patch.DurationDays <= 0 {
				return termdomain.ErrInvalidDuration
			}
			entity.DurationDays = *patch.DurationDays
		}
		if patch.Multiplier != nil {
			if !patch.Multiplier.IsPositive() {
				return termdomain.ErrInvalidMultiplier
			}
			entity.Multiplier = *patch.Multiplier
		}
		if patch.Active != nil {
			// The default term must stay purchasable; promote another one first.
			if !*patch.Active && entity.IsDefault {
				return termdomain.ErrInactive
			}
			entity.Active = *patch.Active
		}
		entity.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(ctx, tx, entity); err != nil {
			return err
		}
		updated = entity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toResponse(updated), nil
}

func (s *Service) List(ctx context.Context) ([]termdomain.Response, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	resp := make([]termdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) DefaultTerm(ctx context.Context) (*termdomain.Term, error) {
	return s.repo.FindDefault(ctx, s.db)
}

func (s *Service) TermByIdentifier(ctx context.Context, identifier string) (*termdomain.Term, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, termdomain.ErrInvalidID
	}

	var (
		entity *termdomain.Term
		err    error
	)
	if id, parseErr := parseID(identifier); parseErr == nil {
		entity, err = s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
	}
	if entity == nil {
		entity, err = s.repo.FindBySlug(ctx, s.db, strings.ToLower(identifier))
		if err != nil {
			return nil, err
		}
	}
	if entity == nil {
		return nil, termdomain.ErrNotFound
	}
	return entity, nil
}

func (s *Service) PromoteDefault(ctx context.Context, id string) (*termdomain.Response, error) {
	now := time.Now().UTC()
	id = strings.TrimSpace(id)
	if id == "" {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.repo.ClearDefaults(ctx, tx, 0, now)
		})
		if err != nil {
			return nil, err
		}
		s.log.Info("default term cleared")
		return nil, nil
	}

	termID, err := parseID(id)
	if err != nil {
		return nil, termdomain.ErrInvalidID
	}

	var promoted *termdomain.Term
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entity, err := s.repo.FindByIDForUpdate(ctx, tx, termID)
		if err != nil {
			return err
		}
		if entity == nil {
			return termdomain.ErrNotFound
		}
		if !entity.Active {
			return termdomain.ErrInactive
		}
		if err := s.promote(ctx, tx, entity.ID, now); err != nil {
			return err
		}
		entity.IsDefault = true
		entity.UpdatedAt = now
		promoted = entity
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("default term promoted", zap.String("term_id", promoted.ID.String()), zap.String("slug", promoted.Slug))
	return toResponse(promoted), nil
}

// promote must run inside the caller's transaction: demote first, then mark,
// so the single-default index never sees two defaults.
func (s *Service) promote(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) error {
	if err := s.repo.ClearDefaults(ctx, tx, id, now); err != nil {
		return err
	}
	return s.repo.MarkDefault(ctx, tx, id, now)
}

func toResponse(t *termdomain.Term) *termdomain.Response {
	return &termdomain.Response{
		ID:           t.ID,
		Slug:         t.Slug,
		Name:         t.Name,
		DurationDays: t.DurationDays,
		Multiplier:   t.Multiplier,
		Active:       t.Active,
		IsDefault:    t.IsDefault,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
